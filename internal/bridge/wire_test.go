package bridge

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/fxamacker/cbor/v2"
)

func TestHeaderRoundTrip(t *testing.T) {
	buf := EncodeHeader(FrameReply, 1234)
	if len(buf) != HeaderSize {
		t.Fatalf("header size = %d", len(buf))
	}
	if buf[0] != 'S' || buf[1] != 'G' {
		t.Errorf("magic bytes = %q", buf[:2])
	}
	h, err := DecodeHeader(buf)
	if err != nil {
		t.Fatal(err)
	}
	if h.Type != FrameReply || h.Length != 1234 || h.Version != ProtocolVersion {
		t.Errorf("header = %+v", h)
	}
}

func TestDecodeHeaderErrors(t *testing.T) {
	badVersion := EncodeHeader(FrameRequest, 0)
	badVersion[2] = 9
	tooLarge := EncodeHeader(FrameRequest, MaxPayload+1)

	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"short", []byte{0x53, 0x47, 1}, ErrBufferTooShort},
		{"bad magic", []byte{0, 0, 1, 1, 0, 0, 0, 0}, ErrBadMagic},
		{"bad version", badVersion, ErrBadVersion},
		{"too large", tooLarge, ErrFrameTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DecodeHeader(tt.data); !errors.Is(err, tt.want) {
				t.Errorf("DecodeHeader() = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestFrameRoundTrip(t *testing.T) {
	args, err := encodeArgs([]any{3, 100, map[string]string{"artist": "low"}})
	if err != nil {
		t.Fatal(err)
	}
	frame, err := EncodeFrame(FrameRequest, Request{ID: "abc", Method: "songs.list", Args: args})
	if err != nil {
		t.Fatal(err)
	}

	h, payload, err := DecodeFrame(frame)
	if err != nil {
		t.Fatal(err)
	}
	if h.Type != FrameRequest || int(h.Length) != len(payload) {
		t.Errorf("header = %+v, payload %d bytes", h, len(payload))
	}
	var req Request
	if err := cbor.Unmarshal(payload, &req); err != nil {
		t.Fatal(err)
	}
	if req.Method != "songs.list" || req.ID != "abc" || len(req.Args) != 3 {
		t.Fatalf("request = %+v", req)
	}
	var filters map[string]string
	if err := Args(req.Args).Decode(2, &filters); err != nil || filters["artist"] != "low" {
		t.Errorf("filters = %v, %v", filters, err)
	}

	if _, _, err := DecodeFrame(frame[:len(frame)-1]); !errors.Is(err, ErrPayloadTooShort) {
		t.Errorf("truncated DecodeFrame() = %v", err)
	}
}

func TestReadFrame(t *testing.T) {
	a, _ := EncodeFrame(FrameNotify, Request{Method: "logger.info"})
	b, _ := EncodeFrame(FrameReply, Reply{ID: "x"})
	r := bytes.NewReader(append(a, b...))

	h, _, err := ReadFrame(r)
	if err != nil || h.Type != FrameNotify {
		t.Fatalf("first frame = %+v, %v", h, err)
	}
	h, _, err = ReadFrame(r)
	if err != nil || h.Type != FrameReply {
		t.Fatalf("second frame = %+v, %v", h, err)
	}
	if _, _, err := ReadFrame(r); !errors.Is(err, io.EOF) {
		t.Errorf("ReadFrame at end = %v, want EOF", err)
	}

	if _, _, err := ReadFrame(bytes.NewReader(a[:len(a)-1])); !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("truncated ReadFrame() = %v, want ErrUnexpectedEOF", err)
	}
}

func TestArgsOptional(t *testing.T) {
	args, _ := encodeArgs([]any{1, nil})
	a := Args(args)

	var n int
	if err := a.Optional(0, &n); err != nil || n != 1 {
		t.Errorf("Optional(0) = %d, %v", n, err)
	}
	m := map[string]string{"keep": "me"}
	if err := a.Optional(1, &m); err != nil || m["keep"] != "me" {
		t.Errorf("Optional(nil) = %v, %v", m, err)
	}
	if err := a.Optional(5, &m); err != nil {
		t.Errorf("Optional(missing) = %v", err)
	}
	if err := a.Decode(5, &m); !errors.Is(err, ErrMissingArgument) {
		t.Errorf("Decode(missing) = %v", err)
	}
}
