package bridge

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
)

// Wire format constants.
const (
	HeaderSize      = 8
	Magic           = 0x5347 // ASCII 'SG'
	ProtocolVersion = 1
	// MaxPayload bounds a single frame.
	MaxPayload = 16 << 20
)

// FrameType tags a frame's payload.
type FrameType uint8

const (
	FrameRequest FrameType = iota + 1
	FrameReply
	FrameNotify
)

func (t FrameType) String() string {
	switch t {
	case FrameRequest:
		return "request"
	case FrameReply:
		return "reply"
	case FrameNotify:
		return "notify"
	default:
		return fmt.Sprintf("frame(%d)", uint8(t))
	}
}

// Errors returned by wire format functions.
var (
	ErrBufferTooShort  = errors.New("buffer too short for frame header")
	ErrBadMagic        = errors.New("invalid magic bytes in frame header")
	ErrBadVersion      = errors.New("unsupported protocol version")
	ErrPayloadTooShort = errors.New("buffer too short for complete frame")
	ErrFrameTooLarge   = errors.New("frame payload exceeds limit")
)

// FrameHeader is the decoded fixed-size prefix of a frame.
type FrameHeader struct {
	Magic   uint16
	Version uint8
	Type    FrameType
	Length  uint32
}

// EncodeHeader writes an 8-byte frame header.
//
// Wire layout:
//
//	[0:2]  magic   (big-endian uint16, 0x5347)
//	[2]    version (uint8, 1)
//	[3]    type    (uint8, FrameType)
//	[4:8]  length  (little-endian uint32, payload bytes)
func EncodeHeader(t FrameType, payloadLength uint32) []byte {
	buf := make([]byte, HeaderSize)
	binary.BigEndian.PutUint16(buf[0:2], Magic)
	buf[2] = ProtocolVersion
	buf[3] = byte(t)
	binary.LittleEndian.PutUint32(buf[4:8], payloadLength)
	return buf
}

// DecodeHeader parses an 8-byte frame header from data.
func DecodeHeader(data []byte) (*FrameHeader, error) {
	if len(data) < HeaderSize {
		return nil, ErrBufferTooShort
	}
	magic := binary.BigEndian.Uint16(data[0:2])
	if magic != Magic {
		return nil, ErrBadMagic
	}
	if data[2] != ProtocolVersion {
		return nil, fmt.Errorf("%w: %d", ErrBadVersion, data[2])
	}
	h := &FrameHeader{
		Magic:   magic,
		Version: data[2],
		Type:    FrameType(data[3]),
		Length:  binary.LittleEndian.Uint32(data[4:8]),
	}
	if h.Length > MaxPayload {
		return nil, ErrFrameTooLarge
	}
	return h, nil
}

// EncodeFrame CBOR-encodes v and prefixes it with a header.
func EncodeFrame(t FrameType, v any) ([]byte, error) {
	payload, err := cbor.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("cbor encode: %w", err)
	}
	if len(payload) > MaxPayload {
		return nil, ErrFrameTooLarge
	}
	frame := make([]byte, HeaderSize+len(payload))
	copy(frame[0:HeaderSize], EncodeHeader(t, uint32(len(payload))))
	copy(frame[HeaderSize:], payload)
	return frame, nil
}

// DecodeFrame splits a complete frame into header and payload.
func DecodeFrame(data []byte) (*FrameHeader, []byte, error) {
	header, err := DecodeHeader(data)
	if err != nil {
		return nil, nil, err
	}
	total := HeaderSize + int(header.Length)
	if len(data) < total {
		return nil, nil, ErrPayloadTooShort
	}
	return header, data[HeaderSize:total], nil
}

// ReadFrame reads exactly one frame from r.
func ReadFrame(r io.Reader) (*FrameHeader, []byte, error) {
	var hdr [HeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, nil, err
	}
	header, err := DecodeHeader(hdr[:])
	if err != nil {
		return nil, nil, err
	}
	payload := make([]byte, header.Length)
	if _, err := io.ReadFull(r, payload); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, nil, err
	}
	return header, payload, nil
}

// Request is the payload of a request or notify frame.
type Request struct {
	ID     string            `cbor:"id,omitempty"`
	Method string            `cbor:"method"`
	Args   []cbor.RawMessage `cbor:"args"`
}

// Reply is the payload of a reply frame. Exactly one of Result and Error is set.
type Reply struct {
	ID     string          `cbor:"id"`
	Result cbor.RawMessage `cbor:"result,omitempty"`
	Error  *RemoteError    `cbor:"error,omitempty"`
}

func encodeArgs(args []any) ([]cbor.RawMessage, error) {
	out := make([]cbor.RawMessage, len(args))
	for i, a := range args {
		b, err := cbor.Marshal(a)
		if err != nil {
			return nil, fmt.Errorf("encode argument %d: %w", i, err)
		}
		out[i] = b
	}
	return out, nil
}
