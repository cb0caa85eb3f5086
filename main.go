package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"pkt.systems/psi"
	"pkt.systems/pslog"

	"songgrid/internal/api"
	"songgrid/internal/appconfig"
	"songgrid/internal/bridge"
	"songgrid/internal/grid"
	"songgrid/internal/library"
	"songgrid/internal/logx"
)

func main() {
	psi.Run(submain)
}

func submain(ctx context.Context) int {
	logger := pslog.LoggerFromEnv(
		pslog.WithEnvWriter(os.Stderr),
		pslog.WithEnvOptions(pslog.Options{Mode: pslog.ModeConsole}),
	)
	ctx = pslog.ContextWithLogger(ctx, logger)
	log.SetOutput(pslog.LogLogger(logger).Writer())
	log.SetFlags(0)

	root := newRootCmd()
	root.SetArgs(os.Args[1:])
	if err := root.ExecuteContext(ctx); err != nil {
		pslog.Ctx(ctx).With("err", err).Error("songgrid command failed")
		return 1
	}
	return 0
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "songgrid",
		Short:         "Browse a large song catalog in a virtualized terminal grid",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.PersistentFlags().StringP("config", "c", "", "path to config file")
	root.PersistentFlags().String("db", "", "song database (overrides config)")

	root.AddCommand(newBrowseCmd())
	root.AddCommand(newScanCmd())
	root.AddCommand(newSeedCmd())
	root.AddCommand(newConfigCmd())
	return root
}

// loadConfig reads the config named by --config and applies --db.
func loadConfig(cmd *cobra.Command) (appconfig.Config, error) {
	cfgPath, _ := cmd.Flags().GetString("config")
	cfg, err := appconfig.Load(cfgPath)
	if err != nil {
		return appconfig.Config{}, err
	}
	if db, _ := cmd.Flags().GetString("db"); db != "" {
		cfg.Database = db
	}
	return cfg, nil
}

func openStore(ctx context.Context, path string) (*library.Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return library.Open(ctx, path)
}

type browseFlags struct {
	sort     string
	pageSize int
	artist   string
	album    string
	title    string
	wrap     bool
}

func (f browseFlags) filters() map[string]string {
	filters := map[string]string{}
	for k, v := range map[string]string{"artist": f.artist, "album": f.album, "title": f.title} {
		if v = strings.TrimSpace(v); v != "" {
			filters[k] = v
		}
	}
	return filters
}

func newBrowseCmd() *cobra.Command {
	var flags browseFlags
	cmd := &cobra.Command{
		Use:   "browse",
		Short: "Open the song grid",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("wrap") {
				cfg.Grid.WrapCells = flags.wrap
			}
			return runBrowse(cmd.Context(), cfg, flags)
		},
	}
	cmd.Flags().StringVarP(&flags.sort, "sort", "s", "", "initial sort, e.g. artist,length:desc")
	cmd.Flags().IntVar(&flags.pageSize, "page-size", 0, "rows per page request (overrides config)")
	cmd.Flags().StringVar(&flags.artist, "artist", "", "only songs whose artist contains this")
	cmd.Flags().StringVar(&flags.album, "album", "", "only songs whose album contains this")
	cmd.Flags().StringVar(&flags.title, "title", "", "only songs whose title contains this")
	cmd.Flags().BoolVar(&flags.wrap, "wrap", false, "wrap long cells instead of truncating")
	return cmd
}

// gridOptions merges config and flags. The sort is checked against the
// columns here so a typo fails before the terminal is taken over.
func gridOptions(cfg appconfig.Config, flags browseFlags, cols []grid.Column[library.Song]) (grid.Options, error) {
	opts := cfg.Grid.Options()
	if flags.pageSize > 0 {
		opts.PageSize = min(flags.pageSize, api.MaxLimit)
	}
	spec, err := grid.ParseSortSpec(flags.sort)
	if err != nil {
		return grid.Options{}, err
	}
	for _, k := range spec {
		known := false
		for _, c := range cols {
			if c.ID == k.ColumnID && c.Sortable {
				known = true
				break
			}
		}
		if !known {
			return grid.Options{}, fmt.Errorf("%w: %s", grid.ErrUnknownColumn, k.ColumnID)
		}
	}
	if opts.SortMode == grid.SortSingle && len(spec) > 1 {
		opts.SortMode = grid.SortMulti
	}
	opts.Sort = spec
	opts.Filters = flags.filters()
	return opts, nil
}

// browseLogger opens the log file the browser writes to. Without one, logs
// are discarded since stderr is the terminal being drawn on.
func browseLogger(cfg appconfig.Config) (pslog.Logger, func() error, error) {
	if cfg.LogFile == "" {
		return logx.NewFile(io.Discard, cfg.LogLevel), func() error { return nil }, nil
	}
	if err := os.MkdirAll(filepath.Dir(cfg.LogFile), 0o755); err != nil {
		return nil, nil, err
	}
	f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, nil, err
	}
	return logx.NewFile(f, cfg.LogLevel), f.Close, nil
}

func runBrowse(ctx context.Context, cfg appconfig.Config, flags browseFlags) error {
	cols := songColumns()
	opts, err := gridOptions(cfg, flags, cols)
	if err != nil {
		return err
	}

	fileLog, closeLog, err := browseLogger(cfg)
	if err != nil {
		return err
	}
	defer closeLog()
	ctx = pslog.ContextWithLogger(ctx, fileLog)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	store, err := openStore(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer store.Close()

	host := bridge.NewHost()
	api.Register(host, store, fileLog)
	client := bridge.Pipe(ctx, host)
	defer client.Close()

	opts.Logger = logx.WithFilters(fileLog, opts.Filters)
	g := grid.New[library.Song](ctx, api.NewSongSource(client), cols, opts)
	fileLog.Info("browse started", "database", store.Path(), "page_size", opts.PageSize, "sort", opts.Sort.String())

	m := newBrowseModel(g, fileLog, api.NewRemoteLogger(client), cfg.Grid.WrapCells)
	_, err = tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

func newScanCmd() *cobra.Command {
	var (
		exts  string
		hash  bool
		noTUI bool
	)
	cmd := &cobra.Command{
		Use:   "scan [dir]",
		Short: "Catalog audio files under dir into the song database",
		Long:  "Catalog audio files under dir into the song database. Without dir, the last scanned directory is used.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("ext") {
				cfg.Scan.Extensions = exts
			}
			if cmd.Flags().Changed("hash") {
				cfg.Scan.Hash = hash
			}
			statePath, err := appconfig.DefaultStatePath()
			if err != nil {
				return err
			}
			st, err := appconfig.LoadState(statePath)
			if err != nil {
				pslog.Ctx(cmd.Context()).Warn("ignoring unreadable state", "path", statePath, "err", err)
			}
			root := st.LastRoot()
			if len(args) == 1 {
				root = args[0]
			}
			if root == "" {
				return errors.New("no directory given and no previous scan to repeat")
			}
			root, err = filepath.Abs(root)
			if err != nil {
				return err
			}
			if info, err := os.Stat(root); err != nil {
				return err
			} else if !info.IsDir() {
				return fmt.Errorf("%s is not a directory", root)
			}

			st.Remember(root)
			if err := appconfig.SaveState(statePath, st); err != nil {
				pslog.Ctx(cmd.Context()).Warn("could not save scan history", "path", statePath, "err", err)
			}
			return runScan(cmd.Context(), cfg, root, !noTUI, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&exts, "ext", "", "comma separated extensions to catalog (overrides config)")
	cmd.Flags().BoolVar(&hash, "hash", false, "record a SHA-256 of every file")
	cmd.Flags().BoolVar(&noTUI, "plain", false, "log progress instead of drawing the scan view")
	return cmd
}

func runScan(ctx context.Context, cfg appconfig.Config, root string, tui bool, out io.Writer) error {
	store, err := openStore(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer store.Close()

	opts := library.ScanOptions{
		Extensions: library.ParseExtSet(cfg.Scan.Extensions),
		Hash:       cfg.Scan.Hash,
	}
	if !tui {
		logger := logx.WithRoot(pslog.Ctx(ctx), root)
		opts.Estimated = library.EstimateFileCount(root, opts.Extensions)
		opts.Progress = func(p library.ScanProgress) {
			logger.Info("scan progress", "files", p.Files, "folders", p.Folders, "percent", fmt.Sprintf("%.1f", p.Percent()))
		}
		stats, err := store.Scan(ctx, root, opts)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s songs cataloged from %s folders into %s\n", formatCount(stats.Files), formatCount(stats.Folders), store.Path())
		return nil
	}

	scanCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	// Scanner logs would land on the scan view; keep only what the view shows.
	scanCtx = pslog.ContextWithLogger(scanCtx, logx.NewFile(io.Discard, cfg.LogLevel))
	events := scanJob(scanCtx, store, root, opts)
	final, err := tea.NewProgram(newScanModel(root, store.Path(), events, cancel)).Run()
	if err != nil {
		return err
	}
	if m, ok := final.(scanModel); ok && m.err != nil && !errors.Is(m.err, context.Canceled) {
		return m.err
	}
	return nil
}

func newSeedCmd() *cobra.Command {
	var (
		count int
		seed  uint64
	)
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Fill the song database with a synthetic catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			if count <= 0 {
				return fmt.Errorf("--count must be positive, got %d", count)
			}
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			store, err := openStore(cmd.Context(), cfg.Database)
			if err != nil {
				return err
			}
			defer store.Close()
			if err := store.Seed(cmd.Context(), count, seed); err != nil {
				return err
			}
			total, err := store.Count(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s songs in %s\n", formatCount(int64(total)), store.Path())
			return nil
		},
	}
	cmd.Flags().IntVarP(&count, "count", "n", 10000, "number of songs to generate")
	cmd.Flags().Uint64Var(&seed, "seed", 1, "random seed; the same seed yields the same catalog")
	return cmd
}

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the songgrid config file",
	}
	var overwrite bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath, _ := cmd.Flags().GetString("config")
			path, err := appconfig.WriteDefault(cfgPath, overwrite)
			if err != nil {
				return err
			}
			pslog.Ctx(cmd.Context()).Info("wrote config", "path", path)
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&overwrite, "force", false, "overwrite an existing config")
	cmd.AddCommand(initCmd)
	return cmd
}
