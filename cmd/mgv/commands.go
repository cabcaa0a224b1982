package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/daviddao/megagrid/internal/config"
	"github.com/daviddao/megagrid/internal/datasource"
	"github.com/daviddao/megagrid/internal/devchain"
	"github.com/daviddao/megagrid/internal/grid"
	"github.com/daviddao/megagrid/internal/snapshot"
)

// app carries the flags shared by every command and the configuration
// loaded from them.
type app struct {
	configPath string
	backend    string
	dbPath     string
	color      string
	cellWidth  int

	cfg config.Config
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "mgv",
		Short:         "Paint the shared megagrid from your terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load(cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runTUI(cmd.Context())
		},
	}
	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "", "config file (default ~/.megagrid/megagrid.yaml)")
	pf.StringVar(&a.backend, "backend", "", "grid backend: dev or eth")
	pf.StringVar(&a.dbPath, "db", "", "devnet database (default: auto-discover .megagrid/grid.db)")
	root.Flags().StringVar(&a.color, "color", "", "start in picker mode with this #RRGGBB color")
	root.Flags().IntVar(&a.cellWidth, "cell-width", 0, "terminal columns per cell (1-4)")

	root.AddCommand(a.dumpCmd(), a.devnetCmd(), versionCmd())
	return root
}

// load reads the config file and applies flag overrides.
func (a *app) load(cmd *cobra.Command) error {
	if cmd.Name() == "version" {
		return nil
	}
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.backend != "" {
		cfg.Backend = a.backend
	}
	if a.dbPath != "" {
		cfg.Dev.DB = a.dbPath
	}
	if a.color != "" {
		cfg.Color = a.color
	}
	if a.cellWidth != 0 {
		cfg.CellWidth = clampCellWidth(a.cellWidth)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg
	return nil
}

func clampCellWidth(n int) int {
	return min(max(n, 1), 4)
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version and exit",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "mgv %s\n", Version)
		},
	}
}

func (a *app) dumpCmd() *cobra.Command {
	var concurrency int
	cmd := &cobra.Command{
		Use:   "dump",
		Short: "Print every colored cell of the grid as JSON and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := newConsoleLogger(cmd.ErrOrStderr())
			b, err := datasource.Open(ctx, a.cfg, log)
			if err != nil {
				return err
			}
			defer b.Close()

			snap, err := snapshot.Build(ctx, b.Reader, concurrency)
			if err != nil {
				return fmt.Errorf("snapshot: %w", err)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(snap)
		},
	}
	cmd.Flags().IntVar(&concurrency, "concurrency", snapshot.DefaultConcurrency, "parallel cell reads")
	return cmd
}

func (a *app) devnetCmd() *cobra.Command {
	devnet := &cobra.Command{
		Use:   "devnet",
		Short: "Manage the local SQLite devnet",
	}

	var size int
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Create a devnet database (an existing one keeps its size)",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := datasource.DevPath(a.cfg)
			if err != nil {
				return err
			}
			if size <= 0 {
				size = a.cfg.Dev.Size
			}
			s, err := devchain.Init(path, size)
			if err != nil {
				return err
			}
			defer s.Close()
			n, err := s.GridDimension(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "devnet %dx%d at %s\n", n, n, path)
			return nil
		},
	}
	initCmd.Flags().IntVar(&size, "size", 0, "grid dimension (default from config)")

	var (
		sender string
		random int
	)
	paintCmd := &cobra.Command{
		Use:   "paint [x,y=#rrggbb ...]",
		Short: "Paint cells as another user; one cell is a single event, several are a batch",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := datasource.OpenDev(a.cfg)
			if err != nil {
				return err
			}
			defer s.Close()
			n, err := s.GridDimension(ctx)
			if err != nil {
				return err
			}
			ids, colors, err := paintArgs(grid.Dim(n), args, random)
			if err != nil {
				return err
			}
			ref, err := paint(ctx, s, sender, ids, colors)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "painted %d cells (%s)\n", len(ids), ref)
			return nil
		},
	}
	paintCmd.Flags().StringVar(&sender, "sender", "0x00000000000000000000000000000000000b0b00", "account recorded as sender")
	paintCmd.Flags().IntVar(&random, "random", 0, "paint this many random cells in one batch")

	devnet.AddCommand(initCmd, paintCmd)
	return devnet
}

func paint(ctx context.Context, s *devchain.Store, sender string, ids []int, colors []grid.Color) (string, error) {
	if len(ids) == 1 {
		return s.ColorCell(ctx, sender, ids[0], colors[0])
	}
	return s.ColorCells(ctx, sender, ids, colors)
}

// paintArgs turns "x,y=#rrggbb" arguments, or a count of random cells, into
// index-aligned ids and colors.
func paintArgs(d grid.Dim, args []string, random int) ([]int, []grid.Color, error) {
	if random > 0 {
		rng := rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
		ids := make([]int, random)
		colors := make([]grid.Color, random)
		for i := range ids {
			ids[i] = rng.IntN(d.Cells())
			colors[i] = grid.Random(rng)
		}
		return ids, colors, nil
	}
	if len(args) == 0 {
		return nil, nil, fmt.Errorf("nothing to paint: pass x,y=#rrggbb or --random N")
	}
	ids := make([]int, 0, len(args))
	colors := make([]grid.Color, 0, len(args))
	for _, arg := range args {
		id, c, err := parseCellArg(d, arg)
		if err != nil {
			return nil, nil, err
		}
		ids = append(ids, id)
		colors = append(colors, c)
	}
	return ids, colors, nil
}

func parseCellArg(d grid.Dim, arg string) (int, grid.Color, error) {
	at, hex, ok := strings.Cut(arg, "=")
	if !ok {
		return 0, 0, fmt.Errorf("%q: want x,y=#rrggbb", arg)
	}
	xs, ys, ok := strings.Cut(at, ",")
	if !ok {
		return 0, 0, fmt.Errorf("%q: want x,y=#rrggbb", arg)
	}
	x, err := strconv.Atoi(strings.TrimSpace(xs))
	if err != nil {
		return 0, 0, fmt.Errorf("%q: x: %w", arg, err)
	}
	y, err := strconv.Atoi(strings.TrimSpace(ys))
	if err != nil {
		return 0, 0, fmt.Errorf("%q: y: %w", arg, err)
	}
	if !d.Contains(x, y) {
		return 0, 0, fmt.Errorf("%q: off the %dx%d grid", arg, d, d)
	}
	c, err := grid.ParseHex(hex)
	if err != nil {
		return 0, 0, fmt.Errorf("%q: %w", arg, err)
	}
	return d.ID(x, y), c, nil
}

// newConsoleLogger logs warnings to w for the one-shot commands.
func newConsoleLogger(w io.Writer) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelWarn}))
}
