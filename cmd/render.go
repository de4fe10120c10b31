package cmd

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/TFMV/graphview/export"
	"github.com/TFMV/graphview/graph"
	"github.com/TFMV/graphview/ingest"
	"github.com/TFMV/graphview/render"
	"github.com/TFMV/graphview/viewer"
)

type renderOptions struct {
	dataFile   string
	mode       string
	outputFile string
	width      float64
	height     float64
	iterations int
	seed       uint64
	gpuContext bool
	instanced  bool
	fit        bool
	csvFile    string
	jsonFile   string
}

func newRenderCommand() *cobra.Command {
	o := &renderOptions{}
	cmd := &cobra.Command{
		Use:   "render",
		Short: "Lay out a graph export and write one frame",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRender(cmd, o)
		},
	}

	f := cmd.Flags()
	f.StringVar(&o.dataFile, "data", "", "Path to graph export (JSON or CSV)")
	f.StringVar(&o.mode, "mode", "", "Backend: vector or gpu (default: automatic)")
	f.StringVar(&o.outputFile, "out", "", "Output file (defaults to 'output.[svg|html]')")
	f.Float64Var(&o.width, "width", 0, "Canvas width")
	f.Float64Var(&o.height, "height", 0, "Canvas height")
	f.IntVar(&o.iterations, "iterations", 0, "Simulation ticks")
	f.Uint64Var(&o.seed, "seed", 0, "Layout seed (0 picks one)")
	f.BoolVar(&o.gpuContext, "gpu-context", true, "Assume a GPU context is available")
	f.BoolVar(&o.instanced, "instanced", true, "Assume instanced drawing is available")
	f.BoolVar(&o.fit, "fit", true, "Fit the layout to the canvas before rendering")
	f.StringVar(&o.csvFile, "export-csv", "", "Also write node records as CSV")
	f.StringVar(&o.jsonFile, "export-json", "", "Also write a JSON snapshot")
	_ = cmd.MarkFlagRequired("data")
	return cmd
}

func runRender(cmd *cobra.Command, o *renderOptions) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	flags := cmd.Flags()
	if flags.Changed("width") {
		cfg.Width = o.width
	}
	if flags.Changed("height") {
		cfg.Height = o.height
	}
	if flags.Changed("iterations") {
		cfg.Iterations = o.iterations
	}
	if flags.Changed("seed") {
		cfg.Seed = o.seed
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	var mode *render.RenderMode
	if o.mode != "" {
		m, err := render.ParseMode(o.mode)
		if err != nil {
			return err
		}
		mode = &m
	}

	exp, err := ingest.LoadFile(o.dataFile)
	if err != nil {
		return fmt.Errorf("failed to process input file: %w", err)
	}

	capability := render.Capability{GPUContext: o.gpuContext}
	if o.instanced {
		capability.Extensions = []string{render.ExtInstancedArrays}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	v, err := viewer.Mount(ctx, exp.Nodes, exp.Edges, cfg.Width, cfg.Height, viewer.Options{
		Capability:      capability,
		Layout:          cfg.Layout(),
		LargeThreshold:  cfg.LargeThreshold,
		EscalationBytes: cfg.EscalationBytes,
		DataBytes:       exp.Bytes,
		CullPadding:     cfg.CullPadding,
		MinScale:        cfg.MinZoom,
		MaxScale:        cfg.MaxZoom,
		Logger:          logger,
	})
	if err != nil {
		return err
	}
	defer v.Unmount()

	if mode != nil {
		if err := v.SetRenderMode(ctx, *mode); err != nil {
			return fmt.Errorf("cannot render in %s mode: %w", *mode, err)
		}
	}
	if o.fit {
		if err := v.FitToView(); err != nil {
			return err
		}
	}

	out, err := v.RenderFrame()
	if err != nil {
		return err
	}
	if o.outputFile == "" {
		o.outputFile = "output.svg"
		if out.Mode == render.ModeGPU {
			o.outputFile = "output.html"
		}
	}
	if err := os.WriteFile(o.outputFile, out.Body, 0o644); err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}

	if err := writeExports(v, o, exp.Metadata); err != nil {
		return err
	}

	logger.Info("Frame written",
		zap.String("file", o.outputFile),
		zap.Stringer("mode", out.Mode),
		zap.Int("visible_nodes", out.Report.VisibleNodes),
		zap.Int("total_nodes", out.Report.TotalNodes),
		zap.Bool("large_dataset", out.Report.IsLargeDataset))
	if out.Decision.PromptEscalation {
		logger.Info("Dataset is large enough for GPU rendering; rerun with --mode gpu")
	}
	return nil
}

func writeExports(v *viewer.Viewer, o *renderOptions, meta map[string]interface{}) error {
	write := func(path string, fn func(f *os.File, m *graph.Model) error) error {
		if path == "" {
			return nil
		}
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		werr := v.View(func(m *graph.Model) error { return fn(f, m) })
		return errors.Join(werr, f.Close())
	}
	if err := write(o.csvFile, func(f *os.File, m *graph.Model) error {
		return export.WriteNodesCSV(f, m.Nodes())
	}); err != nil {
		return fmt.Errorf("failed to write CSV export: %w", err)
	}
	if err := write(o.jsonFile, func(f *os.File, m *graph.Model) error {
		return export.WriteJSON(f, m, meta)
	}); err != nil {
		return fmt.Errorf("failed to write JSON export: %w", err)
	}
	return nil
}
