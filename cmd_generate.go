package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"sd_backend/core"
	"sd_backend/db"
	"sd_backend/imagegen"
	"sd_backend/sdruntime"
)

type generateOptions struct {
	*globalOptions

	Params    imagegen.GenerationParameters
	Seed      int64
	NoHistory bool
	JSON      bool
}

// newGenerateCommand creates the generate command, which runs one request
// without starting the server.
//
// Usage:
//
//	sd_backend generate --model ID --prompt TEXT [flags]
func newGenerateCommand(globalOpts *globalOptions) *cobra.Command {
	opts := &generateOptions{
		globalOptions: globalOpts,
		Params:        imagegen.DefaultParameters(),
	}

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate images once from the command line",
		Long: `Generate images with the same pipeline the server uses and write them
to OUTPUT_DIR. The request is recorded in the history database unless
--no-history is given.`,
		Example: `  sd_backend generate --model dreamshaper_8 --prompt "a lighthouse at dusk"
  sd_backend generate --model sdxl_base --prompt "a fox" --batch 4 --seed 1234`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("seed") {
				seed := opts.Seed
				opts.Params.Seed = &seed
			}
			return runGenerate(cmd, opts)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.Params.Prompt, "prompt", "p", "", "text prompt")
	f.StringVar(&opts.Params.NegativePrompt, "negative", "", "negative prompt")
	f.StringVarP(&opts.Params.Model, "model", "m", "", "model id as listed by the models command")
	f.IntVar(&opts.Params.Width, "width", opts.Params.Width, "image width, a multiple of 8")
	f.IntVar(&opts.Params.Height, "height", opts.Params.Height, "image height, a multiple of 8")
	f.IntVar(&opts.Params.Steps, "steps", opts.Params.Steps, "denoising steps")
	f.Float64Var(&opts.Params.CFGScale, "cfg-scale", opts.Params.CFGScale, "classifier-free guidance scale")
	f.StringVar(&opts.Params.Sampler, "sampler", opts.Params.Sampler, "sampler, one of: "+strings.Join(sdruntime.SamplerNames(), ", "))
	f.IntVarP(&opts.Params.BatchSize, "batch", "n", opts.Params.BatchSize, "number of images")
	f.Int64Var(&opts.Seed, "seed", 0, "base seed; random when omitted")
	f.BoolVar(&opts.NoHistory, "no-history", false, "do not record the request in the history database")
	f.BoolVar(&opts.JSON, "json", false, "print the generated records as JSON")
	return cmd
}

func runGenerate(cmd *cobra.Command, opts *generateOptions) error {
	if err := opts.Params.Validate(); err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()
	log := logger.Zap()

	device, err := sdruntime.ResolveDevice(cfg.Device)
	if err != nil {
		return err
	}
	gen, err := newGenerationStack(cfg, device, log)
	if err != nil {
		return err
	}
	defer gen.cache.Close()

	if !opts.NoHistory {
		database, err := db.Open(cmd.Context(), cfg.DBPath)
		if err != nil {
			log.Warn("History database unavailable, continuing without it", zap.Error(err))
		} else {
			defer database.Close()
			gen.processor.OnComplete(historyObserver(db.NewRepository(database), log.Named("history")))
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = core.WithRequestID(ctx, core.NewRequestID())

	images, err := gen.processor.Generate(ctx, opts.Params)
	if err != nil {
		if errors.Is(err, imagegen.ErrNotFound) {
			return fmt.Errorf("model %q not found under %s", opts.Params.Model, cfg.ModelsDir)
		}
		return err
	}
	return printGenerated(cmd.OutOrStdout(), gen.store, images, opts.JSON)
}

func printGenerated(w io.Writer, store *imagegen.Store, images []imagegen.GeneratedImage, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(images)
	}
	for _, img := range images {
		fmt.Fprintf(w, "%s  seed=%d  %s\n", img.ID, img.Seed, store.ImagePath(img.ID))
	}
	return nil
}

