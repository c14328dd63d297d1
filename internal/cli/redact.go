package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	imageredactor "github.com/menta2k/image-redactor"
	"github.com/menta2k/image-redactor/internal/config"
	"github.com/menta2k/image-redactor/internal/utils"
	"github.com/menta2k/image-redactor/pkg/codec"
	"github.com/menta2k/image-redactor/pkg/detection"
	"github.com/menta2k/image-redactor/pkg/processing"
	"github.com/menta2k/image-redactor/pkg/redaction"
)

type redactOptions struct {
	output     string
	cover      string
	blockSize  int
	strategy   string
	backend    string
	url        string
	model      string
	debug      bool
	checkModel bool
}

func newRedactCmd(g *globalOptions) *cobra.Command {
	opts := &redactOptions{}

	cmd := &cobra.Command{
		Use:   "redact <file|dir|url>",
		Short: "Redact an image, a URL or every image in a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.loadConfig()
			if err != nil {
				return err
			}
			if err := opts.apply(cfg); err != nil {
				return err
			}
			g.exitCode = runRedact(cmd.Context(), g, cfg, opts, args[0])
			return nil
		},
	}

	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "Output file (single input) or directory (default: output.dir)")
	cmd.Flags().StringVar(&opts.cover, "cover", "", "Cover image for the overlay strategy (file or URL)")
	cmd.Flags().IntVar(&opts.blockSize, "block-size", 0, "Mosaic block size in pixels (default: redaction.mosaic_size)")
	cmd.Flags().StringVar(&opts.strategy, "strategy", "", "Redaction strategy: mosaic or overlay")
	cmd.Flags().StringVar(&opts.backend, "backend", "", "Detector backend: http, ws, ollama, llamacpp, saliency")
	cmd.Flags().StringVar(&opts.url, "detector-url", "", "Detector URL")
	cmd.Flags().StringVar(&opts.model, "model", "", "Model name for vision language model backends")
	cmd.Flags().BoolVar(&opts.debug, "debug", false, "Also write an image with the detection boxes drawn")
	cmd.Flags().BoolVar(&opts.checkModel, "check-model", false, "Ask the vision model to describe the first input before redacting")

	return cmd
}

// apply merges the flags into cfg
func (o *redactOptions) apply(cfg *config.Config) error {
	if o.backend != "" {
		cfg.Detector.Backend = o.backend
	}
	if o.url != "" {
		cfg.Detector.URL = o.url
	}
	if o.model != "" {
		cfg.Detector.Model = o.model
	}
	if o.strategy != "" {
		cfg.Redaction.Strategy = o.strategy
	}
	if o.cover != "" {
		cfg.Redaction.CoverImage = o.cover
		if o.strategy == "" {
			cfg.Redaction.Strategy = "overlay"
		}
	}
	if o.blockSize != 0 {
		cfg.Redaction.MosaicSize = o.blockSize
	}
	return cfg.Validate()
}

func runRedact(ctx context.Context, g *globalOptions, cfg *config.Config, opts *redactOptions, input string) int {
	if ctx == nil {
		ctx = context.Background()
	}
	logger := g.newLogger(cfg)

	kind, err := redaction.ParseKind(cfg.Redaction.Strategy)
	if err != nil {
		logger.Error(err)
		return ExitUsageError
	}

	inputs := []string{input}
	batch := utils.DirExists(input)
	if batch {
		inputs, err = utils.ListImageFiles(input)
		if err != nil {
			logger.WithError(err).Error("failed to list images")
			return ExitRuntimeError
		}
		if len(inputs) == 0 {
			logger.Warnf("no images found in %s", input)
			return ExitSuccess
		}
	}

	processor := processing.NewProcessor()

	if opts.checkModel {
		if code := checkModel(ctx, cfg, logger, processor, inputs[0], g.stdout); code != ExitSuccess {
			return code
		}
	}

	detector, cleanup, err := buildDetector(cfg, logger)
	if err != nil {
		logger.WithError(err).Error("failed to create detector")
		return ExitRuntimeError
	}
	defer cleanup()

	redactor, err := buildRedactor(cfg, detector, logger)
	if err != nil {
		logger.WithError(err).Error("invalid output format")
		return ExitUsageError
	}

	var cover []byte
	if kind == redaction.KindOverlay && cfg.Redaction.CoverImage != "" {
		if cover, err = processor.ReadSource(ctx, cfg.Redaction.CoverImage); err != nil {
			// the redactor downgrades to mosaic without a cover
			logger.WithError(err).Warn("cover image unavailable")
		}
	}

	job := &redactJob{
		cfg:       cfg,
		redactor:  redactor,
		processor: processor,
		logger:    logger,
		kind:      kind,
		cover:     cover,
		debug:     opts.debug,
		out:       g.stdout,
	}

	failed := 0
	for _, in := range inputs {
		out := outputPath(cfg, in, opts.output, batch)
		if err := job.run(ctx, in, out); err != nil {
			logger.WithError(err).WithField("input", in).Error("redaction failed")
			failed++
		}
	}

	switch {
	case failed == 0:
		return ExitSuccess
	case failed < len(inputs):
		return ExitPartial
	default:
		return ExitRuntimeError
	}
}

// checkModel asks a vision language model backend to describe input, which
// shows whether the model receives images at all
func checkModel(ctx context.Context, cfg *config.Config, logger logrus.FieldLogger, processor *processing.Processor, input string, out io.Writer) int {
	d, err := detection.New(detectorConfig(cfg, logger))
	if err != nil {
		logger.WithError(err).Error("failed to create detector")
		return ExitRuntimeError
	}
	if c, ok := d.(io.Closer); ok {
		defer c.Close()
	}

	vd, ok := d.(*detection.VisionDetector)
	if !ok {
		logger.Errorf("--check-model needs the ollama or llamacpp backend, got %s", cfg.Detector.Backend)
		return ExitUsageError
	}

	img, _, err := processor.LoadImageSmart(ctx, input)
	if err != nil {
		logger.WithError(err).Error("failed to load image")
		return ExitRuntimeError
	}

	answer, err := vd.TestVision(ctx, img)
	if err != nil {
		logger.WithError(err).Error("model check failed")
		return ExitRuntimeError
	}
	fmt.Fprintf(out, "model %s sees: %s\n", cfg.Detector.Model, strings.TrimSpace(answer))
	return ExitSuccess
}

type redactJob struct {
	cfg       *config.Config
	redactor  *imageredactor.Redactor
	processor *processing.Processor
	logger    logrus.FieldLogger
	kind      redaction.Kind
	cover     []byte
	debug     bool
	out       io.Writer
}

func (j *redactJob) run(ctx context.Context, input, output string) error {
	raw, err := j.processor.ReadSource(ctx, input)
	if err != nil {
		return err
	}

	res, err := j.redactor.ProcessImage(ctx, raw, j.cover, j.kind, j.cfg.Redaction.MosaicSize)
	if err != nil {
		return err
	}

	if err := utils.EnsureDir(filepath.Dir(output)); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := os.WriteFile(output, res.Data, 0644); err != nil {
		return fmt.Errorf("failed to write result: %w", err)
	}

	downgraded := ""
	if res.Downgraded {
		downgraded = ", downgraded"
	}
	fmt.Fprintf(j.out, "%s: %d regions redacted (%s%s) -> %s (%s)\n",
		input, res.Regions, res.Strategy, downgraded, output, utils.FormatFileSize(int64(len(res.Data))))

	if j.debug {
		j.writeDebug(raw, res, output)
	}
	return nil
}

// writeDebug saves the source image with every detection outlined next to
// the result
func (j *redactJob) writeDebug(raw []byte, res *imageredactor.ProcessResult, output string) {
	img, _, err := codec.Decode(raw)
	if err != nil {
		j.logger.WithError(err).Warn("debug overlay skipped")
		return
	}

	overlay := j.processor.DrawDetections(img, res.Detections)
	path := strings.TrimSuffix(output, filepath.Ext(output)) + "_debug.png"
	if err := j.processor.SaveImage(overlay, path, "png", 0); err != nil {
		j.logger.WithError(err).Warn("debug overlay save failed")
		return
	}
	fmt.Fprintf(j.out, "wrote %s\n", path)
}

// outputPath picks where the result of input goes. For a single input an
// explicit output is used as the file name; otherwise it names a directory.
func outputPath(cfg *config.Config, input, output string, batch bool) string {
	format, err := codec.ParseFormat(cfg.Output.Format)
	ext := "jpg"
	if err == nil {
		ext = format.Extension()
	}

	if output != "" && !batch && !utils.DirExists(output) && filepath.Ext(output) != "" {
		return output
	}

	dir := cfg.Output.Dir
	if output != "" {
		dir = output
	}

	name := input
	if strings.HasPrefix(input, "http://") || strings.HasPrefix(input, "https://") {
		name = strings.SplitN(filepath.Base(input), "?", 2)[0]
		if name == "" || name == "." || name == "/" {
			name = "image"
		}
	}
	return utils.GenerateOutputFilename(name, dir, cfg.Output.Prefix, cfg.Output.Suffix, ext)
}
