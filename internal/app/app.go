package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"cloudimg/internal/adapters/cloudinary"
	"cloudimg/internal/adapters/file"
	"cloudimg/internal/adapters/generator"
	"cloudimg/internal/adapters/handler"
	"cloudimg/internal/adapters/manifest"
	"cloudimg/internal/adapters/metrics"
	"cloudimg/internal/adapters/sender"
	"cloudimg/internal/adapters/sink"
	"cloudimg/internal/adapters/store"
	"cloudimg/internal/config"
	"cloudimg/internal/core/domain"
	"cloudimg/internal/core/port"
	"cloudimg/internal/core/service"

	"github.com/go-telegram/bot"
	"github.com/gofrs/uuid/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// App wires the adapters selected by the configuration into the core services.
type App struct {
	cfg         config.Config
	store       store.Store
	metrics     *metrics.Prometheus
	reporter    port.Reporter
	describer   port.Describer
	client      *cloudinary.Client
	planner     *service.Planner
	assembler   *service.Assembler
	descriptors *service.Descriptors
}

// New loads the configuration at configPath and builds an App. It satisfies handler.AppFactory.
func New(ctx context.Context, configPath string, ingest bool) (handler.App, error) {
	v, err := config.New(configPath)
	if err != nil {
		return nil, err
	}

	cfg, err := config.Load(v)
	if err != nil {
		return nil, err
	}

	ConfigureLogging(cfg.Log)

	if err := cfg.Validate(ingest); err != nil {
		return nil, err
	}

	return build(ctx, cfg, ingest)
}

func build(ctx context.Context, cfg config.Config, ingest bool) (*App, error) {
	a := &App{
		cfg:      cfg,
		metrics:  metrics.NewPrometheus(),
		reporter: sender.Log{},
	}

	a.client = cloudinary.NewClient(cfg.Cloudinary.CloudName, cfg.Cloudinary.APIKey, cfg.Cloudinary.APISecret,
		cfg.Cloudinary.APIBaseURL, cfg.Upload.Timeout)
	a.planner = service.NewPlanner(a.client)
	a.assembler = service.NewAssembler(file.NewFetcher(cfg.Upload.Timeout), a.metrics, cfg.Cloudinary.CloudName,
		cfg.Cloudinary.DeliveryBaseURL)
	a.descriptors = service.NewDescriptors(a.assembler, a.planner)

	if !ingest {
		return a, nil
	}

	s, err := store.DefaultRegistry().Open(ctx, store.Config{
		Driver:   cfg.Store.Driver,
		DiskPath: cfg.Store.DiskPath,
		S3: store.S3Config{
			Endpoint:       cfg.Store.S3.Endpoint,
			Region:         cfg.Store.S3.Region,
			Bucket:         cfg.Store.S3.Bucket,
			Prefix:         cfg.Store.S3.Prefix,
			AccessKey:      cfg.Store.S3.AccessKey,
			SecretKey:      cfg.Store.S3.SecretKey,
			Insecure:       cfg.Store.S3.Insecure,
			ForcePathStyle: cfg.Store.S3.Endpoint != "",
		},
		PostgresURL: cfg.Store.PostgresURL,
	})
	if err != nil {
		return nil, err
	}
	a.store = s

	if cfg.Telegram.BotToken != "" && cfg.Telegram.ChatID != 0 {
		b, err := bot.New(cfg.Telegram.BotToken)
		if err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("failed initializing telegram bot: %w", err)
		}
		a.reporter = sender.NewTelegram(b, cfg.Telegram.ChatID)
	}

	if cfg.OpenRouter.APIKey != "" {
		a.describer = generator.NewOpenRouter(cfg.OpenRouter.APIKey, cfg.OpenRouter.Model)
	}

	return a, nil
}

func (a *App) Ingest(ctx context.Context, opts handler.IngestOptions) (port.RunReport, error) {
	manifestPath := orString(opts.Manifest, a.cfg.Ingest.Manifest)
	outputPath := orString(opts.Output, a.cfg.Ingest.Output)

	requests, err := manifest.Load(manifestPath)
	if err != nil {
		return port.RunReport{}, err
	}
	if opts.Overwrite != nil {
		for i := range requests {
			if requests[i].Overwrite == nil {
				requests[i].Overwrite = opts.Overwrite
			}
		}
	}

	nodes, err := sink.Create(outputPath)
	if err != nil {
		return port.RunReport{}, err
	}
	defer func() {
		if err := nodes.Close(); err != nil {
			log.Warn().Err(err).Str("path", outputPath).Msg("could not close node output")
		}
	}()

	orchestrator, err := a.orchestrator(nodes)
	if err != nil {
		return port.RunReport{}, err
	}

	runID := uuid.Must(uuid.NewV4()).String()
	started := time.Now()

	log.Info().
		Str("runId", runID).
		Int("assets", len(requests)).
		Str("manifest", manifestPath).
		Str("store", a.cfg.Store.Driver).
		Msg("starting ingestion run")

	results := orchestrator.IngestAll(ctx, requests)
	report := service.Summarize(runID, started, results, ctx.Err() != nil)

	// the run is over, deliver the report even if ctx was cancelled
	reportCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	if err := a.reporter.Report(reportCtx, report); err != nil {
		log.Warn().Err(err).Msg("could not deliver run report")
	}

	if a.cfg.MetricsTextfile != "" {
		if err := a.metrics.WriteTextfile(a.cfg.MetricsTextfile); err != nil {
			log.Warn().Err(err).Msg("could not write metrics")
		}
	}

	log.Info().Int("nodes", nodes.Written()).Str("output", outputPath).Msg("ingestion run finished")

	return report, nil
}

func (a *App) orchestrator(nodes port.NodeSink) (*service.Orchestrator, error) {
	return service.NewOrchestrator(service.Options{
		CloudName:             a.cfg.Cloudinary.CloudName,
		Folder:                a.cfg.Cloudinary.UploadFolder,
		Overwrite:             a.cfg.Upload.OverwriteExisting,
		Spec:                  a.cfg.Descriptor.Spec,
		FixedWidth:            a.cfg.Descriptor.FixedWidth,
		Base64Width:           a.cfg.Descriptor.Base64Width,
		FluidMinWidth:         a.cfg.Breakpoints.FluidMinWidth,
		FluidMaxWidth:         a.cfg.Breakpoints.FluidMaxWidth,
		MaxImages:             a.cfg.Breakpoints.MaxImages,
		BytesStep:             a.cfg.Breakpoints.BytesStep,
		UseServiceBreakpoints: a.cfg.Breakpoints.UseCloudinary,
		CreateDerived:         a.cfg.Breakpoints.CreateDerived,
		MaxLocalSize:          a.cfg.Upload.MaxLocalSize,
		Workers:               a.cfg.Ingest.Workers,
		AssetTimeout:          a.cfg.Ingest.AssetTimeout,
	}, service.Dependencies{
		Store:     a.store,
		Uploader:  a.client,
		Planner:   a.planner,
		Assembler: a.assembler,
		Reader:    file.Reader{},
		Sink:      nodes,
		Describer: a.describer,
		Budget:    service.NewUploadBudget(a.cfg.Upload.MaxPerRun),
		Metrics:   a.metrics,
	})
}

func (a *App) Fixed(ctx context.Context, req service.FixedRequest) (domain.ImageDescriptor, error) {
	req.CloudName = orString(req.CloudName, a.cfg.Cloudinary.CloudName)
	if req.Defaults == nil {
		req.Defaults = a.cfg.Descriptor.Spec.Defaults
	}
	req.Base64Width = orInt(req.Base64Width, a.cfg.Descriptor.Base64Width)
	req.Width = orInt(req.Width, a.cfg.Descriptor.FixedWidth)
	return a.descriptors.Fixed(ctx, req)
}

func (a *App) Fluid(ctx context.Context, req service.FluidRequest) (domain.ImageDescriptor, error) {
	req.CloudName = orString(req.CloudName, a.cfg.Cloudinary.CloudName)
	if req.Defaults == nil {
		req.Defaults = a.cfg.Descriptor.Spec.Defaults
	}
	req.Base64Width = orInt(req.Base64Width, a.cfg.Descriptor.Base64Width)
	req.MinWidth = orInt(req.MinWidth, a.cfg.Breakpoints.FluidMinWidth)
	req.MaxWidth = orInt(req.MaxWidth, a.cfg.Breakpoints.FluidMaxWidth)
	req.MaxImages = orInt(req.MaxImages, a.cfg.Breakpoints.MaxImages)
	return a.descriptors.Fluid(ctx, req)
}

func (a *App) Close() error {
	var errs []error
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	return errors.Join(errs...)
}

// ConfigureLogging sets the global log level and output format.
func ConfigureLogging(cfg config.Log) {
	var logLevel zerolog.Level

	switch cfg.Level {
	case "debug":
		logLevel = zerolog.DebugLevel
	case "warn":
		logLevel = zerolog.WarnLevel
	case "error":
		logLevel = zerolog.ErrorLevel
	default:
		logLevel = zerolog.InfoLevel
	}

	zerolog.SetGlobalLevel(logLevel)

	if cfg.Pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
}

func orString(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func orInt(v, fallback int) int {
	if v == 0 {
		return fallback
	}
	return v
}
