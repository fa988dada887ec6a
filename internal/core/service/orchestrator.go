package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloudimg/internal/core/domain"
	"cloudimg/internal/core/port"

	"github.com/gofrs/uuid/v5"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

type Options struct {
	CloudName             string
	Folder                string
	Overwrite             bool
	Spec                  domain.TransformationSpec
	FixedWidth            int
	Base64Width           int
	FluidMinWidth         int
	FluidMaxWidth         int
	MaxImages             int
	BytesStep             int
	UseServiceBreakpoints bool
	CreateDerived         bool
	MaxLocalSize          int64
	Workers               int
	AssetTimeout          time.Duration
}

type IngestRequest struct {
	Source       domain.AssetSource
	ParentID     string
	Relationship string
	// Overwrite overrides the configured overwrite policy for this asset when set.
	Overwrite *bool
}

type RemoteIngestRequest struct {
	URL          string
	DeclaredID   string
	ParentID     string
	Relationship string
	Overwrite    *bool
}

type IngestResult struct {
	Request IngestRequest
	Node    domain.ImageNode
	Err     error
}

type Dependencies struct {
	Store     port.RecordStore
	Uploader  port.Uploader
	Planner   *Planner
	Assembler *Assembler
	Reader    port.AssetReader
	Sink      port.NodeSink
	Describer port.Describer
	Budget    Budget
	Metrics   port.Metrics
}

// Orchestrator drives every asset through identification, the upload gate and descriptor assembly.
type Orchestrator struct {
	opts      Options
	gate      *Gate
	uploader  port.Uploader
	planner   *Planner
	assembler *Assembler
	reader    port.AssetReader
	sink      port.NodeSink
	describer port.Describer
	budget    Budget
	metrics   port.Metrics
}

func NewOrchestrator(opts Options, deps Dependencies) (*Orchestrator, error) {
	if deps.Store == nil || deps.Uploader == nil || deps.Planner == nil || deps.Assembler == nil {
		return nil, errors.New("orchestrator requires a record store, an uploader, a planner and an assembler")
	}

	if deps.Metrics == nil {
		deps.Metrics = NopMetrics{}
	}
	if deps.Budget == nil {
		deps.Budget = NewUploadBudget(0)
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if len(opts.Spec.Defaults) == 0 {
		opts.Spec.Defaults = domain.DefaultTransformations
	}
	if opts.FluidMinWidth == 0 {
		opts.FluidMinWidth = domain.DefaultFluidMinWidth
	}
	if opts.FluidMaxWidth == 0 {
		opts.FluidMaxWidth = domain.DefaultFluidMaxWidth
	}
	if opts.MaxImages == 0 {
		opts.MaxImages = domain.DefaultMaxImages
	}

	return &Orchestrator{
		opts:      opts,
		gate:      NewGate(deps.Store, deps.Metrics),
		uploader:  deps.Uploader,
		planner:   deps.Planner,
		assembler: deps.Assembler,
		reader:    deps.Reader,
		sink:      deps.Sink,
		describer: deps.Describer,
		budget:    deps.Budget,
		metrics:   deps.Metrics,
	}, nil
}

// IngestRemote ingests an image that lives at a remote URL.
func (o *Orchestrator) IngestRemote(ctx context.Context, req RemoteIngestRequest) (domain.ImageNode, error) {
	return o.Ingest(ctx, IngestRequest{
		Source:       domain.RemoteSource(req.URL, req.DeclaredID),
		ParentID:     req.ParentID,
		Relationship: req.Relationship,
		Overwrite:    req.Overwrite,
	})
}

// Ingest processes a single asset. Failures are returned as *domain.AssetError.
func (o *Orchestrator) Ingest(ctx context.Context, req IngestRequest) (domain.ImageNode, error) {
	node, err := o.ingest(ctx, req)
	o.metrics.ObserveAsset(err)
	return node, err
}

func (o *Orchestrator) ingest(ctx context.Context, req IngestRequest) (domain.ImageNode, error) {
	source, err := o.resolve(req.Source)
	if err != nil {
		return domain.ImageNode{}, &domain.AssetError{Identifier: sourceName(req.Source), Op: "identify", Err: err}
	}

	id, err := domain.Identify(source, o.opts.Folder)
	if err != nil {
		return domain.ImageNode{}, &domain.AssetError{Identifier: sourceName(req.Source), Op: "identify", Err: err}
	}

	overwrite := o.opts.Overwrite
	if req.Overwrite != nil {
		overwrite = *req.Overwrite
	}

	l := log.With().
		Str("identifier", id.Key).
		Str("publicId", id.PublicID).
		Str("parentId", req.ParentID).
		Logger()

	l.Info().Msg("ingesting asset")

	outcome, err := o.gate.Do(ctx, id.Key, overwrite, func(ctx context.Context) (domain.UploadMetadata, error) {
		return o.upload(ctx, source, id, overwrite)
	})
	if err != nil {
		l.Error().Err(err).Msg("upload step failed")
		return domain.ImageNode{}, &domain.AssetError{Identifier: id.Key, Op: "upload", Err: err}
	}

	node, err := o.buildNode(ctx, id, outcome.Metadata)
	if err != nil {
		l.Error().Err(err).Msg("descriptor step failed")
		return domain.ImageNode{}, &domain.AssetError{Identifier: id.Key, Op: "descriptor", Err: err}
	}

	node.ID = NodeID(req.ParentID, req.Relationship, id.Key)
	node.ParentID = req.ParentID
	node.Relationship = req.Relationship
	node.Uploaded = outcome.Uploaded

	if o.sink != nil {
		if err := o.sink.CreateDerived(ctx, req.ParentID, req.Relationship, node); err != nil {
			return domain.ImageNode{}, &domain.AssetError{Identifier: id.Key, Op: "create node", Err: err}
		}
	}

	l.Info().Bool("uploaded", outcome.Uploaded).Int64("version", node.Version).Msg("asset ingested")

	return node, nil
}

func (o *Orchestrator) upload(ctx context.Context, source domain.AssetSource, id domain.UploadIdentifier,
	overwrite bool) (domain.UploadMetadata, error) {
	request := port.UploadRequest{
		Source:    source,
		Folder:    o.opts.Folder,
		PublicID:  id.PublicID,
		Overwrite: overwrite,
	}

	if source.Kind == domain.Local {
		if o.reader == nil {
			return domain.UploadMetadata{}, fmt.Errorf("%w: no reader for local assets", domain.ErrUploadFailed)
		}
		data, err := o.reader.ReadLocal(source.AbsolutePath, o.opts.MaxLocalSize)
		if err != nil {
			return domain.UploadMetadata{}, fmt.Errorf("%w: %w", domain.ErrUploadFailed, err)
		}
		request.Data = data
	}

	if o.opts.UseServiceBreakpoints {
		request.Breakpoints = &port.BreakpointRequest{
			MinWidth:      o.opts.FluidMinWidth,
			MaxWidth:      o.opts.FluidMaxWidth,
			MaxImages:     o.opts.MaxImages,
			BytesStep:     o.opts.BytesStep,
			CreateDerived: o.opts.CreateDerived,
		}
	}

	if !o.budget.Acquire() {
		return domain.UploadMetadata{}, fmt.Errorf("%w: %d uploads used", domain.ErrUploadBudgetExhausted, o.budget.Used())
	}

	meta, err := o.uploader.Upload(ctx, request)
	o.metrics.ObserveUpload(err)
	if err != nil {
		return domain.UploadMetadata{}, fmt.Errorf("%w: %w", domain.ErrUploadFailed, err)
	}

	meta.AltText = o.describe(ctx, id, meta)

	return meta, nil
}

// resolve digests local sources that were queued by path only.
func (o *Orchestrator) resolve(source domain.AssetSource) (domain.AssetSource, error) {
	if source.Kind != domain.Local || source.ContentDigest != "" {
		return source, nil
	}
	if o.reader == nil {
		return domain.AssetSource{}, errors.New("no reader for local assets")
	}

	digest, err := o.reader.Digest(source.AbsolutePath)
	if err != nil {
		return domain.AssetSource{}, err
	}
	source.ContentDigest = digest

	return source, nil
}

// describe runs only right after an upload, the result travels with the upload record.
func (o *Orchestrator) describe(ctx context.Context, id domain.UploadIdentifier, meta domain.UploadMetadata) string {
	if o.describer == nil {
		return ""
	}

	src := o.assembler.FixedSrc(meta, o.opts.Spec, FixedOptions{CloudName: o.opts.CloudName, Width: o.opts.FixedWidth})
	alt, err := o.describer.Describe(ctx, src)
	if err != nil {
		log.Warn().Err(err).Str("identifier", id.Key).Msg("could not generate alt text")
		return ""
	}

	return alt
}

func (o *Orchestrator) buildNode(ctx context.Context, id domain.UploadIdentifier,
	meta domain.UploadMetadata) (domain.ImageNode, error) {
	plan, err := o.plan(ctx, meta)
	if err != nil {
		return domain.ImageNode{}, err
	}

	fixed, err := o.assembler.BuildFixed(ctx, meta, o.opts.Spec, FixedOptions{
		CloudName:   o.opts.CloudName,
		Width:       o.opts.FixedWidth,
		Base64Width: o.opts.Base64Width,
	})
	if err != nil {
		return domain.ImageNode{}, err
	}

	fluid, err := o.assembler.BuildFluid(ctx, meta, o.opts.Spec, FluidOptions{
		CloudName:   o.opts.CloudName,
		MaxWidth:    o.opts.FluidMaxWidth,
		Plan:        plan,
		Base64Width: o.opts.Base64Width,
	})
	if err != nil {
		return domain.ImageNode{}, err
	}

	node := domain.ImageNode{
		Identifier:     id.Key,
		PublicID:       meta.PublicID,
		CloudName:      o.opts.CloudName,
		Version:        meta.Version,
		OriginalWidth:  meta.Width,
		OriginalHeight: meta.Height,
		OriginalFormat: meta.Format,
		SecureURL:      meta.SecureURL,
		Fixed:          fixed,
		Fluid:          fluid,
		AltText:        meta.AltText,
	}

	return node, nil
}

// plan prefers breakpoints returned with the upload, falling back to an explicit service query or
// linear spacing.
func (o *Orchestrator) plan(ctx context.Context, meta domain.UploadMetadata) (domain.BreakpointPlan, error) {
	if o.opts.UseServiceBreakpoints && len(meta.Breakpoints) > 0 && meta.Width > o.opts.FluidMinWidth {
		if plan := NormalizePlan(meta.Breakpoints); len(plan) > 0 {
			return plan, nil
		}
	}

	return o.planner.PlanBreakpoints(ctx, BreakpointRequest{
		PublicID:        meta.PublicID,
		OriginalWidth:   meta.Width,
		MinWidth:        o.opts.FluidMinWidth,
		MaxWidth:        o.opts.FluidMaxWidth,
		MaxCount:        o.opts.MaxImages,
		ServiceComputed: o.opts.UseServiceBreakpoints,
	})
}

// IngestAll ingests every request on a bounded set of workers. A failing asset never stops the
// others. Cancelling ctx stops dispatching new assets; assets already started finish on a context
// detached from ctx so no upload is abandoned before its record is written.
func (o *Orchestrator) IngestAll(ctx context.Context, requests []IngestRequest) []IngestResult {
	results := make([]IngestResult, len(requests))

	var g errgroup.Group
	g.SetLimit(o.opts.Workers)

	for i, req := range requests {
		results[i].Request = req
		if err := ctx.Err(); err != nil {
			results[i].Err = &domain.AssetError{Identifier: sourceName(req.Source), Op: "dispatch", Err: err}
			continue
		}

		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i].Err = &domain.AssetError{Identifier: sourceName(req.Source), Op: "dispatch", Err: err}
				return nil
			}

			assetCtx := context.WithoutCancel(ctx)
			if o.opts.AssetTimeout > 0 {
				var cancel context.CancelFunc
				assetCtx, cancel = context.WithTimeout(assetCtx, o.opts.AssetTimeout)
				defer cancel()
			}

			results[i].Node, results[i].Err = o.Ingest(assetCtx, req)
			return nil
		})
	}

	_ = g.Wait()

	return results
}

// Summarize condenses run results into a report.
func Summarize(runID string, started time.Time, results []IngestResult, cancelled bool) port.RunReport {
	report := port.RunReport{
		RunID:     runID,
		Started:   started,
		Duration:  time.Since(started),
		Total:     len(results),
		Cancelled: cancelled,
	}

	for _, r := range results {
		switch {
		case r.Err != nil:
			identifier := sourceName(r.Request.Source)
			var assetErr *domain.AssetError
			if errors.As(r.Err, &assetErr) {
				identifier = assetErr.Identifier
			}
			report.Failures = append(report.Failures, port.AssetFailure{Identifier: identifier, Err: r.Err})
		case r.Node.Uploaded:
			report.Uploaded++
		default:
			report.Skipped++
		}
	}

	return report
}

var nodeNamespace = uuid.NewV5(uuid.NamespaceURL, "https://cloudimg/nodes")

// NodeID is stable for a parent, relationship and identifier, so re-runs produce identical nodes.
func NodeID(parentID, relationship, identifier string) string {
	return uuid.NewV5(nodeNamespace, parentID+"\x00"+relationship+"\x00"+identifier).String()
}

func sourceName(source domain.AssetSource) string {
	if source.Kind == domain.Local {
		return source.AbsolutePath
	}
	return source.URL
}
