package service

import (
	"context"

	"cloudimg/internal/core/domain"
)

type FixedRequest struct {
	PublicID        string
	CloudName       string
	OriginalWidth   int
	OriginalHeight  int
	Transformations []string
	Chained         []string
	Defaults        []string
	Width           int
	Base64Width     int
	Version         int64
}

type FluidRequest struct {
	PublicID           string
	CloudName          string
	OriginalWidth      int
	OriginalHeight     int
	Transformations    []string
	Chained            []string
	Defaults           []string
	MaxWidth           int
	MinWidth           int
	MaxImages          int
	ServiceBreakpoints bool
	Base64Width        int
	Version            int64
}

// Descriptors builds descriptors for assets that already live at the remote service. Nothing is
// cached: every call rebuilds the URLs and fetches the placeholder again.
type Descriptors struct {
	assembler *Assembler
	planner   *Planner
}

func NewDescriptors(assembler *Assembler, planner *Planner) *Descriptors {
	return &Descriptors{assembler: assembler, planner: planner}
}

func (d *Descriptors) Fixed(ctx context.Context, req FixedRequest) (domain.ImageDescriptor, error) {
	return d.assembler.BuildFixed(ctx, standaloneMetadata(req.PublicID, req.OriginalWidth, req.OriginalHeight, req.Version),
		standaloneSpec(req.Defaults, req.Transformations, req.Chained),
		FixedOptions{CloudName: req.CloudName, Width: req.Width, Base64Width: req.Base64Width})
}

func (d *Descriptors) Fluid(ctx context.Context, req FluidRequest) (domain.ImageDescriptor, error) {
	meta := standaloneMetadata(req.PublicID, req.OriginalWidth, req.OriginalHeight, req.Version)
	if err := validateMetadata(meta); err != nil {
		return domain.ImageDescriptor{}, err
	}

	plan, err := d.planner.PlanBreakpoints(ctx, BreakpointRequest{
		PublicID:        req.PublicID,
		OriginalWidth:   req.OriginalWidth,
		MinWidth:        orDefault(req.MinWidth, domain.DefaultFluidMinWidth),
		MaxWidth:        orDefault(req.MaxWidth, domain.DefaultFluidMaxWidth),
		MaxCount:        orDefault(req.MaxImages, domain.DefaultMaxImages),
		ServiceComputed: req.ServiceBreakpoints,
	})
	if err != nil {
		return domain.ImageDescriptor{}, err
	}

	return d.assembler.BuildFluid(ctx, meta, standaloneSpec(req.Defaults, req.Transformations, req.Chained),
		FluidOptions{CloudName: req.CloudName, MaxWidth: req.MaxWidth, Plan: plan, Base64Width: req.Base64Width})
}

func standaloneMetadata(publicID string, width, height int, version int64) domain.UploadMetadata {
	return domain.UploadMetadata{PublicID: publicID, Width: width, Height: height, Version: version}
}

func standaloneSpec(defaults, transformations, chained []string) domain.TransformationSpec {
	if defaults == nil {
		defaults = domain.DefaultTransformations
	}
	return domain.TransformationSpec{Defaults: defaults, Transformations: transformations, Chained: chained}
}

func orDefault(v, fallback int) int {
	if v == 0 {
		return fallback
	}
	return v
}
