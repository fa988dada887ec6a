package service

import (
	"context"
	"fmt"
	"math"
	"slices"

	"cloudimg/internal/core/domain"
	"cloudimg/internal/core/port"
)

type BreakpointRequest struct {
	PublicID        string
	OriginalWidth   int
	MinWidth        int
	MaxWidth        int
	MaxCount        int
	ServiceComputed bool
}

// Planner computes the widths a fluid descriptor is rendered at.
type Planner struct {
	service port.BreakpointService
}

// NewPlanner returns a Planner. The breakpoint service is only consulted for service-computed plans
// and may be nil when those are never requested.
func NewPlanner(service port.BreakpointService) *Planner {
	return &Planner{service: service}
}

func (p *Planner) PlanBreakpoints(ctx context.Context, req BreakpointRequest) (domain.BreakpointPlan, error) {
	if req.OriginalWidth < 1 || req.MinWidth < 1 || req.MaxWidth < 1 {
		return nil, fmt.Errorf("%w: breakpoint widths must be positive (original %d, min %d, max %d)",
			domain.ErrInvalidDimension, req.OriginalWidth, req.MinWidth, req.MaxWidth)
	}
	if req.MaxCount < 1 {
		return nil, fmt.Errorf("%w: breakpoint count must be at least 1, got %d",
			domain.ErrInvalidDimension, req.MaxCount)
	}

	// never upscale
	if req.OriginalWidth <= req.MinWidth {
		return domain.BreakpointPlan{req.OriginalWidth}, nil
	}

	maxWidth := min(req.MaxWidth, req.OriginalWidth)
	minWidth := min(req.MinWidth, maxWidth)

	if !req.ServiceComputed {
		return LinearBreakpoints(minWidth, maxWidth, req.MaxCount), nil
	}

	if p.service == nil {
		return nil, fmt.Errorf("service computed breakpoints requested without a breakpoint service")
	}

	widths, err := p.service.Breakpoints(ctx, req.PublicID, minWidth, maxWidth, req.MaxCount)
	if err != nil {
		return nil, fmt.Errorf("error requesting breakpoints for %s: %w", req.PublicID, err)
	}

	return NormalizePlan(widths), nil
}

// LinearBreakpoints spaces count widths evenly over [minWidth, maxWidth], both ends included.
func LinearBreakpoints(minWidth, maxWidth, count int) domain.BreakpointPlan {
	if count <= 1 || minWidth >= maxWidth {
		return domain.BreakpointPlan{maxWidth}
	}

	step := float64(maxWidth-minWidth) / float64(count-1)
	widths := make([]int, 0, count)
	for i := 0; i < count; i++ {
		widths = append(widths, int(math.Round(float64(minWidth)+float64(i)*step)))
	}
	widths[len(widths)-1] = maxWidth

	return NormalizePlan(widths)
}

// NormalizePlan sorts widths ascending, removes duplicates and drops non-positive entries.
func NormalizePlan(widths []int) domain.BreakpointPlan {
	plan := make(domain.BreakpointPlan, 0, len(widths))
	for _, w := range widths {
		if w > 0 {
			plan = append(plan, w)
		}
	}
	slices.Sort(plan)
	return slices.Compact(plan)
}
