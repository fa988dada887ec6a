package service

import (
	"strconv"
	"strings"

	"cloudimg/internal/core/domain"
)

const DefaultDeliveryBaseURL = "https://res.cloudinary.com"

type URLParams struct {
	DeliveryBase   string
	CloudName      string
	PublicID       string
	Spec           domain.TransformationSpec
	WidthDirective string
	Version        int64
}

// BuildURL assembles a delivery URL. The first stage carries defaults, transformations and the width
// directive; every chained directive becomes its own stage. Directives are passed through verbatim.
func BuildURL(p URLParams) string {
	base := strings.TrimRight(p.DeliveryBase, "/")
	if base == "" {
		base = DefaultDeliveryBaseURL
	}

	segments := []string{base, p.CloudName, "image", "upload"}

	first := make([]string, 0, len(p.Spec.Defaults)+len(p.Spec.Transformations)+1)
	first = appendDirectives(first, p.Spec.Defaults...)
	first = appendDirectives(first, p.Spec.Transformations...)
	first = appendDirectives(first, p.WidthDirective)
	if len(first) > 0 {
		segments = append(segments, strings.Join(first, ","))
	}

	for _, stage := range p.Spec.Chained {
		if stage != "" {
			segments = append(segments, stage)
		}
	}

	if p.Version > 0 {
		segments = append(segments, "v"+strconv.FormatInt(p.Version, 10))
	}

	segments = append(segments, p.PublicID)

	return strings.Join(segments, "/")
}

// WidthDirective returns the width directive injected into the first stage.
func WidthDirective(width int) string {
	return "w_" + strconv.Itoa(width)
}

func appendDirectives(dst []string, directives ...string) []string {
	for _, d := range directives {
		if d != "" {
			dst = append(dst, d)
		}
	}
	return dst
}
