package service

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"cloudimg/internal/core/domain"
	"cloudimg/internal/core/port"

	"github.com/rs/zerolog/log"
)

type FixedOptions struct {
	CloudName   string
	Width       int
	Base64Width int
}

type FluidOptions struct {
	CloudName   string
	MaxWidth    int
	Plan        domain.BreakpointPlan
	Base64Width int
}

// Assembler turns upload metadata into fixed and fluid descriptors.
type Assembler struct {
	fetcher      port.Fetcher
	metrics      port.Metrics
	cloudName    string
	deliveryBase string
}

func NewAssembler(fetcher port.Fetcher, metrics port.Metrics, cloudName, deliveryBase string) *Assembler {
	if metrics == nil {
		metrics = NopMetrics{}
	}
	return &Assembler{fetcher: fetcher, metrics: metrics, cloudName: cloudName, deliveryBase: deliveryBase}
}

func (a *Assembler) BuildFixed(ctx context.Context, meta domain.UploadMetadata, spec domain.TransformationSpec,
	opts FixedOptions) (domain.ImageDescriptor, error) {
	if err := validateMetadata(meta); err != nil {
		return domain.ImageDescriptor{}, err
	}

	if opts.Width < 0 {
		return domain.ImageDescriptor{}, fmt.Errorf("%w: fixed width %d", domain.ErrInvalidDimension, opts.Width)
	}
	width := fixedWidth(opts.Width, meta.Width)
	doubled := min(2*width, meta.Width)

	aspectRatio := AspectRatio(meta)
	cloudName := a.cloudNameFor(opts.CloudName)

	oneX := a.url(cloudName, meta, spec, width)
	twoX := a.url(cloudName, meta, spec, doubled)

	placeholder, err := a.placeholder(ctx, cloudName, meta, spec, opts.Base64Width)
	if err != nil {
		return domain.ImageDescriptor{}, err
	}

	return domain.ImageDescriptor{
		AspectRatio: aspectRatio,
		Base64:      placeholder,
		Src:         oneX,
		SrcSet:      fmt.Sprintf("%s 1x, %s 2x", oneX, twoX),
		Sources: []domain.Source{
			{Width: width, Density: 1, URL: oneX},
			{Width: doubled, Density: 2, URL: twoX},
		},
		Width:  width,
		Height: roundHeight(width, aspectRatio),
	}, nil
}

func (a *Assembler) BuildFluid(ctx context.Context, meta domain.UploadMetadata, spec domain.TransformationSpec,
	opts FluidOptions) (domain.ImageDescriptor, error) {
	if err := validateMetadata(meta); err != nil {
		return domain.ImageDescriptor{}, err
	}

	maxWidth := opts.MaxWidth
	if maxWidth == 0 {
		maxWidth = domain.DefaultFluidMaxWidth
	}
	if maxWidth < 0 {
		return domain.ImageDescriptor{}, fmt.Errorf("%w: fluid max width %d", domain.ErrInvalidDimension, maxWidth)
	}
	if len(opts.Plan) == 0 {
		return domain.ImageDescriptor{}, fmt.Errorf("%w: empty breakpoint plan", domain.ErrInvalidDimension)
	}
	for _, w := range opts.Plan {
		if w < 1 {
			return domain.ImageDescriptor{}, fmt.Errorf("%w: breakpoint width %d", domain.ErrInvalidDimension, w)
		}
	}

	effective := min(maxWidth, meta.Width)
	aspectRatio := AspectRatio(meta)
	cloudName := a.cloudNameFor(opts.CloudName)

	sources := make([]domain.Source, 0, len(opts.Plan))
	srcSet := make([]string, 0, len(opts.Plan))
	for _, w := range opts.Plan {
		u := a.url(cloudName, meta, spec, w)
		sources = append(sources, domain.Source{Width: w, URL: u})
		srcSet = append(srcSet, u+" "+strconv.Itoa(w)+"w")
	}

	placeholder, err := a.placeholder(ctx, cloudName, meta, spec, opts.Base64Width)
	if err != nil {
		return domain.ImageDescriptor{}, err
	}

	return domain.ImageDescriptor{
		AspectRatio:        aspectRatio,
		Base64:             placeholder,
		Src:                sources[len(sources)-1].URL,
		SrcSet:             strings.Join(srcSet, ", "),
		Sources:            sources,
		Sizes:              fmt.Sprintf("(max-width: %dpx) 100vw, %dpx", effective, effective),
		PresentationWidth:  effective,
		PresentationHeight: roundHeight(effective, aspectRatio),
	}, nil
}

// AspectRatio is height over width of the original asset. It is shared by every derived width.
func AspectRatio(meta domain.UploadMetadata) float64 {
	return float64(meta.Height) / float64(meta.Width)
}

func (a *Assembler) placeholder(ctx context.Context, cloudName string, meta domain.UploadMetadata,
	spec domain.TransformationSpec, base64Width int) (string, error) {
	if base64Width == 0 {
		base64Width = domain.DefaultBase64Width
	}
	if base64Width < 0 {
		return "", fmt.Errorf("%w: base64 width %d", domain.ErrInvalidDimension, base64Width)
	}

	u := a.url(cloudName, meta, spec, base64Width)

	data, contentType, err := a.fetcher.Fetch(ctx, u)
	a.metrics.ObservePlaceholder(err)
	if err != nil {
		log.Debug().Err(err).Str("url", u).Msg("placeholder fetch failed")
		return "", fmt.Errorf("%w: %s: %w", domain.ErrPlaceholderFetchFailed, u, err)
	}

	return "data:" + placeholderContentType(contentType, meta.Format) + ";base64," +
		base64.StdEncoding.EncodeToString(data), nil
}

func (a *Assembler) url(cloudName string, meta domain.UploadMetadata, spec domain.TransformationSpec, width int) string {
	return BuildURL(URLParams{
		DeliveryBase:   a.deliveryBase,
		CloudName:      cloudName,
		PublicID:       meta.PublicID,
		Spec:           spec,
		WidthDirective: WidthDirective(width),
		Version:        meta.Version,
	})
}

// FixedSrc is the 1x URL of the fixed descriptor, built without fetching the placeholder.
func (a *Assembler) FixedSrc(meta domain.UploadMetadata, spec domain.TransformationSpec, opts FixedOptions) string {
	return a.url(a.cloudNameFor(opts.CloudName), meta, spec, fixedWidth(opts.Width, meta.Width))
}

func fixedWidth(requested, original int) int {
	if requested <= 0 {
		requested = domain.DefaultFixedWidth
	}
	return min(requested, original)
}

func (a *Assembler) cloudNameFor(override string) string {
	if override != "" {
		return override
	}
	return a.cloudName
}

func validateMetadata(meta domain.UploadMetadata) error {
	if meta.Width < 1 || meta.Height < 1 {
		return fmt.Errorf("%w: original dimensions %dx%d", domain.ErrInvalidDimension, meta.Width, meta.Height)
	}
	if meta.PublicID == "" {
		return errors.New("missing public id")
	}
	return nil
}

func roundHeight(width int, aspectRatio float64) int {
	return int(math.Round(float64(width) * aspectRatio))
}

func placeholderContentType(contentType, format string) string {
	if i := strings.IndexByte(contentType, ';'); i >= 0 {
		contentType = contentType[:i]
	}
	contentType = strings.TrimSpace(contentType)
	if strings.HasPrefix(contentType, "image/") {
		return contentType
	}

	switch strings.ToLower(format) {
	case "jpg", "jpeg":
		return "image/jpeg"
	case "png", "webp", "gif", "avif":
		return "image/" + strings.ToLower(format)
	default:
		return "image/jpeg"
	}
}
