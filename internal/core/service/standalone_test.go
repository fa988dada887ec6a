package service

import (
	"context"
	"testing"

	"cloudimg/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestDescriptorsFixed(t *testing.T) {
	fetcher := &mockFetcher{data: []byte("img")}
	d := NewDescriptors(NewAssembler(fetcher, nil, "demo", ""), NewPlanner(nil))

	desc, err := d.Fixed(context.Background(), FixedRequest{
		PublicID:        "sample",
		OriginalWidth:   864,
		OriginalHeight:  576,
		Transformations: []string{"e_grayscale"},
		Version:         1,
	})
	require.NoError(t, err)

	assert.Equal(t, "https://res.cloudinary.com/demo/image/upload/f_auto,q_auto,e_grayscale,w_400/v1/sample", desc.Src)
	assert.Equal(t, 267, desc.Height)

	// nothing is cached between calls
	_, err = d.Fixed(context.Background(), FixedRequest{PublicID: "sample", OriginalWidth: 864, OriginalHeight: 576})
	require.NoError(t, err)
	assert.Len(t, fetcher.urls, 2)
}

func TestDescriptorsFixedExplicitDefaults(t *testing.T) {
	d := NewDescriptors(NewAssembler(&mockFetcher{}, nil, "demo", ""), NewPlanner(nil))

	desc, err := d.Fixed(context.Background(), FixedRequest{
		PublicID:       "sample",
		OriginalWidth:  800,
		OriginalHeight: 800,
		Defaults:       []string{},
		Width:          200,
	})
	require.NoError(t, err)
	assert.Equal(t, "https://res.cloudinary.com/demo/image/upload/w_200/sample", desc.Src)
}

func TestDescriptorsFluid(t *testing.T) {
	d := NewDescriptors(NewAssembler(&mockFetcher{data: []byte("img")}, nil, "demo", ""), NewPlanner(nil))

	desc, err := d.Fluid(context.Background(), FluidRequest{
		PublicID:       "sample",
		OriginalWidth:  4032,
		OriginalHeight: 3024,
		MaxImages:      4,
	})
	require.NoError(t, err)

	require.Len(t, desc.Sources, 4)
	assert.Equal(t, 50, desc.Sources[0].Width)
	assert.Equal(t, 1000, desc.Sources[3].Width)
	assert.Equal(t, "(max-width: 1000px) 100vw, 1000px", desc.Sizes)
}

func TestDescriptorsFluidServiceBreakpoints(t *testing.T) {
	svc := new(MockBreakpointService)
	svc.On("Breakpoints", mock.Anything, "sample", 100, 800, 20).Return([]int{800, 100, 450}, nil).Once()

	d := NewDescriptors(NewAssembler(&mockFetcher{data: []byte("img")}, nil, "demo", ""), NewPlanner(svc))

	desc, err := d.Fluid(context.Background(), FluidRequest{
		PublicID:           "sample",
		OriginalWidth:      1600,
		OriginalHeight:     900,
		MinWidth:           100,
		MaxWidth:           800,
		ServiceBreakpoints: true,
	})
	require.NoError(t, err)

	require.Len(t, desc.Sources, 3)
	assert.Equal(t, 450, desc.Sources[1].Width)
	assert.Equal(t, 800, desc.PresentationWidth)
	svc.AssertExpectations(t)
}

func TestDescriptorsFluidInvalid(t *testing.T) {
	fetcher := &mockFetcher{data: []byte("img")}
	d := NewDescriptors(NewAssembler(fetcher, nil, "demo", ""), NewPlanner(nil))

	_, err := d.Fluid(context.Background(), FluidRequest{PublicID: "sample", OriginalWidth: 0, OriginalHeight: 10})
	assert.ErrorIs(t, err, domain.ErrInvalidDimension)
	assert.Empty(t, fetcher.urls)
}
