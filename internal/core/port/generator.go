package port

import "context"

type Describer interface {
	// Describe produces a short alternative text for the image behind imageURL.
	Describe(ctx context.Context, imageURL string) (string, error)
}
