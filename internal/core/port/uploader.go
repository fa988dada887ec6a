package port

import (
	"context"

	"cloudimg/internal/core/domain"
)

// BreakpointRequest asks the remote service to compute responsive breakpoints during an upload.
type BreakpointRequest struct {
	MinWidth      int
	MaxWidth      int
	MaxImages     int
	BytesStep     int
	CreateDerived bool
}

type UploadRequest struct {
	Source      domain.AssetSource
	Data        []byte
	Folder      string
	PublicID    string
	Overwrite   bool
	Breakpoints *BreakpointRequest
}

type Uploader interface {
	// Upload sends the asset to the remote transformation service and returns the stored asset's metadata.
	Upload(ctx context.Context, request UploadRequest) (domain.UploadMetadata, error)
}

type BreakpointService interface {
	// Breakpoints returns widths computed by the remote service for an already uploaded asset.
	Breakpoints(ctx context.Context, publicID string, minWidth, maxWidth, maxImages int) ([]int, error)
}

type Fetcher interface {
	// Fetch downloads the resource at url and returns its bytes and content type.
	Fetch(ctx context.Context, url string) ([]byte, string, error)
}

type AssetReader interface {
	// ReadLocal returns the bytes of a local asset, failing when it is larger than limit bytes.
	ReadLocal(path string, limit int64) ([]byte, error)
	// Digest returns the hex encoded SHA-256 of the local asset's content.
	Digest(path string) (string, error)
}
