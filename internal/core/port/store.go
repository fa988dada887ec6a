package port

import (
	"context"

	"cloudimg/internal/core/domain"
)

type RecordStore interface {
	// Get returns the cached record for identifier or domain.ErrRecordNotFound.
	Get(ctx context.Context, identifier string) (domain.UploadRecord, error)
	// Create stores record only if no record exists for its identifier, otherwise domain.ErrRecordExists.
	Create(ctx context.Context, record domain.UploadRecord) error
	// Put stores record unconditionally.
	Put(ctx context.Context, record domain.UploadRecord) error
}

type NodeSink interface {
	// CreateDerived hands a derived output node to the host data layer.
	CreateDerived(ctx context.Context, parentID, relationship string, node domain.ImageNode) error
}
