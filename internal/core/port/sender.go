package port

import (
	"context"
	"time"
)

type AssetFailure struct {
	Identifier string
	Err        error
}

type RunReport struct {
	RunID     string
	Started   time.Time
	Duration  time.Duration
	Total     int
	Uploaded  int
	Skipped   int
	Failures  []AssetFailure
	Cancelled bool
}

type Reporter interface {
	// Report delivers the summary of an ingestion run.
	Report(ctx context.Context, report RunReport) error
}

// Metrics receives observations from the ingestion pipeline.
type Metrics interface {
	ObserveDecision(decision string)
	ObserveUpload(err error)
	ObservePlaceholder(err error)
	ObserveAsset(err error)
}
