package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidDimension       = errors.New("invalid dimension")
	ErrUploadFailed           = errors.New("upload failed")
	ErrPlaceholderFetchFailed = errors.New("placeholder fetch failed")
	ErrConfigurationInvalid   = errors.New("configuration invalid")
	ErrUploadBudgetExhausted  = errors.New("upload budget exhausted")
	ErrRecordNotFound         = errors.New("upload record not found")
	ErrRecordExists           = errors.New("upload record already exists")
)

const (
	DefaultFixedWidth    = 400
	DefaultBase64Width   = 30
	DefaultFluidMinWidth = 50
	DefaultFluidMaxWidth = 1000
	DefaultMaxImages     = 20
	DefaultBytesStep     = 20000
)

// DefaultTransformations are applied ahead of caller transformations when none are configured.
var DefaultTransformations = []string{"f_auto", "q_auto"}

// AssetError attaches the upload identifier and the failing step to a per-asset failure.
type AssetError struct {
	Identifier string
	Op         string
	Err        error
}

func (e *AssetError) Error() string {
	return fmt.Sprintf("asset %s: %s: %v", e.Identifier, e.Op, e.Err)
}

func (e *AssetError) Unwrap() error {
	return e.Err
}
