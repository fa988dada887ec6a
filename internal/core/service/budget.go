package service

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// Budget caps the number of remote uploads in a single run. Every upload is a billed operation.
type Budget interface {
	Acquire() bool
	Used() int
}

type UploadBudget struct {
	limit int
	used  int
	mutex *sync.Mutex
}

// NewUploadBudget returns a budget allowing limit uploads. A limit of zero or less is unlimited.
func NewUploadBudget(limit int) *UploadBudget {
	return &UploadBudget{limit: limit, mutex: &sync.Mutex{}}
}

// Acquire reserves one upload and reports whether the budget allowed it.
func (b *UploadBudget) Acquire() bool {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if b.limit > 0 && b.used >= b.limit {
		log.Warn().Int("limit", b.limit).Msg("upload budget exhausted")
		return false
	}

	b.used++
	return true
}

func (b *UploadBudget) Used() int {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return b.used
}
