package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"cloudimg/internal/core/domain"
	"cloudimg/internal/core/port"

	"github.com/rs/zerolog/log"
)

type DecisionKind int

const (
	Proceed DecisionKind = iota
	Skip
)

func (k DecisionKind) String() string {
	if k == Skip {
		return "skip"
	}
	return "proceed"
}

type Decision struct {
	Kind DecisionKind
	// Existing is the cached record, set for Skip and for an overwrite of a known identifier.
	Existing *domain.UploadRecord
}

type Outcome struct {
	Metadata domain.UploadMetadata
	Uploaded bool
}

type UploadFunc func(ctx context.Context) (domain.UploadMetadata, error)

// Gate decides whether an asset needs a remote upload. An identifier moves from unknown to uploaded
// exactly once unless the caller asks for an overwrite.
type Gate struct {
	store   port.RecordStore
	metrics port.Metrics
	locks   *keyedLocks
	now     func() time.Time
}

func NewGate(store port.RecordStore, metrics port.Metrics) *Gate {
	if metrics == nil {
		metrics = NopMetrics{}
	}
	return &Gate{
		store:   store,
		metrics: metrics,
		locks:   newKeyedLocks(),
		now:     time.Now,
	}
}

func (g *Gate) ShouldUpload(ctx context.Context, identifier string, overwrite bool) (Decision, error) {
	record, err := g.store.Get(ctx, identifier)
	if errors.Is(err, domain.ErrRecordNotFound) {
		return Decision{Kind: Proceed}, nil
	}
	if err != nil {
		return Decision{}, fmt.Errorf("error reading upload record: %w", err)
	}

	if overwrite {
		return Decision{Kind: Proceed, Existing: &record}, nil
	}

	return Decision{Kind: Skip, Existing: &record}, nil
}

// Do runs the decision, the upload and the record write while holding the identifier's lock, so
// concurrent callers for one identifier never upload twice. The record is written only after upload
// returned successfully.
func (g *Gate) Do(ctx context.Context, identifier string, overwrite bool, upload UploadFunc) (Outcome, error) {
	release, err := g.locks.acquire(ctx, identifier)
	if err != nil {
		return Outcome{}, err
	}
	defer release()

	l := log.With().Str("identifier", identifier).Bool("overwrite", overwrite).Logger()

	decision, err := g.ShouldUpload(ctx, identifier, overwrite)
	if err != nil {
		return Outcome{}, err
	}
	g.metrics.ObserveDecision(decision.Kind.String())

	if decision.Kind == Skip {
		l.Debug().Int64("version", decision.Existing.RemoteVersion).Msg("upload record found, skipping upload")
		return Outcome{Metadata: decision.Existing.Metadata}, nil
	}

	meta, err := upload(ctx)
	if err != nil {
		return Outcome{}, err
	}

	record := domain.UploadRecord{
		Identifier:     identifier,
		RemoteVersion:  meta.Version,
		LastUploadedAt: g.now().UTC(),
		Metadata:       meta,
	}

	if decision.Existing != nil {
		err = g.store.Put(ctx, record)
	} else {
		err = g.store.Create(ctx, record)
	}

	switch {
	case errors.Is(err, domain.ErrRecordExists):
		l.Warn().Msg("upload record created concurrently by another writer")
	case err != nil:
		return Outcome{Metadata: meta, Uploaded: true}, fmt.Errorf("error writing upload record: %w", err)
	}

	l.Debug().Int64("version", meta.Version).Msg("upload recorded")

	return Outcome{Metadata: meta, Uploaded: true}, nil
}

type keyedLocks struct {
	mutex sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	ch   chan struct{}
	refs int
}

func newKeyedLocks() *keyedLocks {
	return &keyedLocks{locks: make(map[string]*keyLock)}
}

func (k *keyedLocks) acquire(ctx context.Context, key string) (func(), error) {
	k.mutex.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyLock{ch: make(chan struct{}, 1)}
		k.locks[key] = l
	}
	l.refs++
	k.mutex.Unlock()

	select {
	case l.ch <- struct{}{}:
		return func() {
			<-l.ch
			k.unref(key, l)
		}, nil
	case <-ctx.Done():
		k.unref(key, l)
		return nil, ctx.Err()
	}
}

func (k *keyedLocks) unref(key string, l *keyLock) {
	k.mutex.Lock()
	l.refs--
	if l.refs == 0 {
		delete(k.locks, key)
	}
	k.mutex.Unlock()
}
