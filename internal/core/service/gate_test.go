package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"cloudimg/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func uploadReturning(meta domain.UploadMetadata, calls *atomic.Int32) UploadFunc {
	return func(context.Context) (domain.UploadMetadata, error) {
		calls.Add(1)
		return meta, nil
	}
}

func TestGateSkipsKnownIdentifier(t *testing.T) {
	store := newMockStore()
	metrics := &recordingMetrics{}
	gate := NewGate(store, metrics)
	meta := domain.UploadMetadata{PublicID: "a", Width: 10, Height: 10, Version: 4}

	var calls atomic.Int32
	first, err := gate.Do(context.Background(), "sha256:aa", false, uploadReturning(meta, &calls))
	require.NoError(t, err)
	assert.True(t, first.Uploaded)

	second, err := gate.Do(context.Background(), "sha256:aa", false, uploadReturning(meta, &calls))
	require.NoError(t, err)
	assert.False(t, second.Uploaded)
	assert.Equal(t, meta, second.Metadata)

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, []string{"proceed", "skip"}, metrics.decisions)
	assert.Equal(t, 1, store.creates)
	assert.Equal(t, int64(4), store.records["sha256:aa"].RemoteVersion)
}

func TestGateOverwrite(t *testing.T) {
	store := newMockStore()
	store.records["k"] = domain.UploadRecord{Identifier: "k", RemoteVersion: 1,
		Metadata: domain.UploadMetadata{PublicID: "k", Version: 1}}
	gate := NewGate(store, nil)

	decision, err := gate.ShouldUpload(context.Background(), "k", true)
	require.NoError(t, err)
	assert.Equal(t, Proceed, decision.Kind)
	require.NotNil(t, decision.Existing)

	var calls atomic.Int32
	outcome, err := gate.Do(context.Background(), "k", true,
		uploadReturning(domain.UploadMetadata{PublicID: "k", Version: 2}, &calls))
	require.NoError(t, err)
	assert.True(t, outcome.Uploaded)
	assert.Equal(t, 1, store.puts)
	assert.Zero(t, store.creates)
	assert.Equal(t, int64(2), store.records["k"].RemoteVersion)
}

func TestGateShouldUpload(t *testing.T) {
	store := newMockStore()
	store.records["known"] = domain.UploadRecord{Identifier: "known"}
	gate := NewGate(store, nil)

	tests := []struct {
		name       string
		identifier string
		overwrite  bool
		want       DecisionKind
	}{
		{"unknown", "new", false, Proceed},
		{"unknown with overwrite", "new", true, Proceed},
		{"known", "known", false, Skip},
		{"known with overwrite", "known", true, Proceed},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			decision, err := gate.ShouldUpload(context.Background(), tc.identifier, tc.overwrite)
			require.NoError(t, err)
			assert.Equal(t, tc.want, decision.Kind)
		})
	}
}

func TestGateStoreReadError(t *testing.T) {
	store := newMockStore()
	store.getErr = errors.New("disk on fire")
	gate := NewGate(store, nil)

	var calls atomic.Int32
	_, err := gate.Do(context.Background(), "k", false, uploadReturning(domain.UploadMetadata{}, &calls))
	assert.ErrorContains(t, err, "disk on fire")
	assert.Zero(t, calls.Load())
}

func TestGateUploadFailureWritesNothing(t *testing.T) {
	store := newMockStore()
	gate := NewGate(store, nil)

	_, err := gate.Do(context.Background(), "k", false, func(context.Context) (domain.UploadMetadata, error) {
		return domain.UploadMetadata{}, domain.ErrUploadFailed
	})
	assert.ErrorIs(t, err, domain.ErrUploadFailed)
	assert.Empty(t, store.records)
	assert.Zero(t, store.creates)
}

func TestGateRecordWriteFailure(t *testing.T) {
	store := newMockStore()
	store.putErr = errors.New("read-only")
	gate := NewGate(store, nil)

	var calls atomic.Int32
	outcome, err := gate.Do(context.Background(), "k", false,
		uploadReturning(domain.UploadMetadata{PublicID: "k"}, &calls))
	assert.ErrorContains(t, err, "read-only")
	assert.True(t, outcome.Uploaded)
}

func TestGateConcurrentSameIdentifier(t *testing.T) {
	store := newMockStore()
	gate := NewGate(store, nil)
	meta := domain.UploadMetadata{PublicID: "shared", Width: 100, Height: 50}

	var calls atomic.Int32
	upload := func(context.Context) (domain.UploadMetadata, error) {
		calls.Add(1)
		time.Sleep(10 * time.Millisecond)
		return meta, nil
	}

	const callers = 16
	var wg sync.WaitGroup
	var uploaded atomic.Int32
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcome, err := gate.Do(context.Background(), "same", false, upload)
			assert.NoError(t, err)
			assert.Equal(t, meta, outcome.Metadata)
			if outcome.Uploaded {
				uploaded.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, int32(1), uploaded.Load())
	assert.Empty(t, gate.locks.locks)
}

func TestGateLockHonoursContext(t *testing.T) {
	gate := NewGate(newMockStore(), nil)

	release, err := gate.locks.acquire(context.Background(), "busy")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	var calls atomic.Int32
	_, err = gate.Do(ctx, "busy", false, uploadReturning(domain.UploadMetadata{}, &calls))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Zero(t, calls.Load())

	release()
	assert.Empty(t, gate.locks.locks)
}
