package service

import (
	"context"
	"errors"
	"sync"

	"cloudimg/internal/core/domain"
	"cloudimg/internal/core/port"

	"github.com/stretchr/testify/mock"
)

type mockStore struct {
	mutex   sync.Mutex
	records map[string]domain.UploadRecord
	getErr  error
	putErr  error
	creates int
	puts    int
}

func newMockStore() *mockStore {
	return &mockStore{records: make(map[string]domain.UploadRecord)}
}

func (m *mockStore) Get(_ context.Context, identifier string) (domain.UploadRecord, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if m.getErr != nil {
		return domain.UploadRecord{}, m.getErr
	}
	rec, ok := m.records[identifier]
	if !ok {
		return domain.UploadRecord{}, domain.ErrRecordNotFound
	}
	return rec, nil
}

func (m *mockStore) Create(_ context.Context, record domain.UploadRecord) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.creates++
	if m.putErr != nil {
		return m.putErr
	}
	if _, ok := m.records[record.Identifier]; ok {
		return domain.ErrRecordExists
	}
	m.records[record.Identifier] = record
	return nil
}

func (m *mockStore) Put(_ context.Context, record domain.UploadRecord) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.puts++
	if m.putErr != nil {
		return m.putErr
	}
	m.records[record.Identifier] = record
	return nil
}

type mockUploader struct {
	mutex    sync.Mutex
	calls    int
	requests []port.UploadRequest
	meta     func(req port.UploadRequest) domain.UploadMetadata
	err      error
	started  chan struct{}
	gate     chan struct{}
}

func (m *mockUploader) Upload(_ context.Context, req port.UploadRequest) (domain.UploadMetadata, error) {
	if m.started != nil {
		select {
		case m.started <- struct{}{}:
		default:
		}
	}
	if m.gate != nil {
		<-m.gate
	}
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.calls++
	m.requests = append(m.requests, req)
	if m.err != nil {
		return domain.UploadMetadata{}, m.err
	}
	if m.meta != nil {
		return m.meta(req), nil
	}
	return domain.UploadMetadata{
		PublicID:  req.PublicID,
		Width:     4032,
		Height:    3024,
		Format:    "jpg",
		SecureURL: "https://res.cloudinary.com/demo/image/upload/v1/" + req.PublicID + ".jpg",
		Version:   1,
	}, nil
}

func (m *mockUploader) Calls() int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.calls
}

type mockFetcher struct {
	mutex       sync.Mutex
	urls        []string
	data        []byte
	contentType string
	err         error
}

func (m *mockFetcher) Fetch(_ context.Context, url string) ([]byte, string, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.urls = append(m.urls, url)
	if m.err != nil {
		return nil, "", m.err
	}
	return m.data, m.contentType, nil
}

type MockBreakpointService struct{ mock.Mock }

func (m *MockBreakpointService) Breakpoints(ctx context.Context, publicID string, minWidth, maxWidth,
	maxImages int) ([]int, error) {
	args := m.Called(ctx, publicID, minWidth, maxWidth, maxImages)
	widths, _ := args.Get(0).([]int)
	return widths, args.Error(1)
}

type MockDescriber struct{ mock.Mock }

func (m *MockDescriber) Describe(ctx context.Context, imageURL string) (string, error) {
	args := m.Called(ctx, imageURL)
	return args.String(0), args.Error(1)
}

type mockReader struct {
	data    map[string][]byte
	digests map[string]string
}

func (m *mockReader) Digest(path string) (string, error) {
	digest, ok := m.digests[path]
	if !ok {
		return "", errors.New("file not found")
	}
	return digest, nil
}

func (m *mockReader) ReadLocal(path string, limit int64) ([]byte, error) {
	data, ok := m.data[path]
	if !ok {
		return nil, errors.New("file not found")
	}
	if limit > 0 && int64(len(data)) > limit {
		return nil, errors.New("file too large")
	}
	return data, nil
}

type mockSink struct {
	mutex sync.Mutex
	nodes []domain.ImageNode
	err   error
}

func (m *mockSink) CreateDerived(_ context.Context, _, _ string, node domain.ImageNode) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if m.err != nil {
		return m.err
	}
	m.nodes = append(m.nodes, node)
	return nil
}

type recordingMetrics struct {
	mutex     sync.Mutex
	decisions []string
	uploads   int
	failures  int
}

func (r *recordingMetrics) ObserveDecision(decision string) {
	r.mutex.Lock()
	r.decisions = append(r.decisions, decision)
	r.mutex.Unlock()
}

func (r *recordingMetrics) ObserveUpload(error) {
	r.mutex.Lock()
	r.uploads++
	r.mutex.Unlock()
}

func (r *recordingMetrics) ObservePlaceholder(error) {}

func (r *recordingMetrics) ObserveAsset(err error) {
	if err == nil {
		return
	}
	r.mutex.Lock()
	r.failures++
	r.mutex.Unlock()
}
