package store

import (
	"context"
	"sync"

	"cloudimg/internal/core/domain"
)

// Memory keeps records for the lifetime of the process.
type Memory struct {
	mutex   sync.RWMutex
	records map[string]domain.UploadRecord
}

func NewMemory() *Memory {
	return &Memory{records: make(map[string]domain.UploadRecord)}
}

func (m *Memory) Get(_ context.Context, identifier string) (domain.UploadRecord, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	rec, ok := m.records[identifier]
	if !ok {
		return domain.UploadRecord{}, domain.ErrRecordNotFound
	}
	return rec, nil
}

func (m *Memory) Create(_ context.Context, record domain.UploadRecord) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if _, ok := m.records[record.Identifier]; ok {
		return domain.ErrRecordExists
	}
	m.records[record.Identifier] = record
	return nil
}

func (m *Memory) Put(_ context.Context, record domain.UploadRecord) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.records[record.Identifier] = record
	return nil
}

func (m *Memory) Close() error {
	return nil
}
