package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"cloudimg/internal/core/domain"

	"github.com/rs/zerolog/log"
)

// JSONL writes one derived node per line.
type JSONL struct {
	mutex   sync.Mutex
	w       io.Writer
	closer  io.Closer
	encoder *json.Encoder
	written int
}

func NewJSONL(w io.Writer) *JSONL {
	return &JSONL{w: w, encoder: json.NewEncoder(w)}
}

// Create truncates the file at path and writes nodes to it.
func Create(path string) (*JSONL, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("error creating node output %w", err)
	}
	s := NewJSONL(f)
	s.closer = f
	return s, nil
}

func (s *JSONL) CreateDerived(_ context.Context, _, _ string, node domain.ImageNode) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if err := s.encoder.Encode(node); err != nil {
		return fmt.Errorf("error writing node %s: %w", node.ID, err)
	}
	s.written++

	log.Debug().Str("node", node.ID).Str("parent", node.ParentID).Msg("derived node written")

	return nil
}

func (s *JSONL) Written() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.written
}

func (s *JSONL) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}
