package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"cloudimg/internal/core/domain"

	"github.com/rs/zerolog/log"
)

// Disk stores one JSON document per record below a directory. Records survive restarts.
type Disk struct {
	dir string
}

func NewDisk(dir string) (*Disk, error) {
	if dir == "" {
		return nil, errors.New("disk store requires a path")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("error creating record directory %w", err)
	}
	return &Disk{dir: dir}, nil
}

func (d *Disk) Get(_ context.Context, identifier string) (domain.UploadRecord, error) {
	buf, err := os.ReadFile(d.path(identifier))
	if errors.Is(err, os.ErrNotExist) {
		return domain.UploadRecord{}, domain.ErrRecordNotFound
	}
	if err != nil {
		return domain.UploadRecord{}, fmt.Errorf("error reading upload record %w", err)
	}

	return decodeRecord(buf)
}

// Create links a fully written temp file into place, which fails if the record already exists.
func (d *Disk) Create(_ context.Context, record domain.UploadRecord) error {
	tmp, err := d.writeTemp(record)
	if err != nil {
		return err
	}
	defer removeTemp(tmp)

	err = os.Link(tmp, d.path(record.Identifier))
	if errors.Is(err, os.ErrExist) {
		return domain.ErrRecordExists
	}
	if err != nil {
		return fmt.Errorf("error creating upload record %w", err)
	}

	return nil
}

func (d *Disk) Put(_ context.Context, record domain.UploadRecord) error {
	tmp, err := d.writeTemp(record)
	if err != nil {
		return err
	}

	if err := os.Rename(tmp, d.path(record.Identifier)); err != nil {
		removeTemp(tmp)
		return fmt.Errorf("error replacing upload record %w", err)
	}

	return nil
}

func (d *Disk) Close() error {
	return nil
}

func (d *Disk) path(identifier string) string {
	return filepath.Join(d.dir, recordName(identifier))
}

func (d *Disk) writeTemp(record domain.UploadRecord) (string, error) {
	buf, err := encodeRecord(record)
	if err != nil {
		return "", err
	}

	f, err := os.CreateTemp(d.dir, ".record-*")
	if err != nil {
		return "", fmt.Errorf("error creating temp file %w", err)
	}

	if _, err := f.Write(buf); err != nil {
		f.Close()
		removeTemp(f.Name())
		return "", fmt.Errorf("error writing temp file %w", err)
	}
	if err := f.Close(); err != nil {
		removeTemp(f.Name())
		return "", fmt.Errorf("error writing temp file %w", err)
	}

	return f.Name(), nil
}

func removeTemp(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Str("path", path).Err(err).Msg("could not clean up temp file")
	}
}

// recordName hashes the identifier, identifiers may contain URLs.
func recordName(identifier string) string {
	sum := sha256.Sum256([]byte(identifier))
	return hex.EncodeToString(sum[:]) + ".json"
}

func encodeRecord(record domain.UploadRecord) ([]byte, error) {
	buf, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("error encoding upload record %w", err)
	}
	return buf, nil
}

func decodeRecord(buf []byte) (domain.UploadRecord, error) {
	var record domain.UploadRecord
	if err := json.Unmarshal(buf, &record); err != nil {
		return domain.UploadRecord{}, fmt.Errorf("error decoding upload record %w", err)
	}
	return record, nil
}
