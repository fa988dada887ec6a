package manifest

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"cloudimg/internal/core/domain"
	"cloudimg/internal/core/service"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Asset is one manifest entry. Exactly one of Path and URL is set.
type Asset struct {
	Path         string `yaml:"path"`
	URL          string `yaml:"url"`
	PublicID     string `yaml:"public_id"`
	Parent       string `yaml:"parent"`
	Relationship string `yaml:"relationship"`
	Overwrite    *bool  `yaml:"overwrite"`
}

type Manifest struct {
	Assets []Asset `yaml:"assets"`
}

// Load reads the manifest at path and turns it into ingest requests. Relative asset paths are
// resolved against the manifest's directory. Local files are not opened here, a missing file fails
// only its own asset during ingestion.
func Load(path string) ([]service.IngestRequest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("error opening manifest %w", err)
	}
	defer f.Close()

	base, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("error resolving manifest directory %w", err)
	}

	return Decode(f, base)
}

func Decode(r io.Reader, base string) ([]service.IngestRequest, error) {
	var m Manifest
	if err := yaml.NewDecoder(r).Decode(&m); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("error decoding manifest %w", err)
	}

	requests := make([]service.IngestRequest, 0, len(m.Assets))
	for i, asset := range m.Assets {
		req, err := asset.request(base)
		if err != nil {
			return nil, fmt.Errorf("manifest entry %d: %w", i+1, err)
		}
		requests = append(requests, req)
	}

	log.Debug().Int("assets", len(requests)).Msg("manifest loaded")

	return requests, nil
}

func (a Asset) request(base string) (service.IngestRequest, error) {
	req := service.IngestRequest{
		ParentID:     a.Parent,
		Relationship: a.Relationship,
		Overwrite:    a.Overwrite,
	}

	switch {
	case a.Path != "" && a.URL != "":
		return service.IngestRequest{}, errors.New("path and url are mutually exclusive")
	case a.Path != "":
		path := a.Path
		if !filepath.IsAbs(path) {
			path = filepath.Join(base, path)
		}
		req.Source = domain.LocalSource("", path)
		req.Source.DeclaredID = a.PublicID
	case a.URL != "":
		req.Source = domain.RemoteSource(a.URL, a.PublicID)
	default:
		return service.IngestRequest{}, errors.New("either path or url is required")
	}

	return req, nil
}
