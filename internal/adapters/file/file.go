package file

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog/log"
)

// Fetcher downloads derived images, such as the low resolution placeholders.
type Fetcher struct {
	client *http.Client
}

func NewFetcher(timeout time.Duration) *Fetcher {
	return &Fetcher{client: &http.Client{Timeout: timeout}}
}

// Fetch returns the body and the content type of the resource at url.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		err = fmt.Errorf("error creating request %w", err)
		log.Error().Err(err).Str("url", url).Send()
		return nil, "", err
	}

	res, err := f.client.Do(req)
	if err != nil {
		err = fmt.Errorf("error executing request %w", err)
		log.Error().Err(err).Str("url", url).Send()
		return nil, "", err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		err = fmt.Errorf("unexpected status code on download: %d", res.StatusCode)
		log.Error().Err(err).Str("url", url).Send()
		return nil, "", err
	}

	buf, err := io.ReadAll(res.Body)
	if err != nil {
		err = fmt.Errorf("error reading response %w", err)
		log.Error().Err(err).Str("url", url).Send()
		return nil, "", err
	}

	log.Debug().Str("url", url).Str("size", humanize.Bytes(uint64(len(buf)))).Msg("downloaded file")

	return buf, res.Header.Get("Content-Type"), nil
}

// Reader reads local assets from disk.
type Reader struct{}

// ReadLocal returns the content of the file at path. Files larger than limit are rejected before
// they are read; a limit of zero or less disables the check.
func (Reader) ReadLocal(path string, limit int64) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("error opening local asset %w", err)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("error reading local asset %w", err)
	}

	if limit > 0 && stat.Size() > limit {
		return nil, fmt.Errorf("local asset %s is %s, exceeds limit of %s", path,
			humanize.Bytes(uint64(stat.Size())), humanize.Bytes(uint64(limit)))
	}

	buf, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("error reading local asset %w", err)
	}

	log.Debug().Str("path", path).Str("size", humanize.Bytes(uint64(len(buf)))).Msg("read local asset")

	return buf, nil
}

func (Reader) Digest(path string) (string, error) {
	return Digest(path)
}

// Digest returns the hex encoded SHA-256 of the file content.
func Digest(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("error opening local asset %w", err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("error hashing local asset %w", err)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}
