package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"strings"
)

const shortDigestLength = 12

// Identify derives the cache key and the remote public id of an asset. Equal sources always yield
// equal identifiers, which is what makes re-runs detectable.
func Identify(source AssetSource, folder string) (UploadIdentifier, error) {
	switch source.Kind {
	case Local:
		digest := strings.ToLower(strings.TrimSpace(source.ContentDigest))
		if digest == "" {
			return UploadIdentifier{}, errors.New("local asset without content digest")
		}

		key := "sha256:" + digest
		if folder = strings.Trim(folder, "/"); folder != "" {
			key = folder + ":" + key
		}

		publicID := strings.TrimSpace(source.DeclaredID)
		if publicID == "" {
			name := strings.TrimSuffix(filepath.Base(source.AbsolutePath), filepath.Ext(source.AbsolutePath))
			publicID = joinPublicID(slug(name), shortDigest(digest))
		}

		return UploadIdentifier{Key: key, PublicID: publicID}, nil
	case Remote:
		normalized, err := NormalizeURL(source.URL)
		if err != nil {
			return UploadIdentifier{}, err
		}

		key := normalized
		if folder = strings.Trim(folder, "/"); folder != "" {
			key = folder + ":" + normalized
		}

		publicID := strings.TrimSpace(source.DeclaredID)
		if publicID == "" {
			sum := sha256.Sum256([]byte(normalized))
			publicID = joinPublicID(slug(remoteBaseName(normalized)), shortDigest(hex.EncodeToString(sum[:])))
		}

		return UploadIdentifier{Key: key, PublicID: publicID}, nil
	default:
		return UploadIdentifier{}, fmt.Errorf("unknown asset kind %q", source.Kind)
	}
}

// NormalizeURL lower-cases scheme and host, drops default ports and fragments and cleans the path.
// The query string is kept, it can select a different image.
func NormalizeURL(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("invalid asset url: %w", err)
	}

	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("invalid asset url %q: scheme and host required", raw)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())
	port := u.Port()
	if (u.Scheme == "http" && port == "80") || (u.Scheme == "https" && port == "443") {
		port = ""
	}
	if port != "" {
		host = host + ":" + port
	}
	u.Host = host
	u.Fragment = ""
	u.RawFragment = ""

	if u.Path == "" {
		u.Path = "/"
	} else {
		cleaned := path.Clean(u.Path)
		if strings.HasSuffix(u.Path, "/") && cleaned != "/" {
			cleaned += "/"
		}
		u.Path = cleaned
	}
	u.RawPath = ""

	return u.String(), nil
}

func remoteBaseName(normalized string) string {
	u, err := url.Parse(normalized)
	if err != nil {
		return ""
	}
	base := path.Base(u.Path)
	if base == "/" || base == "." {
		return ""
	}
	return strings.TrimSuffix(base, path.Ext(base))
}

func slug(s string) string {
	var b strings.Builder
	lastDash := false
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash && b.Len() > 0 {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	return strings.TrimRight(b.String(), "-")
}

func shortDigest(digest string) string {
	if len(digest) > shortDigestLength {
		return digest[:shortDigestLength]
	}
	return digest
}

func joinPublicID(name, digest string) string {
	if name == "" {
		return digest
	}
	return name + "_" + digest
}
