package cloudinary

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"cloudimg/internal/core/domain"
	"cloudimg/internal/core/port"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog/log"
)

const DefaultAPIBaseURL = "https://api.cloudinary.com"

// Client talks to the Cloudinary upload API. It implements port.Uploader and port.BreakpointService.
type Client struct {
	cloudName  string
	apiKey     string
	apiSecret  string
	apiBaseURL string
	httpClient *http.Client
	now        func() time.Time
}

func NewClient(cloudName, apiKey, apiSecret, apiBaseURL string, timeout time.Duration) *Client {
	if apiBaseURL == "" {
		apiBaseURL = DefaultAPIBaseURL
	}
	return &Client{
		cloudName:  cloudName,
		apiKey:     apiKey,
		apiSecret:  apiSecret,
		apiBaseURL: strings.TrimRight(apiBaseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		now:        time.Now,
	}
}

type breakpointSettings struct {
	CreateDerived bool `json:"create_derived"`
	BytesStep     int  `json:"bytes_step,omitempty"`
	MinWidth      int  `json:"min_width"`
	MaxWidth      int  `json:"max_width"`
	MaxImages     int  `json:"max_images"`
}

type apiError struct {
	Message string `json:"message"`
}

type uploadResponse struct {
	PublicID              string `json:"public_id"`
	Version               int64  `json:"version"`
	Width                 int    `json:"width"`
	Height                int    `json:"height"`
	Format                string `json:"format"`
	Bytes                 int64  `json:"bytes"`
	SecureURL             string `json:"secure_url"`
	ResponsiveBreakpoints []struct {
		Breakpoints []struct {
			Width int `json:"width"`
		} `json:"breakpoints"`
	} `json:"responsive_breakpoints"`
	Error *apiError `json:"error"`
}

func (r uploadResponse) breakpoints() []int {
	if len(r.ResponsiveBreakpoints) == 0 {
		return nil
	}
	widths := make([]int, 0, len(r.ResponsiveBreakpoints[0].Breakpoints))
	for _, b := range r.ResponsiveBreakpoints[0].Breakpoints {
		widths = append(widths, b.Width)
	}
	return widths
}

func (c *Client) Upload(ctx context.Context, req port.UploadRequest) (domain.UploadMetadata, error) {
	params := map[string]string{
		"public_id": req.PublicID,
		"overwrite": strconv.FormatBool(req.Overwrite),
	}
	if req.Folder != "" {
		params["folder"] = strings.Trim(req.Folder, "/")
	}
	if req.Breakpoints != nil {
		settings, err := encodeBreakpoints(*req.Breakpoints)
		if err != nil {
			return domain.UploadMetadata{}, err
		}
		params["responsive_breakpoints"] = settings
	}

	var file io.Reader
	var filename string
	switch req.Source.Kind {
	case domain.Local:
		if len(req.Data) == 0 {
			return domain.UploadMetadata{}, errors.New("missing local asset data")
		}
		file = bytes.NewReader(req.Data)
		filename = filepath.Base(req.Source.AbsolutePath)
	case domain.Remote:
		// the service fetches remote assets itself
		params["file"] = req.Source.URL
	default:
		return domain.UploadMetadata{}, fmt.Errorf("unknown asset kind %q", req.Source.Kind)
	}

	log.Debug().
		Str("publicId", req.PublicID).
		Str("size", humanize.Bytes(uint64(len(req.Data)))).
		Bool("breakpoints", req.Breakpoints != nil).
		Msg("uploading asset to cloudinary")

	result, err := c.post(ctx, "upload", params, file, filename)
	if err != nil {
		return domain.UploadMetadata{}, err
	}

	if result.PublicID == "" || result.Width < 1 || result.Height < 1 {
		return domain.UploadMetadata{}, errors.New("incomplete cloudinary upload response")
	}

	log.Debug().
		Str("publicId", result.PublicID).
		Int64("version", result.Version).
		Str("bytes", humanize.Bytes(uint64(result.Bytes))).
		Msg("cloudinary upload complete")

	return domain.UploadMetadata{
		PublicID:    result.PublicID,
		Width:       result.Width,
		Height:      result.Height,
		Format:      result.Format,
		SecureURL:   result.SecureURL,
		Version:     result.Version,
		Bytes:       result.Bytes,
		Breakpoints: result.breakpoints(),
	}, nil
}

// Breakpoints asks the service to compute widths for an asset that is already uploaded.
func (c *Client) Breakpoints(ctx context.Context, publicID string, minWidth, maxWidth,
	maxImages int) ([]int, error) {
	settings, err := encodeBreakpoints(port.BreakpointRequest{
		MinWidth:  minWidth,
		MaxWidth:  maxWidth,
		MaxImages: maxImages,
	})
	if err != nil {
		return nil, err
	}

	result, err := c.post(ctx, "explicit", map[string]string{
		"public_id":              publicID,
		"type":                   "upload",
		"responsive_breakpoints": settings,
	}, nil, "")
	if err != nil {
		return nil, err
	}

	widths := result.breakpoints()
	if len(widths) == 0 {
		return nil, fmt.Errorf("no breakpoints returned for %s", publicID)
	}

	return widths, nil
}

func (c *Client) post(ctx context.Context, action string, params map[string]string, file io.Reader,
	filename string) (uploadResponse, error) {
	params["timestamp"] = strconv.FormatInt(c.now().Unix(), 10)
	params["signature"] = Sign(params, c.apiSecret)
	params["api_key"] = c.apiKey

	payloadBuf := new(bytes.Buffer)
	writer := multipart.NewWriter(payloadBuf)

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := writer.WriteField(k, params[k]); err != nil {
			return uploadResponse{}, fmt.Errorf("error encoding cloudinary request: %w", err)
		}
	}

	if file != nil {
		part, err := writer.CreateFormFile("file", filename)
		if err != nil {
			return uploadResponse{}, fmt.Errorf("error encoding cloudinary request: %w", err)
		}
		if _, err := io.Copy(part, file); err != nil {
			return uploadResponse{}, fmt.Errorf("error encoding cloudinary request: %w", err)
		}
	}

	if err := writer.Close(); err != nil {
		return uploadResponse{}, fmt.Errorf("error encoding cloudinary request: %w", err)
	}

	url := fmt.Sprintf("%s/v1_1/%s/image/%s", c.apiBaseURL, c.cloudName, action)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, payloadBuf)
	if err != nil {
		log.Error().Err(err).Msg("error creating POST request for cloudinary")
		return uploadResponse{}, err
	}
	req.Header.Add("Content-Type", writer.FormDataContentType())

	res, err := c.httpClient.Do(req)
	if err != nil {
		return uploadResponse{}, fmt.Errorf("error executing cloudinary request: %w", err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return uploadResponse{}, fmt.Errorf("error reading cloudinary response: %w", err)
	}

	var result uploadResponse
	if err := json.Unmarshal(body, &result); err != nil {
		if res.StatusCode != http.StatusOK {
			return uploadResponse{}, fmt.Errorf("cloudinary %s: unexpected status code %d", action, res.StatusCode)
		}
		return uploadResponse{}, fmt.Errorf("error unmarshalling cloudinary response: %w", err)
	}

	if res.StatusCode != http.StatusOK || result.Error != nil {
		message := http.StatusText(res.StatusCode)
		if result.Error != nil {
			message = result.Error.Message
		}
		return uploadResponse{}, fmt.Errorf("cloudinary %s: status %d: %s", action, res.StatusCode, message)
	}

	return result, nil
}

// Sign computes the request signature: sorted key=value pairs joined by '&', followed by the secret,
// hashed with SHA-1. file, api_key, resource_type and cloud_name are never signed.
func Sign(params map[string]string, secret string) string {
	keys := make([]string, 0, len(params))
	for k, v := range params {
		switch k {
		case "file", "api_key", "resource_type", "cloud_name", "signature":
			continue
		}
		if v == "" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+params[k])
	}

	sum := sha1.Sum([]byte(strings.Join(pairs, "&") + secret))
	return hex.EncodeToString(sum[:])
}

func encodeBreakpoints(req port.BreakpointRequest) (string, error) {
	settings, err := json.Marshal([]breakpointSettings{{
		CreateDerived: req.CreateDerived,
		BytesStep:     req.BytesStep,
		MinWidth:      req.MinWidth,
		MaxWidth:      req.MaxWidth,
		MaxImages:     req.MaxImages,
	}})
	if err != nil {
		return "", fmt.Errorf("error encoding breakpoint settings: %w", err)
	}
	return string(settings), nil
}
