package domain

import "time"

type SourceKind string

const (
	Local  SourceKind = "local"
	Remote SourceKind = "remote"
)

// AssetSource references an image either on the local disk or at a remote URL.
type AssetSource struct {
	Kind          SourceKind
	ContentDigest string
	AbsolutePath  string
	URL           string
	DeclaredID    string
}

func LocalSource(digest, absolutePath string) AssetSource {
	return AssetSource{Kind: Local, ContentDigest: digest, AbsolutePath: absolutePath}
}

func RemoteSource(url, declaredID string) AssetSource {
	return AssetSource{Kind: Remote, URL: url, DeclaredID: declaredID}
}

type UploadIdentifier struct {
	Key      string
	PublicID string
}

type UploadMetadata struct {
	PublicID    string `json:"publicId"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	Format      string `json:"format"`
	SecureURL   string `json:"secureUrl"`
	Version     int64  `json:"version"`
	Bytes       int64  `json:"bytes,omitempty"`
	Breakpoints []int  `json:"breakpoints,omitempty"`
	// AltText is generated once per upload and reused while the record is valid.
	AltText string `json:"altText,omitempty"`
}

type UploadRecord struct {
	Identifier     string         `json:"identifier"`
	RemoteVersion  int64          `json:"remoteVersion"`
	LastUploadedAt time.Time      `json:"lastUploadedAt"`
	Metadata       UploadMetadata `json:"metadata"`
}

// TransformationSpec holds the three directive lists in the order they are applied.
type TransformationSpec struct {
	Defaults        []string `json:"defaults,omitempty"`
	Transformations []string `json:"transformations,omitempty"`
	Chained         []string `json:"chained,omitempty"`
}

type BreakpointPlan []int

type Source struct {
	Width   int    `json:"width"`
	Density int    `json:"density,omitempty"`
	URL     string `json:"url"`
}

type ImageDescriptor struct {
	AspectRatio        float64  `json:"aspectRatio"`
	Base64             string   `json:"base64"`
	Src                string   `json:"src"`
	SrcSet             string   `json:"srcSet"`
	Sources            []Source `json:"sources"`
	Sizes              string   `json:"sizes,omitempty"`
	Width              int      `json:"width,omitempty"`
	Height             int      `json:"height,omitempty"`
	PresentationWidth  int      `json:"presentationWidth,omitempty"`
	PresentationHeight int      `json:"presentationHeight,omitempty"`
}

// ImageNode is the record handed back to the host data layer for every ingested asset.
type ImageNode struct {
	ID             string          `json:"id"`
	ParentID       string          `json:"parentId"`
	Relationship   string          `json:"relationship"`
	Identifier     string          `json:"identifier"`
	PublicID       string          `json:"publicId"`
	CloudName      string          `json:"cloudName"`
	Version        int64           `json:"version"`
	OriginalWidth  int             `json:"originalWidth"`
	OriginalHeight int             `json:"originalHeight"`
	OriginalFormat string          `json:"originalFormat"`
	SecureURL      string          `json:"secureUrl"`
	Fixed          ImageDescriptor `json:"fixed"`
	Fluid          ImageDescriptor `json:"fluid"`
	AltText        string          `json:"altText,omitempty"`
	Uploaded       bool            `json:"-"`
}
