package metadata

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/ulikunitz/xz"
	"igarchiver/pkg/instagram"
)

const (
	// ExtJSON is the extension of plain metadata files
	ExtJSON = ".json"
	// ExtJSONXZ is the extension of xz-compressed metadata files
	ExtJSONXZ = ".json.xz"

	// NodeTypePost marks a metadata document describing a post
	NodeTypePost = "Post"
)

// Post is the metadata document written next to a post's media
type Post struct {
	Node        instagram.Node `json:"node"`
	Instaloader Info           `json:"instaloader"`
}

// Info describes the document itself
type Info struct {
	NodeType     string    `json:"node_type"`
	DownloadedAt time.Time `json:"downloaded_at"`
}

// NewPost wraps a timeline node in a metadata document
func NewPost(node *instagram.Node) *Post {
	return &Post{
		Node: *node,
		Instaloader: Info{
			NodeType:     NodeTypePost,
			DownloadedAt: time.Now().UTC(),
		},
	}
}

// Record is the part of a metadata file that post-processing reads back.
// Documents written by other tools may omit fields, so TakenAt is only
// meaningful when HasTakenAt is set.
type Record struct {
	Shortcode  string
	TakenAt    time.Time
	HasTakenAt bool
	Caption    string
}

type rawPost struct {
	Node *struct {
		Shortcode        string                 `json:"shortcode"`
		TakenAtTimestamp *int64                 `json:"taken_at_timestamp"`
		Caption          instagram.CaptionEdges `json:"edge_media_to_caption"`
	} `json:"node"`
}

// FileName returns the metadata file name for a media stem
func FileName(stem string, compress bool) string {
	if compress {
		return stem + ExtJSONXZ
	}
	return stem + ExtJSON
}

// IsMetadataFile reports whether name is a .json or .json.xz file
func IsMetadataFile(name string) bool {
	return strings.HasSuffix(name, ExtJSONXZ) || strings.HasSuffix(name, ExtJSON)
}

// Stem strips the metadata extension from name
func Stem(name string) string {
	if strings.HasSuffix(name, ExtJSONXZ) {
		return strings.TrimSuffix(name, ExtJSONXZ)
	}
	return strings.TrimSuffix(name, ExtJSON)
}

// Encode serialises the document, xz-compressed when compress is set
func (p *Post) Encode(compress bool) ([]byte, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if !compress {
		return data, nil
	}

	var buf bytes.Buffer
	w, err := xz.NewWriter(&buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create xz writer: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("failed to compress metadata: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish xz stream: %w", err)
	}
	return buf.Bytes(), nil
}

// Save writes the document to path. The format follows the extension.
func (p *Post) Save(path string) error {
	data, err := p.Encode(strings.HasSuffix(path, ExtJSONXZ))
	if err != nil {
		return err
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write metadata file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to rename metadata file: %w", err)
	}
	return nil
}

// Load reads a .json or .json.xz metadata file
func Load(path string) (*Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open metadata file: %w", err)
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ExtJSONXZ) {
		xr, err := xz.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("failed to open xz stream: %w", err)
		}
		r = xr
	}
	return Decode(r)
}

// Decode parses a metadata document
func Decode(r io.Reader) (*Record, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read metadata: %w", err)
	}

	var raw rawPost
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}

	rec := &Record{}
	if raw.Node == nil {
		return rec, nil
	}
	rec.Shortcode = raw.Node.Shortcode
	if raw.Node.TakenAtTimestamp != nil {
		rec.TakenAt = time.Unix(*raw.Node.TakenAtTimestamp, 0).UTC()
		rec.HasTakenAt = true
	}
	if len(raw.Node.Caption.Edges) > 0 {
		rec.Caption = raw.Node.Caption.Edges[0].Node.Text
	}
	return rec, nil
}

// Exists reports whether a metadata file in either format exists for stem
func Exists(dir, stem string) bool {
	for _, name := range []string{FileName(stem, true), FileName(stem, false)} {
		if _, err := os.Stat(filepath.Join(dir, name)); err == nil {
			return true
		}
	}
	return false
}
