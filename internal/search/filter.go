// Package search ranks mirrored files against a query by combining exact
// filename matches with embedding-similarity matches.
package search

import (
	"fmt"
	"path/filepath"
	"strings"
)

// FilterKind restricts search candidates to a content category.
type FilterKind int

const (
	FilterAll FilterKind = iota
	FilterDocument
	FilterImage
	FilterAudio
	FilterVideo
)

var filterExtensions = map[FilterKind][]string{
	FilterDocument: {".pdf", ".doc", ".docx", ".txt", ".ppt", ".pptx", ".xls", ".xlsx"},
	FilterImage:    {".jpg", ".jpeg", ".png", ".bmp", ".gif"},
	FilterAudio:    {".mp3", ".wav", ".aac", ".ogg", ".m4a"},
	FilterVideo:    {".mp4", ".avi", ".mov", ".mkv", ".flv"},
}

// ParseFilter maps a request parameter to a FilterKind. The empty string
// means All; anything else unknown is an error.
func ParseFilter(s string) (FilterKind, error) {
	switch strings.ToLower(s) {
	case "", "all":
		return FilterAll, nil
	case "document":
		return FilterDocument, nil
	case "image":
		return FilterImage, nil
	case "audio":
		return FilterAudio, nil
	case "video":
		return FilterVideo, nil
	default:
		return FilterAll, fmt.Errorf("unknown filter %q", s)
	}
}

// String returns the canonical filter name.
func (k FilterKind) String() string {
	switch k {
	case FilterAll:
		return "All"
	case FilterDocument:
		return "Document"
	case FilterImage:
		return "Image"
	case FilterAudio:
		return "Audio"
	case FilterVideo:
		return "Video"
	default:
		return fmt.Sprintf("FilterKind(%d)", int(k))
	}
}

// Matches reports whether a file name passes the filter. Extension matching
// is case-insensitive; All passes everything.
func (k FilterKind) Matches(name string) bool {
	if k == FilterAll {
		return true
	}
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range filterExtensions[k] {
		if ext == e {
			return true
		}
	}
	return false
}
