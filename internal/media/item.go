// Package media provides media item identity and filesystem discovery.
package media

import (
	"path/filepath"
	"strings"
	"time"
)

// Kind distinguishes still images from video clips. The two differ only in
// the vision prompt and request timeout used downstream.
type Kind string

const (
	KindImage Kind = "image"
	KindVideo Kind = "video"
)

// Item is a discovered media file. Immutable once created.
type Item struct {
	Path         string
	ID           string
	Kind         Kind
	DiscoveredAt time.Time
}

var imageExts = map[string]struct{}{
	".jpg":  {},
	".jpeg": {},
	".png":  {},
}

var videoExts = map[string]struct{}{
	".mp4":  {},
	".mov":  {},
	".avi":  {},
	".mkv":  {},
	".webm": {},
}

// KindOf reports the media kind for a path, or false for unknown extensions.
func KindOf(path string) (Kind, bool) {
	ext := strings.ToLower(filepath.Ext(path))
	if _, ok := imageExts[ext]; ok {
		return KindImage, true
	}
	if _, ok := videoExts[ext]; ok {
		return KindVideo, true
	}
	return "", false
}

// ExtractID derives the stable identity used for duplicate suppression.
// Camera exports name files like "TNPUSAF-018072-YXCWN_2024Y07M10D15H15M22S00_door_8.jpg";
// the token between the first two '-' separators is the capture ID shared by
// re-exports of the same clip. Filenames without that shape fall back to the
// base name without extension.
func ExtractID(path string) string {
	base := filepath.Base(path)
	parts := strings.SplitN(base, "-", 3)
	if len(parts) >= 2 && parts[1] != "" {
		return parts[1]
	}
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// NewItem builds an Item for a path. The second return is false when the
// extension is not a known media type.
func NewItem(path string) (Item, bool) {
	kind, ok := KindOf(path)
	if !ok {
		return Item{}, false
	}
	return Item{
		Path:         path,
		ID:           ExtractID(path),
		Kind:         kind,
		DiscoveredAt: time.Now(),
	}, true
}
