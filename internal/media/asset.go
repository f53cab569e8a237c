// Package media provides the media asset type shared by the render pipeline
// and the duration probe used to measure audio inputs.
package media

import (
	"fmt"
	"os"
)

// Kind identifies what an Asset contains.
type Kind string

const (
	// KindImage is a still image (capture or logo).
	KindImage Kind = "image"
	// KindAudio is an audio clip.
	KindAudio Kind = "audio"
	// KindVideo is a rendered video.
	KindVideo Kind = "video"
)

// Asset is a reference to a local media file. Assets are values and never
// change once created; the pipeline that created the file removes it.
type Asset struct {
	path string
	kind Kind
}

// NewAsset creates an Asset for the file at path.
func NewAsset(path string, kind Kind) Asset {
	return Asset{path: path, kind: kind}
}

// Path returns the local file path.
func (a Asset) Path() string { return a.path }

// Kind returns the asset kind.
func (a Asset) Kind() Kind { return a.kind }

// IsZero reports whether the asset is unset.
func (a Asset) IsZero() bool { return a.path == "" }

// Size returns the current size of the file in bytes.
func (a Asset) Size() (int64, error) {
	info, err := os.Stat(a.path)
	if err != nil {
		return 0, fmt.Errorf("stat %s asset: %w", a.kind, err)
	}
	return info.Size(), nil
}

func (a Asset) String() string {
	return fmt.Sprintf("%s:%s", a.kind, a.path)
}
