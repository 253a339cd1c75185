// Package fetcher defines the capability contract every platform
// module implements and the ordered registry that routes URLs to them.
package fetcher

import (
	"context"

	log "github.com/sirupsen/logrus"

	"go-media-fetch/internal/errs"
	"go-media-fetch/internal/models"
)

// FormatHint narrows what a fetcher should produce when the platform
// offers a choice (e.g. video vs audio-only for the same URL).
type FormatHint string

const (
	HintNone  FormatHint = ""
	HintVideo FormatHint = "video"
	HintAudio FormatHint = "audio"
)

// Fetcher is the capability set a platform module must implement to be
// dispatchable. Supports and IsPlaylist must be pure and side-effect
// free: dispatch calls them repeatedly and expects them to be cheap.
type Fetcher interface {
	// Supports reports whether this fetcher claims the URL, by pattern
	// only.
	Supports(url string) bool
	// IsPlaylist reports whether the URL names a multi-track
	// collection.
	IsPlaylist(url string) bool
	// Download fetches the URL's artifacts to local temporary files.
	Download(ctx context.Context, url string, hint FormatHint) ([]models.MediaContent, error)
}

// PlaylistFetcher is implemented by fetchers that can expand a playlist
// URL into individual track URLs.
type PlaylistFetcher interface {
	Fetcher
	PlaylistTracks(ctx context.Context, url string) ([]string, error)
}

// Descriptor couples a fetcher with its registered name.
type Descriptor struct {
	Name    string
	Fetcher Fetcher
}

// Registry holds fetchers in registration order. Registration happens
// once at startup; the registry is immutable afterwards. When two
// fetchers' URL patterns overlap, the one registered first wins — that
// ordering is the precedence rule, deliberately, so overlaps are
// resolved by how the startup code lists them rather than by any
// implicit specificity ranking.
type Registry struct {
	fetchers []Descriptor
}

func NewRegistry() *Registry {
	return &Registry{}
}

// Register appends a fetcher at the end of the precedence order.
func (r *Registry) Register(name string, f Fetcher) {
	r.fetchers = append(r.fetchers, Descriptor{Name: name, Fetcher: f})
	log.Debugf("Registered fetcher %q at position %d", name, len(r.fetchers)-1)
}

// Dispatch returns the first registered fetcher that supports the URL,
// or a StructuredError with CodeInvalidURL when none claims it.
func (r *Registry) Dispatch(url string) (Descriptor, error) {
	for _, d := range r.fetchers {
		if d.Fetcher.Supports(url) {
			return d, nil
		}
	}
	return Descriptor{}, errs.New(errs.CodeInvalidURL, url, "no registered fetcher supports this URL")
}

// Names lists registered fetchers in precedence order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.fetchers))
	for _, d := range r.fetchers {
		names = append(names, d.Name)
	}
	return names
}
