// Package direct fetches media from plain file URLs: anything that
// points straight at an mp4/jpg/mp3/etc. is downloaded as-is, with the
// kind inferred from the extension.
package direct

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	log "github.com/sirupsen/logrus"

	"go-media-fetch/internal/downloader"
	"go-media-fetch/internal/errs"
	"go-media-fetch/internal/fetcher"
	"go-media-fetch/internal/models"
)

var urlPattern = regexp.MustCompile(`(?i)^https?://\S+\.(mp4|mov|webm|jpg|jpeg|png|webp|gif|mp3|m4a|ogg)(\?\S*)?$`)

var kindByExt = map[string]models.MediaKind{
	".mp4":  models.KindVideo,
	".mov":  models.KindVideo,
	".webm": models.KindVideo,
	".jpg":  models.KindPhoto,
	".jpeg": models.KindPhoto,
	".png":  models.KindPhoto,
	".webp": models.KindPhoto,
	".gif":  models.KindGif,
	".mp3":  models.KindAudio,
	".m4a":  models.KindAudio,
	".ogg":  models.KindAudio,
}

// Fetcher downloads direct media-file URLs.
type Fetcher struct {
	Downloader *downloader.Downloader
	TempDir    string
	Ceiling    int64 // Payload ceiling in bytes; 0 means unlimited
}

// New creates a direct-URL fetcher writing into tempDir.
func New(d *downloader.Downloader, tempDir string, ceiling int64) *Fetcher {
	return &Fetcher{Downloader: d, TempDir: tempDir, Ceiling: ceiling}
}

// Supports reports whether the URL points straight at a media file.
func (f *Fetcher) Supports(url string) bool {
	return urlPattern.MatchString(url)
}

// IsPlaylist always reports false: a file URL is a single artifact.
func (f *Fetcher) IsPlaylist(url string) bool {
	return false
}

// Download fetches the file and wraps it as a single MediaContent item.
func (f *Fetcher) Download(ctx context.Context, url string, hint fetcher.FormatHint) ([]models.MediaContent, error) {
	kind, ok := kindFor(url)
	if !ok {
		return nil, errs.New(errs.CodeInvalidURL, url, "unrecognized media file extension")
	}

	log.WithField("kind", kind).Debugf("Direct fetch of %s", url)
	path, err := f.Downloader.FetchFile(ctx, url, f.TempDir, f.Ceiling)
	if err != nil {
		switch {
		case errors.Is(err, downloader.ErrTooLarge):
			return nil, errs.New(errs.CodeLargeFile, url, err.Error())
		case errors.Is(err, context.Canceled):
			return nil, err
		default:
			return nil, fmt.Errorf("direct download of %s: %w", url, err)
		}
	}

	return []models.MediaContent{{
		Kind:      kind,
		LocalPath: path,
		Title:     titleFromPath(path),
	}}, nil
}

func kindFor(url string) (models.MediaKind, bool) {
	trimmed := strings.SplitN(url, "?", 2)[0]
	kind, ok := kindByExt[strings.ToLower(filepath.Ext(trimmed))]
	return kind, ok
}

func titleFromPath(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
