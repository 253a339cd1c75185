// Package resolver fetches media from platforms handled through the
// external resolver service: the short link is expanded to its
// canonical post URL, the resolver returns direct file URLs, and each
// file is downloaded locally.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	log "github.com/sirupsen/logrus"

	"go-media-fetch/internal/api"
	"go-media-fetch/internal/downloader"
	"go-media-fetch/internal/errs"
	"go-media-fetch/internal/fetcher"
	"go-media-fetch/internal/helpers"
	"go-media-fetch/internal/models"
)

var (
	shortPattern = regexp.MustCompile(`(?i)^https?://(vm|vt)\.tiktok\.com/\S+`)
	postPattern  = regexp.MustCompile(`(?i)^https?://(www\.)?tiktok\.com/\S+`)
)

// Fetcher downloads posts through the resolver API.
type Fetcher struct {
	Client     *api.Client
	Downloader *downloader.Downloader
	TempDir    string
	Ceiling    int64
}

// New creates a resolver-backed fetcher writing into tempDir.
func New(c *api.Client, d *downloader.Downloader, tempDir string, ceiling int64) *Fetcher {
	return &Fetcher{Client: c, Downloader: d, TempDir: tempDir, Ceiling: ceiling}
}

// Supports reports whether the URL belongs to a resolver-handled
// platform, short link or full post URL.
func (f *Fetcher) Supports(url string) bool {
	return shortPattern.MatchString(url) || postPattern.MatchString(url)
}

// IsPlaylist always reports false: a post resolves to a fixed file set,
// never a track collection.
func (f *Fetcher) IsPlaylist(url string) bool {
	return false
}

// Download resolves the post and fetches every file it references.
// Photo posts yield several items; video posts yield one.
func (f *Fetcher) Download(ctx context.Context, url string, hint fetcher.FormatHint) ([]models.MediaContent, error) {
	postURL := url
	if shortPattern.MatchString(url) {
		resolved, err := f.Client.ResolveURL(ctx, url)
		if err != nil {
			return nil, f.mapResolveError(url, err)
		}
		postURL = resolved
	}

	resp, err := f.Client.Resolve(ctx, postURL)
	if err != nil {
		return nil, f.mapResolveError(url, err)
	}
	if len(resp.Files) == 0 {
		return nil, errs.New(errs.CodeDownloadFailed, url, "resolver returned no files for this post")
	}
	log.Debugf("Resolver returned %d file(s) for %s", len(resp.Files), postURL)

	var content []models.MediaContent
	for _, file := range resp.Files {
		path, err := f.Downloader.FetchFile(ctx, file.URL, f.TempDir, f.Ceiling)
		if err != nil {
			// Siblings fetched before the failure never reach the
			// delivery pipeline, so they are deleted here.
			cleanupPartial(content)
			switch {
			case errors.Is(err, downloader.ErrTooLarge):
				return nil, errs.New(errs.CodeLargeFile, url, err.Error())
			case errors.Is(err, context.Canceled):
				return nil, err
			default:
				return nil, fmt.Errorf("downloading resolved file %s: %w", file.URL, err)
			}
		}
		content = append(content, models.MediaContent{
			Kind:      kindFor(path),
			LocalPath: path,
			Title:     file.Title,
			Performer: file.Performer,
			Duration:  file.Duration,
			Width:     file.Width,
			Height:    file.Height,
		})
	}

	return content, nil
}

func (f *Fetcher) mapResolveError(url string, err error) error {
	switch {
	case errors.Is(err, api.ErrNotFound):
		return errs.New(errs.CodeInvalidURL, url, "post not found")
	case errors.Is(err, context.Canceled):
		return err
	default:
		return fmt.Errorf("resolving %s: %w", url, err)
	}
}

func kindFor(path string) models.MediaKind {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg", ".png", ".webp":
		return models.KindPhoto
	case ".gif":
		return models.KindGif
	case ".mp3", ".m4a", ".ogg":
		return models.KindAudio
	default:
		return models.KindVideo
	}
}

func cleanupPartial(content []models.MediaContent) {
	var files []string
	for _, c := range content {
		files = append(files, c.Files()...)
	}
	helpers.DeleteFiles(files)
}
