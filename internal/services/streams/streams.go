// Package streams fetches media from platforms that expose an
// encoded-stream manifest: the candidate streams are listed first, the
// best admissible combination under the payload ceiling is selected,
// and only then is the actual download requested. Collections expand to
// individual tracks.
package streams

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	log "github.com/sirupsen/logrus"

	"go-media-fetch/internal/api"
	"go-media-fetch/internal/downloader"
	"go-media-fetch/internal/errs"
	"go-media-fetch/internal/fetcher"
	"go-media-fetch/internal/formats"
	"go-media-fetch/internal/helpers"
	"go-media-fetch/internal/models"
)

var (
	urlPattern      = regexp.MustCompile(`(?i)^https?://((www|m|music)\.)?(youtube\.com|youtu\.be|soundcloud\.com)/\S+`)
	playlistPattern = regexp.MustCompile(`(?i)(youtube\.com/playlist\?|[?&]list=|soundcloud\.com/[^/]+/sets/)`)
)

// Fetcher downloads manifest-backed posts through the resolver API.
type Fetcher struct {
	Client     *api.Client
	Downloader *downloader.Downloader
	TempDir    string
	Ceiling    int64
}

// New creates a manifest-based fetcher writing into tempDir.
func New(c *api.Client, d *downloader.Downloader, tempDir string, ceiling int64) *Fetcher {
	return &Fetcher{Client: c, Downloader: d, TempDir: tempDir, Ceiling: ceiling}
}

// Supports reports whether the URL belongs to a manifest-exposing
// platform.
func (f *Fetcher) Supports(url string) bool {
	return urlPattern.MatchString(url)
}

// IsPlaylist reports whether the URL names a track collection.
func (f *Fetcher) IsPlaylist(url string) bool {
	return playlistPattern.MatchString(url)
}

// PlaylistTracks expands a collection URL into its track URLs.
func (f *Fetcher) PlaylistTracks(ctx context.Context, url string) ([]string, error) {
	tracks, err := f.Client.Playlist(ctx, url)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, errs.New(errs.CodePlaylistInfo, url, err.Error())
	}
	if len(tracks) == 0 {
		return nil, errs.New(errs.CodePlaylistInfo, url, "playlist is empty")
	}
	return tracks, nil
}

// Download lists the post's streams, selects under the ceiling, and
// downloads the chosen combination. A hint of HintAudio selects an
// audio-only stream; otherwise a (video, audio) pair is preferred with
// an audio-only fallback when the post has no admissible video.
func (f *Fetcher) Download(ctx context.Context, url string, hint fetcher.FormatHint) ([]models.MediaContent, error) {
	manifest, err := f.Client.Formats(ctx, url)
	if err != nil {
		return nil, f.mapResolveError(url, err)
	}
	candidates := toStreams(manifest.Streams)
	log.Debugf("Manifest for %s lists %d candidate streams", url, len(candidates))

	var formatSpec string
	kind := models.KindVideo

	if hint == fetcher.HintAudio {
		audio, ok := formats.SelectAudio(candidates, f.Ceiling)
		if !ok {
			return nil, errs.New(errs.CodeSizeCheckFailed, url, "no admissible audio stream under the payload ceiling")
		}
		formatSpec = audio.FormatID
		kind = models.KindAudio
	} else {
		pair, ok := formats.SelectPair(candidates, f.Ceiling)
		switch {
		case ok:
			formatSpec = pair.FormatSpec()
			log.Debugf("Selected pair %s (%s combined)", formatSpec, helpers.BytesToSize(uint64(pair.CombinedSize())))
		case formats.HasVideoCandidate(candidates):
			// The post has video but no combination fits the ceiling.
			// Downgrading to audio would silently deliver something the
			// user did not ask for; this is the terminal too-large case.
			return nil, errs.New(errs.CodeSizeCheckFailed, url, "no admissible video+audio pair under the payload ceiling")
		default:
			// Audio-only posts carry no video candidates at all; select
			// an audio stream instead.
			audio, aok := formats.SelectAudio(candidates, f.Ceiling)
			if !aok {
				return nil, errs.New(errs.CodeSizeCheckFailed, url, "no admissible stream under the payload ceiling")
			}
			formatSpec = audio.FormatID
			kind = models.KindAudio
		}
	}

	resp, err := f.Client.ResolveFormat(ctx, url, formatSpec)
	if err != nil {
		return nil, f.mapResolveError(url, err)
	}
	if len(resp.Files) == 0 {
		return nil, errs.New(errs.CodeDownloadFailed, url, "resolver returned no files for the selected format")
	}

	var content []models.MediaContent
	for _, file := range resp.Files {
		path, err := f.Downloader.FetchFile(ctx, file.URL, f.TempDir, f.Ceiling)
		if err != nil {
			cleanupPartial(content)
			switch {
			case errors.Is(err, downloader.ErrTooLarge):
				return nil, errs.New(errs.CodeLargeFile, url, err.Error())
			case errors.Is(err, context.Canceled):
				return nil, err
			default:
				return nil, fmt.Errorf("downloading stream file %s: %w", file.URL, err)
			}
		}

		item := models.MediaContent{
			Kind:      kind,
			LocalPath: path,
			Title:     firstNonEmpty(file.Title, manifest.Title),
			Performer: firstNonEmpty(file.Performer, manifest.Performer),
			Duration:  maxInt(file.Duration, manifest.Duration),
			Width:     file.Width,
			Height:    file.Height,
		}
		if kind == models.KindAudio && file.CoverURL != "" {
			if cover, cerr := f.Downloader.FetchFile(ctx, file.CoverURL, f.TempDir, 0); cerr == nil {
				item.CoverPath = cover
			} else {
				log.WithError(cerr).Debugf("Skipping unavailable cover for %s", url)
			}
		}
		content = append(content, item)
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

func toStreams(infos []api.StreamInfo) []formats.Stream {
	streams := make([]formats.Stream, 0, len(infos))
	for _, s := range infos {
		streams = append(streams, formats.Stream{
			FormatID:     s.FormatID,
			Ext:          strings.ToLower(s.Ext),
			VideoCodec:   s.VideoCodec,
			AudioCodec:   s.AudioCodec,
			Size:         s.Filesize,
			Height:       s.Height,
			AudioBitrate: s.AudioBitrate,
		})
	}
	return streams
}

func cleanupPartial(content []models.MediaContent) {
	var files []string
	for _, c := range content {
		files = append(files, c.Files()...)
	}
	helpers.DeleteFiles(files)
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
