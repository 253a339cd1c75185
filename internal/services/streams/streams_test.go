package streams

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"go-media-fetch/internal/api"
	"go-media-fetch/internal/downloader"
	"go-media-fetch/internal/errs"
	"go-media-fetch/internal/fetcher"
	"go-media-fetch/internal/formats"
	"go-media-fetch/internal/models"
)

func TestSupports(t *testing.T) {
	f := New(nil, nil, t.TempDir(), 0)
	tests := []struct {
		url  string
		want bool
	}{
		{"https://www.youtube.com/watch?v=abc", true},
		{"https://youtu.be/abc123", true},
		{"https://music.youtube.com/watch?v=abc", true},
		{"https://soundcloud.com/artist/track", true},
		{"https://example.com/watch?v=abc", false},
		{"https://cdn.example.com/clip.mp4", false},
	}
	for _, tc := range tests {
		if got := f.Supports(tc.url); got != tc.want {
			t.Errorf("Supports(%q) = %v, want %v", tc.url, got, tc.want)
		}
	}
}

func TestIsPlaylist(t *testing.T) {
	f := New(nil, nil, t.TempDir(), 0)
	tests := []struct {
		url  string
		want bool
	}{
		{"https://www.youtube.com/playlist?list=PLx", true},
		{"https://www.youtube.com/watch?v=abc&list=PLx", true},
		{"https://soundcloud.com/artist/sets/mixtape", true},
		{"https://www.youtube.com/watch?v=abc", false},
		{"https://soundcloud.com/artist/track", false},
	}
	for _, tc := range tests {
		if got := f.IsPlaylist(tc.url); got != tc.want {
			t.Errorf("IsPlaylist(%q) = %v, want %v", tc.url, got, tc.want)
		}
	}
}

type manifestServer struct {
	*httptest.Server
	streams        []api.StreamInfo
	tracks         []string
	lastFormatSpec string
}

func newManifestServer(t *testing.T, streams []api.StreamInfo) *manifestServer {
	t.Helper()
	ms := &manifestServer{streams: streams}
	ms.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/formats":
			json.NewEncoder(w).Encode(api.FormatsResponse{
				Title:     "Track Title",
				Performer: "Artist",
				Duration:  180,
				Streams:   ms.streams,
			})
		case "/download":
			var req api.ResolveRequest
			json.NewDecoder(r.Body).Decode(&req)
			ms.lastFormatSpec = req.Format
			ext := "mp4"
			if len(req.Format) > 0 && req.Format[0] == 'a' {
				ext = "m4a"
			}
			json.NewEncoder(w).Encode(api.ResolveResponse{
				Files: []api.ResolvedFile{{URL: ms.URL + "/media/out." + ext}},
			})
		case "/playlist":
			json.NewEncoder(w).Encode(api.PlaylistResponse{Tracks: ms.tracks})
		default:
			fmt.Fprint(w, "media-bytes")
		}
	}))
	t.Cleanup(ms.Close)
	return ms
}

func newFetcher(ms *manifestServer, dir string, ceiling int64) *Fetcher {
	client := api.NewClient(ms.URL, ms.Client())
	return New(client, downloader.NewDownloader(ms.Client()), dir, ceiling)
}

func TestDownloadSelectsPair(t *testing.T) {
	ms := newManifestServer(t, []api.StreamInfo{
		{FormatID: "v720", Ext: "mp4", VideoCodec: "avc1.64001F", AudioCodec: "none", Filesize: 30 << 20, Height: 720},
		{FormatID: "v1080", Ext: "mp4", VideoCodec: "avc1.640028", AudioCodec: "none", Filesize: 80 << 20, Height: 1080},
		{FormatID: "a128", Ext: "m4a", VideoCodec: "none", AudioCodec: "mp4a.40.2", Filesize: 5 << 20, AudioBitrate: 128},
	})
	f := newFetcher(ms, t.TempDir(), formats.DefaultCeiling)

	content, err := f.Download(context.Background(), "https://www.youtube.com/watch?v=abc", fetcher.HintNone)
	if err != nil {
		t.Fatalf("Download failed: %v", err)
	}
	// 1080p+audio busts the 50 MiB ceiling; 720p+audio fits.
	if ms.lastFormatSpec != "v720+a128" {
		t.Errorf("requested format = %q, want v720+a128", ms.lastFormatSpec)
	}
	if len(content) != 1 || content[0].Kind != models.KindVideo {
		t.Fatalf("content = %+v, want one video item", content)
	}
	if content[0].Title != "Track Title" || content[0].Performer != "Artist" {
		t.Errorf("manifest metadata not carried: %+v", content[0])
	}
}

func TestDownloadAudioHint(t *testing.T) {
	ms := newManifestServer(t, []api.StreamInfo{
		{FormatID: "v720", Ext: "mp4", VideoCodec: "avc1.64001F", AudioCodec: "none", Filesize: 30 << 20, Height: 720},
		{FormatID: "a128", Ext: "m4a", VideoCodec: "none", AudioCodec: "mp4a.40.2", Filesize: 5 << 20, AudioBitrate: 128},
	})
	f := newFetcher(ms, t.TempDir(), formats.DefaultCeiling)

	content, err := f.Download(context.Background(), "https://soundcloud.com/artist/track", fetcher.HintAudio)
	if err != nil {
		t.Fatalf("Download failed: %v", err)
	}
	if ms.lastFormatSpec != "a128" {
		t.Errorf("requested format = %q, want a128", ms.lastFormatSpec)
	}
	if content[0].Kind != models.KindAudio {
		t.Errorf("kind = %q, want audio", content[0].Kind)
	}
	if content[0].Duration != 180 {
		t.Errorf("duration = %d, want 180", content[0].Duration)
	}
}

func TestDownloadAudioFallback(t *testing.T) {
	// No video streams at all: an audio-only post.
	ms := newManifestServer(t, []api.StreamInfo{
		{FormatID: "a128", Ext: "m4a", VideoCodec: "none", AudioCodec: "mp4a.40.2", Filesize: 5 << 20, AudioBitrate: 128},
	})
	f := newFetcher(ms, t.TempDir(), formats.DefaultCeiling)

	content, err := f.Download(context.Background(), "https://soundcloud.com/artist/track", fetcher.HintNone)
	if err != nil {
		t.Fatalf("Download failed: %v", err)
	}
	if content[0].Kind != models.KindAudio {
		t.Errorf("kind = %q, want audio fallback", content[0].Kind)
	}
}

func TestDownloadOversizedVideoNotDowngraded(t *testing.T) {
	// Video exists but busts the ceiling even with the small audio; the
	// fetcher must report too-large, not quietly deliver audio instead.
	ms := newManifestServer(t, []api.StreamInfo{
		{FormatID: "v1080", Ext: "mp4", VideoCodec: "avc1.640028", AudioCodec: "none", Filesize: 90 << 20, Height: 1080},
		{FormatID: "a128", Ext: "m4a", VideoCodec: "none", AudioCodec: "mp4a.40.2", Filesize: 4 << 20, AudioBitrate: 128},
	})
	f := newFetcher(ms, t.TempDir(), formats.DefaultCeiling)

	_, err := f.Download(context.Background(), "https://www.youtube.com/watch?v=abc", fetcher.HintNone)
	var se *errs.StructuredError
	if !errors.As(err, &se) || se.Code != errs.CodeSizeCheckFailed {
		t.Fatalf("Download = %v, want StructuredError with CodeSizeCheckFailed", err)
	}
	if ms.lastFormatSpec != "" {
		t.Errorf("resolver was asked for format %q despite the failed size check", ms.lastFormatSpec)
	}
}

func TestDownloadNothingAdmissible(t *testing.T) {
	ms := newManifestServer(t, []api.StreamInfo{
		{FormatID: "v1080", Ext: "mp4", VideoCodec: "avc1.640028", AudioCodec: "none", Filesize: 80 << 20, Height: 1080},
		{FormatID: "a320", Ext: "m4a", VideoCodec: "none", AudioCodec: "mp4a.40.2", Filesize: 60 << 20, AudioBitrate: 320},
	})
	f := newFetcher(ms, t.TempDir(), formats.DefaultCeiling)

	_, err := f.Download(context.Background(), "https://www.youtube.com/watch?v=abc", fetcher.HintNone)
	var se *errs.StructuredError
	if !errors.As(err, &se) || se.Code != errs.CodeSizeCheckFailed {
		t.Errorf("Download = %v, want StructuredError with CodeSizeCheckFailed", err)
	}
}

func TestPlaylistTracks(t *testing.T) {
	ms := newManifestServer(t, nil)
	ms.tracks = []string{
		"https://soundcloud.com/artist/one",
		"https://soundcloud.com/artist/two",
	}
	f := newFetcher(ms, t.TempDir(), formats.DefaultCeiling)

	tracks, err := f.PlaylistTracks(context.Background(), "https://soundcloud.com/artist/sets/mix")
	if err != nil {
		t.Fatalf("PlaylistTracks failed: %v", err)
	}
	if len(tracks) != 2 {
		t.Errorf("got %d tracks, want 2", len(tracks))
	}
}

func TestPlaylistTracksEmpty(t *testing.T) {
	ms := newManifestServer(t, nil)
	f := newFetcher(ms, t.TempDir(), formats.DefaultCeiling)

	_, err := f.PlaylistTracks(context.Background(), "https://soundcloud.com/artist/sets/mix")
	var se *errs.StructuredError
	if !errors.As(err, &se) || se.Code != errs.CodePlaylistInfo {
		t.Errorf("PlaylistTracks = %v, want StructuredError with CodePlaylistInfo", err)
	}
}
