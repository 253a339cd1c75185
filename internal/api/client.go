// Package api talks to the media resolver service: short platform links
// are expanded to canonical post URLs, and the resolver returns the
// direct file URLs making up a post.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
)

// Custom Error Types
var (
	ErrRateLimited = errors.New("resolver rate limit exceeded")
	ErrNotFound    = errors.New("resolver could not find the post")
	ErrServerError = errors.New("resolver server error")
	ErrBadResponse = errors.New("resolver returned an unusable response")
)

type (
	// ResolveRequest is the payload sent to the resolver's /download
	// endpoint. Format optionally names the encoded-stream combination
	// to produce (e.g. "137+140").
	ResolveRequest struct {
		URL    string `json:"url"`
		Format string `json:"format,omitempty"`
	}

	// ResolvedFile is one direct file reference returned by the
	// resolver.
	ResolvedFile struct {
		URL       string `json:"url"`
		Title     string `json:"title,omitempty"`
		Performer string `json:"performer,omitempty"`
		Duration  int    `json:"duration,omitempty"`
		Width     int    `json:"width,omitempty"`
		Height    int    `json:"height,omitempty"`
		CoverURL  string `json:"coverUrl,omitempty"`
	}

	// ResolveResponse is the resolver's /download response.
	ResolveResponse struct {
		Files []ResolvedFile `json:"files"`
		Error string         `json:"error,omitempty"`
	}

	// StreamInfo is one encoded-stream candidate from the resolver's
	// /formats endpoint.
	StreamInfo struct {
		FormatID     string `json:"formatId"`
		Ext          string `json:"ext"`
		VideoCodec   string `json:"vcodec,omitempty"`
		AudioCodec   string `json:"acodec,omitempty"`
		Filesize     int64  `json:"filesize,omitempty"`
		Height       int    `json:"height,omitempty"`
		AudioBitrate int    `json:"abr,omitempty"`
	}

	// FormatsResponse is the resolver's /formats response.
	FormatsResponse struct {
		Title     string       `json:"title,omitempty"`
		Performer string       `json:"performer,omitempty"`
		Duration  int          `json:"duration,omitempty"`
		Streams   []StreamInfo `json:"formats"`
		Error     string       `json:"error,omitempty"`
	}

	// PlaylistResponse is the resolver's /playlist response: the track
	// URLs making up a collection, in playlist order.
	PlaylistResponse struct {
		Tracks []string `json:"tracks"`
		Error  string   `json:"error,omitempty"`
	}
)

// Client is a resolver API client sharing one http.Client (and its
// transport, which may be the logging transport).
type Client struct {
	BaseURL    string
	HttpClient *http.Client
}

// NewClient creates a resolver client against baseURL.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{BaseURL: baseURL, HttpClient: httpClient}
}

// ResolveURL follows the short link's redirects and returns the final
// canonical URL with tracking parameters stripped.
func (c *Client) ResolveURL(ctx context.Context, shortURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, shortURL, nil)
	if err != nil {
		return "", fmt.Errorf("error creating request: %w", err)
	}

	resp, err := c.HttpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("resolving short link %s: %w", shortURL, err)
	}
	defer resp.Body.Close()
	// Body content is irrelevant; only the final URL matters.
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))

	if resp.StatusCode != http.StatusOK {
		return "", c.statusError(resp.StatusCode)
	}

	final := *resp.Request.URL
	final.RawQuery = ""
	log.Debugf("Short link %s resolved to %s", shortURL, final.String())
	return final.String(), nil
}

// Resolve asks the resolver for the direct file URLs behind a post URL.
func (c *Client) Resolve(ctx context.Context, postURL string) (ResolveResponse, error) {
	return c.ResolveFormat(ctx, postURL, "")
}

// ResolveFormat is Resolve with an explicit encoded-stream combination
// (a "<video_id>+<audio_id>" expression or a single stream id).
func (c *Client) ResolveFormat(ctx context.Context, postURL, format string) (ResolveResponse, error) {
	var response ResolveResponse
	err := c.post(ctx, "/download", ResolveRequest{URL: postURL, Format: format}, &response)
	if err != nil {
		return ResolveResponse{}, err
	}
	if response.Error != "" {
		return ResolveResponse{}, fmt.Errorf("%w: %s", ErrBadResponse, response.Error)
	}
	return response, nil
}

// Formats lists the encoded-stream candidates the platform offers for a
// post, for size-constrained selection before downloading.
func (c *Client) Formats(ctx context.Context, postURL string) (FormatsResponse, error) {
	var response FormatsResponse
	err := c.post(ctx, "/formats", ResolveRequest{URL: postURL}, &response)
	if err != nil {
		return FormatsResponse{}, err
	}
	if response.Error != "" {
		return FormatsResponse{}, fmt.Errorf("%w: %s", ErrBadResponse, response.Error)
	}
	return response, nil
}

// Playlist expands a collection URL into its track URLs.
func (c *Client) Playlist(ctx context.Context, playlistURL string) ([]string, error) {
	var response PlaylistResponse
	err := c.post(ctx, "/playlist", ResolveRequest{URL: playlistURL}, &response)
	if err != nil {
		return nil, err
	}
	if response.Error != "" {
		return nil, fmt.Errorf("%w: %s", ErrBadResponse, response.Error)
	}
	return response.Tracks, nil
}

// post sends a JSON request to the resolver and decodes the JSON reply
// into out.
func (c *Client) post(ctx context.Context, endpoint string, reqBody, out interface{}) error {
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("error marshalling resolver request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HttpClient.Do(req)
	if err != nil {
		return fmt.Errorf("resolver %s request: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.statusError(resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		log.WithError(err).Error("Error reading resolver response body")
		return fmt.Errorf("error reading response body: %w", err)
	}

	if err := json.Unmarshal(body, out); err != nil {
		log.WithError(err).Error("Error unmarshalling resolver response JSON")
		log.Debugf("Response body causing unmarshal error: %s", string(body))
		return fmt.Errorf("%w: %v", ErrBadResponse, err)
	}
	return nil
}

func (c *Client) statusError(code int) error {
	switch {
	case code == http.StatusTooManyRequests:
		return ErrRateLimited
	case code == http.StatusNotFound:
		return ErrNotFound
	case code >= 500:
		return fmt.Errorf("%w (status code %d)", ErrServerError, code)
	default:
		return fmt.Errorf("resolver request failed with status %d", code)
	}
}
