// Package downloader pulls remote media files to local temporary
// storage with a rename-on-success discipline, so a failed or cancelled
// transfer never leaves a half-written artifact at the final path.
package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"go-media-fetch/internal/helpers"
)

// Custom Downloader Errors
var (
	ErrHttpStatus  = errors.New("unexpected HTTP status code")
	ErrFileSystem  = errors.New("filesystem error") // Covers create, remove, rename
	ErrHttpRequest = errors.New("HTTP request creation/execution error")
	ErrTooLarge    = errors.New("remote file exceeds size limit")
)

// Downloader fetches files over HTTP into a target directory.
type Downloader struct {
	client *http.Client
}

// NewDownloader creates a new Downloader instance.
func NewDownloader(client *http.Client) *Downloader {
	if client == nil {
		// Provide a default client if none is passed
		client = &http.Client{
			Timeout: 15 * time.Minute,
		}
	}
	return &Downloader{client: client}
}

// FetchFile downloads url into targetDir and returns the final local
// path. The filename comes from the Content-Disposition header when the
// server provides one, otherwise from the URL's base name. maxBytes > 0
// rejects responses whose declared or streamed size exceeds it.
// Cancellation of ctx aborts the transfer at the next read and removes
// the partial temp file.
func (d *Downloader) FetchFile(ctx context.Context, url, targetDir string, maxBytes int64) (string, error) {
	if !helpers.CheckAndMakeDir(targetDir) {
		return "", fmt.Errorf("%w: failed to create target directory %s", ErrFileSystem, targetDir)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("%w: creating download request for %s: %v", ErrHttpRequest, url, err)
	}

	log.Infof("Attempting to download from URL: %s", url)
	resp, err := d.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		log.WithError(err).Errorf("Error performing download request from %s", url)
		return "", fmt.Errorf("%w: performing request for %s: %v", ErrHttpRequest, url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Errorf("Error downloading file: Received status code %d from %s", resp.StatusCode, url)
		return "", fmt.Errorf("%w: received status %d from %s", ErrHttpStatus, resp.StatusCode, url)
	}

	declared, _ := strconv.ParseInt(resp.Header.Get("Content-Length"), 10, 64)
	if maxBytes > 0 && declared > maxBytes {
		return "", fmt.Errorf("%w: %s declares %s", ErrTooLarge, url, helpers.BytesToSize(uint64(declared)))
	}

	finalPath := filepath.Join(targetDir, d.fileName(resp, url))

	// Download to a temp file first; only a fully-written file gets the
	// final name.
	tempPath := filepath.Join(targetDir, uuid.NewString()+".tmp")
	tempFile, err := os.Create(tempPath)
	if err != nil {
		return "", fmt.Errorf("%w: creating temporary file %s: %v", ErrFileSystem, tempPath, err)
	}
	keepTemp := false
	defer func() {
		if !keepTemp {
			log.Debugf("Cleaning up temporary file: %s", tempPath)
			if removeErr := os.Remove(tempPath); removeErr != nil && !os.IsNotExist(removeErr) {
				log.WithError(removeErr).Warnf("Failed to remove temporary file %s", tempPath)
			}
		}
	}()

	body := io.Reader(resp.Body)
	if maxBytes > 0 {
		// One extra byte so an over-limit stream is detectable.
		body = io.LimitReader(resp.Body, maxBytes+1)
	}

	log.Infof("Downloading to %s (Target: %s, Size: %s)...", tempPath, finalPath, helpers.BytesToSize(uint64(declared)))
	written, err := io.Copy(tempFile, body)
	if err != nil {
		tempFile.Close()
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		log.WithError(err).Errorf("Error writing temporary file %s", tempPath)
		return "", fmt.Errorf("%w: writing temporary file %s: %v", ErrFileSystem, tempPath, err)
	}
	if maxBytes > 0 && written > maxBytes {
		tempFile.Close()
		return "", fmt.Errorf("%w: %s streamed past %s", ErrTooLarge, url, helpers.BytesToSize(uint64(maxBytes)))
	}

	if err := tempFile.Close(); err != nil {
		return "", fmt.Errorf("%w: closing temp file %s: %v", ErrFileSystem, tempPath, err)
	}

	log.Debugf("Renaming temp file %s to %s", tempPath, finalPath)
	if err := os.Rename(tempPath, finalPath); err != nil {
		log.WithError(err).Errorf("Error renaming temporary file %s to %s", tempPath, finalPath)
		return "", fmt.Errorf("%w: renaming temporary file %s to %s: %v", ErrFileSystem, tempPath, finalPath, err)
	}
	keepTemp = true

	log.Infof("Successfully downloaded %s (%s)", finalPath, helpers.BytesToSize(uint64(written)))
	return finalPath, nil
}

// fileName picks the local base name: Content-Disposition when present,
// URL base name otherwise, slugged and uniquified against collisions
// between concurrent tasks.
func (d *Downloader) fileName(resp *http.Response, url string) string {
	name := ""
	if cd := resp.Header.Get("Content-Disposition"); cd != "" {
		if _, params, err := mime.ParseMediaType(cd); err == nil && params["filename"] != "" {
			name = params["filename"]
			log.Infof("Received filename from Content-Disposition: %s", name)
		} else if !strings.HasPrefix(cd, "inline") {
			log.Warnf("Could not parse Content-Disposition header: %s", cd)
		}
	}
	if name == "" {
		name = filepath.Base(strings.SplitN(url, "?", 2)[0])
	}

	ext := filepath.Ext(name)
	base := helpers.ConvertToSlug(strings.TrimSuffix(name, ext))
	if base == "" {
		base = "media"
	}
	// Short unique prefix keeps concurrent tasks from clobbering each
	// other's files in the shared temp dir.
	return uuid.NewString()[:8] + "_" + base + strings.ToLower(ext)
}
