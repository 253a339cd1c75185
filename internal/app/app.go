// Package app is the orchestration core: it routes an incoming URL to a
// fetcher, runs the fetch as the user's single task, and hands the
// artifacts to the delivery pipeline. All error surfacing to the user
// and the operator happens here, nowhere deeper.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/blevesearch/bleve/v2"
	log "github.com/sirupsen/logrus"

	"go-media-fetch/index"
	"go-media-fetch/internal/delivery"
	"go-media-fetch/internal/errs"
	"go-media-fetch/internal/fetcher"
	"go-media-fetch/internal/history"
	"go-media-fetch/internal/models"
	"go-media-fetch/internal/tasks"
	"go-media-fetch/internal/workpool"
)

// Reporter is the outward-facing notification boundary. UserMessage
// carries the static per-code sentence; NotifyOperator carries the full
// diagnostic for critical failures.
type Reporter interface {
	UserMessage(userID int64, text string)
	NotifyOperator(url, diagnostic string)
}

// App wires the registry, the task gate, the per-fetcher worker pools
// and the delivery pipeline together. History and Index are optional;
// leave them nil to run without persistence.
type App struct {
	Registry *fetcher.Registry
	Tasks    *tasks.Manager
	Pipeline *delivery.Pipeline
	Reporter Reporter
	History  *history.Store
	Index    bleve.Index
	// PoolSize bounds concurrent upstream calls per fetcher. Each
	// fetcher gets its own pool so one platform's slow upstream cannot
	// starve fetches routed to another.
	PoolSize     int
	FetchTimeout time.Duration

	poolMu sync.Mutex
	pools  map[string]*workpool.Pool
}

// pool returns the named fetcher's worker pool, creating it on first
// use.
func (a *App) pool(name string) *workpool.Pool {
	a.poolMu.Lock()
	defer a.poolMu.Unlock()
	if a.pools == nil {
		a.pools = make(map[string]*workpool.Pool)
	}
	p, ok := a.pools[name]
	if !ok {
		p = workpool.New(a.PoolSize)
		a.pools[name] = p
	}
	return p
}

const playlistDoneMessage = "Playlist download completed."

// HandleURL processes one submitted URL for a user. Dispatch and the
// single-task check happen synchronously; the fetch and delivery run in
// the task goroutine. The returned error reports only submission
// failures — task outcomes are reported through the Reporter.
func (a *App) HandleURL(userID int64, url string, hint fetcher.FormatHint) error {
	desc, err := a.Registry.Dispatch(url)
	if err != nil {
		a.report(userID, url, desc.Name, err)
		return err
	}
	log.WithField("fetcher", desc.Name).Infof("Dispatching %s for user %d", url, userID)

	err = a.Tasks.Submit(userID, func(ctx context.Context) error {
		if desc.Fetcher.IsPlaylist(url) {
			return a.runPlaylist(ctx, userID, url, desc, hint)
		}
		return a.runSingle(ctx, userID, url, desc, hint)
	})
	if errors.Is(err, tasks.ErrActiveDownload) {
		a.Reporter.UserMessage(userID, "You already have an active download. Cancel it first or wait for it to finish.")
		return err
	}
	return err
}

// Cancel aborts the user's running task, if any.
func (a *App) Cancel(userID int64) bool {
	return a.Tasks.Cancel(userID)
}

// runSingle fetches one post and delivers it. Exactly one terminal
// user message is produced on failure; a successful delivery is its own
// terminal signal.
func (a *App) runSingle(ctx context.Context, userID int64, url string, desc fetcher.Descriptor, hint fetcher.FormatHint) error {
	content, err := a.fetch(ctx, url, desc, hint)
	if err != nil {
		a.report(userID, url, desc.Name, err)
		return err
	}

	size := totalSize(content)
	entry := historyEntry(url, desc.Name, content, size)

	if err := a.Pipeline.Deliver(ctx, content); err != nil {
		a.report(userID, url, desc.Name, err)
		return err
	}

	entry.Status = models.StatusDelivered
	a.record(entry)
	return nil
}

// runPlaylist expands the playlist and processes tracks one by one.
// Track failures are swallowed so one broken track does not abort the
// rest; cancellation is honored between tracks. The terminal message is
// the completion notice (or the failure/cancellation message).
func (a *App) runPlaylist(ctx context.Context, userID int64, url string, desc fetcher.Descriptor, hint fetcher.FormatHint) error {
	pf, ok := desc.Fetcher.(fetcher.PlaylistFetcher)
	if !ok {
		err := errs.New(errs.CodePlaylistInfo, url, fmt.Sprintf("fetcher %s cannot expand playlists", desc.Name))
		a.report(userID, url, desc.Name, err)
		return err
	}

	tracks, err := pf.PlaylistTracks(ctx, url)
	if err != nil {
		serr := errs.Normalize(err, url)
		if serr.Code == errs.CodeDownloadCancelled {
			a.report(userID, url, desc.Name, serr)
			return serr
		}
		perr := errs.New(errs.CodePlaylistInfo, url, serr.Message)
		a.report(userID, url, desc.Name, perr)
		return perr
	}
	log.Infof("Playlist %s expanded to %d tracks", url, len(tracks))

	for i, track := range tracks {
		if ctx.Err() != nil {
			serr := errs.Normalize(ctx.Err(), url)
			a.report(userID, url, desc.Name, serr)
			return serr
		}

		content, err := a.fetch(ctx, track, desc, hint)
		if err != nil {
			serr := errs.Normalize(err, track)
			if serr.Code == errs.CodeDownloadCancelled {
				a.report(userID, url, desc.Name, serr)
				return serr
			}
			// A single broken track must not sink the playlist.
			log.WithError(serr).Warnf("Skipping playlist track %d/%d", i+1, len(tracks))
			continue
		}

		size := totalSize(content)
		entry := historyEntry(track, desc.Name, content, size)

		if err := a.Pipeline.Deliver(ctx, content); err != nil {
			serr := errs.Normalize(err, track)
			if serr.Code == errs.CodeDownloadCancelled {
				a.report(userID, url, desc.Name, serr)
				return serr
			}
			log.WithError(serr).Warnf("Delivery failed for playlist track %d/%d", i+1, len(tracks))
			continue
		}

		entry.Status = models.StatusDelivered
		a.record(entry)
	}

	a.Reporter.UserMessage(userID, playlistDoneMessage)
	return nil
}

// fetch runs the fetcher under its own worker pool with the configured
// timeout. Empty content is a failure: the fetcher claimed the URL but
// produced nothing deliverable.
func (a *App) fetch(ctx context.Context, url string, desc fetcher.Descriptor, hint fetcher.FormatHint) ([]models.MediaContent, error) {
	fetchCtx := ctx
	if a.FetchTimeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, a.FetchTimeout)
		defer cancel()
	}

	var content []models.MediaContent
	err := a.pool(desc.Name).Do(fetchCtx, func(ctx context.Context) error {
		var ferr error
		content, ferr = desc.Fetcher.Download(ctx, url, hint)
		return ferr
	})
	if err != nil {
		return nil, err
	}
	if len(content) == 0 {
		return nil, errs.NewCritical(errs.CodeDownloadFailed, url, "fetcher returned no content")
	}
	return content, nil
}

// report surfaces a task failure exactly once: user message always,
// operator escalation for critical errors, process log for logged ones.
// The history record is written alongside.
func (a *App) report(userID int64, url, platform string, err error) {
	serr := errs.Normalize(err, url)

	if serr.Logged {
		log.WithField("url", url).Errorf("Task failed: %s", serr.Error())
	}
	if serr.Critical {
		a.Reporter.NotifyOperator(url, serr.Error())
	}
	a.Reporter.UserMessage(userID, serr.UserMessage())

	status := models.StatusError
	if serr.Code == errs.CodeDownloadCancelled {
		status = models.StatusCancelled
	}
	a.record(models.HistoryEntry{
		URL:          url,
		Platform:     platform,
		Status:       status,
		ErrorDetails: serr.Error(),
	})
}

// record persists the entry and mirrors it into the search index.
// Persistence failures are logged, never surfaced: history is advisory.
func (a *App) record(entry models.HistoryEntry) {
	if a.History == nil || entry.URL == "" {
		return
	}
	if err := a.History.Record(entry); err != nil {
		log.WithError(err).Warnf("Failed to record history for %s", entry.URL)
		return
	}
	if a.Index != nil {
		stored, err := a.History.Get(entry.URL)
		if err != nil {
			stored = entry
		}
		item := index.FromHistory(string(history.Key(entry.URL)), stored)
		if err := index.IndexItem(a.Index, item); err != nil {
			log.WithError(err).Warnf("Failed to index history entry for %s", entry.URL)
		}
	}
}

func historyEntry(url, platform string, content []models.MediaContent, size int64) models.HistoryEntry {
	entry := models.HistoryEntry{
		URL:       url,
		Platform:  platform,
		SizeBytes: size,
	}
	if len(content) > 0 {
		entry.Kind = string(content[0].Kind)
		entry.Title = content[0].Title
		entry.Performer = content[0].Performer
	}
	return entry
}

// totalSize sums the artifact sizes before delivery deletes them.
func totalSize(content []models.MediaContent) int64 {
	var total int64
	for _, item := range content {
		for _, path := range item.Files() {
			if info, err := os.Stat(path); err == nil {
				total += info.Size()
			}
		}
	}
	return total
}
