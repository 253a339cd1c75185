// Package delivery turns the artifact list produced by one fetcher
// invocation into transport sends: ordered media groups, document
// re-sends, audio and animation messages. Whatever happens on the way,
// every local file the items reference is deleted exactly once.
package delivery

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"go-media-fetch/internal/errs"
	"go-media-fetch/internal/helpers"
	"go-media-fetch/internal/models"
)

// MaxGroupSize is the transport's hard cap on visual items per batch
// message.
const MaxGroupSize = 10

// DefaultCaptionLimit caps the caption attached to the first group.
const DefaultCaptionLimit = 1024

// Transport is the platform-specific sending boundary.
type Transport interface {
	// SendBatch delivers up to MaxGroupSize visual items as one
	// message. caption is empty for all but the first group.
	SendBatch(ctx context.Context, items []models.MediaContent, caption string) error
	// SendDocument delivers one item as a generic file attachment,
	// bypassing the transport's lossy re-encoding.
	SendDocument(ctx context.Context, item models.MediaContent) error
	// SendAudio delivers one audio item with performer/title/duration
	// metadata and an optional cover thumbnail.
	SendAudio(ctx context.Context, item models.MediaContent) error
	// SendAnimation delivers one gif item.
	SendAnimation(ctx context.Context, item models.MediaContent) error
}

// Options tune pacing and caption behavior. Zero values select the
// defaults.
type Options struct {
	GroupPacing    time.Duration // Delay between batch messages; backpressure against upstream rate limits
	DocumentPacing time.Duration // Delay between document re-sends
	CaptionLimit   int
}

func (o Options) withDefaults() Options {
	if o.GroupPacing <= 0 {
		o.GroupPacing = time.Second
	}
	if o.DocumentPacing <= 0 {
		o.DocumentPacing = 500 * time.Millisecond
	}
	if o.CaptionLimit <= 0 {
		o.CaptionLimit = DefaultCaptionLimit
	}
	return o
}

// Pipeline delivers one task's artifacts. Sends within a pipeline are
// strictly sequential; different users' pipelines run independently.
type Pipeline struct {
	transport Transport
	opts      Options
}

func NewPipeline(transport Transport, opts Options) *Pipeline {
	return &Pipeline{transport: transport, opts: opts.withDefaults()}
}

// Deliver sends the content list and always cleans up the backing
// files, whichever step fails. The returned error is already a
// *errs.StructuredError.
func (p *Pipeline) Deliver(ctx context.Context, content []models.MediaContent) error {
	if len(content) == 0 {
		return errs.NewCritical(errs.CodeDownloadFailed, "", "downloaded content is empty")
	}

	defer p.cleanup(content)

	if err := p.send(ctx, content); err != nil {
		serr := errs.Normalize(err, "")
		log.WithError(serr).Debug("Delivery pipeline failed")
		return serr
	}
	return nil
}

func (p *Pipeline) send(ctx context.Context, content []models.MediaContent) error {
	visuals, audios, gifs := partition(content)
	caption := helpers.TruncateString(firstTitle(content), p.opts.CaptionLimit)

	// Phase 1: visual groups of at most MaxGroupSize, order preserved,
	// caption only on the first group.
	groups := chunk(visuals, MaxGroupSize)
	for i, group := range groups {
		groupCaption := ""
		if i == 0 {
			groupCaption = caption
		}
		if err := p.transport.SendBatch(ctx, group, groupCaption); err != nil {
			return fmt.Errorf("sending media group %d/%d: %w", i+1, len(groups), err)
		}
		log.Debugf("Sent media group %d/%d (%d items)", i+1, len(groups), len(group))

		if i < len(groups)-1 {
			if err := pace(ctx, p.opts.GroupPacing); err != nil {
				return err
			}
		}
	}

	// Phase 2: every preserve-original item, visual or not, re-sent as
	// a document so the recipient also gets the unrecoded file.
	first := true
	for _, item := range content {
		if !item.PreserveOriginal {
			continue
		}
		if !first {
			if err := pace(ctx, p.opts.DocumentPacing); err != nil {
				return err
			}
		}
		first = false
		if err := p.transport.SendDocument(ctx, item); err != nil {
			return fmt.Errorf("re-sending original %s: %w", item.LocalPath, err)
		}
		log.Debugf("Re-sent original as document: %s", item.LocalPath)
	}

	// Phase 3: audio, each independently.
	for _, item := range audios {
		if err := p.transport.SendAudio(ctx, item); err != nil {
			return fmt.Errorf("sending audio %s: %w", item.LocalPath, err)
		}
	}

	// Phase 4: gifs, each independently.
	for _, item := range gifs {
		if err := p.transport.SendAnimation(ctx, item); err != nil {
			return fmt.Errorf("sending animation %s: %w", item.LocalPath, err)
		}
	}

	return nil
}

// cleanup removes every file owned by the content list. DeleteFiles
// treats missing paths as no-ops, so running after a partial failure
// (or a second time) never raises.
func (p *Pipeline) cleanup(content []models.MediaContent) {
	var paths []string
	for _, item := range content {
		paths = append(paths, item.Files()...)
	}
	deleted := helpers.DeleteFiles(paths)
	log.Debugf("Pipeline cleanup removed %d of %d referenced files", len(deleted), len(paths))
}

// pace sleeps for the configured delay unless the task is cancelled
// first.
func pace(ctx context.Context, d time.Duration) error {
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// partition splits content by kind, preserving input order within each
// class.
func partition(content []models.MediaContent) (visuals, audios, gifs []models.MediaContent) {
	for _, item := range content {
		switch {
		case item.IsVisual():
			visuals = append(visuals, item)
		case item.Kind == models.KindAudio:
			audios = append(audios, item)
		case item.Kind == models.KindGif:
			gifs = append(gifs, item)
		default:
			log.Warnf("Skipping item of unknown kind %q: %s", item.Kind, item.LocalPath)
		}
	}
	return visuals, audios, gifs
}

// firstTitle returns the first non-empty title across all items; titles
// are never merged.
func firstTitle(content []models.MediaContent) string {
	for _, item := range content {
		if item.Title != "" {
			return item.Title
		}
	}
	return ""
}

func chunk(items []models.MediaContent, size int) [][]models.MediaContent {
	var groups [][]models.MediaContent
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		groups = append(groups, items[start:end])
	}
	return groups
}
