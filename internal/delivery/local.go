package delivery

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"

	"go-media-fetch/internal/helpers"
	"go-media-fetch/internal/models"
)

// LocalTransport implements Transport by copying artifacts into an
// output directory. It backs the CLI fetch command and tests; the chat
// transport is an out-of-process collaborator implementing the same
// interface.
type LocalTransport struct {
	OutDir string
	// Progress receives one line per send; typically a uilive writer's
	// newline stream. May be nil.
	Progress io.Writer
}

func (t *LocalTransport) SendBatch(ctx context.Context, items []models.MediaContent, caption string) error {
	for _, item := range items {
		if err := t.store(ctx, item); err != nil {
			return err
		}
	}
	if caption != "" {
		t.progressf("Delivered group of %d items (caption: %s)", len(items), caption)
	} else {
		t.progressf("Delivered group of %d items", len(items))
	}
	return nil
}

func (t *LocalTransport) SendDocument(ctx context.Context, item models.MediaContent) error {
	if err := t.store(ctx, item); err != nil {
		return err
	}
	t.progressf("Delivered original file %s", filepath.Base(item.LocalPath))
	return nil
}

func (t *LocalTransport) SendAudio(ctx context.Context, item models.MediaContent) error {
	if err := t.store(ctx, item); err != nil {
		return err
	}
	if item.CoverPath != "" {
		if err := t.copyFile(item.CoverPath); err != nil {
			return err
		}
	}
	t.progressf("Delivered audio %s - %s (%ds)", item.Performer, item.Title, item.Duration)
	return nil
}

func (t *LocalTransport) SendAnimation(ctx context.Context, item models.MediaContent) error {
	if err := t.store(ctx, item); err != nil {
		return err
	}
	t.progressf("Delivered animation %s", filepath.Base(item.LocalPath))
	return nil
}

func (t *LocalTransport) store(ctx context.Context, item models.MediaContent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return t.copyFile(item.LocalPath)
}

func (t *LocalTransport) copyFile(path string) error {
	if !helpers.CheckAndMakeDir(t.OutDir) {
		return fmt.Errorf("creating output directory %s", t.OutDir)
	}

	src, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening artifact %s: %w", path, err)
	}
	defer src.Close()

	dstPath := filepath.Join(t.OutDir, filepath.Base(path))
	dst, err := os.Create(dstPath)
	if err != nil {
		return fmt.Errorf("creating output file %s: %w", dstPath, err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("copying %s to %s: %w", path, dstPath, err)
	}
	log.Debugf("Stored artifact at %s", dstPath)
	return nil
}

func (t *LocalTransport) progressf(format string, args ...interface{}) {
	if t.Progress != nil {
		fmt.Fprintf(t.Progress, format+"\n", args...)
	}
}
