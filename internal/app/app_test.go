package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"go-media-fetch/internal/delivery"
	"go-media-fetch/internal/errs"
	"go-media-fetch/internal/fetcher"
	"go-media-fetch/internal/models"
	"go-media-fetch/internal/tasks"
)

// fakeReporter records every notification.
type fakeReporter struct {
	mu        sync.Mutex
	userMsgs  []string
	operative []string
}

func (r *fakeReporter) UserMessage(userID int64, text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.userMsgs = append(r.userMsgs, text)
}

func (r *fakeReporter) NotifyOperator(url, diagnostic string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.operative = append(r.operative, diagnostic)
}

func (r *fakeReporter) messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.userMsgs...)
}

func (r *fakeReporter) escalations() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.operative...)
}

// nullTransport accepts every send.
type nullTransport struct {
	mu    sync.Mutex
	sends int
}

func (t *nullTransport) bump() {
	t.mu.Lock()
	t.sends++
	t.mu.Unlock()
}

func (t *nullTransport) count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sends
}

func (t *nullTransport) SendBatch(ctx context.Context, items []models.MediaContent, caption string) error {
	t.bump()
	return nil
}
func (t *nullTransport) SendDocument(ctx context.Context, item models.MediaContent) error {
	t.bump()
	return nil
}
func (t *nullTransport) SendAudio(ctx context.Context, item models.MediaContent) error {
	t.bump()
	return nil
}
func (t *nullTransport) SendAnimation(ctx context.Context, item models.MediaContent) error {
	t.bump()
	return nil
}

// fakeFetcher returns canned content or a canned error. It writes real
// temp files so the delivery cleanup has something to delete.
type fakeFetcher struct {
	dir      string
	prefix   string // URL scheme claimed; defaults to fake://
	err      error
	playlist []string
	plErr    error
	blockCtx bool // Download blocks until ctx is cancelled
}

func (f *fakeFetcher) Supports(url string) bool {
	prefix := f.prefix
	if prefix == "" {
		prefix = "fake://"
	}
	return strings.HasPrefix(url, prefix)
}

func (f *fakeFetcher) IsPlaylist(url string) bool { return strings.Contains(url, "/playlist") }

func (f *fakeFetcher) Download(ctx context.Context, url string, hint fetcher.FormatHint) ([]models.MediaContent, error) {
	if f.blockCtx {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.err != nil {
		return nil, f.err
	}
	path := filepath.Join(f.dir, strings.ReplaceAll(strings.TrimPrefix(url, "fake://"), "/", "_")+".mp4")
	if err := os.WriteFile(path, []byte("payload"), 0644); err != nil {
		return nil, err
	}
	return []models.MediaContent{{Kind: models.KindVideo, LocalPath: path, Title: "Clip"}}, nil
}

func (f *fakeFetcher) PlaylistTracks(ctx context.Context, url string) ([]string, error) {
	return f.playlist, f.plErr
}

func newTestApp(t *testing.T, f fetcher.Fetcher) (*App, *fakeReporter, *nullTransport) {
	t.Helper()
	registry := fetcher.NewRegistry()
	registry.Register("fake", f)
	reporter := &fakeReporter{}
	transport := &nullTransport{}
	a := &App{
		Registry: registry,
		Tasks:    tasks.NewManager(),
		PoolSize: 2,
		Pipeline: delivery.NewPipeline(transport, delivery.Options{GroupPacing: time.Millisecond, DocumentPacing: time.Millisecond}),
		Reporter: reporter,
	}
	return a, reporter, transport
}

func TestHandleURLDelivers(t *testing.T) {
	f := &fakeFetcher{dir: t.TempDir()}
	a, reporter, transport := newTestApp(t, f)

	if err := a.HandleURL(1, "fake://clip/1", fetcher.HintNone); err != nil {
		t.Fatalf("HandleURL failed: %v", err)
	}
	a.Tasks.Wait()

	if transport.count() == 0 {
		t.Error("nothing was delivered")
	}
	if msgs := reporter.messages(); len(msgs) != 0 {
		t.Errorf("successful delivery produced user messages: %v", msgs)
	}
}

func TestHandleURLUnsupported(t *testing.T) {
	f := &fakeFetcher{dir: t.TempDir()}
	a, reporter, _ := newTestApp(t, f)

	err := a.HandleURL(1, "https://elsewhere.example/thing", fetcher.HintNone)
	var se *errs.StructuredError
	if !errors.As(err, &se) || se.Code != errs.CodeInvalidURL {
		t.Fatalf("HandleURL = %v, want CodeInvalidURL", err)
	}
	if msgs := reporter.messages(); len(msgs) != 1 {
		t.Errorf("got %d user messages, want exactly 1", len(msgs))
	}
}

func TestHandleURLRejectsSecondSubmission(t *testing.T) {
	f := &fakeFetcher{dir: t.TempDir(), blockCtx: true}
	a, reporter, _ := newTestApp(t, f)

	if err := a.HandleURL(1, "fake://clip/1", fetcher.HintNone); err != nil {
		t.Fatalf("first HandleURL failed: %v", err)
	}
	err := a.HandleURL(1, "fake://clip/2", fetcher.HintNone)
	if !errors.Is(err, tasks.ErrActiveDownload) {
		t.Errorf("second HandleURL = %v, want ErrActiveDownload", err)
	}
	if msgs := reporter.messages(); len(msgs) != 1 {
		t.Errorf("got %d user messages, want 1 busy notice", len(msgs))
	}

	a.Cancel(1)
	a.Tasks.Wait()
}

func TestHandleURLCriticalEscalates(t *testing.T) {
	f := &fakeFetcher{dir: t.TempDir(), err: errors.New("upstream exploded")}
	a, reporter, _ := newTestApp(t, f)

	if err := a.HandleURL(1, "fake://clip/1", fetcher.HintNone); err != nil {
		t.Fatalf("HandleURL failed: %v", err)
	}
	a.Tasks.Wait()

	esc := reporter.escalations()
	if len(esc) != 1 || !strings.Contains(esc[0], "upstream exploded") {
		t.Errorf("operator escalations = %v, want one carrying the original message", esc)
	}
	if msgs := reporter.messages(); len(msgs) != 1 {
		t.Errorf("got %d user messages, want exactly 1", len(msgs))
	}
}

func TestHandleURLCancelled(t *testing.T) {
	f := &fakeFetcher{dir: t.TempDir(), blockCtx: true}
	a, reporter, _ := newTestApp(t, f)

	if err := a.HandleURL(7, "fake://clip/1", fetcher.HintNone); err != nil {
		t.Fatalf("HandleURL failed: %v", err)
	}
	if !a.Cancel(7) {
		t.Fatal("Cancel found no task")
	}
	a.Tasks.Wait()

	msgs := reporter.messages()
	if len(msgs) != 1 || msgs[0] != "Download canceled." {
		t.Errorf("user messages = %v, want the cancellation notice", msgs)
	}
	if esc := reporter.escalations(); len(esc) != 0 {
		t.Errorf("cancellation escalated to operator: %v", esc)
	}
}

func TestPlaylistSwallowsTrackFailures(t *testing.T) {
	dir := t.TempDir()
	f := &playlistFetcher{
		fakeFetcher: fakeFetcher{dir: dir, playlist: []string{"fake://track/1", "fake://track/2", "fake://track/3"}},
		failTracks:  map[string]bool{"fake://track/2": true},
	}
	a, reporter, transport := newTestApp(t, f)

	if err := a.HandleURL(1, "fake://playlist/9", fetcher.HintNone); err != nil {
		t.Fatalf("HandleURL failed: %v", err)
	}
	a.Tasks.Wait()

	// Two of three tracks delivered, and the completion notice is the
	// only user message.
	if transport.count() != 2 {
		t.Errorf("delivered %d tracks, want 2", transport.count())
	}
	msgs := reporter.messages()
	if len(msgs) != 1 || msgs[0] != playlistDoneMessage {
		t.Errorf("user messages = %v, want only the completion notice", msgs)
	}
}

func TestPlaylistInfoFailure(t *testing.T) {
	f := &playlistFetcher{
		fakeFetcher: fakeFetcher{dir: t.TempDir(), plErr: errors.New("playlist page unreadable")},
	}
	a, reporter, _ := newTestApp(t, f)

	if err := a.HandleURL(1, "fake://playlist/9", fetcher.HintNone); err != nil {
		t.Fatalf("HandleURL failed: %v", err)
	}
	a.Tasks.Wait()

	msgs := reporter.messages()
	if len(msgs) != 1 {
		t.Fatalf("got %d user messages, want 1", len(msgs))
	}
	want := (&errs.StructuredError{Code: errs.CodePlaylistInfo}).UserMessage()
	if msgs[0] != want {
		t.Errorf("user message = %q, want %q", msgs[0], want)
	}
}

func TestWorkerPoolsArePerFetcher(t *testing.T) {
	slow := &fakeFetcher{dir: t.TempDir(), prefix: "slow://", blockCtx: true}
	fast := &fakeFetcher{dir: t.TempDir(), prefix: "fast://"}

	registry := fetcher.NewRegistry()
	registry.Register("slow", slow)
	registry.Register("fast", fast)

	reporter := &fakeReporter{}
	transport := &nullTransport{}
	a := &App{
		Registry: registry,
		Tasks:    tasks.NewManager(),
		PoolSize: 1,
		Pipeline: delivery.NewPipeline(transport, delivery.Options{GroupPacing: time.Millisecond, DocumentPacing: time.Millisecond}),
		Reporter: reporter,
	}

	// User 1 occupies the slow fetcher's only slot indefinitely.
	if err := a.HandleURL(1, "slow://clip/1", fetcher.HintNone); err != nil {
		t.Fatalf("slow HandleURL failed: %v", err)
	}

	// User 2's fetch routes to a different fetcher and must proceed
	// even though the slow fetcher's pool is exhausted.
	if err := a.HandleURL(2, "fast://clip/1", fetcher.HintNone); err != nil {
		t.Fatalf("fast HandleURL failed: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for transport.count() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("fast fetch was starved by the slow fetcher's pool")
		}
		time.Sleep(5 * time.Millisecond)
	}

	a.Cancel(1)
	a.Tasks.Wait()
}

// playlistFetcher extends fakeFetcher with selective per-track failure.
type playlistFetcher struct {
	fakeFetcher
	failTracks map[string]bool
}

func (f *playlistFetcher) Download(ctx context.Context, url string, hint fetcher.FormatHint) ([]models.MediaContent, error) {
	if f.failTracks[url] {
		return nil, errors.New("track fetch failed")
	}
	return f.fakeFetcher.Download(ctx, url, hint)
}
