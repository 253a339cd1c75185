// Package tasks guarantees at most one in-flight download per user and
// provides cooperative, user-triggered cancellation.
package tasks

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// ErrActiveDownload is returned by Submit when the user already has a
// download in flight. Submissions are rejected, never queued.
var ErrActiveDownload = errors.New("user already has an active download")

type task struct {
	id     string
	cancel context.CancelFunc
	done   chan struct{}
}

// Manager is the per-user exclusivity and cancellation gate. All state
// lives behind a single mutex so the check-and-set in Submit and the
// slot removal in the completion path cannot race.
type Manager struct {
	mu    sync.Mutex
	slots map[int64]*task
	wg    sync.WaitGroup
}

func NewManager() *Manager {
	return &Manager{slots: make(map[int64]*task)}
}

// Submit atomically claims the user's slot and runs work in its own
// goroutine under a cancellable context. The slot is released when work
// returns by any means: success, error, or cancellation. The work
// function owns its error handling; whatever it returns is only logged
// here.
func (m *Manager) Submit(userID int64, work func(ctx context.Context) error) error {
	ctx, cancel := context.WithCancel(context.Background())

	m.mu.Lock()
	if _, busy := m.slots[userID]; busy {
		m.mu.Unlock()
		cancel()
		return ErrActiveDownload
	}
	t := &task{id: uuid.NewString(), cancel: cancel, done: make(chan struct{})}
	m.slots[userID] = t
	m.mu.Unlock()

	log.WithField("user", userID).Debugf("Task %s submitted", t.id)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer func() {
			m.release(userID, t)
			cancel()
			close(t.done)
		}()

		if err := work(ctx); err != nil {
			log.WithError(err).WithField("user", userID).Debugf("Task %s finished with error", t.id)
			return
		}
		log.WithField("user", userID).Debugf("Task %s completed", t.id)
	}()

	return nil
}

// Cancel signals the user's running task and frees the slot
// immediately, so the user can submit again without waiting for the old
// work to observe the signal. Returns false when no task is present.
// Cancellation is cooperative: the running work sees it at its next
// context check.
func (m *Manager) Cancel(userID int64) bool {
	m.mu.Lock()
	t, ok := m.slots[userID]
	if ok {
		delete(m.slots, userID)
	}
	m.mu.Unlock()

	if !ok {
		return false
	}
	t.cancel()
	log.WithField("user", userID).Infof("Task %s cancelled", t.id)
	return true
}

// Active reports whether the user currently holds a slot.
func (m *Manager) Active(userID int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.slots[userID]
	return ok
}

// Wait blocks until every submitted task has finished. Used on shutdown
// and in tests.
func (m *Manager) Wait() {
	m.wg.Wait()
}

// release frees the slot only if it still belongs to this task; Cancel
// may already have removed it and a newer task may occupy it.
func (m *Manager) release(userID int64, t *task) {
	m.mu.Lock()
	if cur, ok := m.slots[userID]; ok && cur == t {
		delete(m.slots, userID)
	}
	m.mu.Unlock()
}
