package upload

import (
	"context"
	"errors"
	"sync"

	"fixit/pkg/schema"
)

// Update is one progress report for a tracked photo.
type Update struct {
	ID       string
	Attempt  int
	Progress int
	Status   schema.UploadStatus
	Err      error
}

// Tracker runs one transfer per photo and reports monotonic progress.
// It holds no upload map itself: the owner applies Updates to its own state.
type Tracker struct {
	transport Transport
	report    func(Update)

	mu       sync.Mutex
	inflight map[string]*transfer
	attempts map[string]int
	closed   bool
	wg       sync.WaitGroup
}

type transfer struct {
	attempt int
	cancel  context.CancelFunc
}

// ErrTrackerClosed is returned by Begin after Close.
var ErrTrackerClosed = errors.New("upload tracker closed")

// NewTracker creates a tracker. report is called from transfer goroutines.
func NewTracker(transport Transport, report func(Update)) *Tracker {
	if transport == nil {
		transport = NewSimulator()
	}
	return &Tracker{
		transport: transport,
		report:    report,
		inflight:  make(map[string]*transfer),
		attempts:  make(map[string]int),
	}
}

// Begin starts transferring photo and returns the attempt number.
// An existing transfer for the same id is cancelled first.
func (t *Tracker) Begin(photo schema.Photo) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return 0, ErrTrackerClosed
	}
	if prev, ok := t.inflight[photo.ID]; ok {
		prev.cancel()
	}
	t.attempts[photo.ID]++
	attempt := t.attempts[photo.ID]

	ctx, cancel := context.WithCancel(context.Background())
	tr := &transfer{attempt: attempt, cancel: cancel}
	t.inflight[photo.ID] = tr

	t.wg.Add(1)
	go t.run(ctx, photo, tr)
	return attempt, nil
}

// Remove cancels the transfer for id. Unknown ids are ignored.
func (t *Tracker) Remove(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if tr, ok := t.inflight[id]; ok {
		tr.cancel()
		delete(t.inflight, id)
	}
	delete(t.attempts, id)
}

// RemoveAll cancels every transfer.
func (t *Tracker) RemoveAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, tr := range t.inflight {
		tr.cancel()
		delete(t.inflight, id)
	}
	t.attempts = make(map[string]int)
}

// Active returns the number of transfers still running.
func (t *Tracker) Active() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.inflight)
}

// Close cancels all transfers and waits for their goroutines to exit.
func (t *Tracker) Close() {
	t.mu.Lock()
	t.closed = true
	for id, tr := range t.inflight {
		tr.cancel()
		delete(t.inflight, id)
	}
	t.mu.Unlock()
	t.wg.Wait()
}

func (t *Tracker) run(ctx context.Context, photo schema.Photo, tr *transfer) {
	defer t.wg.Done()
	defer t.finish(photo.ID, tr)

	last := 0
	emit := func(u Update) {
		if ctx.Err() != nil {
			return
		}
		t.report(u)
	}
	emit(Update{ID: photo.ID, Attempt: tr.attempt, Progress: 0, Status: schema.UploadUploading})

	err := t.transport.Upload(ctx, photo, func(pct int) {
		if pct > schema.ProgressComplete {
			pct = schema.ProgressComplete
		}
		if pct <= last || pct >= schema.ProgressComplete {
			// 100 is only reported once the transport returns successfully.
			return
		}
		last = pct
		emit(Update{ID: photo.ID, Attempt: tr.attempt, Progress: pct, Status: schema.UploadUploading})
	})
	switch {
	case ctx.Err() != nil:
		return
	case err != nil:
		emit(Update{ID: photo.ID, Attempt: tr.attempt, Progress: last, Status: schema.UploadError, Err: err})
	default:
		emit(Update{ID: photo.ID, Attempt: tr.attempt, Progress: schema.ProgressComplete, Status: schema.UploadComplete})
	}
}

func (t *Tracker) finish(id string, tr *transfer) {
	t.mu.Lock()
	defer t.mu.Unlock()
	tr.cancel()
	if cur, ok := t.inflight[id]; ok && cur == tr {
		delete(t.inflight, id)
	}
}
