package upload

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"fixit/pkg/schema"
)

type recorder struct {
	mu      sync.Mutex
	updates []Update
}

func (r *recorder) report(u Update) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, u)
}

func (r *recorder) forID(id string) []Update {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Update
	for _, u := range r.updates {
		if u.ID == id {
			out = append(out, u)
		}
	}
	return out
}

func (r *recorder) last(id string) (Update, bool) {
	ups := r.forID(id)
	if len(ups) == 0 {
		return Update{}, false
	}
	return ups[len(ups)-1], true
}

func TestTracker_ProgressIsMonotonicAndCompletes(t *testing.T) {
	defer goleak.VerifyNone(t)

	rec := &recorder{}
	tracker := NewTracker(NewSeededSimulator(time.Millisecond, 7), rec.report)
	defer tracker.Close()

	attempt, err := tracker.Begin(schema.Photo{ID: "PH-a"})
	require.NoError(t, err)
	assert.Equal(t, 1, attempt)

	require.Eventually(t, func() bool {
		u, ok := rec.last("PH-a")
		return ok && u.Status == schema.UploadComplete
	}, 2*time.Second, 5*time.Millisecond)

	ups := rec.forID("PH-a")
	assert.Equal(t, 0, ups[0].Progress)
	assert.Equal(t, schema.UploadUploading, ups[0].Status)
	for i := 1; i < len(ups); i++ {
		assert.GreaterOrEqual(t, ups[i].Progress, ups[i-1].Progress, "progress regressed")
		assert.LessOrEqual(t, ups[i].Progress, 100)
	}
	assert.Equal(t, 100, ups[len(ups)-1].Progress)
	// Minimum step of 5 bounds the number of ticks.
	assert.LessOrEqual(t, len(ups), 2+100/5)
	assert.Equal(t, 0, tracker.Active())
}

func TestTracker_RemoveStopsTransfer(t *testing.T) {
	defer goleak.VerifyNone(t)

	rec := &recorder{}
	tracker := NewTracker(&Simulator{Interval: time.Hour}, rec.report)

	_, err := tracker.Begin(schema.Photo{ID: "PH-b"})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(rec.forID("PH-b")) == 1 }, time.Second, time.Millisecond)

	tracker.Remove("PH-b")
	tracker.Remove("PH-unknown")
	tracker.Close()

	assert.Len(t, rec.forID("PH-b"), 1, "no updates after removal")
	assert.Equal(t, 0, tracker.Active())
}

type failingTransport struct{ err error }

func (f failingTransport) Upload(_ context.Context, _ schema.Photo, progress func(int)) error {
	progress(30)
	progress(20)
	return f.err
}

func TestTracker_TransportFailureFreezesProgress(t *testing.T) {
	defer goleak.VerifyNone(t)

	rec := &recorder{}
	boom := errors.New("connection reset")
	tracker := NewTracker(failingTransport{err: boom}, rec.report)
	defer tracker.Close()

	_, err := tracker.Begin(schema.Photo{ID: "PH-c"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		u, ok := rec.last("PH-c")
		return ok && u.Status == schema.UploadError
	}, time.Second, time.Millisecond)

	u, _ := rec.last("PH-c")
	assert.Equal(t, 30, u.Progress)
	assert.ErrorIs(t, u.Err, boom)
	assert.Len(t, rec.forID("PH-c"), 3, "regressing report is dropped")

	attempt, err := tracker.Begin(schema.Photo{ID: "PH-c"})
	require.NoError(t, err)
	assert.Equal(t, 2, attempt)
}

func TestTracker_BeginAfterClose(t *testing.T) {
	tracker := NewTracker(NewSimulator(), func(Update) {})
	tracker.Close()

	_, err := tracker.Begin(schema.Photo{ID: "PH-d"})
	assert.ErrorIs(t, err, ErrTrackerClosed)
}

func TestHTTPTransport(t *testing.T) {
	var gotBody []byte
	var gotPath, gotType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotType = r.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	transport := &HTTPTransport{Endpoint: srv.URL + "/uploads/"}
	var reports []int
	err := transport.Upload(context.Background(), schema.Photo{
		ID: "PH-e", Name: "fan.png", ContentType: "image/png", Data: []byte("png-bytes"),
	}, func(p int) { reports = append(reports, p) })

	require.NoError(t, err)
	assert.Equal(t, "/uploads/PH-e", gotPath)
	assert.Equal(t, "image/png", gotType)
	assert.Equal(t, "png-bytes", string(gotBody))
	require.NotEmpty(t, reports)
	assert.Equal(t, 100, reports[len(reports)-1])
}

func TestHTTPTransport_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	transport := &HTTPTransport{Endpoint: srv.URL}
	err := transport.Upload(context.Background(), schema.Photo{ID: "PH-f", Data: []byte("x")}, func(int) {})
	assert.ErrorContains(t, err, "status 502")
}
