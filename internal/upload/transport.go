package upload

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"strings"
	"sync"
	"time"

	"fixit/pkg/schema"
)

// Transport moves one photo to its destination, reporting percent complete.
// Implementations may report the same value more than once; the Tracker filters.
type Transport interface {
	Upload(ctx context.Context, photo schema.Photo, progress func(percent int)) error
}

// Simulator fakes a transfer with randomly sized progress steps on a fixed tick.
type Simulator struct {
	// Interval between progress ticks. Default: 400ms.
	Interval time.Duration
	// MinStep and MaxStep bound each tick's increment. Default: 5 and 24.
	MinStep int
	MaxStep int

	mu  sync.Mutex
	rng *rand.Rand
}

// NewSimulator returns a simulator with the default timing.
func NewSimulator() *Simulator {
	return &Simulator{Interval: 400 * time.Millisecond, MinStep: 5, MaxStep: 24}
}

// NewSeededSimulator returns a simulator whose steps are reproducible.
func NewSeededSimulator(interval time.Duration, seed uint64) *Simulator {
	return &Simulator{
		Interval: interval,
		MinStep:  5,
		MaxStep:  24,
		rng:      rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

func (s *Simulator) step() int {
	minStep, maxStep := s.MinStep, s.MaxStep
	if minStep <= 0 {
		minStep = 5
	}
	if maxStep < minStep {
		maxStep = minStep
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rng == nil {
		return minStep + rand.IntN(maxStep-minStep+1)
	}
	return minStep + s.rng.IntN(maxStep-minStep+1)
}

// Upload advances progress every tick until it reaches 100.
func (s *Simulator) Upload(ctx context.Context, _ schema.Photo, progress func(int)) error {
	interval := s.Interval
	if interval <= 0 {
		interval = 400 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	current := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			current += s.step()
			if current >= schema.ProgressComplete {
				progress(schema.ProgressComplete)
				return nil
			}
			progress(current)
		}
	}
}

// HTTPTransport PUTs photo bytes to Endpoint/<photo id>.
type HTTPTransport struct {
	Endpoint string
	Client   *http.Client
}

// Upload streams the photo and reports progress as bytes are read by the client.
func (t *HTTPTransport) Upload(ctx context.Context, photo schema.Photo, progress func(int)) error {
	client := t.Client
	if client == nil {
		client = http.DefaultClient
	}

	body := &countingReader{r: bytes.NewReader(photo.Data), total: int64(len(photo.Data)), report: progress}
	url := strings.TrimSuffix(t.Endpoint, "/") + "/" + photo.ID
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, body)
	if err != nil {
		return fmt.Errorf("create upload request: %w", err)
	}
	req.ContentLength = int64(len(photo.Data))
	req.Header.Set("Content-Type", photo.ContentType)
	req.Header.Set("X-Filename", photo.Name)

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("upload %s: %w", photo.Name, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("upload %s: status %d", photo.Name, resp.StatusCode)
	}
	progress(schema.ProgressComplete)
	return nil
}

type countingReader struct {
	r      io.Reader
	read   int64
	total  int64
	report func(int)
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.read += int64(n)
	if c.total > 0 && n > 0 {
		// 100 is reserved for the server's acknowledgement.
		pct := int(c.read * 99 / c.total)
		c.report(pct)
	}
	return n, err
}
