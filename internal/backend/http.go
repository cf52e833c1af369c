package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// HTTPSubmitter POSTs submissions as multipart/form-data.
//
// Response contract: 2xx with {"id": "..."}; 422 with
// {"errors": [{"field": "...", "message": "..."}]}; anything else is a failure.
type HTTPSubmitter struct {
	URL    string
	Client *http.Client
}

// NewHTTPSubmitter creates a submitter for url.
func NewHTTPSubmitter(url string) *HTTPSubmitter {
	return &HTTPSubmitter{URL: url, Client: &http.Client{Timeout: 60 * time.Second}}
}

// Submit sends the submission and decodes the backend's answer.
func (h *HTTPSubmitter) Submit(ctx context.Context, s *Submission) (*Receipt, error) {
	var body bytes.Buffer
	contentType, err := EncodeMultipart(&body, s)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.URL, &body)
	if err != nil {
		return nil, fmt.Errorf("build submit request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	client := h.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("submit: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read submit response: %w", err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		var out struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(data, &out); err != nil {
			return nil, fmt.Errorf("parse submit response: %w", err)
		}
		if out.ID == "" {
			return nil, fmt.Errorf("submit response missing id")
		}
		return &Receipt{ID: out.ID, ReceivedAt: time.Now().UTC()}, nil

	case resp.StatusCode == http.StatusUnprocessableEntity:
		var out struct {
			Errors []FieldError `json:"errors"`
		}
		if err := json.Unmarshal(data, &out); err != nil {
			return nil, fmt.Errorf("parse rejection (status %d): %w", resp.StatusCode, err)
		}
		return nil, &RejectedError{Errors: out.Errors}

	default:
		return nil, fmt.Errorf("submission backend returned status %d: %s",
			resp.StatusCode, strings.TrimSpace(string(data)))
	}
}
