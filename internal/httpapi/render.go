package httpapi

import (
	"bytes"
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"fixit/internal/core"
)

var (
	markdownOnce sync.Once
	markdown     goldmark.Markdown
	htmlPolicy   *bluemonday.Policy
)

func renderer() (goldmark.Markdown, *bluemonday.Policy) {
	markdownOnce.Do(func() {
		markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))
		htmlPolicy = bluemonday.UGCPolicy()
	})
	return markdown, htmlPolicy
}

// renderSuggestion converts model markdown to sanitised HTML.
func renderSuggestion(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}
	md, policy := renderer()
	var buf bytes.Buffer
	if err := md.Convert([]byte(text), &buf); err != nil {
		return policy.Sanitize(text)
	}
	return strings.TrimSpace(string(policy.SanitizeBytes(buf.Bytes())))
}

// snapshotPayload is the wire form of a session's state.
type snapshotPayload struct {
	SessionID string `json:"sessionId"`
	core.Snapshot
	SuggestionHTML string `json:"suggestionHtml,omitempty"`
}

func newSnapshotPayload(id string, snap core.Snapshot) snapshotPayload {
	return snapshotPayload{
		SessionID:      id,
		Snapshot:       snap,
		SuggestionHTML: renderSuggestion(snap.Diagnosis.Value),
	}
}
