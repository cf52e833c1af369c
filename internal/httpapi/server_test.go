package httpapi

import (
	"bytes"
	"encoding/json"
	"image"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fixit/internal/backend"
	"fixit/internal/core"
	"fixit/internal/preview"
	"fixit/internal/upload"
	"fixit/pkg/schema"
)

type apiFixture struct {
	ts       *httptest.Server
	registry *Registry
	store    *preview.Store
	enricher *core.MockEnricher
}

type apiOption func(policy *core.Policy, srv *Server)

func withStrictUploads() apiOption {
	return func(p *core.Policy, _ *Server) { p.Upload.Strict = true }
}

func withPhotoCap(n int64) apiOption {
	return func(_ *core.Policy, s *Server) { s.maxPhotoBytes = n }
}

func newAPIFixture(t *testing.T, opts ...apiOption) *apiFixture {
	t.Helper()
	policy := core.DefaultPolicy()
	policy.StatusTTL = time.Hour
	store := preview.NewStore()
	enricher := core.NewMockEnricher()
	enricher.DiagnosisOutput.Suggestion = "Check the **charging port** <script>alert(1)</script>"

	registry := NewRegistry(func() *core.Machine {
		return core.NewMachine(core.Options{
			Policy:        &policy,
			Gateway:       core.NewGateway(enricher, policy, nil),
			Submitter:     backend.NewSimulated(5 * time.Millisecond),
			Transport:     upload.NewSeededSimulator(time.Millisecond, 3),
			Previews:      store,
			PreviewPrefix: PreviewPrefix,
		})
	})
	srv := NewServer(registry, store, nil)
	for _, opt := range opts {
		opt(&policy, srv)
	}
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(func() {
		ts.Close()
		registry.Close()
	})
	return &apiFixture{ts: ts, registry: registry, store: store, enricher: enricher}
}

func (f *apiFixture) do(t *testing.T, method, path string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, f.ts.URL+path, rdr)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := f.ts.Client().Do(req)
	require.NoError(t, err)
	return resp, decodeBody(t, resp)
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(data) == 0 {
		return nil
	}
	var out map[string]any
	require.NoError(t, json.Unmarshal(data, &out), string(data))
	return out
}

func (f *apiFixture) create(t *testing.T) string {
	t.Helper()
	resp, body := f.do(t, http.MethodPost, BasePath+"/sessions", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	id, _ := body["sessionId"].(string)
	require.NotEmpty(t, id)
	return id
}

func sessionPath(id, suffix string) string {
	return BasePath + "/sessions/" + id + suffix
}

func (f *apiFixture) fill(t *testing.T, id string) {
	t.Helper()
	resp, _ := f.do(t, http.MethodPut, sessionPath(id, "/device"), map[string]string{"deviceType": string(schema.DeviceLaptop)})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = f.do(t, http.MethodPatch, sessionPath(id, "/fields"), map[string]any{"fields": map[string]string{
		schema.FieldDescription: "Laptop does not power on at all",
		schema.FieldAddress:     "12 Mabini Street, Quezon City",
		schema.FieldContactInfo: "jo@example.com",
	}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func (f *apiFixture) waitFor(t *testing.T, id string, cond func(map[string]any) bool) map[string]any {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		_, body := f.do(t, http.MethodGet, sessionPath(id, ""), nil)
		if cond(body) {
			return body
		}
		if time.Now().After(deadline) {
			t.Fatalf("condition not met; last body: %v", body)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func pngData(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 1, 1))))
	return buf.Bytes()
}

func TestHealthz(t *testing.T) {
	f := newAPIFixture(t)
	f.create(t)

	resp, body := f.do(t, http.MethodGet, "/healthz", nil)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
	assert.EqualValues(t, 1, body["sessions"])
}

func TestSessionLifecycle(t *testing.T) {
	f := newAPIFixture(t)
	id := f.create(t)

	resp, body := f.do(t, http.MethodGet, sessionPath(id, ""), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "editing", body["phase"])
	assert.EqualValues(t, 1, body["step"])
	assert.Equal(t, false, body["valid"])

	resp, _ = f.do(t, http.MethodDelete, sessionPath(id, ""), nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, body = f.do(t, http.MethodGet, sessionPath(id, ""), nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "session_not_found", body["error"])
	assert.NotEmpty(t, body["request_id"])
}

func TestSubmitThroughAPI(t *testing.T) {
	f := newAPIFixture(t)
	id := f.create(t)

	resp, body := f.do(t, http.MethodPost, sessionPath(id, "/submit"), nil)
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "validation_failed", body["error"])
	assert.Contains(t, body["fields"], schema.FieldDeviceType)

	resp, body = f.do(t, http.MethodPost, sessionPath(id, "/submit/confirm"), nil)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "invalid_transition", body["error"])

	f.fill(t, id)
	resp, body = f.do(t, http.MethodPost, sessionPath(id, "/submit"), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "confirming", body["phase"])

	resp, body = f.do(t, http.MethodPost, sessionPath(id, "/submit/confirm"), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "submitting", body["phase"])

	body = f.waitFor(t, id, func(b map[string]any) bool { return b["phase"] == "submitted" })
	receipt, ok := body["receipt"].(map[string]any)
	require.True(t, ok)
	assert.Len(t, receipt["id"], 26)

	resp, body = f.do(t, http.MethodPost, sessionPath(id, "/home"), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "editing", body["phase"])
	assert.Nil(t, body["receipt"])
}

func TestFieldsPatch(t *testing.T) {
	f := newAPIFixture(t)
	id := f.create(t)

	resp, body := f.do(t, http.MethodPatch, sessionPath(id, "/fields"), map[string]any{
		"fields": map[string]string{schema.FieldContactInfo: "abc"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, schema.ContactInvalidMessage, body["contactError"])

	resp, body = f.do(t, http.MethodPatch, sessionPath(id, "/fields"), map[string]any{
		"fields": map[string]string{"nickname": "jo"},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, []any{"nickname"}, body["fields"])

	resp, _ = f.do(t, http.MethodPatch, sessionPath(id, "/fields"), map[string]any{"bogus": true})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = f.do(t, http.MethodPut, sessionPath(id, "/priority"), map[string]string{"priority": "Urgent"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	form := body["form"].(map[string]any)
	assert.Equal(t, "Urgent", form["priority"])
}

func TestStepRoute(t *testing.T) {
	f := newAPIFixture(t)
	id := f.create(t)

	_, body := f.do(t, http.MethodPut, sessionPath(id, "/step"), map[string]any{"step": 3})
	assert.EqualValues(t, 3, body["step"])

	_, body = f.do(t, http.MethodPut, sessionPath(id, "/step"), map[string]any{"direction": "back"})
	assert.EqualValues(t, 2, body["step"])

	resp, _ := f.do(t, http.MethodPut, sessionPath(id, "/step"), map[string]any{"step": 7})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	resp, _ = f.do(t, http.MethodPut, sessionPath(id, "/step"), map[string]any{"direction": "sideways"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestDiagnosisRendersSanitisedHTML(t *testing.T) {
	f := newAPIFixture(t)
	id := f.create(t)
	f.fill(t, id)

	resp, body := f.do(t, http.MethodPost, sessionPath(id, "/diagnosis"), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "in_flight", body["diagnosis"].(map[string]any)["status"])

	body = f.waitFor(t, id, func(b map[string]any) bool {
		return b["diagnosis"].(map[string]any)["status"] == "succeeded"
	})
	html, _ := body["suggestionHtml"].(string)
	assert.Contains(t, html, "<strong>charging port</strong>")
	assert.NotContains(t, html, "<script>")
}

func TestLocateRoute(t *testing.T) {
	f := newAPIFixture(t)
	id := f.create(t)

	resp, _ := f.do(t, http.MethodPost, sessionPath(id, "/locate"), map[string]any{"latitude": 14.6})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = f.do(t, http.MethodPost, sessionPath(id, "/locate"), map[string]any{"error": "permission_denied"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := f.waitFor(t, id, func(b map[string]any) bool {
		return b["address"].(map[string]any)["status"] == "failed"
	})
	status := body["status"].(map[string]any)
	assert.Equal(t, core.ReasonLocateDenied, status["message"])

	resp, _ = f.do(t, http.MethodPost, sessionPath(id, "/locate"), map[string]any{"latitude": 14.5995, "longitude": 120.9842})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body = f.waitFor(t, id, func(b map[string]any) bool {
		return b["address"].(map[string]any)["status"] == "succeeded"
	})
	assert.Equal(t, f.enricher.AddressOutput.Text, body["form"].(map[string]any)["address"])
}

func multipartPhotos(t *testing.T, files map[string][]byte, contentType string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for name, data := range files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="photos"; filename="`+name+`"`)
		if contentType != "" {
			h.Set("Content-Type", contentType)
		}
		part, err := mw.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestPhotosAndPreviews(t *testing.T) {
	f := newAPIFixture(t)
	id := f.create(t)

	body, ct := multipartPhotos(t, map[string][]byte{"screen.png": pngData(t)}, "")
	resp, err := f.ts.Client().Post(f.ts.URL+sessionPath(id, "/photos"), ct, body)
	require.NoError(t, err)
	snap := decodeBody(t, resp)
	require.Equal(t, http.StatusOK, resp.StatusCode, snap)

	photos := snap["form"].(map[string]any)["photos"].([]any)
	require.Len(t, photos, 1)
	photo := photos[0].(map[string]any)
	assert.Equal(t, "image/png", photo["contentType"])
	photoID := photo["id"].(string)

	previews := snap["previews"].([]any)
	require.Len(t, previews, 1)
	location := previews[0].(map[string]any)["location"].(string)
	require.True(t, strings.HasPrefix(location, PreviewPrefix))

	previewResp, err := f.ts.Client().Get(f.ts.URL + location)
	require.NoError(t, err)
	data, err := io.ReadAll(previewResp.Body)
	previewResp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, previewResp.StatusCode)
	assert.Equal(t, "image/png", previewResp.Header.Get("Content-Type"))
	assert.Equal(t, pngData(t), data)

	f.waitFor(t, id, func(b map[string]any) bool {
		u, ok := b["uploads"].(map[string]any)[photoID].(map[string]any)
		return ok && u["status"] == "complete"
	})

	resp, snap = f.do(t, http.MethodDelete, sessionPath(id, "/photos/"+photoID), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, snap["uploads"])
	assert.Zero(t, f.store.Len())

	previewResp, err = f.ts.Client().Get(f.ts.URL + location)
	require.NoError(t, err)
	previewResp.Body.Close()
	assert.Equal(t, http.StatusNotFound, previewResp.StatusCode)

	resp, _ = f.do(t, http.MethodPost, sessionPath(id, "/photos/"+photoID+"/retry"), nil)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestPhotosOverTransferCap(t *testing.T) {
	huge := append(pngData(t), bytes.Repeat([]byte{0}, 4096)...)
	files := map[string][]byte{"screen.png": pngData(t), "huge.png": huge}

	t.Run("lenient drops the part silently", func(t *testing.T) {
		f := newAPIFixture(t, withPhotoCap(1024))
		id := f.create(t)

		body, ct := multipartPhotos(t, files, "image/png")
		resp, err := f.ts.Client().Post(f.ts.URL+sessionPath(id, "/photos"), ct, body)
		require.NoError(t, err)
		snap := decodeBody(t, resp)
		require.Equal(t, http.StatusOK, resp.StatusCode, snap)

		photos := snap["form"].(map[string]any)["photos"].([]any)
		require.Len(t, photos, 1)
		assert.Equal(t, "screen.png", photos[0].(map[string]any)["name"])
		assert.Empty(t, snap["rejections"])
	})

	t.Run("strict lists the part as rejected", func(t *testing.T) {
		f := newAPIFixture(t, withPhotoCap(1024), withStrictUploads())
		id := f.create(t)

		body, ct := multipartPhotos(t, files, "image/png")
		resp, err := f.ts.Client().Post(f.ts.URL+sessionPath(id, "/photos"), ct, body)
		require.NoError(t, err)
		snap := decodeBody(t, resp)
		require.Equal(t, http.StatusOK, resp.StatusCode, snap)

		require.Len(t, snap["form"].(map[string]any)["photos"].([]any), 1)
		rejections := snap["rejections"].([]any)
		require.Len(t, rejections, 1)
		assert.Equal(t, "huge.png", rejections[0].(map[string]any)["name"])
		assert.Equal(t, "warning", snap["status"].(map[string]any)["kind"])
	})
}

func TestPhotosRequiresParts(t *testing.T) {
	f := newAPIFixture(t)
	id := f.create(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("note", "no files here"))
	require.NoError(t, mw.Close())

	resp, err := f.ts.Client().Post(f.ts.URL+sessionPath(id, "/photos"), mw.FormDataContentType(), &buf)
	require.NoError(t, err)
	body := decodeBody(t, resp)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid_upload", body["error"])
}

func TestResetRoutes(t *testing.T) {
	f := newAPIFixture(t)
	id := f.create(t)
	f.fill(t, id)
	f.do(t, http.MethodPut, sessionPath(id, "/step"), map[string]any{"step": 4})

	_, body := f.do(t, http.MethodPost, sessionPath(id, "/reset"), nil)
	assert.Equal(t, "resetting", body["phase"])

	_, body = f.do(t, http.MethodPost, sessionPath(id, "/reset/cancel"), nil)
	assert.Equal(t, "editing", body["phase"])
	assert.EqualValues(t, 4, body["step"])

	f.do(t, http.MethodPost, sessionPath(id, "/reset"), nil)
	_, body = f.do(t, http.MethodPost, sessionPath(id, "/reset/confirm"), nil)
	assert.EqualValues(t, 1, body["step"])
	assert.Empty(t, body["form"].(map[string]any)["description"])

	resp, body := f.do(t, http.MethodGet, sessionPath(id, "/journal"), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, body["entries"])
}

func TestUnknownRoute(t *testing.T) {
	f := newAPIFixture(t)

	resp, body := f.do(t, http.MethodGet, "/nope", nil)

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "route_not_found", body["error"])
}

func TestRenderSuggestion(t *testing.T) {
	assert.Empty(t, renderSuggestion("  "))
	assert.Equal(t, "<p>Replace the <em>battery</em>.</p>", renderSuggestion("Replace the *battery*."))
	assert.NotContains(t, renderSuggestion(`[x](javascript:alert(1))`), "javascript:")
}
