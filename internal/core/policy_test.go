package core

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fixit/pkg/schema"
)

func TestDefaultPolicy(t *testing.T) {
	p := DefaultPolicy()

	assert.False(t, p.Upload.Strict)
	assert.Equal(t, schema.MaxPhotos, p.Upload.MaxCount)
	assert.Equal(t, int64(schema.MaxPhotoBytes), p.Upload.MaxBytes)
	assert.Equal(t, []string{"image/jpeg", "image/png", "image/webp"}, p.Upload.AcceptedTypes)
	assert.Equal(t, 4*time.Second, p.StatusTTL)
	assert.Equal(t, 10*time.Second, p.LocateTimeout)
	assert.Equal(t, 1500*time.Millisecond, p.SubmitDelay)
	assert.Equal(t, 64, p.JournalSize)
	assert.NoError(t, p.Validate())
}

func TestLoadPolicy(t *testing.T) {
	t.Run("empty path", func(t *testing.T) {
		p, err := LoadPolicy("")
		require.NoError(t, err)
		assert.Equal(t, DefaultPolicy(), p)
	})

	t.Run("overlay keeps unspecified defaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "policy.yaml")
		require.NoError(t, os.WriteFile(path, []byte("upload:\n  strict: true\nstatus_ttl: 2s\nfallback_address: \"Address unavailable\"\n"), 0644))

		p, err := LoadPolicy(path)
		require.NoError(t, err)
		assert.True(t, p.Upload.Strict)
		assert.Equal(t, schema.MaxPhotos, p.Upload.MaxCount)
		assert.Equal(t, 2*time.Second, p.StatusTTL)
		assert.Equal(t, 10*time.Second, p.LocateTimeout)
		assert.Equal(t, "Address unavailable", p.FallbackAddress)
	})

	t.Run("invalid bound", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "policy.yaml")
		require.NoError(t, os.WriteFile(path, []byte("upload:\n  max_count: 25\n"), 0644))

		_, err := LoadPolicy(path)
		var vErr *ValidationError
		require.ErrorAs(t, err, &vErr)
		assert.Equal(t, "upload.max_count", vErr.Field)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadPolicy(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})

	t.Run("malformed yaml", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "policy.yaml")
		require.NoError(t, os.WriteFile(path, []byte("status_ttl: [\n"), 0644))
		_, err := LoadPolicy(path)
		assert.Error(t, err)
	})
}
