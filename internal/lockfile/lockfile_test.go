package lockfile

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadMissingReturnsEmpty(t *testing.T) {
	s := NewFileStore(filepath.Join(t.TempDir(), "directives.lock.json"), "/work/app")

	l, err := s.Read()
	require.NoError(t, err)
	assert.Equal(t, FormatVersion, l.LockfileVersion)
	assert.Equal(t, "/work/app", l.Project)
	assert.Empty(t, l.Directives)
	assert.NotNil(t, l.Directives)
}

func TestWriteThenRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".ai", "directives.lock.json")
	s := NewFileStore(path, "/work/app")

	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	l := New("")
	l.Set("jwt_auth", Entry{Version: "1.2.0", Hash: "sha256:0123456789abcdef", Source: "registry", Category: "patterns", DownloadedAt: at})
	l.Set("logger", Entry{Version: "0.1.0", Hash: "sha256:fedcba9876543210", Source: "registry", DownloadedAt: at})
	require.NoError(t, s.Write(l))

	got, err := s.Read()
	require.NoError(t, err)
	assert.Equal(t, "/work/app", got.Project)
	assert.Equal(t, []string{"jwt_auth", "logger"}, got.Names())
	assert.Equal(t, map[string]string{"jwt_auth": "1.2.0", "logger": "0.1.0"}, got.Pins())

	e, ok := got.Get("jwt_auth")
	require.True(t, ok)
	assert.Equal(t, "patterns", e.Category)
	assert.True(t, e.DownloadedAt.Equal(at))
}

func TestReadCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "directives.lock.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := NewFileStore(path, "").Read()
	assert.Error(t, err)
}

func TestReadUnsupportedVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "directives.lock.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"lockfile_version": 7, "directives": {}}`), 0o644))

	_, err := NewFileStore(path, "").Read()
	var uv *UnsupportedVersionError
	require.True(t, errors.As(err, &uv), "error = %v", err)
	assert.Equal(t, 7, uv.Version)
}

func TestReadOriginalFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "directives.lock.json")
	body := `{
  "directives": {
    "create_component": {
      "downloaded_at": "2024-11-02T10:00:00.123456+00:00",
      "hash": "sha256:aaaaaaaaaaaaaaaa",
      "source": "registry",
      "version": "1.0.0"
    }
  },
  "lockfile_version": 1
}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	l, err := NewFileStore(path, "").Read()
	require.NoError(t, err)
	e, ok := l.Get("create_component")
	require.True(t, ok)
	assert.Equal(t, "1.0.0", e.Version)
	assert.Equal(t, 2024, e.DownloadedAt.Year())
}

func TestCloneIsIndependent(t *testing.T) {
	l := New("p")
	l.Set("a", Entry{Version: "1.0.0"})
	c := l.Clone()
	c.Set("a", Entry{Version: "2.0.0"})
	c.Set("b", Entry{Version: "1.0.0"})

	e, _ := l.Get("a")
	assert.Equal(t, "1.0.0", e.Version)
	_, ok := l.Get("b")
	assert.False(t, ok)
	assert.True(t, c.Remove("b"))
	assert.False(t, c.Remove("b"))
}
