package secrets

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cronsentinel/cronsentinel/internal/errs"
)

func newTestStore(t *testing.T) (*Store, string, string) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "secrets.json.enc")
	keyPath := filepath.Join(dir, "secrets.key")
	return New(path, keyPath), path, keyPath
}

func TestStore_RoundTrip(t *testing.T) {
	s, path, keyPath := newTestStore(t)

	require.NoError(t, s.Set("API_KEY", "hunter2-value"))

	v, ok, err := s.Get("API_KEY")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "hunter2-value", v)

	// A fresh Store instance over the same files must see the same value.
	s2 := New(path, keyPath)
	v2, ok2, err := s2.Get("API_KEY")
	require.NoError(t, err)
	assert.True(t, ok2)
	assert.Equal(t, "hunter2-value", v2)
}

func TestStore_GetAbsent(t *testing.T) {
	s, _, _ := newTestStore(t)
	_, ok, err := s.Get("NOPE")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_Delete(t *testing.T) {
	s, _, _ := newTestStore(t)
	require.NoError(t, s.Set("K", "v"))

	removed, err := s.Delete("K")
	require.NoError(t, err)
	assert.True(t, removed)

	removedAgain, err := s.Delete("K")
	require.NoError(t, err)
	assert.False(t, removedAgain)
}

func TestStore_KeysSorted(t *testing.T) {
	s, _, _ := newTestStore(t)
	require.NoError(t, s.Set("ZEBRA", "1"))
	require.NoError(t, s.Set("ALPHA", "2"))

	keys, err := s.Keys()
	require.NoError(t, err)
	assert.Equal(t, []string{"ALPHA", "ZEBRA"}, keys)
}

func TestStore_ImportFromEnv(t *testing.T) {
	t.Setenv("SECRET_FOO", "foo-value")
	t.Setenv("SECRET_BAR", "bar-value")
	t.Setenv("OTHER_VAR", "ignored")

	s, _, _ := newTestStore(t)
	count, err := s.ImportFromEnv("SECRET_")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	v, ok, err := s.Get("FOO")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "foo-value", v)
}

func TestStore_Backup(t *testing.T) {
	s, _, _ := newTestStore(t)
	require.NoError(t, s.Set("K", "v"))

	dst := filepath.Join(t.TempDir(), "out.enc")
	wrote, err := s.Backup(dst)
	require.NoError(t, err)
	assert.True(t, wrote)

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.NotEmpty(t, data)
}

func TestStore_BackupMissingPrimary(t *testing.T) {
	s, _, _ := newTestStore(t)
	wrote, err := s.Backup(filepath.Join(t.TempDir(), "out.enc"))
	require.NoError(t, err)
	assert.False(t, wrote)
}

func TestStore_TamperedCiphertextFailsClosed(t *testing.T) {
	s, path, keyPath := newTestStore(t)
	require.NoError(t, s.Set("K", "v"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	tampered := []byte(data)
	// Flip a byte well inside the base64 body.
	mid := len(tampered) / 2
	if tampered[mid] == 'A' {
		tampered[mid] = 'B'
	} else {
		tampered[mid] = 'A'
	}
	require.NoError(t, os.WriteFile(path, tampered, 0o600))

	s2 := New(path, keyPath)
	_, _, err = s2.Get("K")
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.Security))
}

func TestStore_WrongKeyFailsClosed(t *testing.T) {
	s, path, _ := newTestStore(t)
	require.NoError(t, s.Set("K", "v"))

	otherKeyPath := filepath.Join(t.TempDir(), "other.key")
	s2 := New(path, otherKeyPath)
	_, _, err := s2.Get("K")
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.Security))
}

func TestStore_Resolve(t *testing.T) {
	s, _, _ := newTestStore(t)
	require.NoError(t, s.Set("TEST_API_KEY", "secret_api_key_123"))
	t.Setenv("SOME_ENV", "env-value")

	file := filepath.Join(t.TempDir(), "f.txt")
	require.NoError(t, os.WriteFile(file, []byte("  file contents  \n"), 0o600))

	resolved, err := s.Resolve(map[string]string{
		"a": "secret:TEST_API_KEY",
		"b": "env:SOME_ENV",
		"c": "file:" + file,
		"d": "plain_value",
	})
	require.NoError(t, err)
	assert.Equal(t, "secret_api_key_123", resolved["a"])
	assert.Equal(t, "env-value", resolved["b"])
	assert.Equal(t, "file contents", resolved["c"])
	assert.Equal(t, "plain_value", resolved["d"])
}

func TestStore_ResolveMissingSecret(t *testing.T) {
	s, _, _ := newTestStore(t)
	_, err := s.Resolve(map[string]string{"a": "secret:NOPE"})
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.Validation))
	assert.Contains(t, err.Error(), "Secret not found: NOPE")
}

func TestStore_ResolveMissingEnv(t *testing.T) {
	s, _, _ := newTestStore(t)
	_, err := s.Resolve(map[string]string{"a": "env:CRONSENTINEL_DOES_NOT_EXIST"})
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.Validation))
	assert.Contains(t, err.Error(), "Environment variable not found")
}

func TestStore_ResolveMissingFile(t *testing.T) {
	s, _, _ := newTestStore(t)
	_, err := s.Resolve(map[string]string{"a": "file:/nonexistent/path/x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Cannot read file")
}

func TestMask(t *testing.T) {
	assert.Equal(t, "********", Mask("12345678"))

	long := "abc1234567890123456xyz"
	want := "abc" + strings.Repeat("*", len(long)-6) + "xyz"
	assert.Equal(t, want, Mask(long))
}
