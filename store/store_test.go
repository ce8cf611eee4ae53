package store_test

import (
	"os"
	"path/filepath"
	"testing"

	apperrors "github.com/chalkfit/chalk-client-go/internal/errors"
	"github.com/chalkfit/chalk-client-go/store"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("device-secret-for-tests")

func newStore(t *testing.T) (*store.FileStore, string) {
	t.Helper()
	dir := t.TempDir()
	s, err := store.NewFileStore(dir, testSecret)
	require.NoError(t, err)
	return s, dir
}

func TestNewFileStoreRequiresSecret(t *testing.T) {
	_, err := store.NewFileStore(t.TempDir(), nil)
	require.Error(t, err)
}

func TestReadWithoutBlob(t *testing.T) {
	s, _ := newStore(t)

	blob, err := s.Read()
	require.NoError(t, err)
	require.Nil(t, blob)
}

func TestWriteReadRoundTrip(t *testing.T) {
	s, _ := newStore(t)

	require.NoError(t, s.Write([]byte(`{"accessToken":"a"}`)))

	blob, err := s.Read()
	require.NoError(t, err)
	require.Equal(t, []byte(`{"accessToken":"a"}`), blob)
}

func TestWriteReplacesPreviousBlob(t *testing.T) {
	s, _ := newStore(t)

	require.NoError(t, s.Write([]byte("first")))
	require.NoError(t, s.Write([]byte("second")))

	blob, err := s.Read()
	require.NoError(t, err)
	require.Equal(t, []byte("second"), blob)
}

func TestBlobIsNotStoredInTheClear(t *testing.T) {
	s, dir := newStore(t)
	require.NoError(t, s.Write([]byte(`{"refreshToken":"very-secret"}`)))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	raw, err := os.ReadFile(filepath.Join(dir, entries[0].Name()))
	require.NoError(t, err)
	require.NotContains(t, string(raw), "very-secret")
}

func TestTamperedBlobIsCorruptedState(t *testing.T) {
	s, dir := newStore(t)
	require.NoError(t, s.Write([]byte("payload")))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	path := filepath.Join(dir, entries[0].Name())
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	raw[len(raw)-1] ^= 0xff
	require.NoError(t, os.WriteFile(path, raw, 0o600))

	_, err = s.Read()
	require.ErrorIs(t, err, apperrors.ErrCorruptedState)
}

func TestTruncatedBlobIsCorruptedState(t *testing.T) {
	s, dir := newStore(t)
	require.NoError(t, s.Write([]byte("payload")))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	path := filepath.Join(dir, entries[0].Name())
	require.NoError(t, os.WriteFile(path, []byte{0x01}, 0o600))

	_, err = s.Read()
	require.ErrorIs(t, err, apperrors.ErrCorruptedState)
}

func TestDifferentSecretCannotRead(t *testing.T) {
	dir := t.TempDir()
	first, err := store.NewFileStore(dir, []byte("secret-one"))
	require.NoError(t, err)
	require.NoError(t, first.Write([]byte("payload")))

	second, err := store.NewFileStore(dir, []byte("secret-two"))
	require.NoError(t, err)

	_, err = second.Read()
	require.ErrorIs(t, err, apperrors.ErrCorruptedState)
}

func TestDelete(t *testing.T) {
	s, _ := newStore(t)
	require.NoError(t, s.Write([]byte("payload")))

	require.NoError(t, s.Delete())

	blob, err := s.Read()
	require.NoError(t, err)
	require.Nil(t, blob)

	// Deleting an absent blob is not an error.
	require.NoError(t, s.Delete())
}
