package storage

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLocalStoragePutGetDelete(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "documents/2024/01/a.pdf", bytes.NewBufferString("%PDF-1.4"), 8, "application/pdf"))

	rc, err := store.Get(ctx, "documents/2024/01/a.pdf")
	require.NoError(t, err)
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	require.Equal(t, "%PDF-1.4", string(body))

	require.NoError(t, store.Delete(ctx, "documents/2024/01/a.pdf"))
	_, err = store.Get(ctx, "documents/2024/01/a.pdf")
	require.ErrorIs(t, err, ErrObjectNotFound)
}

func TestLocalStorageConfinesKeys(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Put(context.Background(), "../../escape.txt", bytes.NewBufferString("x"), 1, "text/plain"))
	rc, err := store.Get(context.Background(), "escape.txt")
	require.NoError(t, err)
	require.NoError(t, rc.Close())

	_, err = store.Get(context.Background(), "")
	require.Error(t, err)
}
