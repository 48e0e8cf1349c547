package local_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/headless-page-crawler/internal/storage/local"
)

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("creates missing directory", func(t *testing.T) {
		t.Parallel()
		dir := filepath.Join(t.TempDir(), "nested", "out")
		store, err := local.New(local.Config{BaseDir: dir}, zap.NewNop())
		require.NoError(t, err)
		require.NotNil(t, store)
		info, err := os.Stat(dir)
		require.NoError(t, err)
		require.True(t, info.IsDir())
	})

	t.Run("missing base dir", func(t *testing.T) {
		t.Parallel()
		_, err := local.New(local.Config{BaseDir: "  "}, nil)
		require.Error(t, err)
	})

	t.Run("base dir is a file", func(t *testing.T) {
		t.Parallel()
		file := filepath.Join(t.TempDir(), "file")
		require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))
		_, err := local.New(local.Config{BaseDir: file}, nil)
		require.Error(t, err)
	})
}

func TestPutObject(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := local.New(local.Config{BaseDir: dir}, zap.NewNop())
	require.NoError(t, err)
	ctx := context.Background()

	tests := []struct {
		name string
		path string
		body string
	}{
		{name: "flat", path: "page.json", body: `{"url":"http://a.test/"}`},
		{name: "nested", path: "pages/run-1/abc.json", body: `{"url":"http://b.test/"}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			uri, err := store.PutObject(ctx, tc.path, "application/json", strings.NewReader(tc.body))
			require.NoError(t, err)

			want := filepath.Join(dir, filepath.FromSlash(tc.path))
			require.Equal(t, "file://"+filepath.ToSlash(want), uri)
			// #nosec G304 -- test reads from the controlled temp directory.
			got, err := os.ReadFile(want)
			require.NoError(t, err)
			require.Equal(t, tc.body, string(got))
		})
	}

	t.Run("overwrite replaces content", func(t *testing.T) {
		_, err := store.PutObject(ctx, "same.json", "application/json", strings.NewReader("first"))
		require.NoError(t, err)
		_, err = store.PutObject(ctx, "same.json", "application/json", strings.NewReader("second"))
		require.NoError(t, err)
		// #nosec G304 -- test reads from the controlled temp directory.
		got, err := os.ReadFile(filepath.Join(dir, "same.json"))
		require.NoError(t, err)
		require.Equal(t, "second", string(got))
	})

	t.Run("empty path", func(t *testing.T) {
		_, err := store.PutObject(ctx, "", "text/plain", strings.NewReader("data"))
		require.Error(t, err)
	})

	t.Run("traversal rejected", func(t *testing.T) {
		_, err := store.PutObject(ctx, "../escape.json", "text/plain", strings.NewReader("data"))
		require.ErrorIs(t, err, local.ErrPathEscapes)
	})

	t.Run("no temp files left behind", func(t *testing.T) {
		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		for _, e := range entries {
			require.False(t, strings.HasPrefix(e.Name(), ".tmp-"), e.Name())
		}
	})
}
