package resources_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/G14MB0/conductor/internal/config"
	"github.com/G14MB0/conductor/internal/resources"
)

func TestResolveFileLocalPath(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "payload.json")
	require.NoError(t, os.WriteFile(file, []byte(`{}`), 0o644))

	r, err := resources.New(&config.GlobalConfig{}, t.TempDir())
	require.NoError(t, err)
	defer r.Close()

	resolved, err := r.ResolveFile(context.Background(), file)
	require.NoError(t, err)
	assert.Equal(t, file, resolved)
}

func TestResolveFileMissingPathErrors(t *testing.T) {
	r, err := resources.New(&config.GlobalConfig{}, t.TempDir())
	require.NoError(t, err)
	defer r.Close()

	_, err = r.ResolveFile(context.Background(), "/no/such/file/here")
	require.Error(t, err)
}

func TestResolveFileUnsupportedAliasErrors(t *testing.T) {
	r, err := resources.New(&config.GlobalConfig{}, t.TempDir())
	require.NoError(t, err)
	defer r.Close()

	_, err = r.ResolveFile(context.Background(), "unknownalias://some/path")
	require.Error(t, err)
}

func TestResolveFileFilesystemAlias(t *testing.T) {
	repoDir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(repoDir, "sub"), 0o755))
	target := filepath.Join(repoDir, "sub", "file.txt")
	require.NoError(t, os.WriteFile(target, []byte("hi"), 0o644))

	cfg := &config.GlobalConfig{
		ResourceLocations: map[string]config.RepositoryLocation{
			"assets": {Name: "assets", Kind: "filesystem", Location: repoDir},
		},
	}
	r, err := resources.New(cfg, t.TempDir())
	require.NoError(t, err)
	defer r.Close()

	resolved, err := r.ResolveFile(context.Background(), "assets://sub/file.txt")
	require.NoError(t, err)
	assert.Equal(t, target, resolved)
}

func TestResolveFileDownloadsHTTPURL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		_, _ = w.Write([]byte("payload-bytes"))
	}))
	defer server.Close()

	r, err := resources.New(&config.GlobalConfig{}, t.TempDir())
	require.NoError(t, err)
	defer r.Close()
	require.NoError(t, r.Open())

	resolved, err := r.ResolveFile(context.Background(), server.URL+"/asset.bin")
	require.NoError(t, err)

	contents, err := os.ReadFile(resolved)
	require.NoError(t, err)
	assert.Equal(t, "payload-bytes", string(contents))
}

func TestCodePathsResolvesFilesystemLocations(t *testing.T) {
	repoDir := t.TempDir()
	cfg := &config.GlobalConfig{
		CodeLocations: map[string]config.RepositoryLocation{
			"lib": {Name: "lib", Kind: "filesystem", Location: repoDir},
		},
	}
	r, err := resources.New(cfg, t.TempDir())
	require.NoError(t, err)
	defer r.Close()

	paths, err := r.CodePaths(context.Background())
	require.NoError(t, err)
	assert.Equal(t, repoDir, paths["lib"])
}
