package source

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-github/v81/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func onlyText(name string) bool {
	ext := filepath.Ext(name)
	return ext == ".txt" || ext == ".md"
}

func writeFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		p := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
}

func TestLoadPaths_DirectoryIsFilteredAndFlat(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"a.txt":     "alpha",
		"b.md":      "# beta",
		"c.png":     "binary",
		"sub/d.txt": "nested",
	})

	sources, err := LoadPaths([]string{dir}, onlyText)
	require.NoError(t, err)
	require.Len(t, sources, 2)
	assert.Equal(t, filepath.Join(dir, "a.txt"), sources[0].Name)
	assert.Equal(t, "alpha", string(sources[0].Data))
	assert.Equal(t, filepath.Join(dir, "b.md"), sources[1].Name)
}

func TestLoadPaths_ExplicitFileAndDedupe(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"a.txt": "alpha", "c.png": "binary"})

	sources, err := LoadPaths([]string{
		filepath.Join(dir, "c.png"),
		dir,
		filepath.Join(dir, "a.txt"),
	}, onlyText)
	require.NoError(t, err)
	require.Len(t, sources, 2)
	assert.Equal(t, filepath.Join(dir, "c.png"), sources[0].Name, "explicit files bypass the filter")
	assert.Equal(t, filepath.Join(dir, "a.txt"), sources[1].Name)
}

func TestLoadPaths_Glob(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"x1.txt": "1", "x2.txt": "2", "y.txt": "3"})

	sources, err := LoadPaths([]string{filepath.Join(dir, "x*.txt")}, nil)
	require.NoError(t, err)
	require.Len(t, sources, 2)

	_, err = LoadPaths([]string{filepath.Join(dir, "z*.txt")}, nil)
	assert.ErrorIs(t, err, ErrNoMatch)
}

func TestLoadPaths_Missing(t *testing.T) {
	_, err := LoadPaths([]string{filepath.Join(t.TempDir(), "missing.pdf")}, nil)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoader_ConfinesToRoot(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	writeFiles(t, root, map[string]string{"guide.md": "# Guide"})
	writeFiles(t, outside, map[string]string{".env": "OPENAI_API_KEY=sk-live-topsecret"})
	require.NoError(t, os.Symlink(filepath.Join(outside, ".env"), filepath.Join(root, "linked.md")))

	l := Loader{Root: root, Supports: onlyText, Strict: true}

	sources, err := l.Load([]string{"guide.md"})
	require.NoError(t, err, "relative paths are taken from the root")
	require.Len(t, sources, 1)
	assert.Equal(t, "# Guide", string(sources[0].Data))

	for _, p := range []string{
		filepath.Join(outside, ".env"),
		"../" + filepath.Base(outside) + "/.env",
		"linked.md",
		filepath.Join(outside, "*"),
	} {
		_, err := Loader{Root: root}.Load([]string{p})
		assert.ErrorIs(t, err, ErrOutsideRoot, p)
	}
}

func TestLoader_StrictFiltersExplicitFiles(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"a.txt": "alpha", "c.png": "binary"})

	_, err := Loader{Root: dir, Supports: onlyText, Strict: true}.Load([]string{"c.png"})
	assert.ErrorIs(t, err, ErrUnsupported)

	sources, err := Loader{Root: dir, Supports: onlyText}.Load([]string{"c.png"})
	require.NoError(t, err)
	assert.Len(t, sources, 1)
}

func TestLoader_SizeLimit(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"small.txt": "1234", "big.txt": "123456789"})

	l := Loader{Root: dir, MaxBytes: 4}
	sources, err := l.Load([]string{"small.txt"})
	require.NoError(t, err)
	assert.Equal(t, "1234", string(sources[0].Data))

	_, err = l.Load([]string{"big.txt"})
	assert.ErrorIs(t, err, ErrTooLarge)
}

func TestLoader_RejectsDevices(t *testing.T) {
	if _, err := os.Stat(os.DevNull); err != nil {
		t.Skip("no null device")
	}
	_, err := LoadPaths([]string{os.DevNull}, nil)
	assert.ErrorIs(t, err, ErrNotRegular)
}

func TestParseRepoSpec(t *testing.T) {
	spec, err := ParseRepoSpec("cloudwego/eino/docs/guide@v1.2")
	require.NoError(t, err)
	assert.Equal(t, RepoSpec{Owner: "cloudwego", Repo: "eino", Path: "docs/guide", Ref: "v1.2"}, spec)
	assert.Equal(t, "cloudwego/eino/docs/guide@v1.2", spec.String())

	spec, err = ParseRepoSpec("owner/repo")
	require.NoError(t, err)
	assert.Empty(t, spec.Path)

	_, err = ParseRepoSpec("justowner")
	assert.ErrorIs(t, err, ErrBadRepoSpec)
}

type contentEntry struct {
	Type     string `json:"type"`
	Name     string `json:"name"`
	Path     string `json:"path"`
	Content  string `json:"content,omitempty"`
	Encoding string `json:"encoding,omitempty"`
}

func fakeGitHub(t *testing.T) *GitHub {
	t.Helper()
	file := func(p, content string) contentEntry {
		return contentEntry{
			Type: "file", Name: filepath.Base(p), Path: p,
			Content: base64.StdEncoding.EncodeToString([]byte(content)), Encoding: "base64",
		}
	}
	tree := map[string]any{
		"docs": []contentEntry{
			{Type: "file", Name: "intro.md", Path: "docs/intro.md"},
			{Type: "file", Name: "logo.png", Path: "docs/logo.png"},
			{Type: "dir", Name: "api", Path: "docs/api"},
		},
		"docs/api":         []contentEntry{{Type: "file", Name: "ref.txt", Path: "docs/api/ref.txt"}},
		"docs/intro.md":    file("docs/intro.md", "# Intro"),
		"docs/api/ref.txt": file("docs/api/ref.txt", "reference"),
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := strings.TrimPrefix(r.URL.Path, "/repos/acme/handbook/contents/")
		body, ok := tree[p]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"message":"Not Found"}`))
			return
		}
		assert.Equal(t, "main", r.URL.Query().Get("ref"))
		w.Header().Set("Content-Type", "application/json")
		assert.NoError(t, json.NewEncoder(w).Encode(body))
	}))
	t.Cleanup(srv.Close)

	client := github.NewClient(nil)
	base, err := url.Parse(srv.URL + "/")
	require.NoError(t, err)
	client.BaseURL = base
	return newGitHub(client, nil)
}

func TestGitHub_LoadWalksDirectories(t *testing.T) {
	g := fakeGitHub(t)

	sources, err := g.Load(context.Background(),
		RepoSpec{Owner: "acme", Repo: "handbook", Path: "docs", Ref: "main"}, onlyText)
	require.NoError(t, err)
	require.Len(t, sources, 2)
	assert.Equal(t, "acme/handbook/docs/intro.md", sources[0].Name)
	assert.Equal(t, "# Intro", string(sources[0].Data))
	assert.Equal(t, "acme/handbook/docs/api/ref.txt", sources[1].Name)
	assert.Equal(t, "reference", string(sources[1].Data))
}

func TestGitHub_LoadSingleFile(t *testing.T) {
	g := fakeGitHub(t)

	sources, err := g.Load(context.Background(),
		RepoSpec{Owner: "acme", Repo: "handbook", Path: "docs/api/ref.txt", Ref: "main"}, onlyText)
	require.NoError(t, err)
	require.Len(t, sources, 1)
	assert.Equal(t, "reference", string(sources[0].Data))
}

func TestGitHub_NotFound(t *testing.T) {
	g := fakeGitHub(t)
	_, err := g.Load(context.Background(), RepoSpec{Owner: "acme", Repo: "handbook", Path: "nope", Ref: "main"}, nil)
	assert.Error(t, err)
}

func TestWatcher_ReportsChangedFiles(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWatcher(onlyText, 50*time.Millisecond, nil)
	require.NoError(t, err)
	defer w.Close()
	require.NoError(t, w.Add(dir))

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	changes := w.Watch(ctx)

	writeFiles(t, dir, map[string]string{"notes.txt": "v1", "image.png": "x"})
	writeFiles(t, dir, map[string]string{"notes.txt": "v2"})

	select {
	case batch := <-changes:
		assert.Equal(t, []string{filepath.Join(dir, "notes.txt")}, batch)
	case <-ctx.Done():
		t.Fatal("timeout waiting for change batch")
	}
}

func TestWatcher_SingleFile(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"watched.pdf": "v1", "other.txt": "x"})

	w, err := NewWatcher(onlyText, 50*time.Millisecond, nil)
	require.NoError(t, err)
	defer w.Close()
	require.NoError(t, w.Add(filepath.Join(dir, "watched.pdf")))

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	changes := w.Watch(ctx)

	writeFiles(t, dir, map[string]string{"other.txt": "ignored"})
	writeFiles(t, dir, map[string]string{"watched.pdf": "v2"})

	select {
	case batch := <-changes:
		assert.Equal(t, []string{filepath.Join(dir, "watched.pdf")}, batch)
	case <-ctx.Done():
		t.Fatal("timeout waiting for change batch")
	}
}
