package publish

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"obiscatalog/internal/config"
)

func siteDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"index.html":               "<h1>catalog</h1>",
		"products/a/index.html":    "<h1>a</h1>",
		"products.json":            "[]",
		"css/style.css":            "body{}",
		"js/filter.js":             "// filter",
		"pagefind/fragment.pf_bin": "bin",
	}
	for rel, content := range files {
		p := filepath.Join(dir, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0644))
	}
	return dir
}

func keys(t *testing.T, s Store, prefix string) []string {
	t.Helper()
	infos, err := s.List(context.Background(), prefix)
	require.NoError(t, err)
	out := make([]string, 0, len(infos))
	for _, i := range infos {
		out = append(out, i.Key)
	}
	return out
}

func TestContentType(t *testing.T) {
	assert.Equal(t, "text/html; charset=utf-8", ContentType("index.html"))
	assert.Equal(t, "application/json", ContentType("products.JSON"))
	assert.Equal(t, "text/css; charset=utf-8", ContentType("style.css"))
	assert.Equal(t, "text/javascript; charset=utf-8", ContentType("filter.js"))
	assert.Equal(t, "application/octet-stream", ContentType("fragment.pf_bin"))
}

func TestPublish_Memory(t *testing.T) {
	dir := siteDir(t)
	m := NewMemory()

	res, err := Publish(context.Background(), m, dir, Options{Prefix: "/catalog/"})
	require.NoError(t, err)
	assert.Equal(t, 6, res.Uploaded)
	assert.Zero(t, res.Deleted)

	assert.Equal(t, []string{
		"catalog/css/style.css",
		"catalog/index.html",
		"catalog/js/filter.js",
		"catalog/pagefind/fragment.pf_bin",
		"catalog/products.json",
		"catalog/products/a/index.html",
	}, keys(t, m, ""))

	data, ok := m.Bytes("catalog/products/a/index.html")
	require.True(t, ok)
	assert.Equal(t, "<h1>a</h1>", string(data))

	infos, err := m.List(context.Background(), "catalog/index")
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, "text/html; charset=utf-8", infos[0].ContentType)
}

func TestPublish_PruneRemovesStaleObjects(t *testing.T) {
	dir := siteDir(t)
	m := NewMemory()
	ctx := context.Background()
	require.NoError(t, m.Put(ctx, "catalog/old.html", strings.NewReader("old"), "text/html"))
	require.NoError(t, m.Put(ctx, "other/keep.html", strings.NewReader("keep"), "text/html"))

	res, err := Publish(ctx, m, dir, Options{Prefix: "catalog", Prune: true})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Deleted)
	assert.NotContains(t, keys(t, m, ""), "catalog/old.html")
	assert.Contains(t, keys(t, m, ""), "other/keep.html")
}

func TestPublish_MissingSite(t *testing.T) {
	_, err := Publish(context.Background(), NewMemory(), filepath.Join(t.TempDir(), "_site"), Options{})
	assert.ErrorContains(t, err, "run build first")
}

func TestFilesystemStore(t *testing.T) {
	root := filepath.Join(t.TempDir(), "publish")
	fs, err := NewFilesystem(root)
	require.NoError(t, err)
	assert.Equal(t, DriverFilesystem, fs.Driver())

	res, err := Publish(context.Background(), fs, siteDir(t), Options{})
	require.NoError(t, err)
	assert.Equal(t, 6, res.Uploaded)

	data, err := os.ReadFile(filepath.Join(root, "css", "style.css"))
	require.NoError(t, err)
	assert.Equal(t, "body{}", string(data))
	assert.Len(t, keys(t, fs, "products"), 2)

	require.NoError(t, fs.Delete(context.Background(), "css/style.css"))
	require.NoError(t, fs.Delete(context.Background(), "css/style.css"), "deleting twice is fine")
	assert.NotContains(t, keys(t, fs, ""), "css/style.css")
}

func TestInvalidKeys(t *testing.T) {
	m := NewMemory()
	fs, err := NewFilesystem(t.TempDir())
	require.NoError(t, err)
	for _, key := range []string{"", "/abs", "../escape", "a/../../b", "a//b", `a\b`} {
		assert.ErrorIs(t, m.Put(context.Background(), key, strings.NewReader("x"), ""), ErrInvalidKey, key)
		assert.ErrorIs(t, fs.Put(context.Background(), key, strings.NewReader("x"), ""), ErrInvalidKey, key)
	}
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	s, err := Open(ctx, config.PublishConfig{Driver: "memory"}, "")
	require.NoError(t, err)
	assert.Equal(t, DriverMemory, s.Driver())

	s, err = Open(ctx, config.PublishConfig{Driver: "fs"}, t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, DriverFilesystem, s.Driver())

	_, err = Open(ctx, config.PublishConfig{Driver: "s3"}, "")
	assert.ErrorContains(t, err, "bucket required")

	_, err = Open(ctx, config.PublishConfig{Driver: "ftp"}, "")
	assert.Error(t, err)
}

// fakeS3 serves the path-style subset of the S3 API the publisher uses.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string]string
	types   map[string]string
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	parts := strings.SplitN(strings.TrimPrefix(r.URL.Path, "/"), "/", 2)
	if parts[0] != "site-bucket" {
		http.Error(w, "no such bucket", http.StatusNotFound)
		return
	}
	key := ""
	if len(parts) == 2 {
		key = parts[1]
	}

	switch {
	case r.Method == http.MethodGet && r.URL.Query().Get("list-type") == "2":
		prefix := r.URL.Query().Get("prefix")
		var ks []string
		for k := range f.objects {
			if strings.HasPrefix(k, prefix) {
				ks = append(ks, k)
			}
		}
		sort.Strings(ks)
		var b strings.Builder
		b.WriteString(`<?xml version="1.0" encoding="UTF-8"?><ListBucketResult><Name>site-bucket</Name><IsTruncated>false</IsTruncated>`)
		fmt.Fprintf(&b, "<KeyCount>%d</KeyCount>", len(ks))
		for _, k := range ks {
			fmt.Fprintf(&b, "<Contents><Key>%s</Key><Size>%d</Size><LastModified>2025-01-01T00:00:00Z</LastModified></Contents>", k, len(f.objects[k]))
		}
		b.WriteString("</ListBucketResult>")
		w.Header().Set("Content-Type", "application/xml")
		io.WriteString(w, b.String())
	case r.Method == http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		f.objects[key] = string(body)
		f.types[key] = r.Header.Get("Content-Type")
		w.Header().Set("ETag", `"etag"`)
	case r.Method == http.MethodDelete:
		delete(f.objects, key)
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "not implemented", http.StatusNotImplemented)
	}
}

func TestS3Store(t *testing.T) {
	fake := &fakeS3{objects: map[string]string{"site/stale.html": "old"}, types: map[string]string{}}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	ctx := context.Background()
	s, err := NewS3(ctx, S3Config{
		Bucket:      "site-bucket",
		Region:      "eu-west-1",
		Endpoint:    srv.URL,
		PathStyle:   true,
		Credentials: credentials.NewStaticCredentialsProvider("AKID", "SECRET", ""),
		HTTPClient:  srv.Client(),
	})
	require.NoError(t, err)
	assert.Equal(t, DriverS3, s.Driver())

	res, err := Publish(ctx, s, siteDir(t), Options{Prefix: "site", Prune: true})
	require.NoError(t, err)
	assert.Equal(t, 6, res.Uploaded)
	assert.Equal(t, 1, res.Deleted)

	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.Equal(t, "<h1>catalog</h1>", fake.objects["site/index.html"])
	assert.Equal(t, "application/json", fake.types["site/products.json"])
	assert.NotContains(t, fake.objects, "site/stale.html")
	assert.Len(t, fake.objects, 6)
}
