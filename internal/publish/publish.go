package publish

import (
	"context"
	"fmt"
	"io/fs"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"obiscatalog/internal/logging"
)

// Options controls a publish run.
type Options struct {
	// Prefix is prepended to every key, e.g. "catalog/".
	Prefix string
	// Prune deletes objects under Prefix that the site no longer contains.
	Prune bool
}

// Result counts what Publish did.
type Result struct {
	Uploaded int
	Deleted  int
	Bytes    int64
	Duration time.Duration
}

// ContentType returns the MIME type for a file name.
func ContentType(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	switch ext {
	case ".html", ".htm":
		return "text/html; charset=utf-8"
	case ".json":
		return "application/json"
	case ".js":
		return "text/javascript; charset=utf-8"
	case ".css":
		return "text/css; charset=utf-8"
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return "application/octet-stream"
}

// Publish uploads every file under dir to store.
func Publish(ctx context.Context, store Store, dir string, opts Options) (*Result, error) {
	start := time.Now()
	res := &Result{}
	prefix := normalizePrefix(opts.Prefix)
	logging.Publish("publishing %s to %s store (prefix %q)", dir, store.Driver(), prefix)

	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("site directory %s not found; run build first", dir)
	}

	uploaded := make(map[string]bool)
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		key := path.Join(prefix, filepath.ToSlash(rel))

		f, err := os.Open(p)
		if err != nil {
			return err
		}
		defer f.Close()
		fi, err := f.Stat()
		if err != nil {
			return err
		}
		if err := store.Put(ctx, key, f, ContentType(p)); err != nil {
			return fmt.Errorf("upload %s: %w", key, err)
		}
		uploaded[key] = true
		res.Uploaded++
		res.Bytes += fi.Size()
		logging.Publish("uploaded %s", key)
		return nil
	})
	if err != nil {
		return res, err
	}

	if opts.Prune {
		existing, err := store.List(ctx, prefix)
		if err != nil {
			return res, err
		}
		for _, obj := range existing {
			if uploaded[obj.Key] {
				continue
			}
			if err := store.Delete(ctx, obj.Key); err != nil {
				return res, fmt.Errorf("prune %s: %w", obj.Key, err)
			}
			res.Deleted++
			logging.Publish("deleted stale %s", obj.Key)
		}
	}

	res.Duration = time.Since(start)
	logging.Audit().Publish(string(store.Driver()), res.Uploaded, res.Deleted, res.Bytes, res.Duration, nil)
	logging.Publish("published %d files (%d bytes), pruned %d in %s", res.Uploaded, res.Bytes, res.Deleted, res.Duration)
	return res, nil
}

func normalizePrefix(p string) string {
	p = strings.Trim(strings.TrimSpace(p), "/")
	if p == "" {
		return ""
	}
	return p + "/"
}
