package site

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"obiscatalog/internal/catalog"
	"obiscatalog/internal/logging"
)

// frontMatter is the YAML header a content page may start with.
type frontMatter struct {
	Title     string `yaml:"title"`
	Permalink string `yaml:"permalink"`
}

// splitFrontMatter separates a leading "---" YAML block from the body.
func splitFrontMatter(src []byte) (frontMatter, []byte, error) {
	var fm frontMatter
	normalized := bytes.ReplaceAll(src, []byte("\r\n"), []byte("\n"))
	if !bytes.HasPrefix(normalized, []byte("---\n")) {
		return fm, src, nil
	}
	rest := normalized[4:]
	end := bytes.Index(rest, []byte("\n---"))
	if end < 0 {
		return fm, src, nil
	}
	if err := yaml.Unmarshal(rest[:end], &fm); err != nil {
		return fm, nil, fmt.Errorf("front matter: %w", err)
	}
	body := rest[end+len("\n---"):]
	if i := bytes.IndexByte(body, '\n'); i >= 0 {
		body = body[i+1:]
	} else {
		body = nil
	}
	return fm, body, nil
}

// skipDir reports whether a directory of the input tree holds no content pages.
func (r *Renderer) skipDir(path string) bool {
	name := filepath.Base(path)
	if path != r.opts.InputDir && (strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_") || name == "node_modules") {
		return true
	}
	for _, excluded := range []string{r.opts.OutputDir, r.opts.IncludesDir, r.opts.DataDir} {
		if excluded != "" && filepath.Clean(path) == filepath.Clean(excluded) {
			return true
		}
	}
	for _, p := range r.opts.Passthrough {
		if filepath.Clean(path) == filepath.Join(r.opts.InputDir, p) {
			return true
		}
	}
	return false
}

// contentTarget maps "about.md" to "about/index.html" and "docs/index.md"
// to "docs/index.html".
func contentTarget(rel string, fm frontMatter) string {
	if fm.Permalink != "" {
		p := strings.TrimPrefix(fm.Permalink, "/")
		if p == "" || strings.HasSuffix(p, "/") {
			p += "index.html"
		}
		return filepath.FromSlash(p)
	}
	base := strings.TrimSuffix(rel, filepath.Ext(rel))
	if filepath.Base(base) == "index" {
		return base + ".html"
	}
	return filepath.Join(base, "index.html")
}

// renderContent renders markdown pages through the layout and copies html
// pages through. Generated catalog pages win over content pages at the same path.
func (r *Renderer) renderContent(c *catalog.Collections, generated map[string]bool) (int, int, error) {
	if r.opts.InputDir == "" {
		return 0, 0, nil
	}
	if _, err := os.Stat(r.opts.InputDir); errors.Is(err, fs.ErrNotExist) {
		return 0, 0, nil
	}

	rendered, copied := 0, 0
	err := filepath.WalkDir(r.opts.InputDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if r.skipDir(path) {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(r.opts.InputDir, path)
		if err != nil {
			return err
		}
		ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
		switch {
		case ext == "md" && r.supports("md"):
			target, err := r.renderMarkdown(c, path, rel, generated)
			if err != nil {
				return err
			}
			if target != "" {
				rendered++
			}
		case ext == "html" && r.supports("html"):
			if generated[filepath.ToSlash(rel)] {
				logging.RenderDebug("content %s shadowed by generated page", rel)
				return nil
			}
			if err := copyFile(path, filepath.Join(r.opts.OutputDir, rel)); err != nil {
				return err
			}
			copied++
		}
		return nil
	})
	if err != nil {
		return rendered, copied, fmt.Errorf("render content: %w", err)
	}
	return rendered, copied, nil
}

func (r *Renderer) renderMarkdown(c *catalog.Collections, path, rel string, generated map[string]bool) (string, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	fm, body, err := splitFrontMatter(src)
	if err != nil {
		return "", fmt.Errorf("%s: %w", rel, err)
	}
	target := contentTarget(rel, fm)
	if generated[filepath.ToSlash(target)] {
		logging.RenderDebug("content %s shadowed by generated page %s", rel, target)
		return "", nil
	}

	var buf bytes.Buffer
	if err := r.md.Convert(body, &buf); err != nil {
		return "", fmt.Errorf("markdown %s: %w", rel, err)
	}
	title := fm.Title
	if title == "" {
		title = strings.TrimSuffix(filepath.Base(rel), filepath.Ext(rel))
	}

	var out bytes.Buffer
	data := &pageData{
		Site:        siteData{Title: r.opts.SiteTitle, Prefix: r.opts.PathPrefix, Built: r.opts.Now()},
		Title:       title,
		Collections: c,
		Content:     template.HTML(buf.String()),
	}
	if err := r.pages["content"].ExecuteTemplate(&out, "layout", data); err != nil {
		return "", fmt.Errorf("render %s: %w", rel, err)
	}
	if err := r.writeOutput(target, out.Bytes()); err != nil {
		return "", err
	}
	return target, nil
}

// copyPassthrough copies the configured input directories verbatim.
func (r *Renderer) copyPassthrough() (int, error) {
	if r.opts.InputDir == "" {
		return 0, nil
	}
	n := 0
	for _, dir := range r.opts.Passthrough {
		src := filepath.Join(r.opts.InputDir, dir)
		info, err := os.Stat(src)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return n, err
		}
		if !info.IsDir() {
			if err := copyFile(src, filepath.Join(r.opts.OutputDir, dir)); err != nil {
				return n, err
			}
			n++
			continue
		}
		err = filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
			if err != nil || d.IsDir() {
				return err
			}
			rel, err := filepath.Rel(r.opts.InputDir, path)
			if err != nil {
				return err
			}
			if err := copyFile(path, filepath.Join(r.opts.OutputDir, rel)); err != nil {
				return err
			}
			n++
			return nil
		})
		if err != nil {
			return n, fmt.Errorf("passthrough %s: %w", dir, err)
		}
	}
	return n, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
