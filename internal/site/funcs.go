package site

import (
	"html/template"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/net/html"

	"obiscatalog/internal/catalog"
)

// ReadableDateLayout renders dates as "05 Mar 2024".
const ReadableDateLayout = "02 Jan 2006"

// ReadableDate formats a date string or time as dd Mon yyyy. Empty or
// unparseable input renders as "".
func ReadableDate(v any) string {
	var t time.Time
	switch d := v.(type) {
	case time.Time:
		t = d
	case *time.Time:
		if d != nil {
			t = *d
		}
	case string:
		t = catalog.ParseDate(d)
	}
	if t.IsZero() {
		return ""
	}
	return t.Format(ReadableDateLayout)
}

var (
	slugInvalid = regexp.MustCompile(`[^a-z0-9]+`)
	blockBreak  = regexp.MustCompile(`(?i)</p>|<br\s*/?>`)
)

// Slug turns a group key into a URL path segment.
func Slug(s string) string {
	s = slugInvalid.ReplaceAllString(strings.ToLower(s), "-")
	s = strings.Trim(s, "-")
	if s == "" {
		return "untitled"
	}
	return s
}

// PrefixURL joins a site-absolute path onto the path prefix. Absolute URLs
// and fragments are returned unchanged.
func PrefixURL(prefix, path string) string {
	if strings.Contains(path, "://") || strings.HasPrefix(path, "#") || strings.HasPrefix(path, "mailto:") {
		return path
	}
	if prefix == "" {
		prefix = "/"
	}
	return strings.TrimSuffix(prefix, "/") + "/" + strings.TrimPrefix(path, "/")
}

// bareDOI strips the resolver from a DOI link.
func bareDOI(link string) string {
	for _, p := range []string{"https://doi.org/", "http://doi.org/", "https://dx.doi.org/", "http://dx.doi.org/"} {
		if strings.HasPrefix(strings.ToLower(link), p) {
			return link[len(p):]
		}
	}
	return link
}

// plainText drops markup from an HTML fragment and collapses whitespace.
func plainText(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return strings.Join(strings.Fields(s), " ")
	}
	var sb strings.Builder
	z := html.NewTokenizer(strings.NewReader(s))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return strings.Join(strings.Fields(sb.String()), " ")
		case html.TextToken:
			sb.Write(z.Text())
		case html.StartTagToken, html.EndTagToken, html.SelfClosingTagToken:
			sb.WriteByte(' ')
		}
	}
}

// paragraphs splits an HTML or plain-text description into text paragraphs.
func paragraphs(s string) []string {
	if strings.ContainsAny(s, "<") {
		s = blockBreak.ReplaceAllString(s, "\n\n")
	}
	var out []string
	for _, block := range strings.Split(s, "\n\n") {
		if text := plainText(block); text != "" {
			out = append(out, text)
		}
	}
	return out
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	cut := strings.TrimRightFunc(string(runes[:n]), func(r rune) bool { return r == ' ' })
	return cut + "…"
}

func (r *Renderer) funcMap() template.FuncMap {
	return template.FuncMap{
		"url":          func(path string) string { return PrefixURL(r.opts.PathPrefix, path) },
		"readableDate": ReadableDate,
		"join":         strings.Join,
		"doi":          bareDOI,
		"plain":        plainText,
		"paragraphs":   paragraphs,
		"truncate":     truncate,
	}
}
