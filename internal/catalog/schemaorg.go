package catalog

import (
	"encoding/json"
	"strings"
)

// applySchemaOrg fills the rendering fields of p from the schema.org
// properties carried in the raw record.
func applySchemaOrg(p *Product, raw map[string]any) {
	p.Name = joinText(raw["name"])
	p.Description = joinText(raw["description"])
	p.Type = firstText(raw["@type"])
	p.License = licenseText(raw["license"])
	p.Keywords = keywordList(raw["keywords"])
	p.Creators = creatorNames(raw["creator"])
	p.DOI = findDOI(raw)
}

// joinText renders a string or list of strings as one space-joined string.
func joinText(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case []any:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			if s := joinText(item); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, " ")
	case json.Number:
		return t.String()
	}
	return ""
}

func firstText(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []any:
		for _, item := range t {
			if s, ok := item.(string); ok && s != "" {
				return s
			}
		}
	}
	return ""
}

func licenseText(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case map[string]any:
		if s := firstText(t["url"]); s != "" {
			return s
		}
		return firstText(t["name"])
	case []any:
		for _, item := range t {
			if s := licenseText(item); s != "" {
				return s
			}
		}
	}
	return ""
}

// keywordList accepts "a, b" or ["a", "b"].
func keywordList(v any) []string {
	var out []string
	add := func(s string) {
		for _, part := range strings.Split(s, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	switch t := v.(type) {
	case string:
		add(t)
	case []any:
		for _, item := range t {
			if s, ok := item.(string); ok {
				add(s)
			}
		}
	}
	return out
}

func creatorNames(v any) []string {
	var out []string
	switch t := v.(type) {
	case string:
		if t != "" {
			out = append(out, t)
		}
	case map[string]any:
		if name := joinText(t["name"]); name != "" {
			out = append(out, name)
		} else if given, family := joinText(t["givenName"]), joinText(t["familyName"]); given != "" || family != "" {
			out = append(out, strings.TrimSpace(given+" "+family))
		}
	case []any:
		for _, item := range t {
			out = append(out, creatorNames(item)...)
		}
	}
	return out
}

// findDOI returns the first doi.org link found in @id, identifier, sameAs or url.
// Bare DOIs ("10.5281/...") are expanded to a resolver link.
func findDOI(raw map[string]any) string {
	for _, key := range []string{"@id", "identifier", "sameAs", "url"} {
		if doi := doiFrom(raw[key]); doi != "" {
			return doi
		}
	}
	return ""
}

func doiFrom(v any) string {
	switch t := v.(type) {
	case string:
		return normalizeDOI(t)
	case map[string]any:
		if doi := doiFrom(t["value"]); doi != "" {
			return doi
		}
		return doiFrom(t["@id"])
	case []any:
		for _, item := range t {
			if doi := doiFrom(item); doi != "" {
				return doi
			}
		}
	}
	return ""
}

func normalizeDOI(s string) string {
	s = strings.TrimSpace(s)
	lower := strings.ToLower(s)
	switch {
	case strings.Contains(lower, "doi.org/"):
		return s
	case strings.HasPrefix(lower, "doi:"):
		return "https://doi.org/" + strings.TrimSpace(s[len("doi:"):])
	case strings.HasPrefix(s, "10.") && strings.Contains(s, "/"):
		return "https://doi.org/" + s
	}
	return ""
}
