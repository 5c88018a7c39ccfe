package harvest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/go-cmp/cmp"
)

// SafeID derives the product id and file name from a DOI.
func SafeID(doi string) string {
	return strings.NewReplacer("/", "_", ".", "_").Replace(doi)
}

// BuildRecord completes a scraped schema.org object into a product record:
// mapped nodes and institutions, zenodo_id, publication_date and a category list.
func BuildRecord(doi string, data map[string]any, mappings []Mapping) map[string]any {
	if m := findMapping(mappings, doi); m != nil {
		if len(m.OBISNodes) > 0 {
			data["obis_nodes"] = m.OBISNodes
		}
		if len(m.Institutions) > 0 {
			data["institutions"] = m.Institutions
		}
	}

	data["zenodo_id"] = SafeID(doi)
	if published, ok := data["datePublished"].(string); ok {
		data["publication_date"] = published
	} else {
		data["publication_date"] = ""
	}
	data["category"] = categoryList(data)
	return data
}

// categoryList returns the existing category, else @type, else Other, as a list.
func categoryList(data map[string]any) []any {
	v := data["category"]
	if isEmpty(v) {
		v = data["@type"]
	}
	switch t := v.(type) {
	case []any:
		if len(t) > 0 {
			return t
		}
	case string:
		if t != "" {
			return []any{t}
		}
	case nil:
	default:
		return []any{t}
	}
	return []any{"Other"}
}

func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case []any:
		return len(t) == 0
	}
	return false
}

// ignoredFields do not count as a change when comparing with a saved record.
var ignoredFields = []string{"zenodo_id", "publication_date"}

// SaveResult reports what SaveProduct did.
type SaveResult int

const (
	Saved SaveResult = iota
	Unchanged
)

// SaveProduct writes record to dir/{id}.json with two-space indentation.
// Unless force is set, an existing file whose content equals record apart
// from zenodo_id and publication_date is left alone.
func SaveProduct(dir, id string, record map[string]any, force bool) (SaveResult, string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return Saved, "", fmt.Errorf("create products dir: %w", err)
	}
	path := filepath.Join(dir, id+".json")

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(record); err != nil {
		return Saved, path, fmt.Errorf("encode %s: %w", id, err)
	}

	if !force {
		same, err := sameAsExisting(path, buf.Bytes())
		if err != nil {
			return Saved, path, err
		}
		if same {
			return Unchanged, path, nil
		}
	}

	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return Saved, path, fmt.Errorf("write %s: %w", path, err)
	}
	return Saved, path, nil
}

func sameAsExisting(path string, encoded []byte) (bool, error) {
	existing, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("read %s: %w", path, err)
	}
	old, err := decodeCore(existing)
	if err != nil {
		// an unreadable existing file is simply replaced
		return false, nil
	}
	cur, err := decodeCore(encoded)
	if err != nil {
		return false, err
	}
	return cmp.Equal(old, cur), nil
}

func decodeCore(data []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return nil, err
	}
	for _, k := range ignoredFields {
		delete(m, k)
	}
	return m, nil
}
