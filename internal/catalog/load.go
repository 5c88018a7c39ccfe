package catalog

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"obiscatalog/internal/logging"
)

// dateLayouts are tried in order when parsing publication dates.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
	"2006-01",
	"2006",
}

// ParseDate parses a publication date. It returns the zero time when s is
// empty or matches none of the accepted layouts.
func ParseDate(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// Loader reads product and node files. The zero value loads without schema validation.
type Loader struct {
	Schema *Schema
}

// LoadProducts reads every product in dir without schema validation.
func LoadProducts(dir string) ([]*Product, error) {
	return (&Loader{}).LoadProducts(dir)
}

// LoadProducts reads every *.json file in dir, in lexical file name order.
// A missing directory yields an empty slice.
func (l *Loader) LoadProducts(dir string) ([]*Product, error) {
	names, err := productFiles(dir)
	if err != nil {
		if errors.Is(err, ErrMissingInput) {
			logging.BuildDebug("products directory %s not found, continuing with no products", dir)
			return []*Product{}, nil
		}
		return nil, err
	}

	products := make([]*Product, 0, len(names))
	for _, name := range names {
		path := filepath.Join(dir, name)
		p, err := l.loadProduct(path)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	logging.Build("loaded %d products from %s", len(products), dir)
	return products, nil
}

func productFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrMissingInput, dir)
		}
		return nil, fmt.Errorf("read products dir %s: %w", dir, err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		names = append(names, e.Name())
	}
	// os.ReadDir already sorts by name; keep the order explicit.
	sort.Strings(names)
	return names, nil
}

func (l *Loader) loadProduct(path string) (*Product, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read product %s: %w", path, err)
	}
	return l.decodeProduct(path, data)
}

func (l *Loader) decodeProduct(path string, data []byte) (*Product, error) {
	raw, err := decodeObject(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedInput, path, err)
	}
	if l.Schema != nil {
		if err := l.Schema.Validate(raw); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformedInput, path, err)
		}
	}

	p := &Product{}
	if err := json.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedInput, path, err)
	}
	if err := checkZenodoID(p.ZenodoID); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedInput, path, err)
	}
	if p.Categories == nil {
		p.Categories = StringList{}
	}
	p.URL = productURL(p.ZenodoID)
	p.Published = ParseDate(p.PublicationDate)
	p.Fields = raw
	p.SourceFile = path
	applySchemaOrg(p, raw)
	return p, nil
}

// checkZenodoID rejects ids that cannot name a product page directory.
func checkZenodoID(id ID) error {
	s := id.String()
	switch {
	case strings.TrimSpace(s) == "":
		return errors.New("missing zenodo_id")
	case s == "." || s == "..", strings.ContainsAny(s, `/\`):
		return fmt.Errorf("zenodo_id %q is not a single path segment", s)
	}
	return nil
}

// decodeObject decodes a JSON object keeping numbers as json.Number.
func decodeObject(data []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("expected a JSON object, got %T", v)
	}
	return obj, nil
}

// NodeIndex is the declared node lookup, keyed by id and kept in declaration order.
type NodeIndex struct {
	order []ID
	byID  map[ID]*Node
}

// NewNodeIndex indexes nodes. When an id is declared twice the later metadata
// wins but the node keeps its first position.
func NewNodeIndex(nodes []*Node) *NodeIndex {
	ix := &NodeIndex{byID: make(map[ID]*Node, len(nodes))}
	for _, n := range nodes {
		if _, seen := ix.byID[n.ID]; !seen {
			ix.order = append(ix.order, n.ID)
		}
		ix.byID[n.ID] = n
	}
	return ix
}

// Lookup returns the node declared with id.
func (ix *NodeIndex) Lookup(id string) (*Node, bool) {
	if ix == nil {
		return nil, false
	}
	n, ok := ix.byID[ID(id)]
	return n, ok
}

// Nodes returns the declared nodes in declaration order.
func (ix *NodeIndex) Nodes() []*Node {
	if ix == nil {
		return nil
	}
	out := make([]*Node, 0, len(ix.order))
	for _, id := range ix.order {
		out = append(out, ix.byID[id])
	}
	return out
}

// Len returns the number of declared nodes.
func (ix *NodeIndex) Len() int {
	if ix == nil {
		return 0
	}
	return len(ix.order)
}

// LoadNodes reads the node reference file. The file holds either a bare array
// of nodes or an object with a "results" array. A missing file yields an
// empty index.
func LoadNodes(path string) (*NodeIndex, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			logging.BuildDebug("%v: node reference %s, continuing with no nodes", ErrMissingInput, path)
			return NewNodeIndex(nil), nil
		}
		return nil, fmt.Errorf("read nodes %s: %w", path, err)
	}
	nodes, err := decodeNodes(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedInput, path, err)
	}
	ix := NewNodeIndex(nodes)
	logging.Build("loaded %d nodes from %s", ix.Len(), path)
	return ix, nil
}

func decodeNodes(data []byte) ([]*Node, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}

	var items []any
	switch t := v.(type) {
	case []any:
		items = t
	case map[string]any:
		results, ok := t["results"].([]any)
		if !ok {
			return nil, fmt.Errorf(`expected an array or an object with a "results" array`)
		}
		items = results
	default:
		return nil, fmt.Errorf("expected an array or object, got %T", v)
	}

	nodes := make([]*Node, 0, len(items))
	for i, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("node %d: expected an object, got %T", i, item)
		}
		id := idFrom(obj["id"])
		if id == "" {
			logging.BuildDebug("skipping node %d without id", i)
			continue
		}
		nodes = append(nodes, &Node{
			ID:     id,
			Name:   joinText(obj["name"]),
			Fields: obj,
		})
	}
	return nodes, nil
}

func idFrom(v any) ID {
	switch t := v.(type) {
	case string:
		return ID(t)
	case json.Number:
		return ID(t.String())
	}
	return ""
}
