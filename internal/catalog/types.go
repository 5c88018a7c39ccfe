// Package catalog builds the product collections the site is rendered from.
//
// A build reads a directory of per-product JSON records plus one OBIS node
// reference file and produces the flat product list (newest first) and three
// groupings: by institution, by category and by node. Groupings are rebuilt
// from scratch on every run and share the same read-only *Product values.
package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// ID is an identifier that may be written as a JSON string or number.
type ID string

// UnmarshalJSON accepts "abc", 123 and 12.5 alike.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id must be a string or number: %s", data)
	}
	*id = ID(n.String())
	return nil
}

// String returns the identifier as text.
func (id ID) String() string { return string(id) }

// StringList is a sequence of strings that also accepts a bare string.
type StringList []string

// UnmarshalJSON normalizes "x" to ["x"] and null to an empty list.
func (l *StringList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0 || bytes.Equal(data, []byte("null")):
		*l = nil
		return nil
	case data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*l = StringList{s}
		return nil
	}
	var items []string
	if err := json.Unmarshal(data, &items); err != nil {
		return fmt.Errorf("expected string or list of strings: %w", err)
	}
	*l = items
	return nil
}

// Institution is a product's institution reference.
type Institution struct {
	ID   ID     `json:"id"`
	Name string `json:"name"`
}

// NodeRef is a product's reference to an OBIS node.
type NodeRef struct {
	ID   ID     `json:"id"`
	Name string `json:"name,omitempty"`
}

// Product is one cataloged research data product.
type Product struct {
	ZenodoID        ID            `json:"zenodo_id"`
	URL             string        `json:"url"`
	PublicationDate string        `json:"publication_date,omitempty"`
	Institutions    []Institution `json:"institutions,omitempty"`
	OBISNodes       []NodeRef     `json:"obis_nodes,omitempty"`
	Categories      StringList    `json:"category,omitempty"`

	// schema.org fields surfaced for rendering
	Name        string   `json:"-"`
	Description string   `json:"-"`
	Type        string   `json:"-"`
	DOI         string   `json:"-"`
	License     string   `json:"-"`
	Keywords    []string `json:"-"`
	Creators    []string `json:"-"`

	// Published is the parsed publication date; zero when absent or unparseable.
	Published time.Time `json:"-"`

	// Fields holds the full decoded record, including fields this package does not model.
	Fields map[string]any `json:"-"`

	// SourceFile is the file the record was read from.
	SourceFile string `json:"-"`
}

// HasDate reports whether the product has a usable publication date.
func (p *Product) HasDate() bool {
	return !p.Published.IsZero()
}

// NodeIDs returns the ids of the nodes the product references, in record order.
func (p *Product) NodeIDs() []string {
	ids := make([]string, 0, len(p.OBISNodes))
	for _, n := range p.OBISNodes {
		ids = append(ids, n.ID.String())
	}
	return ids
}

// InstitutionIDs returns the ids of the product's institutions, in record order.
func (p *Product) InstitutionIDs() []string {
	ids := make([]string, 0, len(p.Institutions))
	for _, inst := range p.Institutions {
		ids = append(ids, inst.ID.String())
	}
	return ids
}

// PrimaryCategory is the single category a product card is tagged with.
func (p *Product) PrimaryCategory() string {
	if len(p.Categories) == 0 {
		return ""
	}
	return p.Categories[0]
}

// Title returns the display name, falling back to the zenodo id.
func (p *Product) Title() string {
	if p.Name != "" {
		return p.Name
	}
	return p.ZenodoID.String()
}

// productURL derives the site-relative page address of a product.
func productURL(id ID) string {
	return "/products/" + id.String() + "/"
}

// Node is one declared OBIS node from the reference file.
type Node struct {
	ID   ID
	Name string
	// Fields holds every field of the reference record.
	Fields map[string]any
}

// Field returns a metadata field rendered as text, or "".
func (n *Node) Field(key string) string {
	v, ok := n.Fields[key]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(t)
	}
}

// InstitutionGroup collects the products of one institution.
type InstitutionGroup struct {
	ID       ID
	Name     string
	Products []*Product
}

// CategoryGroup collects the products of one category.
type CategoryGroup struct {
	Name     string
	Products []*Product
}

// NodeGroup collects the products of one declared node.
type NodeGroup struct {
	*Node
	Products []*Product
}
