package catalog

import (
	"fmt"
	"slices"
	"time"

	"obiscatalog/internal/logging"
)

// Options locates the build inputs.
type Options struct {
	ProductsDir string
	NodesFile   string
	// ValidateSchema checks every product against the embedded JSON Schema.
	ValidateSchema bool
}

// Collections is the result of one build. It is not modified after Build returns.
type Collections struct {
	Products      []*Product
	ByInstitution []*InstitutionGroup
	ByCategory    []*CategoryGroup
	ByNode        []*NodeGroup
	Nodes         *NodeIndex
}

// Build loads the node reference and the products once. Groupings follow the
// directory order the products were loaded in; Products is sorted newest first.
func Build(opts Options) (*Collections, error) {
	start := time.Now()

	loader := &Loader{}
	if opts.ValidateSchema {
		schema, err := NewSchema()
		if err != nil {
			return nil, err
		}
		loader.Schema = schema
	}

	nodes, err := LoadNodes(opts.NodesFile)
	if err != nil {
		return nil, fmt.Errorf("build: %w", err)
	}
	products, err := loader.LoadProducts(opts.ProductsDir)
	if err != nil {
		return nil, fmt.Errorf("build: %w", err)
	}
	sorted := slices.Clone(products)
	SortProducts(sorted)

	c := &Collections{
		Products:      sorted,
		ByInstitution: GroupByInstitution(products),
		ByCategory:    GroupByCategory(products),
		ByNode:        GroupByNode(products, nodes),
		Nodes:         nodes,
	}
	logging.Build("built %d products, %d institutions, %d categories, %d nodes in %s",
		len(c.Products), len(c.ByInstitution), len(c.ByCategory), len(c.ByNode), time.Since(start))
	logging.Audit().Build(len(c.Products), len(c.ByInstitution), len(c.ByCategory), len(c.ByNode), time.Since(start), nil)
	return c, nil
}

// Find returns the product with the given zenodo id.
func (c *Collections) Find(zenodoID string) (*Product, bool) {
	for _, p := range c.Products {
		if p.ZenodoID.String() == zenodoID {
			return p, true
		}
	}
	return nil, false
}

// Institution returns the institution group with the given id.
func (c *Collections) Institution(id string) (*InstitutionGroup, bool) {
	for _, g := range c.ByInstitution {
		if g.ID.String() == id {
			return g, true
		}
	}
	return nil, false
}

// Category returns the category group with the given name.
func (c *Collections) Category(name string) (*CategoryGroup, bool) {
	for _, g := range c.ByCategory {
		if g.Name == name {
			return g, true
		}
	}
	return nil, false
}

// Node returns the group of a declared node.
func (c *Collections) Node(id string) (*NodeGroup, bool) {
	for _, g := range c.ByNode {
		if g.ID.String() == id {
			return g, true
		}
	}
	return nil, false
}
