// Package site renders the catalog collections into a static web site.
package site

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	gmhtml "github.com/yuin/goldmark/renderer/html"

	"obiscatalog/internal/catalog"
	"obiscatalog/internal/config"
	"obiscatalog/internal/filter"
	"obiscatalog/internal/logging"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed assets/filter.js assets/style.css
var assetFS embed.FS

// embeddedAssets maps output paths to embedded asset files.
var embeddedAssets = map[string]string{
	"js/filter.js":  "assets/filter.js",
	"css/style.css": "assets/style.css",
}

// pageTemplates lists the page bodies rendered into the layout.
var pageTemplates = []string{"index", "product", "group", "list", "content"}

// Options controls rendering.
type Options struct {
	PathPrefix      string
	SiteTitle       string
	InputDir        string
	OutputDir       string
	IncludesDir     string
	DataDir         string
	Passthrough     []string
	TemplateFormats []string
	// Now stamps the build; defaults to time.Now.
	Now func() time.Time
}

// OptionsFromConfig derives render options from the site configuration.
func OptionsFromConfig(cfg *config.Config, paths config.Paths) Options {
	return Options{
		PathPrefix:      cfg.PathPrefix,
		SiteTitle:       cfg.SiteTitle,
		InputDir:        paths.Input,
		OutputDir:       paths.Output,
		IncludesDir:     paths.Includes,
		DataDir:         paths.Data,
		Passthrough:     cfg.Passthrough,
		TemplateFormats: cfg.TemplateFormats,
	}
}

// Renderer writes the site for one set of collections.
type Renderer struct {
	opts  Options
	pages map[string]*template.Template
	md    goldmark.Markdown
}

// Result counts what a render wrote.
type Result struct {
	Pages        int
	ContentPages int
	Copied       int
	Assets       int
}

// New parses the embedded templates plus any *.html overrides found in the
// includes directory.
func New(opts Options) (*Renderer, error) {
	if opts.OutputDir == "" {
		return nil, fmt.Errorf("site: output directory required")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	r := &Renderer{
		opts:  opts,
		pages: make(map[string]*template.Template),
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithParserOptions(parser.WithAutoHeadingID()),
			goldmark.WithRendererOptions(gmhtml.WithUnsafe()),
		),
	}

	base, err := template.New("layout").Funcs(r.funcMap()).ParseFS(templateFS, "templates/layout.html")
	if err != nil {
		return nil, fmt.Errorf("parse layout: %w", err)
	}
	if overrides, _ := filepath.Glob(filepath.Join(opts.IncludesDir, "*.html")); opts.IncludesDir != "" && len(overrides) > 0 {
		if base, err = base.ParseFiles(overrides...); err != nil {
			return nil, fmt.Errorf("parse includes: %w", err)
		}
		logging.RenderDebug("parsed %d include overrides from %s", len(overrides), opts.IncludesDir)
	}

	for _, name := range pageTemplates {
		t, err := base.Clone()
		if err != nil {
			return nil, err
		}
		if _, err := t.ParseFS(templateFS, "templates/"+name+".html"); err != nil {
			return nil, fmt.Errorf("parse %s template: %w", name, err)
		}
		r.pages[name] = t
	}
	return r, nil
}

func (r *Renderer) supports(format string) bool {
	for _, f := range r.opts.TemplateFormats {
		if strings.EqualFold(f, format) {
			return true
		}
	}
	return false
}

// siteData is available to every page as .Site.
type siteData struct {
	Title  string
	Prefix string
	Built  time.Time
}

// FacetOption is one checkbox value of the index page filters.
type FacetOption struct {
	Value string
	Label string
	Count int
}

// FacetBlock is one filter fieldset of the index page.
type FacetBlock struct {
	Facet   filter.Facet
	Label   string
	Options []FacetOption
}

// Link is an entry of a list page.
type Link struct {
	Href  string
	Label string
	Count int
}

type pageData struct {
	Site        siteData
	Title       string
	Collections *catalog.Collections
	Product     *catalog.Product
	Node        *catalog.NodeGroup
	Products    []*catalog.Product
	Filters     []FacetBlock
	Links       []Link
	Content     template.HTML

	paths groupPaths
}

// NodeName returns the display name of a declared node, or "".
func (d *pageData) NodeName(id string) string {
	n, ok := d.Collections.Nodes.Lookup(id)
	if !ok {
		return ""
	}
	if n.Name != "" {
		return n.Name
	}
	return n.ID.String()
}

// groupPaths maps group keys to the path segment of their page.
type groupPaths struct {
	institutions map[string]string
	categories   map[string]string
	nodes        map[string]string
}

func newGroupPaths(c *catalog.Collections) groupPaths {
	var insts, cats, nodes []string
	for _, g := range c.ByInstitution {
		insts = append(insts, g.ID.String())
	}
	for _, g := range c.ByCategory {
		cats = append(cats, g.Name)
	}
	for _, g := range c.ByNode {
		nodes = append(nodes, g.ID.String())
	}
	return groupPaths{
		institutions: uniqueSlugs(insts),
		categories:   uniqueSlugs(cats),
		nodes:        uniqueSlugs(nodes),
	}
}

// uniqueSlugs slugs keys in order. A key whose slug is taken gets the first
// free numeric suffix.
func uniqueSlugs(keys []string) map[string]string {
	out := make(map[string]string, len(keys))
	taken := make(map[string]bool, len(keys))
	for _, k := range keys {
		if _, ok := out[k]; ok {
			continue
		}
		base := Slug(k)
		slug := base
		for n := 2; taken[slug]; n++ {
			slug = fmt.Sprintf("%s-%d", base, n)
		}
		taken[slug] = true
		out[k] = slug
	}
	return out
}

func segment(m map[string]string, key string) string {
	if s, ok := m[key]; ok {
		return s
	}
	return Slug(key)
}

// InstitutionHref is the site path of an institution page.
func (d *pageData) InstitutionHref(id string) string {
	return "/institutions/" + segment(d.paths.institutions, id) + "/"
}

// CategoryHref is the site path of a category page.
func (d *pageData) CategoryHref(name string) string {
	return "/categories/" + segment(d.paths.categories, name) + "/"
}

// NodeHref is the site path of a node page.
func (d *pageData) NodeHref(id string) string {
	return "/nodes/" + segment(d.paths.nodes, id) + "/"
}

// Render writes every page for c into the output directory.
func (r *Renderer) Render(c *catalog.Collections) (*Result, error) {
	start := time.Now()
	if err := os.MkdirAll(r.opts.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	res := &Result{}
	generated := make(map[string]bool)
	paths := newGroupPaths(c)

	write := func(rel, tmpl string, data *pageData) error {
		data.Site = siteData{Title: r.opts.SiteTitle, Prefix: r.opts.PathPrefix, Built: r.opts.Now()}
		data.Collections = c
		data.paths = paths
		var buf bytes.Buffer
		if err := r.pages[tmpl].ExecuteTemplate(&buf, "layout", data); err != nil {
			return fmt.Errorf("render %s: %w", rel, err)
		}
		if err := r.writeOutput(rel, buf.Bytes()); err != nil {
			return err
		}
		generated[filepath.ToSlash(rel)] = true
		res.Pages++
		return nil
	}

	if err := write("index.html", "index", &pageData{Filters: FacetBlocks(c)}); err != nil {
		return nil, err
	}

	for _, p := range c.Products {
		rel := filepath.Join("products", p.ZenodoID.String(), "index.html")
		if err := write(rel, "product", &pageData{Title: p.Title(), Product: p}); err != nil {
			return nil, err
		}
	}

	var instLinks, catLinks, nodeLinks []Link
	for _, g := range c.ByInstitution {
		slug := paths.institutions[g.ID.String()]
		title := g.Name
		if title == "" {
			title = g.ID.String()
		}
		if err := write(filepath.Join("institutions", slug, "index.html"), "group", &pageData{Title: title, Products: g.Products}); err != nil {
			return nil, err
		}
		instLinks = append(instLinks, Link{Href: "/institutions/" + slug + "/", Label: title, Count: len(g.Products)})
	}
	for _, g := range c.ByCategory {
		slug := paths.categories[g.Name]
		if err := write(filepath.Join("categories", slug, "index.html"), "group", &pageData{Title: g.Name, Products: g.Products}); err != nil {
			return nil, err
		}
		catLinks = append(catLinks, Link{Href: "/categories/" + slug + "/", Label: g.Name, Count: len(g.Products)})
	}
	for _, g := range c.ByNode {
		slug := paths.nodes[g.ID.String()]
		title := g.Name
		if title == "" {
			title = g.ID.String()
		}
		if err := write(filepath.Join("nodes", slug, "index.html"), "group", &pageData{Title: title, Node: g, Products: g.Products}); err != nil {
			return nil, err
		}
		nodeLinks = append(nodeLinks, Link{Href: "/nodes/" + slug + "/", Label: title, Count: len(g.Products)})
	}

	lists := []struct {
		dir, title string
		links      []Link
	}{
		{"institutions", "Institutions", instLinks},
		{"categories", "Categories", catLinks},
		{"nodes", "OBIS nodes", nodeLinks},
	}
	for _, l := range lists {
		if err := write(filepath.Join(l.dir, "index.html"), "list", &pageData{Title: l.title, Links: l.links}); err != nil {
			return nil, err
		}
	}

	if r.supports("json") {
		if err := r.writeProductsJSON(c); err != nil {
			return nil, err
		}
		res.Assets++
	}

	copied, err := r.copyPassthrough()
	if err != nil {
		return nil, err
	}
	res.Copied += copied

	assets, err := r.writeAssets()
	if err != nil {
		return nil, err
	}
	res.Assets += assets

	content, copiedHTML, err := r.renderContent(c, generated)
	if err != nil {
		return nil, err
	}
	res.ContentPages = content
	res.Copied += copiedHTML

	logging.Render("rendered %d pages, %d content pages, %d copied files, %d assets into %s in %s",
		res.Pages, res.ContentPages, res.Copied, res.Assets, r.opts.OutputDir, time.Since(start))
	logging.Audit().Render(r.opts.OutputDir, res.Pages+res.ContentPages, time.Since(start))
	return res, nil
}

// FacetBlocks lists the filter options of the index page: nodes with products,
// then institutions, then categories, each in collection order.
func FacetBlocks(c *catalog.Collections) []FacetBlock {
	nodes := FacetBlock{Facet: filter.FacetNode, Label: "OBIS nodes"}
	for _, g := range c.ByNode {
		if len(g.Products) == 0 {
			continue
		}
		label := g.Name
		if label == "" {
			label = g.ID.String()
		}
		nodes.Options = append(nodes.Options, FacetOption{Value: g.ID.String(), Label: label, Count: len(g.Products)})
	}
	insts := FacetBlock{Facet: filter.FacetInstitution, Label: "Institutions"}
	for _, g := range c.ByInstitution {
		label := g.Name
		if label == "" {
			label = g.ID.String()
		}
		insts.Options = append(insts.Options, FacetOption{Value: g.ID.String(), Label: label, Count: len(g.Products)})
	}
	cats := FacetBlock{Facet: filter.FacetCategory, Label: "Categories"}
	for _, g := range c.ByCategory {
		cats.Options = append(cats.Options, FacetOption{Value: g.Name, Label: g.Name, Count: len(g.Products)})
	}
	return []FacetBlock{nodes, insts, cats}
}

// Cards returns the filterable card of every product, in collection order,
// carrying the same attributes the rendered cards do.
func Cards(c *catalog.Collections, prefix string) []filter.Card {
	cards := make([]filter.Card, 0, len(c.Products))
	for _, p := range c.Products {
		card := filter.Card{
			Title:        p.Title(),
			Href:         PrefixURL(prefix, p.URL),
			Nodes:        filter.SplitTags(strings.Join(p.NodeIDs(), ",")),
			Institutions: filter.SplitTags(strings.Join(p.InstitutionIDs(), ",")),
			Category:     p.PrimaryCategory(),
			DOI:          p.DOI,
		}
		if !strings.Contains(card.DOI, "doi.org") {
			card.DOI = ""
		}
		cards = append(cards, card)
	}
	return cards
}

// productSummary is one entry of products.json.
type productSummary struct {
	ZenodoID        string                `json:"zenodo_id"`
	URL             string                `json:"url"`
	Name            string                `json:"name,omitempty"`
	DOI             string                `json:"doi,omitempty"`
	PublicationDate string                `json:"publication_date,omitempty"`
	Category        []string              `json:"category"`
	Institutions    []catalog.Institution `json:"institutions,omitempty"`
	OBISNodes       []string              `json:"obis_nodes,omitempty"`
}

func (r *Renderer) writeProductsJSON(c *catalog.Collections) error {
	out := make([]productSummary, 0, len(c.Products))
	for _, p := range c.Products {
		out = append(out, productSummary{
			ZenodoID:        p.ZenodoID.String(),
			URL:             PrefixURL(r.opts.PathPrefix, p.URL),
			Name:            p.Name,
			DOI:             p.DOI,
			PublicationDate: p.PublicationDate,
			Category:        p.Categories,
			Institutions:    p.Institutions,
			OBISNodes:       p.NodeIDs(),
		})
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("encode products.json: %w", err)
	}
	return r.writeOutput("products.json", data)
}

func (r *Renderer) writeOutput(rel string, data []byte) error {
	path := filepath.Join(r.opts.OutputDir, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	logging.RenderDebug("wrote %s (%d bytes)", rel, len(data))
	return nil
}

// writeAssets writes the embedded script and stylesheet unless the input
// directory provides its own copy.
func (r *Renderer) writeAssets() (int, error) {
	n := 0
	for rel, src := range embeddedAssets {
		if r.opts.InputDir != "" {
			if _, err := os.Stat(filepath.Join(r.opts.InputDir, rel)); err == nil {
				logging.RenderDebug("input provides %s, skipping embedded copy", rel)
				continue
			}
		}
		data, err := fs.ReadFile(assetFS, src)
		if err != nil {
			return n, err
		}
		if err := r.writeOutput(rel, data); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}
