package site

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"obiscatalog/internal/catalog"
	"obiscatalog/internal/config"
	"obiscatalog/internal/filter"
)

func write(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

// fixture lays out a workspace with products, nodes and content pages.
func fixture(t *testing.T) (config.Paths, *config.Config) {
	t.Helper()
	ws := t.TempDir()
	cfg := config.DefaultConfig()
	paths := cfg.Resolve(ws)

	write(t, paths.Nodes, `{"results": [
		{"id": "node-a", "name": "EurOBIS", "url": "https://eurobis.org"},
		{"id": "node-b", "name": "OBIS-USA"}
	]}`)
	write(t, filepath.Join(paths.Products, "one.json"), `{
		"zenodo_id": "10_5281_zenodo_1",
		"name": "Marine atlas",
		"@id": "https://doi.org/10.5281/zenodo.1",
		"publication_date": "2024-03-05",
		"description": "<p>First paragraph.</p><p>Second &amp; last.</p>",
		"institutions": [{"id": 42, "name": "VLIZ"}],
		"obis_nodes": [{"id": "node-a"}, {"id": "ghost"}],
		"category": ["Dataset", "Tool"]
	}`)
	write(t, filepath.Join(paths.Products, "two.json"), `{
		"zenodo_id": "10_5281_zenodo_2",
		"name": "Species checklist",
		"identifier": "10.5281/zenodo.2",
		"publication_date": "2023-01-01",
		"institutions": [{"id": 42, "name": "VLIZ"}, {"id": "ioc", "name": "IOC-UNESCO"}],
		"category": "Report"
	}`)
	write(t, filepath.Join(paths.Input, "about.md"), "---\ntitle: About the catalog\n---\n# About\n\nSome *markdown*.\n")
	write(t, filepath.Join(paths.Input, "index.md"), "# Shadowed\n")
	write(t, filepath.Join(paths.Input, "legal.html"), "<p>legal</p>")
	write(t, filepath.Join(paths.Input, "css", "extra.css"), "body{}")
	write(t, filepath.Join(paths.Input, "js", "filter.js"), "// custom")
	write(t, filepath.Join(paths.Input, "_drafts", "wip.md"), "# draft")
	return paths, cfg
}

func render(t *testing.T) (config.Paths, *catalog.Collections, *Result) {
	t.Helper()
	paths, cfg := fixture(t)
	c, err := catalog.Build(catalog.Options{ProductsDir: paths.Products, NodesFile: paths.Nodes})
	require.NoError(t, err)

	opts := OptionsFromConfig(cfg, paths)
	opts.Now = func() time.Time { return time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC) }
	r, err := New(opts)
	require.NoError(t, err)
	res, err := r.Render(c)
	require.NoError(t, err)
	return paths, c, res
}

func readOutput(t *testing.T, paths config.Paths, rel string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(paths.Output, rel))
	require.NoError(t, err, rel)
	return string(data)
}

func TestRender_WritesEveryPage(t *testing.T) {
	paths, _, res := render(t)

	for _, rel := range []string{
		"index.html",
		"products/10_5281_zenodo_1/index.html",
		"products/10_5281_zenodo_2/index.html",
		"institutions/index.html",
		"institutions/42/index.html",
		"institutions/ioc/index.html",
		"categories/index.html",
		"categories/dataset/index.html",
		"categories/tool/index.html",
		"categories/report/index.html",
		"nodes/index.html",
		"nodes/node-a/index.html",
		"nodes/node-b/index.html",
		"products.json",
		"css/style.css",
		"css/extra.css",
		"js/filter.js",
		"about/index.html",
		"legal.html",
	} {
		assert.FileExists(t, filepath.Join(paths.Output, rel))
	}
	assert.NoFileExists(t, filepath.Join(paths.Output, "nodes", "ghost", "index.html"))
	assert.NoFileExists(t, filepath.Join(paths.Output, "_drafts", "wip", "index.html"))

	// index, 2 products, 2 institutions, 3 categories, 2 nodes, 3 list pages
	assert.Equal(t, 13, res.Pages)
	assert.Equal(t, 1, res.ContentPages)
}

func TestRender_IndexCardsMatchProducts(t *testing.T) {
	paths, c, _ := render(t)

	f, err := os.Open(filepath.Join(paths.Output, "index.html"))
	require.NoError(t, err)
	defer f.Close()

	cards, err := filter.ParseCards(f)
	require.NoError(t, err)
	require.Len(t, cards, len(c.Products))

	for i, p := range c.Products {
		card := cards[i]
		if diff := cmp.Diff(p.NodeIDs(), card.Nodes, cmpEmpty); diff != "" {
			t.Errorf("card %d nodes (-want +got):\n%s", i, diff)
		}
		if diff := cmp.Diff(p.InstitutionIDs(), card.Institutions, cmpEmpty); diff != "" {
			t.Errorf("card %d institutions (-want +got):\n%s", i, diff)
		}
		assert.Equal(t, p.PrimaryCategory(), card.Category)
		assert.Equal(t, p.DOI, card.DOI)
		assert.Equal(t, p.Title(), card.Title)
		assert.Equal(t, PrefixURL("/obis-products-catalog-eleventy/", p.URL), card.Href)
	}

	if diff := cmp.Diff(cards, Cards(c, "/obis-products-catalog-eleventy/"), cmpEmpty); diff != "" {
		t.Errorf("Cards differs from parsed index (-parsed +built):\n%s", diff)
	}

	e := filter.NewEngine(cards)
	require.NoError(t, e.Toggle(filter.FacetInstitution, "ioc", filter.ModeInclude, true))
	assert.Equal(t, "Showing 1 of 2 products", e.Status().Results())
}

// cmpEmpty treats nil and empty slices as equal.
var cmpEmpty = cmp.Transformer("nilToEmpty", func(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
})

func TestRender_IndexCarriesFilterControls(t *testing.T) {
	paths, _, _ := render(t)
	index := readOutput(t, paths, "index.html")

	assert.Contains(t, index, `id="doi-search"`)
	assert.Contains(t, index, `id="doi-results"`)
	assert.Contains(t, index, `id="pagefind-search"`)
	assert.Contains(t, index, `Showing 2 of 2 products`)
	assert.Contains(t, index, `class="node-filter" value="node-a" data-filter-type="include"`)
	assert.Contains(t, index, `class="institution-filter" value="ioc" data-filter-type="exclude"`)
	assert.Contains(t, index, `class="category-filter" value="Report"`)
	assert.NotContains(t, index, `value="node-b"`, "nodes without products offer no filter")
	assert.Contains(t, index, `href="/obis-products-catalog-eleventy/css/style.css"`)
	assert.Contains(t, index, "05 Mar 2024")
	assert.Contains(t, index, "Built 02 Jan 2025")
}

func TestRender_ProductPage(t *testing.T) {
	paths, _, _ := render(t)
	page := readOutput(t, paths, "products/10_5281_zenodo_1/index.html")

	assert.Contains(t, page, "<h1>Marine atlas</h1>")
	assert.Contains(t, page, "<p>First paragraph.</p>")
	assert.Contains(t, page, "<p>Second &amp; last.</p>")
	assert.Contains(t, page, `href="/obis-products-catalog-eleventy/nodes/node-a/">EurOBIS</a>`)
	assert.Contains(t, page, "<li>ghost</li>", "undeclared nodes render without a link")
	assert.Contains(t, page, `href="/obis-products-catalog-eleventy/institutions/42/">VLIZ</a>`)
	assert.Contains(t, page, ">10.5281/zenodo.1</a>")
}

func TestRender_CollidingGroupKeysGetDistinctPages(t *testing.T) {
	dir := t.TempDir()
	products := filepath.Join(dir, "products")
	write(t, filepath.Join(products, "a.json"), `{"zenodo_id": "a", "institutions": [{"id": "A B"}], "category": ["Data set", "数据"]}`)
	write(t, filepath.Join(products, "b.json"), `{"zenodo_id": "b", "institutions": [{"id": "a-b"}], "category": ["data-set", "信息"]}`)
	c, err := catalog.Build(catalog.Options{ProductsDir: products, NodesFile: filepath.Join(dir, "obis-nodes.json")})
	require.NoError(t, err)

	out := filepath.Join(dir, "_site")
	r, err := New(Options{PathPrefix: "/", SiteTitle: "Catalog", OutputDir: out, TemplateFormats: []string{"html"}})
	require.NoError(t, err)
	_, err = r.Render(c)
	require.NoError(t, err)

	read := func(rel string) string {
		t.Helper()
		data, err := os.ReadFile(filepath.Join(out, rel))
		require.NoError(t, err)
		return string(data)
	}
	assert.Contains(t, read("categories/data-set/index.html"), "<h1>Data set</h1>")
	assert.Contains(t, read("categories/data-set-2/index.html"), "<h1>data-set</h1>")
	assert.Contains(t, read("categories/untitled/index.html"), "<h1>数据</h1>")
	assert.Contains(t, read("categories/untitled-2/index.html"), "<h1>信息</h1>")
	assert.Contains(t, read("institutions/a-b/index.html"), "<h1>A B</h1>")
	assert.Contains(t, read("institutions/a-b-2/index.html"), "<h1>a-b</h1>")

	page := read("products/b/index.html")
	assert.Contains(t, page, `href="/categories/data-set-2/">data-set</a>`)
	assert.Contains(t, page, `href="/categories/untitled-2/">信息</a>`)
	assert.Contains(t, page, `href="/institutions/a-b-2/">a-b</a>`)

	list := read("categories/index.html")
	assert.Contains(t, list, `href="/categories/data-set-2/"`)
}

func TestRender_NodePageForEmptyNode(t *testing.T) {
	paths, _, _ := render(t)
	page := readOutput(t, paths, "nodes/node-b/index.html")
	assert.Contains(t, page, "<h1>OBIS-USA</h1>")
	assert.Contains(t, page, "0 products")

	nodeA := readOutput(t, paths, "nodes/node-a/index.html")
	assert.Contains(t, nodeA, "https://eurobis.org")
}

func TestRender_ContentAndAssets(t *testing.T) {
	paths, _, _ := render(t)

	about := readOutput(t, paths, "about/index.html")
	assert.Contains(t, about, "<title>About the catalog | OBIS Products Catalog</title>")
	assert.Contains(t, about, "<em>markdown</em>")

	index := readOutput(t, paths, "index.html")
	assert.NotContains(t, index, "Shadowed", "generated index wins over index.md")

	assert.Equal(t, "// custom", readOutput(t, paths, "js/filter.js"), "input script is not overwritten")
	assert.Contains(t, readOutput(t, paths, "css/style.css"), ".product-card.hidden")

	products := readOutput(t, paths, "products.json")
	assert.Contains(t, products, `"zenodo_id": "10_5281_zenodo_1"`)
	assert.Contains(t, products, `"url": "/obis-products-catalog-eleventy/products/10_5281_zenodo_1/"`)
}

func TestRender_EmptyCatalog(t *testing.T) {
	out := filepath.Join(t.TempDir(), "_site")
	r, err := New(Options{PathPrefix: "/", SiteTitle: "Empty", OutputDir: out, TemplateFormats: []string{"html"}})
	require.NoError(t, err)

	res, err := r.Render(&catalog.Collections{Nodes: catalog.NewNodeIndex(nil)})
	require.NoError(t, err)
	assert.Equal(t, 4, res.Pages)
	assert.NoFileExists(t, filepath.Join(out, "products.json"))

	data, err := os.ReadFile(filepath.Join(out, "index.html"))
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "Showing 0 of 0 products"))
}

func TestNew_RequiresOutput(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)
}

func TestIncludesOverrideCard(t *testing.T) {
	paths, cfg := fixture(t)
	write(t, filepath.Join(paths.Includes, "card.html"), `{{define "card"}}<div class="product-card" data-nodes="" data-institutions="" data-category="custom">{{.Title}}</div>{{end}}`)

	c, err := catalog.Build(catalog.Options{ProductsDir: paths.Products, NodesFile: paths.Nodes})
	require.NoError(t, err)
	r, err := New(OptionsFromConfig(cfg, paths))
	require.NoError(t, err)
	_, err = r.Render(c)
	require.NoError(t, err)

	index := readOutput(t, paths, "index.html")
	assert.Contains(t, index, `data-category="custom"`)
}
