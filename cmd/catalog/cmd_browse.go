package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"obiscatalog/cmd/catalog/ui"
	"obiscatalog/internal/catalog"
	"obiscatalog/internal/site"
)

var showRaw bool

// browseCmd opens the interactive product browser
var browseCmd = &cobra.Command{
	Use:   "browse",
	Short: "Browse and filter products in the terminal",
	Long: `Builds the collections and opens an interactive browser with the same
node, institution and category filters and DOI search as the site.`,
	RunE: runBrowse,
}

// showCmd prints one product
var showCmd = &cobra.Command{
	Use:   "show <zenodo_id>",
	Short: "Show one product",
	Args:  cobra.ExactArgs(1),
	RunE:  runShow,
}

func init() {
	showCmd.Flags().BoolVar(&showRaw, "raw", false, "Print markdown without terminal rendering")
}

func loadCollections(e *env) (*catalog.Collections, error) {
	return catalog.Build(catalog.Options{
		ProductsDir:    e.paths.Products,
		NodesFile:      e.paths.Nodes,
		ValidateSchema: e.cfg.ValidateSchema,
	})
}

// facetGroups converts the site's filter blocks for the terminal browser.
func facetGroups(c *catalog.Collections) []ui.FacetGroup {
	var groups []ui.FacetGroup
	for _, b := range site.FacetBlocks(c) {
		g := ui.FacetGroup{Facet: b.Facet, Label: b.Label}
		for _, o := range b.Options {
			g.Options = append(g.Options, ui.FacetOption{Value: o.Value, Label: o.Label, Count: o.Count})
		}
		groups = append(groups, g)
	}
	return groups
}

func runBrowse(cmd *cobra.Command, args []string) error {
	e, err := loadEnv()
	if err != nil {
		return err
	}
	c, err := loadCollections(e)
	if err != nil {
		return err
	}
	m := ui.NewBrowseModel(e.cfg.SiteTitle, site.Cards(c, e.cfg.PathPrefix), facetGroups(c))
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(cmd.Context()))
	_, err = p.Run()
	return err
}

// productMarkdown renders a product as a markdown document.
func productMarkdown(c *catalog.Collections, p *catalog.Product) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s\n\n", p.Title())
	if p.Type != "" {
		fmt.Fprintf(&sb, "*%s*\n\n", p.Type)
	}
	if p.PublicationDate != "" {
		fmt.Fprintf(&sb, "**Published:** %s\n\n", site.ReadableDate(p.PublicationDate))
	}
	if len(p.Categories) > 0 {
		fmt.Fprintf(&sb, "**Category:** %s\n\n", strings.Join(p.Categories, ", "))
	}
	if len(p.Creators) > 0 {
		fmt.Fprintf(&sb, "**Creators:** %s\n\n", strings.Join(p.Creators, "; "))
	}
	if p.DOI != "" {
		fmt.Fprintf(&sb, "**DOI:** [%s](%s)\n\n", p.DOI, p.DOI)
	}
	if p.License != "" {
		fmt.Fprintf(&sb, "**License:** %s\n\n", p.License)
	}
	if p.Description != "" {
		sb.WriteString(strings.TrimSpace(p.Description))
		sb.WriteString("\n\n")
	}
	if len(p.Institutions) > 0 {
		sb.WriteString("## Institutions\n\n")
		for _, inst := range p.Institutions {
			name := inst.Name
			if name == "" {
				name = inst.ID.String()
			}
			fmt.Fprintf(&sb, "- %s\n", name)
		}
		sb.WriteString("\n")
	}
	if len(p.OBISNodes) > 0 {
		sb.WriteString("## OBIS nodes\n\n")
		for _, ref := range p.OBISNodes {
			name := ref.Name
			if n, ok := c.Nodes.Lookup(ref.ID.String()); ok && n.Name != "" {
				name = n.Name
			}
			if name == "" {
				name = ref.ID.String()
			}
			fmt.Fprintf(&sb, "- %s\n", name)
		}
		sb.WriteString("\n")
	}
	if len(p.Keywords) > 0 {
		fmt.Fprintf(&sb, "**Keywords:** %s\n", strings.Join(p.Keywords, ", "))
	}
	return sb.String()
}

func runShow(cmd *cobra.Command, args []string) error {
	e, err := loadEnv()
	if err != nil {
		return err
	}
	c, err := loadCollections(e)
	if err != nil {
		return err
	}
	p, ok := c.Find(args[0])
	if !ok {
		return fmt.Errorf("product %s not found", args[0])
	}

	md := productMarkdown(c, p)
	if showRaw {
		fmt.Fprint(cmd.OutOrStdout(), md)
		return nil
	}
	renderer, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(80))
	if err != nil {
		return err
	}
	out, err := renderer.Render(md)
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), out)
	return nil
}
