package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"obiscatalog/internal/filter"
)

var (
	includeNodes []string
	includeInsts []string
	includeCats  []string
	excludeNodes []string
	excludeInsts []string
	excludeCats  []string
	doiTerm      string
	filterPage   string
)

// filterCmd applies facet filters to a rendered listing page
var filterCmd = &cobra.Command{
	Use:   "filter",
	Short: "List the products a set of facet filters and a DOI search would show",
	Long: `Reads the product cards of a built listing page (default index.html in the
output directory) and applies the same include/exclude facet rules and DOI
search as the site's filter script.

Example:
  catalog filter --node n1 --exclude-category Report --doi zenodo`,
	Args: cobra.NoArgs,
	RunE: runFilter,
}

func init() {
	filterCmd.Flags().StringSliceVar(&includeNodes, "node", nil, "Include products of these node ids")
	filterCmd.Flags().StringSliceVar(&includeInsts, "institution", nil, "Include products of these institution ids")
	filterCmd.Flags().StringSliceVar(&includeCats, "category", nil, "Include products of these categories")
	filterCmd.Flags().StringSliceVar(&excludeNodes, "exclude-node", nil, "Exclude products of these node ids")
	filterCmd.Flags().StringSliceVar(&excludeInsts, "exclude-institution", nil, "Exclude products of these institution ids")
	filterCmd.Flags().StringSliceVar(&excludeCats, "exclude-category", nil, "Exclude products of these categories")
	filterCmd.Flags().StringVar(&doiTerm, "doi", "", "Only show products whose DOI link contains this text")
	filterCmd.Flags().StringVar(&filterPage, "page", "index.html", "Listing page, relative to the output directory")
}

// loadCards parses the product cards of a built page.
func loadCards(path string) ([]filter.Card, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%s not found; run build first", path)
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return filter.ParseCards(f)
}

type toggle struct {
	facet  filter.Facet
	mode   filter.Mode
	values []string
}

func applyFilters(eng *filter.Engine, toggles []toggle, term string) error {
	for _, t := range toggles {
		for _, v := range t.values {
			if err := eng.Toggle(t.facet, v, t.mode, true); err != nil {
				return err
			}
		}
	}
	eng.Search(term)
	return nil
}

func printFiltered(w io.Writer, eng *filter.Engine) {
	for _, c := range eng.VisibleCards() {
		if c.DOI != "" {
			fmt.Fprintf(w, "%s  %s\n", c.Title, c.DOI)
		} else {
			fmt.Fprintln(w, c.Title)
		}
	}
	st := eng.Status()
	fmt.Fprintln(w, st.Results())
	if st.SearchActive() {
		fmt.Fprintln(w, st.Search())
	}
}

func runFilter(cmd *cobra.Command, args []string) error {
	e, err := loadEnv()
	if err != nil {
		return err
	}
	cards, err := loadCards(filepath.Join(e.paths.Output, filepath.FromSlash(filterPage)))
	if err != nil {
		return err
	}

	eng := filter.NewEngine(cards)
	err = applyFilters(eng, []toggle{
		{filter.FacetNode, filter.ModeInclude, includeNodes},
		{filter.FacetInstitution, filter.ModeInclude, includeInsts},
		{filter.FacetCategory, filter.ModeInclude, includeCats},
		{filter.FacetNode, filter.ModeExclude, excludeNodes},
		{filter.FacetInstitution, filter.ModeExclude, excludeInsts},
		{filter.FacetCategory, filter.ModeExclude, excludeCats},
	}, doiTerm)
	if err != nil {
		return err
	}
	logger.Debug("Filter applied", zap.Int("cards", len(cards)), zap.Int("shown", eng.Status().Shown))
	printFiltered(cmd.OutOrStdout(), eng)
	return nil
}
