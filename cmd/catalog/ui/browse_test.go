package ui

import (
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"obiscatalog/internal/filter"
)

func browseFixture() BrowseModel {
	cards := []filter.Card{
		{Title: "Atlas", Nodes: []string{"n1"}, Category: "Dataset", DOI: "https://doi.org/10.5281/zenodo.1"},
		{Title: "Checklist", Nodes: []string{"n1", "n2"}, Category: "Report", DOI: "https://doi.org/10.5281/zenodo.2"},
		{Title: "Tracks", Nodes: []string{"n2"}, Category: "Dataset", DOI: "https://doi.org/10.5281/zenodo.33"},
	}
	groups := []FacetGroup{
		{Facet: filter.FacetNode, Label: "OBIS nodes", Options: []FacetOption{
			{Value: "n1", Label: "Node one", Count: 2},
			{Value: "n2", Label: "Node two", Count: 2},
		}},
		{Facet: filter.FacetCategory, Label: "Categories", Options: []FacetOption{
			{Value: "Dataset", Label: "Dataset", Count: 2},
			{Value: "Report", Label: "Report", Count: 1},
		}},
	}
	return NewBrowseModel("OBIS Products Catalog", cards, groups)
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func press(t *testing.T, m BrowseModel, msgs ...tea.Msg) BrowseModel {
	t.Helper()
	for _, msg := range msgs {
		next, _ := m.Update(msg)
		var ok bool
		m, ok = next.(BrowseModel)
		require.True(t, ok)
	}
	return m
}

func TestBrowse_IncludeThenExclude(t *testing.T) {
	m := browseFixture()
	assert.Equal(t, []string{"Showing 3 of 3 products"}, m.StatusLines())

	m = press(t, m, runes("i"))
	assert.True(t, m.Engine().Checked(filter.FacetNode, "n1", filter.ModeInclude))
	assert.Equal(t, "Showing 2 of 3 products", m.StatusLines()[0])

	// excluding the same value drops the include
	m = press(t, m, runes("x"))
	assert.False(t, m.Engine().Checked(filter.FacetNode, "n1", filter.ModeInclude))
	assert.True(t, m.Engine().Checked(filter.FacetNode, "n1", filter.ModeExclude))
	assert.Equal(t, "Showing 1 of 3 products", m.StatusLines()[0])

	m = press(t, m, runes("x"))
	assert.Equal(t, "Showing 3 of 3 products", m.StatusLines()[0])
}

func TestBrowse_CycleCategory(t *testing.T) {
	m := browseFixture()
	m = press(t, m, runes("j"), tea.KeyMsg{Type: tea.KeyDown})

	m = press(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	assert.True(t, m.Engine().Checked(filter.FacetCategory, "Dataset", filter.ModeInclude))
	assert.Equal(t, "Showing 2 of 3 products", m.StatusLines()[0])

	m = press(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	assert.True(t, m.Engine().Checked(filter.FacetCategory, "Dataset", filter.ModeExclude))
	assert.Equal(t, "Showing 1 of 3 products", m.StatusLines()[0])

	m = press(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	st := m.Engine().State()
	assert.False(t, st.Active())
	assert.Equal(t, "Showing 3 of 3 products", m.StatusLines()[0])
}

func TestBrowse_CursorStaysInRange(t *testing.T) {
	m := browseFixture()
	m = press(t, m, runes("k"))
	assert.Equal(t, 0, m.cursor)
	m = press(t, m, runes("j"), runes("j"), runes("j"), runes("j"), runes("j"))
	assert.Equal(t, 3, m.cursor)
}

func TestBrowse_DOISearch(t *testing.T) {
	m := browseFixture()
	m = press(t, m, runes("/"))
	require.True(t, m.searching)

	// keys go to the search box while it has focus
	m = press(t, m, runes("Zenodo.3"), runes("q"))
	m = press(t, m, tea.KeyMsg{Type: tea.KeyBackspace})
	assert.Equal(t, []string{
		"Showing 1 of 3 products",
		`1 product(s) matching "zenodo.3"`,
	}, m.StatusLines())

	m = press(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	assert.False(t, m.searching)

	// search narrows facet results
	m = press(t, m, runes("i"))
	assert.Equal(t, "Showing 0 of 3 products", m.StatusLines()[0])

	m = press(t, m, runes("c"))
	assert.Equal(t, []string{"Showing 3 of 3 products"}, m.StatusLines())
	st := m.Engine().State()
	assert.False(t, st.Active())
}

func TestBrowse_View(t *testing.T) {
	m := browseFixture()
	m = press(t, m, tea.WindowSizeMsg{Width: 120, Height: 40}, runes("i"))

	view := m.View()
	assert.Contains(t, view, "OBIS Products Catalog")
	assert.Contains(t, view, "[+] Node one (2)")
	assert.Contains(t, view, "Checklist")
	assert.NotContains(t, view, "Tracks")
	assert.Contains(t, view, "Showing 2 of 3 products")
}

func TestBrowse_Quit(t *testing.T) {
	m := browseFixture()
	_, cmd := m.Update(runes("q"))
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}
