package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"obiscatalog/internal/filter"
)

// FacetOption is one selectable value in the facet pane.
type FacetOption struct {
	Value string
	Label string
	Count int
}

// FacetGroup is the option list of one facet.
type FacetGroup struct {
	Facet   filter.Facet
	Label   string
	Options []FacetOption
}

type facetRow struct {
	facet filter.Facet
	opt   FacetOption
}

// BrowseModel is the interactive product browser: a facet pane on the left,
// the visible products on the right and a DOI search box below.
type BrowseModel struct {
	title  string
	engine *filter.Engine
	groups []FacetGroup
	rows   []facetRow
	cursor int

	search    textinput.Model
	searching bool
	products  viewport.Model

	width  int
	height int
	err    error
	styles Styles
}

// NewBrowseModel creates a browser over cards with the given facet options.
func NewBrowseModel(title string, cards []filter.Card, groups []FacetGroup) BrowseModel {
	ti := textinput.New()
	ti.Prompt = "DOI: "
	ti.Placeholder = "search DOI links"
	ti.CharLimit = 200

	m := BrowseModel{
		title:    title,
		engine:   filter.NewEngine(cards),
		groups:   groups,
		search:   ti,
		products: viewport.New(0, 0),
		styles:   DefaultStyles(),
	}
	for _, g := range groups {
		for _, o := range g.Options {
			m.rows = append(m.rows, facetRow{facet: g.Facet, opt: o})
		}
	}
	m.refresh()
	return m
}

// Engine exposes the filter engine driving the view.
func (m BrowseModel) Engine() *filter.Engine { return m.engine }

// Init initializes the model.
func (m BrowseModel) Init() tea.Cmd {
	return nil
}

// Update handles messages.
func (m BrowseModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.SetSize(msg.Width, msg.Height)
		return m, nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		if m.searching {
			switch msg.String() {
			case "esc", "enter", "tab":
				m.searching = false
				m.search.Blur()
				return m, nil
			}
			var cmd tea.Cmd
			m.search, cmd = m.search.Update(msg)
			m.engine.Search(m.search.Value())
			m.refresh()
			return m, cmd
		}

		switch msg.String() {
		case "q", "esc":
			return m, tea.Quit
		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
			}
			return m, nil
		case "down", "j":
			if m.cursor < len(m.rows)-1 {
				m.cursor++
			}
			return m, nil
		case " ", "space", "enter":
			m.cycle()
			return m, nil
		case "i":
			m.flip(filter.ModeInclude)
			return m, nil
		case "x":
			m.flip(filter.ModeExclude)
			return m, nil
		case "c":
			m.clear()
			return m, nil
		case "/", "tab":
			m.searching = true
			return m, m.search.Focus()
		}
	}

	var cmd tea.Cmd
	m.products, cmd = m.products.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m *BrowseModel) current() (facetRow, bool) {
	if m.cursor < 0 || m.cursor >= len(m.rows) {
		return facetRow{}, false
	}
	return m.rows[m.cursor], true
}

func (m *BrowseModel) toggle(f filter.Facet, value string, mode filter.Mode, checked bool) {
	if err := m.engine.Toggle(f, value, mode, checked); err != nil {
		m.err = err
	}
}

// flip checks or unchecks the current value in mode. Checking one mode
// unchecks the other.
func (m *BrowseModel) flip(mode filter.Mode) {
	r, ok := m.current()
	if !ok {
		return
	}
	other := filter.ModeExclude
	if mode == filter.ModeExclude {
		other = filter.ModeInclude
	}
	if m.engine.Checked(r.facet, r.opt.Value, mode) {
		m.toggle(r.facet, r.opt.Value, mode, false)
	} else {
		if m.engine.Checked(r.facet, r.opt.Value, other) {
			m.toggle(r.facet, r.opt.Value, other, false)
		}
		m.toggle(r.facet, r.opt.Value, mode, true)
	}
	m.refresh()
}

// cycle moves the current value through unchecked, include and exclude.
func (m *BrowseModel) cycle() {
	r, ok := m.current()
	if !ok {
		return
	}
	if m.engine.Checked(r.facet, r.opt.Value, filter.ModeInclude) ||
		m.engine.Checked(r.facet, r.opt.Value, filter.ModeExclude) {
		m.flip(filter.ModeExclude)
		return
	}
	m.flip(filter.ModeInclude)
}

func (m *BrowseModel) clear() {
	st := m.engine.State()
	for _, f := range filter.Facets {
		sel := st.Selection(f)
		for _, v := range sel.Include {
			m.toggle(f, v, filter.ModeInclude, false)
		}
		for _, v := range sel.Exclude {
			m.toggle(f, v, filter.ModeExclude, false)
		}
	}
	m.search.SetValue("")
	m.engine.Search("")
	m.refresh()
}

func (m *BrowseModel) refresh() {
	m.products.SetContent(m.renderProducts())
	m.products.GotoTop()
}

func (m BrowseModel) renderProducts() string {
	visible := m.engine.VisibleCards()
	if len(visible) == 0 {
		return m.styles.Muted.Render("No products match the current filters.")
	}
	var sb strings.Builder
	for _, c := range visible {
		sb.WriteString(m.styles.Bold.Render(c.Title))
		sb.WriteString("\n")
		meta := c.Category
		if c.DOI != "" {
			if meta != "" {
				meta += " | "
			}
			meta += c.DOI
		}
		if meta != "" {
			sb.WriteString(m.styles.Muted.Render("  " + meta))
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

func (m BrowseModel) renderFacets() string {
	var sb strings.Builder
	i := 0
	for _, g := range m.groups {
		sb.WriteString(m.styles.Title.UnsetMarginBottom().Render(g.Label))
		sb.WriteString("\n")
		for _, o := range g.Options {
			mark, style := "[ ]", m.styles.Body
			switch {
			case m.engine.Checked(g.Facet, o.Value, filter.ModeInclude):
				mark, style = "[+]", m.styles.Included
			case m.engine.Checked(g.Facet, o.Value, filter.ModeExclude):
				mark, style = "[-]", m.styles.Excluded
			}
			pointer := "  "
			if i == m.cursor && !m.searching {
				pointer = m.styles.Cursor.Render("> ")
			}
			sb.WriteString(pointer + style.Render(fmt.Sprintf("%s %s (%d)", mark, o.Label, o.Count)) + "\n")
			i++
		}
	}
	return sb.String()
}

// StatusLines returns the results line and, while searching, the match line.
func (m BrowseModel) StatusLines() []string {
	st := m.engine.Status()
	lines := []string{st.Results()}
	if st.SearchActive() {
		lines = append(lines, st.Search())
	}
	return lines
}

// View renders the browser.
func (m BrowseModel) View() string {
	header := m.styles.Header.Render(m.title)

	facetWidth := max(m.width*35/100, 24)
	facets := m.styles.Pane.Width(facetWidth).Render(m.renderFacets())
	products := m.styles.Pane.Width(max(m.width-facetWidth-4, 20)).Render(m.products.View())
	body := lipgloss.JoinHorizontal(lipgloss.Top, facets, products)

	status := m.styles.Info.Render(strings.Join(m.StatusLines(), " | "))
	if m.err != nil {
		status += " " + m.styles.Error.Render(m.err.Error())
	}
	help := m.styles.Footer.Render("j/k: move • space: cycle • i: include • x: exclude • c: clear • /: search • q: quit")

	return lipgloss.JoinVertical(lipgloss.Left, header, body, m.search.View(), status, help)
}

// SetSize updates the size.
func (m *BrowseModel) SetSize(w, h int) {
	m.width = w
	m.height = h
	// header, search, status, help and pane borders
	m.products.Width = max(w-max(w*35/100, 24)-8, 20)
	m.products.Height = max(h-8, 3)
	m.search.Width = max(w-10, 10)
	m.refresh()
}
