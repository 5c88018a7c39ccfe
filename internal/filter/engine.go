// Package filter decides which product cards are visible for a set of facet
// selections and a DOI search term.
//
// The same rules run in the browser (js/filter.js, written by the site
// renderer) and in the terminal browser and filter command. Facet selections
// and search are combined into one visibility: a card is shown when it passes
// every facet and, while a search is active, also matches the search.
package filter

import (
	"fmt"
	"strings"
)

// Facet is a filterable card dimension.
type Facet string

const (
	FacetNode        Facet = "node"
	FacetInstitution Facet = "institution"
	FacetCategory    Facet = "category"
)

// Facets lists every facet in display order.
var Facets = []Facet{FacetNode, FacetInstitution, FacetCategory}

// Mode selects whether a checked value includes or excludes cards.
type Mode string

const (
	ModeInclude Mode = "include"
	ModeExclude Mode = "exclude"
)

// Card is the filterable view of one rendered product.
type Card struct {
	Title        string
	Href         string
	Nodes        []string
	Institutions []string
	Category     string
	DOI          string
}

// NewCard builds a card from the comma-joined attribute values a rendered
// card carries. Empty segments are dropped.
func NewCard(nodes, institutions, category, doi string) Card {
	return Card{
		Nodes:        SplitTags(nodes),
		Institutions: SplitTags(institutions),
		Category:     category,
		DOI:          doi,
	}
}

// SplitTags splits a comma-joined tag list, dropping empty segments.
func SplitTags(s string) []string {
	var tags []string
	for _, t := range strings.Split(s, ",") {
		if t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

// Selection holds the checked values of one facet.
type Selection struct {
	Include []string
	Exclude []string
}

func (s *Selection) list(m Mode) *[]string {
	if m == ModeExclude {
		return &s.Exclude
	}
	return &s.Include
}

// State holds the selections of all three facets.
type State struct {
	Nodes        Selection
	Institutions Selection
	Categories   Selection
}

// Selection returns the selection for f, or nil for an unknown facet.
func (s *State) Selection(f Facet) *Selection {
	switch f {
	case FacetNode:
		return &s.Nodes
	case FacetInstitution:
		return &s.Institutions
	case FacetCategory:
		return &s.Categories
	}
	return nil
}

// Active reports whether any value is checked.
func (s *State) Active() bool {
	for _, f := range Facets {
		sel := s.Selection(f)
		if len(sel.Include) > 0 || len(sel.Exclude) > 0 {
			return true
		}
	}
	return false
}

// Passes reports whether c survives every facet of s. Include lists are ORed
// inside a facet and ANDed across facets; a matching exclude always hides.
func (s *State) Passes(c Card) bool {
	return passesMulti(s.Nodes, c.Nodes) &&
		passesMulti(s.Institutions, c.Institutions) &&
		passesSingle(s.Categories, c.Category)
}

func passesMulti(sel Selection, tags []string) bool {
	if len(sel.Include) > 0 && !anyIn(sel.Include, tags) {
		return false
	}
	if len(sel.Exclude) > 0 && anyIn(sel.Exclude, tags) {
		return false
	}
	return true
}

func passesSingle(sel Selection, value string) bool {
	if len(sel.Include) > 0 && !contains(sel.Include, value) {
		return false
	}
	if len(sel.Exclude) > 0 && contains(sel.Exclude, value) {
		return false
	}
	return true
}

func anyIn(wanted, tags []string) bool {
	for _, w := range wanted {
		if contains(tags, w) {
			return true
		}
	}
	return false
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

// MatchesDOI reports whether the card's resolver link contains term.
// term must already be trimmed and lowercased.
func MatchesDOI(c Card, term string) bool {
	if c.DOI == "" || !strings.Contains(strings.ToLower(c.DOI), "doi.org") {
		return false
	}
	return strings.Contains(strings.ToLower(c.DOI), term)
}

// Status is the text shown after every recomputation.
type Status struct {
	Shown   int
	Total   int
	Term    string
	Matches int
}

// SearchActive reports whether a DOI search term is set.
func (s Status) SearchActive() bool { return s.Term != "" }

// Results renders the results count text.
func (s Status) Results() string {
	return fmt.Sprintf("Showing %d of %d products", s.Shown, s.Total)
}

// Search renders the search match text, empty when no search is active.
func (s Status) Search() string {
	if !s.SearchActive() {
		return ""
	}
	return fmt.Sprintf("%d product(s) matching \"%s\"", s.Matches, s.Term)
}

// Engine owns a card set plus its filter state and keeps visibility current.
// It is not safe for concurrent use.
type Engine struct {
	cards   []Card
	state   State
	term    string
	facet   []bool
	match   []bool
	shown   int
	matches int
}

// NewEngine returns an engine with no filters and no search: every card is shown.
func NewEngine(cards []Card) *Engine {
	e := &Engine{
		cards: cards,
		facet: make([]bool, len(cards)),
		match: make([]bool, len(cards)),
	}
	e.recompute()
	return e
}

// Toggle checks or unchecks value for facet f. An empty mode means include.
// Checking appends the value; unchecking removes its first occurrence.
// Visibility is recomputed before Toggle returns.
func (e *Engine) Toggle(f Facet, value string, mode Mode, checked bool) error {
	sel := e.state.Selection(f)
	if sel == nil {
		return fmt.Errorf("unknown facet %q", f)
	}
	if mode == "" {
		mode = ModeInclude
	}
	if mode != ModeInclude && mode != ModeExclude {
		return fmt.Errorf("unknown filter mode %q", mode)
	}

	list := sel.list(mode)
	if checked {
		*list = append(*list, value)
	} else {
		for i, v := range *list {
			if v == value {
				*list = append((*list)[:i], (*list)[i+1:]...)
				break
			}
		}
	}
	e.recompute()
	return nil
}

// Search sets the DOI search term. The term is trimmed and lowercased; an
// empty term clears the search so facet filters alone decide visibility.
func (e *Engine) Search(term string) {
	e.term = strings.ToLower(strings.TrimSpace(term))
	e.recompute()
}

func (e *Engine) recompute() {
	e.shown, e.matches = 0, 0
	for i, c := range e.cards {
		e.facet[i] = e.state.Passes(c)
		e.match[i] = e.term != "" && MatchesDOI(c, e.term)
		if e.match[i] {
			e.matches++
		}
		if e.visible(i) {
			e.shown++
		}
	}
}

func (e *Engine) visible(i int) bool {
	return e.facet[i] && (e.term == "" || e.match[i])
}

// Visible reports whether card i is shown.
func (e *Engine) Visible(i int) bool {
	if i < 0 || i >= len(e.cards) {
		return false
	}
	return e.visible(i)
}

// VisibleCards returns the shown cards in their original order.
func (e *Engine) VisibleCards() []Card {
	out := make([]Card, 0, e.shown)
	for i, c := range e.cards {
		if e.visible(i) {
			out = append(out, c)
		}
	}
	return out
}

// Cards returns every card.
func (e *Engine) Cards() []Card { return e.cards }

// State returns a copy of the current selections.
func (e *Engine) State() State {
	cp := State{}
	for _, f := range Facets {
		src, dst := e.state.Selection(f), cp.Selection(f)
		dst.Include = append([]string(nil), src.Include...)
		dst.Exclude = append([]string(nil), src.Exclude...)
	}
	return cp
}

// Checked reports whether value is currently checked for f in mode.
func (e *Engine) Checked(f Facet, value string, mode Mode) bool {
	sel := e.state.Selection(f)
	if sel == nil {
		return false
	}
	if mode == "" {
		mode = ModeInclude
	}
	return contains(*sel.list(mode), value)
}

// Status returns the current counts and search term.
func (e *Engine) Status() Status {
	return Status{Shown: e.shown, Total: len(e.cards), Term: e.term, Matches: e.matches}
}
