package catalog

// GroupByInstitution groups products by institution id. Groups appear in the
// order their id is first seen and keep the first name seen for it.
func GroupByInstitution(products []*Product) []*InstitutionGroup {
	index := make(map[ID]*InstitutionGroup)
	var groups []*InstitutionGroup
	for _, p := range products {
		for _, inst := range p.Institutions {
			g, ok := index[inst.ID]
			if !ok {
				g = &InstitutionGroup{ID: inst.ID, Name: inst.Name}
				index[inst.ID] = g
				groups = append(groups, g)
			}
			g.Products = append(g.Products, p)
		}
	}
	return groups
}

// GroupByCategory groups products by category name in first-seen order.
func GroupByCategory(products []*Product) []*CategoryGroup {
	index := make(map[string]*CategoryGroup)
	var groups []*CategoryGroup
	for _, p := range products {
		for _, cat := range p.Categories {
			g, ok := index[cat]
			if !ok {
				g = &CategoryGroup{Name: cat}
				index[cat] = g
				groups = append(groups, g)
			}
			g.Products = append(g.Products, p)
		}
	}
	return groups
}

// GroupByNode returns one group per declared node, in declaration order, even
// when no product references it. References to undeclared nodes are dropped.
func GroupByNode(products []*Product, nodes *NodeIndex) []*NodeGroup {
	declared := nodes.Nodes()
	groups := make([]*NodeGroup, 0, len(declared))
	index := make(map[ID]*NodeGroup, len(declared))
	for _, n := range declared {
		g := &NodeGroup{Node: n, Products: []*Product{}}
		index[n.ID] = g
		groups = append(groups, g)
	}
	for _, p := range products {
		for _, ref := range p.OBISNodes {
			if g, ok := index[ref.ID]; ok {
				g.Products = append(g.Products, p)
			}
		}
	}
	return groups
}
