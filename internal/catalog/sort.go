package catalog

import "sort"

// SortProducts orders products newest first, in place. Products without a
// usable date sort last. Products with equal dates keep their input order.
func SortProducts(products []*Product) {
	sort.SliceStable(products, func(i, j int) bool {
		a, b := products[i], products[j]
		switch {
		case !a.HasDate():
			return false
		case !b.HasDate():
			return true
		}
		return a.Published.After(b.Published)
	})
}
