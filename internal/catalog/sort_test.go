package catalog

import (
	"strconv"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
)

func TestSortProducts_Example(t *testing.T) {
	products := []*Product{
		{ZenodoID: "a", Published: ParseDate("2023-01-01")},
		{ZenodoID: "b", Published: ParseDate("2024-06-01")},
		{ZenodoID: "c"},
	}
	SortProducts(products)
	assert.Equal(t, []string{"b", "a", "c"}, zenodoIDs(products))
}

func TestSortProducts_UnparseableDateSortsLast(t *testing.T) {
	products := []*Product{
		{ZenodoID: "garbage", PublicationDate: "someday", Published: ParseDate("someday")},
		{ZenodoID: "dated", Published: ParseDate("1999")},
	}
	SortProducts(products)
	assert.Equal(t, []string{"dated", "garbage"}, zenodoIDs(products))
}

// productsFromOffsets maps each generated value to a product: 0 is undated, n is year 2000+n.
func productsFromOffsets(offsets []int) []*Product {
	products := make([]*Product, len(offsets))
	for i, off := range offsets {
		p := &Product{ZenodoID: ID(strconv.Itoa(i))}
		if off > 0 {
			p.Published = time.Date(2000+off, 1, 1, 0, 0, 0, 0, time.UTC)
		}
		products[i] = p
	}
	return products
}

func TestSortProducts_Properties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	offsets := gen.SliceOf(gen.IntRange(0, 4))

	properties.Property("undated products sort after every dated product", prop.ForAll(
		func(in []int) bool {
			products := productsFromOffsets(in)
			SortProducts(products)
			seenUndated := false
			for _, p := range products {
				if !p.HasDate() {
					seenUndated = true
				} else if seenUndated {
					return false
				}
			}
			return true
		},
		offsets,
	))

	properties.Property("dates never increase", prop.ForAll(
		func(in []int) bool {
			products := productsFromOffsets(in)
			SortProducts(products)
			for i := 1; i < len(products); i++ {
				prev, cur := products[i-1], products[i]
				if prev.HasDate() && cur.HasDate() && cur.Published.After(prev.Published) {
					return false
				}
			}
			return true
		},
		offsets,
	))

	properties.Property("equal dates keep input order", prop.ForAll(
		func(in []int) bool {
			products := productsFromOffsets(in)
			SortProducts(products)
			for i := 1; i < len(products); i++ {
				prev, cur := products[i-1], products[i]
				if !prev.Published.Equal(cur.Published) {
					continue
				}
				a, _ := strconv.Atoi(prev.ZenodoID.String())
				b, _ := strconv.Atoi(cur.ZenodoID.String())
				if a > b {
					return false
				}
			}
			return true
		},
		offsets,
	))

	properties.Property("sorting keeps every product", prop.ForAll(
		func(in []int) bool {
			products := productsFromOffsets(in)
			SortProducts(products)
			seen := make(map[ID]bool, len(products))
			for _, p := range products {
				seen[p.ZenodoID] = true
			}
			return len(seen) == len(in)
		},
		offsets,
	))

	properties.TestingRun(t)
}
