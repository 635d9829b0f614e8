package catalog

import "sort"

// PlaceholderImage is served when an item carries no image URIs.
const PlaceholderImage = "https://placehold.co/600x400?text=No+Image"

type Item struct {
	ID          int      `json:"id"`
	Title       string   `json:"title"`
	Price       float64  `json:"price"`
	Description string   `json:"description"`
	Images      []string `json:"images"`
}

// FirstImage returns the leading image URI, or a placeholder when the
// item has none.
func (it Item) FirstImage() string {
	if len(it.Images) == 0 || it.Images[0] == "" {
		return PlaceholderImage
	}
	return it.Images[0]
}

type SortOrder string

const (
	SortDefault   SortOrder = "default"
	SortPriceAsc  SortOrder = "price_asc"
	SortPriceDesc SortOrder = "price_desc"
)

// SortItems returns a sorted copy. The default order is whatever the
// catalog returned; the input slice is never mutated.
func SortItems(items []Item, order SortOrder) []Item {
	out := make([]Item, len(items))
	copy(out, items)

	switch order {
	case SortPriceAsc:
		sort.SliceStable(out, func(i, j int) bool { return out[i].Price < out[j].Price })
	case SortPriceDesc:
		sort.SliceStable(out, func(i, j int) bool { return out[i].Price > out[j].Price })
	}
	return out
}
