// Package parse extracts catalog structure and product data from fetched
// HTML using CSS selector rulesets.
package parse

// Rules is the selector ruleset for one catalog site. Selectors are plain
// CSS, resolved against the fetched document.
type Rules struct {
	Brands        string
	Categories    string
	Models        string
	Subcategories string
	ProductItem   string
	NextPage      string

	Title         string
	Article       string
	Description   string
	Category      string
	Price         string
	Available     string
	OnOrder       string
	GalleryImages string
	Logo          string

	// OnOrderMarker is the lowercase phrase that flags an on-order product
	// inside the OnOrder element.
	OnOrderMarker string
}

// DefaultRules returns the ruleset for the supported vendor catalog.
func DefaultRules() Rules {
	return Rules{
		Brands:        "ul.brands-wrap:first-of-type > li > a",
		Categories:    ".lp-cat-ul > li > a",
		Models:        ".cat-item-wrap > .cat-item-title > a",
		Subcategories: ".cat-item-wrap a",
		ProductItem:   ".cat-item-list-wrap > .cat-item-list-title > a",
		NextPage:      `a[aria-label="Next"]`,

		Title:         ".item-title",
		Article:       ".item-title-article",
		Description:   ".item-description-full",
		Category:      `.cat-breadcrumbs-text span[typeof="v:Breadcrumb"]:nth-child(odd) a`,
		Price:         ".product__price-block_text1",
		Available:     ".available-wrap",
		OnOrder:       ".item-info-block > .cat-item-list-prices-avail",
		GalleryImages: ".item-images-wrap > a > img.item-gallery-image",
		Logo:          ".item-logo > a > img",

		OnOrderMarker: "доступно под заказ",
	}
}
