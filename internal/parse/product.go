package parse

import (
	"bytes"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/rtparts/catalogd/internal/catalog"
)

// articleRe strips the localized "Арт:" prefix from the article cell. The
// capture group holds the bare article.
var articleRe = regexp.MustCompile(`(?i)^\s*(?:арт:?)?\s*(.*?)\s*$`)

// ExtractProduct builds a Product from a detail page. Title and article are
// required; description, category and price degrade gracefully when absent.
func ExtractProduct(body []byte, rules Rules, brand, model, link string, now time.Time) (catalog.Product, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return catalog.Product{}, fmt.Errorf("parse document %s: %w", link, err)
	}

	first := func(selector string) (string, bool) {
		sel := doc.Find(selector).First()
		if sel.Length() == 0 {
			return "", false
		}
		return cleanText(sel.Text()), true
	}

	rawArticle, ok := first(rules.Article)
	if !ok {
		return catalog.Product{}, fmt.Errorf("item at %s: %w", link, catalog.ErrNoArticle)
	}
	article := articleRe.FindStringSubmatch(rawArticle)[1]
	if article == "" {
		return catalog.Product{}, fmt.Errorf("unparsable article %q at %s: %w", rawArticle, link, catalog.ErrNoArticle)
	}

	title, ok := first(rules.Title)
	if !ok {
		return catalog.Product{}, fmt.Errorf("item %s at %s: %w", article, link, catalog.ErrNoTitle)
	}

	description, _ := first(rules.Description)
	category, _ := first(rules.Category)

	var price *int64
	if raw, ok := first(rules.Price); ok {
		if v, err := strconv.ParseInt(strings.ReplaceAll(raw, " ", ""), 10, 64); err == nil {
			price = &v
		}
	}

	available := catalog.NotAvailable
	if doc.Find(rules.Available).Length() > 0 {
		available = catalog.Available
	} else if raw, ok := first(rules.OnOrder); ok {
		if strings.Contains(strings.ToLower(raw), rules.OnOrderMarker) {
			available = catalog.OnOrder
		}
	}

	var images []string
	doc.Find(rules.GalleryImages).Each(func(_ int, sel *goquery.Selection) {
		if src, ok := sel.Attr("src"); ok {
			images = append(images, src)
		}
	})
	if logo, ok := doc.Find(rules.Logo).First().Attr("src"); ok {
		images = append([]string{logo}, images...)
	}

	return catalog.Product{
		Title:       title,
		Description: description,
		Article:     article,
		Brand:       brand,
		Model:       model,
		Category:    category,
		Price:       price,
		Available:   available,
		Images:      images,
		URL:         link,
		LastVisited: now,
	}, nil
}
