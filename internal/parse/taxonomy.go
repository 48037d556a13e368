package parse

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/rtparts/catalogd/internal/catalog"
)

// Nodes extracts taxonomy anchors matched by selector. Anchors without an
// href yield a MissingHrefError and are skipped; the rest of the page still
// parses. page labels the source URL in returned errors.
func Nodes(body []byte, selector, page, parentLabel string) ([]catalog.CrawlNode, []error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, []error{fmt.Errorf("parse document %s: %w", page, err)}
	}

	var (
		nodes []catalog.CrawlNode
		errs  []error
	)
	doc.Find(selector).Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok {
			errs = append(errs, &catalog.MissingHrefError{Page: page})
			return
		}
		nodes = append(nodes, catalog.CrawlNode{
			URL:         href,
			Label:       cleanText(sel.Text()),
			ParentLabel: parentLabel,
		})
	})
	return nodes, errs
}

// ProductLinks extracts product-detail hrefs from a listing page. Items
// without an href are reported and skipped.
func ProductLinks(body []byte, selector, page string) ([]string, []error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, []error{fmt.Errorf("parse document %s: %w", page, err)}
	}

	var (
		links []string
		errs  []error
	)
	doc.Find(selector).Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok {
			errs = append(errs, &catalog.MissingHrefError{Page: page})
			return
		}
		links = append(links, href)
	})
	return links, errs
}

// NextPageLink returns the href of the next-page anchor, or "" when the page
// is the last one.
func NextPageLink(body []byte, selector string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("parse document: %w", err)
	}
	href, ok := doc.Find(selector).First().Attr("href")
	if !ok {
		return "", nil
	}
	return href, nil
}

// cleanText collapses runs of whitespace the way rendered HTML does.
func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
