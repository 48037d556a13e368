package parse

import (
	"fmt"
	"net/url"
	"strings"
)

// AbsURL resolves href against base. Absolute hrefs pass through untouched.
func AbsURL(base, href string) (string, error) {
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href, nil
	}
	b, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	h, err := url.Parse(href)
	if err != nil {
		return "", fmt.Errorf("parse href %q: %w", href, err)
	}
	return b.ResolveReference(h).String(), nil
}
