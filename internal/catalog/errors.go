package catalog

import (
	"errors"
	"fmt"
)

// ErrNotFound signals that the requested product does not exist.
var ErrNotFound = errors.New("product not found")

// ErrNoArticle marks a detail page without an extractable article. The item
// is dropped; the stage continues.
var ErrNoArticle = errors.New("product has no article")

// ErrNoTitle marks a detail page without an extractable title.
var ErrNoTitle = errors.New("product has no title")

// ChallengeError is returned when a fetched body is an anti-bot interstitial
// rather than real content. It is never retried by the fetch client; callers
// decide whether to skip the item or retry the whole stage.
type ChallengeError struct {
	URL string
}

func (e *ChallengeError) Error() string {
	return fmt.Sprintf("challenge page at %s", e.URL)
}

// IsChallenge reports whether err wraps a ChallengeError.
func IsChallenge(err error) bool {
	var ce *ChallengeError
	return errors.As(err, &ce)
}

// MissingHrefError marks an extracted element that lacks the link attribute
// a required selector matched on.
type MissingHrefError struct {
	Page string
}

func (e *MissingHrefError) Error() string {
	return fmt.Sprintf("element without href on %s", e.Page)
}
