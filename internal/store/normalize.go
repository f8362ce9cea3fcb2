package store

import (
	"strings"

	"golang.org/x/text/cases"
)

var folder = cases.Fold()

// authorKey normalizes a review author name into the dedup key used by the
// (venue, author, occurred_at) uniqueness constraint, so case and spacing
// variants of the same author don't duplicate a review.
func authorKey(author string) string {
	return folder.String(strings.Join(strings.Fields(author), " "))
}
