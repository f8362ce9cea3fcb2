package ledger

import (
	"fmt"
	"os"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/tastemap/tastemap-cli/internal/model"
)

// RemovalLog is the append-only ledger of venues the enrichment gate flagged as
// out-of-domain. Flagged venues stay in the store for human review; nothing
// reads this file back programmatically.
type RemovalLog struct {
	path string
}

// NewRemovalLog creates a removal ledger at path, created on first append.
func NewRemovalLog(path string) *RemovalLog {
	return &RemovalLog{path: path}
}

// Append writes one `id|name|address` record. Pipes inside fields are
// replaced to keep the record parseable.
func (l *RemovalLog) Append(c model.RemovalCandidate) error {
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return eris.Wrap(err, "removals: open")
	}
	defer f.Close()

	line := fmt.Sprintf("%s|%s|%s\n",
		sanitize(c.EntityID), sanitize(c.Name), sanitize(c.Address))
	if _, err := f.WriteString(line); err != nil {
		return eris.Wrap(err, "removals: append")
	}
	return nil
}

func sanitize(s string) string {
	s = strings.ReplaceAll(s, "|", "/")
	return strings.ReplaceAll(s, "\n", " ")
}
