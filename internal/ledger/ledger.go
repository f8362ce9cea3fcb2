// Package ledger is the durable bookkeeping for the crawl: a flat CSV file
// with one record per grid cell, rewritten whole on every state change. The
// file is the ledger of crawl coverage; records are never deleted.
package ledger

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/tastemap/tastemap-cli/internal/model"
)

// ErrAlreadyInitialized is returned by Init when a ledger file exists.
// Existing progress is never regenerated over.
var ErrAlreadyInitialized = errors.New("ledger: already initialized")

// FileTracker tracks per-cell crawl state in a CSV file. It is a
// single-writer structure: the crawl is strictly sequential, so no locking
// is needed around the read-modify-write cycle.
type FileTracker struct {
	path string
}

// NewFileTracker creates a tracker over the ledger file at path. The file
// is created lazily by Init.
func NewFileTracker(path string) *FileTracker {
	return &FileTracker{path: path}
}

// Path returns the ledger file location.
func (t *FileTracker) Path() string { return t.path }

// Init writes the cell list to the ledger only if no ledger exists yet.
// Returns the number of cells written, or ErrAlreadyInitialized.
func (t *FileTracker) Init(cells []model.GridCell) (int, error) {
	if _, err := os.Stat(t.path); err == nil {
		return 0, ErrAlreadyInitialized
	} else if !os.IsNotExist(err) {
		return 0, eris.Wrap(err, "ledger: stat")
	}
	if err := t.save(cells); err != nil {
		return 0, err
	}
	return len(cells), nil
}

// Load reads the full cell list. Records whose status or counters fail to
// parse are degraded to pending rather than failing the load: the crawl
// prefers re-doing work over losing coverage after a torn write. Records
// whose coordinates are unreadable are dropped with a warning, since there
// is no cell left to recover.
func (t *FileTracker) Load() ([]model.GridCell, error) {
	f, err := os.Open(t.path)
	if err != nil {
		return nil, eris.Wrap(err, "ledger: open")
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1 // tolerate short rows from torn writes

	var cells []model.GridCell
	line := 0
	for {
		rec, err := r.Read()
		if err != nil {
			break // EOF or trailing garbage; keep what parsed
		}
		line++
		cell, ok := parseRecord(rec)
		if !ok {
			zap.L().Warn("ledger: dropping unreadable record", zap.Int("line", line))
			continue
		}
		cells = append(cells, cell)
	}
	return cells, nil
}

func parseRecord(rec []string) (model.GridCell, bool) {
	if len(rec) < 2 {
		return model.GridCell{}, false
	}
	lat, latErr := strconv.ParseFloat(strings.TrimSpace(rec[0]), 64)
	lng, lngErr := strconv.ParseFloat(strings.TrimSpace(rec[1]), 64)
	if latErr != nil || lngErr != nil {
		return model.GridCell{}, false
	}

	cell := model.GridCell{Lat: lat, Lng: lng, Status: model.CellPending}
	if len(rec) > 2 {
		cell.Status = model.ParseCellStatus(strings.TrimSpace(rec[2]))
	}
	if len(rec) > 3 {
		if n, err := strconv.Atoi(strings.TrimSpace(rec[3])); err == nil {
			cell.PlacesFound = n
		} else {
			cell.Status = model.CellPending
		}
	}
	if len(rec) > 4 {
		cell.ErrorMessage = rec[4]
	}
	return cell, true
}

func (t *FileTracker) save(cells []model.GridCell) error {
	var sb strings.Builder
	w := csv.NewWriter(&sb)
	for _, c := range cells {
		rec := []string{
			strconv.FormatFloat(c.Lat, 'f', 6, 64),
			strconv.FormatFloat(c.Lng, 'f', 6, 64),
			string(c.Status),
			strconv.Itoa(c.PlacesFound),
			c.ErrorMessage,
		}
		if err := w.Write(rec); err != nil {
			return eris.Wrap(err, "ledger: encode record")
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return eris.Wrap(err, "ledger: flush records")
	}
	if err := os.WriteFile(t.path, []byte(sb.String()), 0o644); err != nil {
		return eris.Wrap(err, "ledger: write")
	}
	return nil
}

// cellKey identifies a cell within the ledger by its coordinates at the
// same precision they are persisted with.
func cellKey(lat, lng float64) string {
	return fmt.Sprintf("%.6f,%.6f", lat, lng)
}

// ClaimNext marks up to n eligible cells as processing, persists the full
// state, and returns the claimed cells. Cells found in processing state are
// treated as pending per the crash-recovery rule: processing is never a
// crash-safe terminal state. Failed cells are not eligible — external calls
// are billed, so failed cells come back only through ResetFailed.
func (t *FileTracker) ClaimNext(n int) ([]model.GridCell, error) {
	cells, err := t.Load()
	if err != nil {
		return nil, err
	}

	var claimed []model.GridCell
	for i := range cells {
		if n >= 0 && len(claimed) >= n {
			break
		}
		switch cells[i].Status {
		case model.CellPending, model.CellProcessing:
			cells[i].Status = model.CellProcessing
			claimed = append(claimed, cells[i])
		}
	}
	if len(claimed) == 0 {
		return nil, nil
	}

	// Persist before returning: a crash after claim leaves the cells in
	// processing, which the next run treats as pending again.
	if err := t.save(cells); err != nil {
		return nil, err
	}
	return claimed, nil
}

// Complete records a terminal completed status for the cell.
func (t *FileTracker) Complete(cell model.GridCell, placesFound int) error {
	return t.update(cell, func(c *model.GridCell) {
		c.Status = model.CellCompleted
		c.PlacesFound = placesFound
		c.ErrorMessage = ""
	})
}

// Fail records a terminal failed status with the error message.
func (t *FileTracker) Fail(cell model.GridCell, message string) error {
	return t.update(cell, func(c *model.GridCell) {
		c.Status = model.CellFailed
		c.ErrorMessage = message
	})
}

func (t *FileTracker) update(cell model.GridCell, mutate func(*model.GridCell)) error {
	cells, err := t.Load()
	if err != nil {
		return err
	}
	key := cellKey(cell.Lat, cell.Lng)
	for i := range cells {
		if cellKey(cells[i].Lat, cells[i].Lng) == key {
			mutate(&cells[i])
			return t.save(cells)
		}
	}
	return eris.Errorf("ledger: cell %s not found", key)
}

// ResetFailed flips failed cells back to pending. When match is non-empty
// only cells whose error message contains it are reset. This is the explicit
// retry affordance; failed cells are never retried automatically.
func (t *FileTracker) ResetFailed(match string) (int, error) {
	cells, err := t.Load()
	if err != nil {
		return 0, err
	}
	reset := 0
	for i := range cells {
		if cells[i].Status != model.CellFailed {
			continue
		}
		if match != "" && !strings.Contains(cells[i].ErrorMessage, match) {
			continue
		}
		cells[i].Status = model.CellPending
		cells[i].ErrorMessage = ""
		reset++
	}
	if reset == 0 {
		return 0, nil
	}
	if err := t.save(cells); err != nil {
		return 0, err
	}
	return reset, nil
}

// Summary aggregates per-status counts and total places found.
type Summary struct {
	Total       int
	Pending     int
	Processing  int
	Completed   int
	Failed      int
	PlacesFound int
}

// Summarize computes the ledger summary. PlacesFound can exceed the live
// venue count because adjacent cells discover the same venue; that
// divergence is expected, not an error.
func (t *FileTracker) Summarize() (Summary, error) {
	cells, err := t.Load()
	if err != nil {
		return Summary{}, err
	}
	s := Summary{Total: len(cells)}
	for _, c := range cells {
		switch c.Status {
		case model.CellPending:
			s.Pending++
		case model.CellProcessing:
			s.Processing++
		case model.CellCompleted:
			s.Completed++
		case model.CellFailed:
			s.Failed++
		}
		s.PlacesFound += c.PlacesFound
	}
	return s, nil
}
