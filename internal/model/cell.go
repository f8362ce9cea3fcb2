package model

// CellStatus is the crawl state of a single grid cell.
type CellStatus string

const (
	CellPending    CellStatus = "pending"
	CellProcessing CellStatus = "processing"
	CellCompleted  CellStatus = "completed"
	CellFailed     CellStatus = "failed"
)

// ParseCellStatus maps a ledger token to a CellStatus. Unknown or corrupt
// tokens come back as pending: the ledger prefers re-doing work over losing
// coverage after a partial write.
func ParseCellStatus(s string) CellStatus {
	switch CellStatus(s) {
	case CellPending, CellProcessing, CellCompleted, CellFailed:
		return CellStatus(s)
	default:
		return CellPending
	}
}

// GridCell is one unit of crawl work: a circular search region centered at
// (Lat, Lng). Status transitions are monotonic except that a cell observed
// as processing at load time is treated as pending, since processing is not
// a crash-safe terminal state.
type GridCell struct {
	Lat          float64    `json:"lat"`
	Lng          float64    `json:"lng"`
	Status       CellStatus `json:"status"`
	PlacesFound  int        `json:"places_found"`
	ErrorMessage string     `json:"error_message,omitempty"`
}
