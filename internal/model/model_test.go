package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseCellStatus(t *testing.T) {
	assert.Equal(t, CellCompleted, ParseCellStatus("completed"))
	assert.Equal(t, CellFailed, ParseCellStatus("failed"))
	assert.Equal(t, CellProcessing, ParseCellStatus("processing"))
	assert.Equal(t, CellPending, ParseCellStatus("pending"))

	// Corrupt tokens degrade to pending rather than failing the load.
	assert.Equal(t, CellPending, ParseCellStatus("COMPLETED?"))
	assert.Equal(t, CellPending, ParseCellStatus(""))
}

func TestCanonicalCuisine(t *testing.T) {
	tests := []struct {
		in     string
		want   string
		wantOK bool
	}{
		{"Thai", "Thai", true},
		{"thai", "Thai", true},
		{"THAI", "Thai", true},
		{"  thai  ", "Thai", true},
		{"middle eastern", "Middle Eastern", true},
		{"Martian", "", false},
		{"", "", false},
		{"Tex-Mex", "", false},
	}
	for _, tt := range tests {
		got, ok := CanonicalCuisine(tt.in)
		assert.Equal(t, tt.wantOK, ok, "input %q", tt.in)
		assert.Equal(t, tt.want, got, "input %q", tt.in)
	}
}
