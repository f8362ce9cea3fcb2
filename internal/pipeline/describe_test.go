package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/tastemap/tastemap-cli/internal/ledger"
	"github.com/tastemap/tastemap-cli/internal/model"
	"github.com/tastemap/tastemap-cli/internal/store"
	"github.com/tastemap/tastemap-cli/pkg/anthropic"
)

// systemContains matches a model call by a fragment of its system prompt.
func systemContains(fragment string) any {
	return mock.MatchedBy(func(req anthropic.MessageRequest) bool {
		return strings.Contains(req.System, fragment)
	})
}

func TestDescribeVenues_NoMaterialSkipsWithoutCalls(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	v, _, err := st.UpsertVenue(ctx, model.Venue{ExternalID: "ext-1", Name: "Empty Spot"})
	require.NoError(t, err)

	ai := &mockAIClient{}
	runner := NewRunner(st, &mockPlacesClient{}, NewGate(ai, "text-model", "vision-model"), nil, nil, RunnerConfig{})

	stats, err := runner.DescribeVenues(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.StageStats{Skipped: 1}, stats)

	// Zero model calls were spent on the empty venue.
	ai.AssertNumberOfCalls(t, "CreateMessage", 0)

	got, err := st.GetVenue(ctx, v.ID)
	require.NoError(t, err)
	assert.True(t, got.Processed, "skipped venues drain from the queue")
	assert.Nil(t, got.Description)
}

func TestDescribeVenues_GateRejectionFlagsForReview(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	v, _, err := st.UpsertVenue(ctx, model.Venue{ExternalID: "ext-1", Name: "Quick Lube", Address: "12 Main St"})
	require.NoError(t, err)
	_, err = st.AppendReview(ctx, v.ID, model.Review{
		Author: "Pat", Rating: 1, Text: "changed my oil", OccurredAt: time.Now().UTC(),
	})
	require.NoError(t, err)

	ai := &mockAIClient{}
	ai.On("CreateMessage", mock.Anything, systemContains("food establishment")).
		Return(textResponse(`{"is_food_establishment": false}`), nil)

	removalsPath := filepath.Join(t.TempDir(), "removals.txt")
	runner := NewRunner(st, &mockPlacesClient{}, NewGate(ai, "text-model", "vision-model"),
		nil, ledger.NewRemovalLog(removalsPath), RunnerConfig{})

	stats, err := runner.DescribeVenues(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.StageStats{Flagged: 1}, stats)

	// The venue row survives; only the review ledger records the flag.
	got, err := st.GetVenue(ctx, v.ID)
	require.NoError(t, err)
	assert.True(t, got.Processed)

	data, err := os.ReadFile(removalsPath)
	require.NoError(t, err)
	assert.Equal(t, v.ID+"|Quick Lube|12 Main St\n", string(data))
}

func TestDescribeVenues_SynthesizesFromDishesAndReviews(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	v, _, err := st.UpsertVenue(ctx, model.Venue{ExternalID: "ext-1", Name: "Casa Lupita", Address: "5 Elm St"})
	require.NoError(t, err)
	_, err = st.AppendReview(ctx, v.ID, model.Review{
		Author: "Pat", Rating: 5, Text: "best tacos in town", OccurredAt: time.Now().UTC(),
	})
	require.NoError(t, err)

	// Two annotated photos vote Mexican, one votes Spanish.
	for i, cuisine := range []string{"Mexican", "Mexican", "Spanish"} {
		m, _, err := st.AppendMedia(ctx, v.ID, model.Media{ImageURL: "ref-" + string(rune('a'+i))})
		require.NoError(t, err)
		_, err = st.SetMediaAnnotationIfEmpty(ctx, m.ID, store.MediaFieldDish, "dish "+cuisine)
		require.NoError(t, err)
		_, err = st.SetMediaAnnotationIfEmpty(ctx, m.ID, store.MediaFieldCuisine, cuisine)
		require.NoError(t, err)
	}

	ai := &mockAIClient{}
	ai.On("CreateMessage", mock.Anything, systemContains("food establishment")).
		Return(textResponse(`{"is_food_establishment": true}`), nil)
	ai.On("CreateMessage", mock.Anything, systemContains("dining guide")).
		Return(textResponse(`{"description": "A family-run taqueria.", "atmosphere": "casual neighborhood spot"}`), nil)

	runner := NewRunner(st, &mockPlacesClient{}, NewGate(ai, "text-model", "vision-model"),
		nil, ledger.NewRemovalLog(filepath.Join(t.TempDir(), "removals.txt")), RunnerConfig{})

	stats, err := runner.DescribeVenues(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.StageStats{Updated: 1}, stats)

	got, err := st.GetVenue(ctx, v.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Description)
	assert.Equal(t, "A family-run taqueria.", *got.Description)
	require.NotNil(t, got.Atmosphere)
	assert.Equal(t, "casual neighborhood spot", *got.Atmosphere)
	require.NotNil(t, got.Cuisine)
	assert.Equal(t, "Mexican", *got.Cuisine, "venue cuisine follows the photo majority")
	assert.True(t, got.Processed)

	// Re-running finds nothing to do and keeps the first synthesis.
	stats, err = runner.DescribeVenues(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.StageStats{}, stats)
	ai.AssertNumberOfCalls(t, "CreateMessage", 2)
}

func TestDescribeVenues_ModelErrorCountsAsFailed(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	v, _, err := st.UpsertVenue(ctx, model.Venue{ExternalID: "ext-1", Name: "Casa Lupita"})
	require.NoError(t, err)
	_, err = st.AppendReview(ctx, v.ID, model.Review{
		Author: "Pat", Rating: 5, Text: "good", OccurredAt: time.Now().UTC(),
	})
	require.NoError(t, err)

	ai := &mockAIClient{}
	ai.On("CreateMessage", mock.Anything, mock.Anything).
		Return(textResponse(`not json at all`), nil)

	runner := NewRunner(st, &mockPlacesClient{}, NewGate(ai, "text-model", "vision-model"),
		nil, ledger.NewRemovalLog(filepath.Join(t.TempDir(), "removals.txt")), RunnerConfig{})

	stats, err := runner.DescribeVenues(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.StageStats{Failed: 1}, stats)

	// Failed venues stay in the queue for the next invocation.
	got, err := st.GetVenue(ctx, v.ID)
	require.NoError(t, err)
	assert.False(t, got.Processed)
}
