package pipeline

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/tastemap/tastemap-cli/internal/model"
	"github.com/tastemap/tastemap-cli/pkg/anthropic"
	"github.com/tastemap/tastemap-cli/pkg/places"
)

// --- Places Mock ---

type mockPlacesClient struct {
	mock.Mock
}

func (m *mockPlacesClient) SearchNearby(ctx context.Context, lat, lng, radiusM float64) ([]places.Place, error) {
	args := m.Called(ctx, lat, lng, radiusM)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]places.Place), args.Error(1)
}

func (m *mockPlacesClient) GetDetails(ctx context.Context, placeID string) (*places.Details, error) {
	args := m.Called(ctx, placeID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*places.Details), args.Error(1)
}

func (m *mockPlacesClient) GetPhoto(ctx context.Context, photoRef string, maxWidth int) ([]byte, error) {
	args := m.Called(ctx, photoRef, maxWidth)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

// --- Anthropic Mock ---

type mockAIClient struct {
	mock.Mock
}

func (m *mockAIClient) CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*anthropic.MessageResponse), args.Error(1)
}

// textResponse wraps a payload as a single text-block response.
func textResponse(payload string) *anthropic.MessageResponse {
	return &anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: payload}},
	}
}

// --- Stage spy for orchestrator tests ---

type spyStages struct {
	fetchErr    error
	annotateErr error

	fetchCalls    int
	annotateCalls int
	describeCalls int
}

func (s *spyStages) Fetch(_ context.Context, _ int) (model.CrawlStats, error) {
	s.fetchCalls++
	return model.CrawlStats{CellsCompleted: 1}, s.fetchErr
}

func (s *spyStages) AnnotateMedia(_ context.Context) (model.StageStats, error) {
	s.annotateCalls++
	return model.StageStats{Updated: 2}, s.annotateErr
}

func (s *spyStages) DescribeVenues(_ context.Context) (model.StageStats, error) {
	s.describeCalls++
	return model.StageStats{Updated: 1}, nil
}
