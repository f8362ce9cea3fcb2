package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/tastemap/tastemap-cli/internal/model"
	"github.com/tastemap/tastemap-cli/pkg/anthropic"
)

const gateSystemPrompt = `You decide whether a mapped business is a food establishment: a restaurant, cafe, bar, bakery, food truck, or similar place whose primary offering is prepared food or drink. Grocery stores, hotels without restaurants, gas stations, and retail shops are not food establishments. Respond with a valid JSON object: {"is_food_establishment": <true|false>}`

const gateUserPrompt = `Name: %s
Address: %s
Categories: %s`

const classifyImageSystemPrompt = `You classify a single photo taken at a food establishment. If the photo shows a prepared dish, name it and its cuisine. Respond with a valid JSON object: {"is_food": <true|false>, "dish": "<short dish name or empty>", "cuisine": "<one of: %s, or empty>"}`

const describeSystemPrompt = `You write a factual two-to-three sentence description of a restaurant for a dining guide, plus a one-phrase atmosphere label (e.g. "casual neighborhood spot", "upscale date night"). Use only the material provided; never invent dishes or claims. Respond with a valid JSON object: {"description": "<text>", "atmosphere": "<phrase>"}`

// Gate wraps the classification and synthesis calls the enrichment stages
// make. Every call is single-shot request/response.
type Gate struct {
	ai          anthropic.Client
	textModel   string
	visionModel string
	maxTokens   int64
}

// NewGate creates a Gate. textModel handles text-only calls, visionModel the
// image classification calls.
func NewGate(ai anthropic.Client, textModel, visionModel string) *Gate {
	return &Gate{
		ai:          ai,
		textModel:   textModel,
		visionModel: visionModel,
		maxTokens:   1024,
	}
}

// IsFoodEstablishment asks the model whether a venue belongs in the dataset.
func (g *Gate) IsFoodEstablishment(ctx context.Context, v model.Venue) (bool, error) {
	prompt := fmt.Sprintf(gateUserPrompt, v.Name, v.Address, strings.Join(v.CategoryTags, ", "))
	resp, err := g.ai.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     g.textModel,
		MaxTokens: g.maxTokens,
		System:    gateSystemPrompt,
		Messages:  []anthropic.Message{anthropic.TextMessage("user", prompt)},
	})
	if err != nil {
		return false, eris.Wrap(err, "gate: is food establishment")
	}
	resp.Usage.LogCost(g.textModel, "gate")

	var out struct {
		IsFoodEstablishment bool `json:"is_food_establishment"`
	}
	if err := json.Unmarshal([]byte(anthropic.CleanJSON(anthropic.ExtractText(resp))), &out); err != nil {
		return false, eris.Wrap(err, "gate: parse response")
	}
	return out.IsFoodEstablishment, nil
}

// ImageClassification is the outcome of classifying one photo.
type ImageClassification struct {
	IsFood  bool   `json:"is_food"`
	Dish    string `json:"dish"`
	Cuisine string `json:"cuisine"`
}

// ClassifyFoodImage classifies a photo and, when it shows a dish, extracts
// the dish name and cuisine. The cuisine comes back raw; the caller
// canonicalizes it against the closed vocabulary.
func (g *Gate) ClassifyFoodImage(ctx context.Context, mediaType string, data []byte) (*ImageClassification, error) {
	system := fmt.Sprintf(classifyImageSystemPrompt, strings.Join(model.Cuisines, ", "))
	resp, err := g.ai.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     g.visionModel,
		MaxTokens: g.maxTokens,
		System:    system,
		Messages: []anthropic.Message{{
			Role: "user",
			Parts: []anthropic.Part{
				anthropic.ImagePart(mediaType, data),
				{Text: "Classify this photo."},
			},
		}},
	})
	if err != nil {
		return nil, eris.Wrap(err, "gate: classify image")
	}
	resp.Usage.LogCost(g.visionModel, "annotate")

	var out ImageClassification
	if err := json.Unmarshal([]byte(anthropic.CleanJSON(anthropic.ExtractText(resp))), &out); err != nil {
		return nil, eris.Wrap(err, "gate: parse classification")
	}
	return &out, nil
}

// VenueDescription is the synthesized venue copy.
type VenueDescription struct {
	Description string `json:"description"`
	Atmosphere  string `json:"atmosphere"`
}

// DescribeVenue synthesizes a description and atmosphere label from the
// venue's extracted dishes and reviews. The caller guarantees at least one
// dish or review exists before spending the call.
func (g *Gate) DescribeVenue(ctx context.Context, v model.Venue, dishes []string, reviews []model.Review) (*VenueDescription, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Name: %s\nAddress: %s\n", v.Name, v.Address)
	if len(v.CategoryTags) > 0 {
		fmt.Fprintf(&sb, "Categories: %s\n", strings.Join(v.CategoryTags, ", "))
	}
	if len(dishes) > 0 {
		fmt.Fprintf(&sb, "Dishes seen in photos: %s\n", strings.Join(dishes, ", "))
	}
	for i, r := range reviews {
		if i >= 5 {
			break // a handful is plenty of signal
		}
		fmt.Fprintf(&sb, "Review (%.1f stars): %s\n", r.Rating, r.Text)
	}

	resp, err := g.ai.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     g.textModel,
		MaxTokens: g.maxTokens,
		System:    describeSystemPrompt,
		Messages:  []anthropic.Message{anthropic.TextMessage("user", sb.String())},
	})
	if err != nil {
		return nil, eris.Wrap(err, "gate: describe venue")
	}
	resp.Usage.LogCost(g.textModel, "describe")

	var out VenueDescription
	if err := json.Unmarshal([]byte(anthropic.CleanJSON(anthropic.ExtractText(resp))), &out); err != nil {
		return nil, eris.Wrap(err, "gate: parse description")
	}
	return &out, nil
}
