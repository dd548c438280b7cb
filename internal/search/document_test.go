package search

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ecojiaflow/ecolojia/internal/domain"
)

func ptr[T any](v T) *T { return &v }

var now = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func sampleProduct() domain.Product {
	return domain.Product{
		ID:              "p-1",
		Slug:            "eco-soap",
		Title:           "Eco Soap",
		Description:     "Natural soap",
		Brand:           "Marius",
		Category:        "hygiene",
		Tags:            []string{"bio"},
		Images:          []string{},
		ZonesDispo:      []string{"fr"},
		Prices:          map[string]float64{"EUR": 4.5, "USD": 5},
		EcoScore:        ptr(0.85),
		EcoScoreBucket:  domain.BucketMedium,
		ConfidencePct:   ptr(72),
		ConfidenceColor: domain.ConfidenceGreen,
		VerifiedStatus:  domain.StatusVerified,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

func TestNewDocument_MapsFields(t *testing.T) {
	p := sampleProduct()
	doc := NewDocument(&p)

	assert.Equal(t, "p-1", doc.ObjectID)
	assert.Equal(t, "0.8–0.9", doc.EcoScoreBucket)
	assert.Equal(t, "green", doc.ConfidenceColor)
	assert.Equal(t, "verified", doc.VerifiedStatus)
	assert.Equal(t, []string{"bio"}, doc.Tags)
	assert.Equal(t, 72, *doc.ConfidencePct)
}

func TestNewDocument_Defaults(t *testing.T) {
	doc := NewDocument(&domain.Product{ID: "p-2"})

	assert.Equal(t, "unknown", doc.EcoScoreBucket)
	assert.Equal(t, []string{}, doc.Tags)
	assert.Equal(t, []string{}, doc.Images)
	assert.Equal(t, []string{}, doc.ZonesDispo)
	assert.NotNil(t, doc.Prices)
	assert.Nil(t, doc.EcoScore)
}

func TestDocument_MarshalJSON_FlattensPrices(t *testing.T) {
	p := sampleProduct()
	b, err := json.Marshal(NewDocument(&p))
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(b, &fields))

	assert.Equal(t, "p-1", fields["objectID"])
	assert.Equal(t, 4.5, fields["price_EUR"])
	assert.Equal(t, float64(5), fields["price_USD"])
	assert.Equal(t, map[string]any{"EUR": 4.5, "USD": float64(5)}, fields["prices"])
	assert.Equal(t, []any{}, fields["images"])
}

func TestDocument_MarshalJSON_NoPrices(t *testing.T) {
	b, err := json.Marshal(NewDocument(&domain.Product{ID: "p-3"}))
	require.NoError(t, err)
	assert.True(t, json.Valid(b))
	assert.NotContains(t, string(b), "price_")
}

func TestDecodeProduct_ToleratesStringNumbers(t *testing.T) {
	p, err := DecodeProduct([]byte(`{
		"id": "p-1",
		"slug": "eco-soap",
		"eco_score": "0.95",
		"eco_score_bucket": "< 0.8",
		"ai_confidence": "n/a",
		"confidence_pct": 71.6,
		"confidence_color": "mauve",
		"tags": null
	}`))
	require.NoError(t, err)

	assert.Equal(t, 0.95, *p.EcoScore)
	assert.Equal(t, domain.BucketHigh, p.EcoScoreBucket)
	assert.Nil(t, p.AIConfidence)
	assert.Equal(t, 72, *p.ConfidencePct)
	assert.Equal(t, domain.ConfidenceYellow, p.ConfidenceColor)
	assert.Equal(t, domain.StatusManualReview, p.VerifiedStatus)
	assert.Equal(t, []string{}, p.Tags)
}

func TestDecodeProduct_NullScoreIsAbsent(t *testing.T) {
	p, err := DecodeProduct([]byte(`{"id":"p-1","eco_score":null}`))
	require.NoError(t, err)
	assert.Nil(t, p.EcoScore)
	assert.Equal(t, domain.EcoScoreBucket(""), p.EcoScoreBucket)
}

func TestDecodeProduct_RoundTripsStoredProduct(t *testing.T) {
	p := sampleProduct()
	b, err := json.Marshal(p)
	require.NoError(t, err)

	got, err := DecodeProduct(b)
	require.NoError(t, err)
	assert.Equal(t, p, *got)
}

func TestDecodeProduct_Errors(t *testing.T) {
	_, err := DecodeProduct([]byte(`{`))
	assert.Error(t, err)

	_, err = DecodeProduct([]byte(`{"slug":"no-id"}`))
	assert.ErrorContains(t, err, "missing id")
}
