package search

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ecojiaflow/ecolojia/internal/domain"
)

// PriceFieldPrefix prefixes the flattened per-currency price fields, so a
// EUR price is also indexed as "price_EUR" for range filters.
const PriceFieldPrefix = "price_"

// Document is the denormalized projection of a product held by the index.
// ObjectID always equals the catalog id.
type Document struct {
	ObjectID        string             `json:"objectID"`
	Slug            string             `json:"slug"`
	Title           string             `json:"title"`
	Description     string             `json:"description"`
	Brand           string             `json:"brand"`
	Category        string             `json:"category"`
	Tags            []string           `json:"tags"`
	Images          []string           `json:"images"`
	ZonesDispo      []string           `json:"zones_dispo"`
	Prices          map[string]float64 `json:"prices"`
	AffiliateURL    string             `json:"affiliate_url"`
	EcoScore        *float64           `json:"eco_score"`
	EcoScoreBucket  string             `json:"eco_score_bucket"`
	AIConfidence    *float64           `json:"ai_confidence"`
	ConfidencePct   *int               `json:"confidence_pct"`
	ConfidenceColor string             `json:"confidence_color"`
	VerifiedStatus  string             `json:"verified_status"`
	ResumeFR        string             `json:"resume_fr"`
	ResumeEN        string             `json:"resume_en"`
	EnrichedAt      time.Time          `json:"enriched_at"`
	CreatedAt       time.Time          `json:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at"`
	// SyncedAt is when the document was last written to the index.
	SyncedAt        time.Time          `json:"synced_at,omitzero"`
}

// NewDocument maps a stored product onto its index projection. Nil lists
// become empty, a missing bucket becomes "unknown".
func NewDocument(p *domain.Product) Document {
	bucket := string(p.EcoScoreBucket)
	if bucket == "" {
		bucket = string(domain.BucketUnknown)
	}
	prices := p.Prices
	if prices == nil {
		prices = map[string]float64{}
	}
	return Document{
		ObjectID:        p.ID,
		Slug:            p.Slug,
		Title:           p.Title,
		Description:     p.Description,
		Brand:           p.Brand,
		Category:        p.Category,
		Tags:            orEmpty(p.Tags),
		Images:          orEmpty(p.Images),
		ZonesDispo:      orEmpty(p.ZonesDispo),
		Prices:          prices,
		AffiliateURL:    p.AffiliateURL,
		EcoScore:        p.EcoScore,
		EcoScoreBucket:  bucket,
		AIConfidence:    p.AIConfidence,
		ConfidencePct:   p.ConfidencePct,
		ConfidenceColor: string(p.ConfidenceColor),
		VerifiedStatus:  string(p.VerifiedStatus),
		ResumeFR:        p.ResumeFR,
		ResumeEN:        p.ResumeEN,
		EnrichedAt:      p.EnrichedAt,
		CreatedAt:       p.CreatedAt,
		UpdatedAt:       p.UpdatedAt,
	}
}

// MarshalJSON encodes the document plus one price_<CUR> field per currency.
func (d Document) MarshalJSON() ([]byte, error) {
	type plain Document
	base, err := json.Marshal(plain(d))
	if err != nil {
		return nil, err
	}
	if len(d.Prices) == 0 {
		return base, nil
	}

	currencies := make([]string, 0, len(d.Prices))
	for cur := range d.Prices {
		currencies = append(currencies, cur)
	}
	sort.Strings(currencies)

	var buf bytes.Buffer
	buf.Write(base[:len(base)-1])
	for _, cur := range currencies {
		key, _ := json.Marshal(PriceFieldPrefix + cur)
		amount, err := json.Marshal(d.Prices[cur])
		if err != nil {
			return nil, fmt.Errorf("encode price %s: %w", cur, err)
		}
		buf.WriteByte(',')
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(amount)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// looseFloat decodes a JSON number or a numeric string. Anything else,
// including NaN and infinities, decodes as absent.
type looseFloat struct {
	v *float64
}

func (f *looseFloat) UnmarshalJSON(b []byte) error {
	f.v = nil
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	var n float64
	if err := json.Unmarshal(b, &n); err == nil {
		f.v = &n
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return nil
	}
	n, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
		return nil
	}
	f.v = &n
	return nil
}

// storedRecord is the product shape carried by sync events. Numeric fields
// are parsed defensively because older producers encoded them as strings.
type storedRecord struct {
	ID              string             `json:"id"`
	Slug            string             `json:"slug"`
	Title           string             `json:"title"`
	Description     string             `json:"description"`
	Brand           string             `json:"brand"`
	Category        string             `json:"category"`
	Tags            []string           `json:"tags"`
	Images          []string           `json:"images"`
	ZonesDispo      []string           `json:"zones_dispo"`
	Prices          map[string]float64 `json:"prices"`
	AffiliateURL    string             `json:"affiliate_url"`
	EcoScore        looseFloat         `json:"eco_score"`
	AIConfidence    looseFloat         `json:"ai_confidence"`
	ConfidencePct   looseFloat         `json:"confidence_pct"`
	ConfidenceColor string             `json:"confidence_color"`
	VerifiedStatus  string             `json:"verified_status"`
	ResumeFR        string             `json:"resume_fr"`
	ResumeEN        string             `json:"resume_en"`
	EnrichedAt      time.Time          `json:"enriched_at"`
	CreatedAt       time.Time          `json:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at"`
}

// DecodeProduct reads a stored product record, tolerating numbers encoded
// as strings. The bucket is always re-derived from the score.
func DecodeProduct(data []byte) (*domain.Product, error) {
	var rec storedRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode product record: %w", err)
	}
	if rec.ID == "" {
		return nil, fmt.Errorf("decode product record: missing id")
	}

	p := &domain.Product{
		ID:              rec.ID,
		Slug:            rec.Slug,
		Title:           rec.Title,
		Description:     rec.Description,
		Brand:           rec.Brand,
		Category:        rec.Category,
		Tags:            orEmpty(rec.Tags),
		Images:          orEmpty(rec.Images),
		ZonesDispo:      orEmpty(rec.ZonesDispo),
		Prices:          rec.Prices,
		AffiliateURL:    rec.AffiliateURL,
		EcoScore:        rec.EcoScore.v,
		AIConfidence:    rec.AIConfidence.v,
		ConfidenceColor: domain.ParseConfidenceColor(rec.ConfidenceColor),
		VerifiedStatus:  domain.ParseVerifiedStatus(rec.VerifiedStatus),
		ResumeFR:        rec.ResumeFR,
		ResumeEN:        rec.ResumeEN,
		EnrichedAt:      rec.EnrichedAt,
		CreatedAt:       rec.CreatedAt,
		UpdatedAt:       rec.UpdatedAt,
	}
	if rec.ConfidencePct.v != nil {
		pct := int(math.Round(*rec.ConfidencePct.v))
		p.ConfidencePct = &pct
	}
	p.EcoScoreBucket = domain.BucketOf(p.EcoScore)
	return p, nil
}
