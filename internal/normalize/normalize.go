// Package normalize maps decoded product submissions onto fully defaulted
// domain values. Every function here is total: malformed input is coerced to
// a documented default, never rejected.
package normalize

import (
	"encoding/json"
	"math"
	"strings"
	"time"

	"github.com/ecojiaflow/ecolojia/internal/domain"
	"github.com/ecojiaflow/ecolojia/pkg/slug"
)

// RawProduct is a product submission as decoded from JSON.
type RawProduct map[string]any

// Field names accepted in a RawProduct.
const (
	FieldID              = "id"
	FieldSlug            = "slug"
	FieldTitle           = "title"
	FieldDescription     = "description"
	FieldBrand           = "brand"
	FieldCategory        = "category"
	FieldTags            = "tags"
	FieldImages          = "images"
	FieldZonesDispo      = "zones_dispo"
	FieldPrices          = "prices"
	FieldAffiliateURL    = "affiliate_url"
	FieldEcoScore        = "eco_score"
	FieldAIConfidence    = "ai_confidence"
	FieldConfidencePct   = "confidence_pct"
	FieldConfidenceColor = "confidence_color"
	FieldVerifiedStatus  = "verified_status"
	FieldResumeFR        = "resume_fr"
	FieldResumeEN        = "resume_en"
	FieldEnrichedAt      = "enriched_at"
	FieldCreatedAt       = "created_at"
)

const maxSlugLen = 96

var timeLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"}

// Product normalizes a full submission. ID is left empty when no usable id
// was supplied; assigning one is the caller's job. now is used for missing or
// unparsable timestamps.
func Product(raw RawProduct, now time.Time) domain.Product {
	eco := ecoScore(raw[FieldEcoScore])
	return domain.Product{
		ID:              ID(raw),
		Slug:            productSlug(raw),
		Title:           requiredText(raw[FieldTitle], domain.DefaultTitle),
		Description:     requiredText(raw[FieldDescription], domain.DefaultDescription),
		Brand:           requiredText(raw[FieldBrand], domain.DefaultBrand),
		Category:        requiredText(raw[FieldCategory], domain.DefaultCategory),
		Tags:            stringList(raw[FieldTags]),
		Images:          stringList(raw[FieldImages]),
		ZonesDispo:      stringList(raw[FieldZonesDispo]),
		Prices:          prices(raw[FieldPrices]),
		AffiliateURL:    text(raw[FieldAffiliateURL]),
		EcoScore:        eco,
		EcoScoreBucket:  EcoScoreBucket(eco),
		AIConfidence:    finite(raw[FieldAIConfidence]),
		ConfidencePct:   percent(raw[FieldConfidencePct]),
		ConfidenceColor: domain.ParseConfidenceColor(text(raw[FieldConfidenceColor])),
		VerifiedStatus:  domain.ParseVerifiedStatus(text(raw[FieldVerifiedStatus])),
		ResumeFR:        text(raw[FieldResumeFR]),
		ResumeEN:        text(raw[FieldResumeEN]),
		EnrichedAt:      timestamp(raw[FieldEnrichedAt], now),
		CreatedAt:       timestamp(raw[FieldCreatedAt], now),
	}
}

// Patch normalizes only the keys present in raw, applying the same coercions
// as Product. Absent keys stay unset. A supplied slug with no usable
// characters is ignored.
func Patch(raw RawProduct, now time.Time) domain.ProductPatch {
	var p domain.ProductPatch
	for key, v := range raw {
		switch key {
		case FieldSlug:
			if s := explicitSlug(v); s != "" {
				p.Slug = domain.Some(s)
			}
		case FieldTitle:
			p.Title = domain.Some(requiredText(v, domain.DefaultTitle))
		case FieldDescription:
			p.Description = domain.Some(requiredText(v, domain.DefaultDescription))
		case FieldBrand:
			p.Brand = domain.Some(requiredText(v, domain.DefaultBrand))
		case FieldCategory:
			p.Category = domain.Some(requiredText(v, domain.DefaultCategory))
		case FieldTags:
			p.Tags = domain.Some(stringList(v))
		case FieldImages:
			p.Images = domain.Some(stringList(v))
		case FieldZonesDispo:
			p.ZonesDispo = domain.Some(stringList(v))
		case FieldPrices:
			p.Prices = domain.Some(prices(v))
		case FieldAffiliateURL:
			p.AffiliateURL = domain.Some(text(v))
		case FieldEcoScore:
			p.EcoScore = domain.Some(ecoScore(v))
		case FieldAIConfidence:
			p.AIConfidence = domain.Some(finite(v))
		case FieldConfidencePct:
			p.ConfidencePct = domain.Some(percent(v))
		case FieldConfidenceColor:
			p.ConfidenceColor = domain.Some(domain.ParseConfidenceColor(text(v)))
		case FieldVerifiedStatus:
			p.VerifiedStatus = domain.Some(domain.ParseVerifiedStatus(text(v)))
		case FieldResumeFR:
			p.ResumeFR = domain.Some(text(v))
		case FieldResumeEN:
			p.ResumeEN = domain.Some(text(v))
		case FieldEnrichedAt:
			p.EnrichedAt = domain.Some(timestamp(v, now))
		}
	}
	return p
}

// MaxIDLen bounds caller-supplied ids in bytes.
const MaxIDLen = 128

// ID returns the trimmed caller-supplied id, or "" when it is missing or not
// usable as a single URL path segment and index document id: longer than
// MaxIDLen, not starting with a letter or digit, or holding anything other
// than letters, digits, '-', '_' and '.'. The caller assigns a fresh id
// for "".
func ID(raw RawProduct) string {
	id := text(raw[FieldID])
	if id == "" || len(id) > MaxIDLen || !isAlnum(id[0]) {
		return ""
	}
	for i := 0; i < len(id); i++ {
		if c := id[i]; !isAlnum(c) && c != '-' && c != '_' && c != '.' {
			return ""
		}
	}
	return id
}

func isAlnum(c byte) bool {
	return ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z') || ('0' <= c && c <= '9')
}

// HasExplicitSlug reports whether raw carries a slug that normalizes to
// something usable. Such slugs are kept verbatim; derived ones may be
// disambiguated.
func HasExplicitSlug(raw RawProduct) bool {
	return explicitSlug(raw[FieldSlug]) != ""
}

// Slug derives a slug from title, falling back to domain.DefaultSlug when the
// title has no letters or digits.
func Slug(title string) string {
	s := truncateSlug(slug.Generate(title))
	if s == "" {
		return domain.DefaultSlug
	}
	return s
}

// EcoScoreBucket derives the bucket for an optional score; nil yields "".
func EcoScoreBucket(score *float64) domain.EcoScoreBucket {
	return domain.BucketOf(score)
}

func productSlug(raw RawProduct) string {
	if s := explicitSlug(raw[FieldSlug]); s != "" {
		return s
	}
	title, _ := raw[FieldTitle].(string)
	return Slug(title)
}

func explicitSlug(v any) string {
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return truncateSlug(slug.Generate(s))
}

func truncateSlug(s string) string {
	if len(s) <= maxSlugLen {
		return s
	}
	return strings.TrimRight(s[:maxSlugLen], "-")
}

func text(v any) string {
	s, _ := v.(string)
	return strings.TrimSpace(s)
}

func requiredText(v any, fallback string) string {
	if s := text(v); s != "" {
		return s
	}
	return fallback
}

// stringList keeps the non-blank strings of an array and maps any other
// shape to an empty, non-nil slice.
func stringList(v any) []string {
	out := []string{}
	switch items := v.(type) {
	case []any:
		for _, item := range items {
			if s := text(item); s != "" {
				out = append(out, s)
			}
		}
	case []string:
		for _, item := range items {
			if s := strings.TrimSpace(item); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

// prices keeps numeric entries keyed by upper-cased currency code. Anything
// that leaves the map empty yields domain.DefaultPrices.
func prices(v any) map[string]float64 {
	out := map[string]float64{}
	switch m := v.(type) {
	case map[string]any:
		for cur, amount := range m {
			if f := finite(amount); f != nil {
				addPrice(out, cur, *f)
			}
		}
	case map[string]float64:
		for cur, amount := range m {
			if !math.IsNaN(amount) && !math.IsInf(amount, 0) {
				addPrice(out, cur, amount)
			}
		}
	}
	if len(out) == 0 {
		return domain.DefaultPrices()
	}
	return out
}

func addPrice(out map[string]float64, currency string, amount float64) {
	if c := strings.ToUpper(strings.TrimSpace(currency)); c != "" {
		out[c] = amount
	}
}

// number accepts only JSON-number shapes; numeric strings are not numbers.
func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func finite(v any) *float64 {
	f, ok := number(v)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

// ecoScore is finite clamped into [0, 1].
func ecoScore(v any) *float64 {
	f := finite(v)
	if f == nil {
		return nil
	}
	clamped := min(max(*f, 0), 1)
	return &clamped
}

func percent(v any) *int {
	f := finite(v)
	if f == nil || math.Abs(*f) > math.MaxInt32 {
		return nil
	}
	n := int(math.Round(*f))
	return &n
}

func timestamp(v any, now time.Time) time.Time {
	switch t := v.(type) {
	case time.Time:
		if !t.IsZero() {
			return t.UTC()
		}
	case string:
		s := strings.TrimSpace(t)
		for _, layout := range timeLayouts {
			if parsed, err := time.Parse(layout, s); err == nil {
				return parsed.UTC()
			}
		}
	}
	return now.UTC()
}
