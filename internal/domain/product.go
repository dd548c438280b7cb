package domain

import (
	"time"
)

// Placeholder values stored when a field is missing from the submission.
const (
	DefaultTitle       = "Titre manquant"
	DefaultDescription = "Description manquante"
	DefaultSlug        = "produit-sans-slug"
	DefaultBrand       = "unspecified"
	DefaultCategory    = "other"
	DefaultCurrency    = "EUR"
)

// Product is the catalog record. The relational store owns it; the search
// index only ever holds a projection keyed by ID.
type Product struct {
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
	EcoScore        *float64           `json:"eco_score"`
	EcoScoreBucket  EcoScoreBucket     `json:"eco_score_bucket,omitempty"`
	AIConfidence    *float64           `json:"ai_confidence"`
	ConfidencePct   *int               `json:"confidence_pct"`
	ConfidenceColor ConfidenceColor    `json:"confidence_color"`
	VerifiedStatus  VerifiedStatus     `json:"verified_status"`
	ResumeFR        string             `json:"resume_fr"`
	ResumeEN        string             `json:"resume_en"`
	EnrichedAt      time.Time          `json:"enriched_at"`
	CreatedAt       time.Time          `json:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at"`
}

// DefaultPrices is the price map stored when none was supplied.
func DefaultPrices() map[string]float64 {
	return map[string]float64{DefaultCurrency: 0}
}

// Deletion is returned by a successful delete.
type Deletion struct {
	ID     string `json:"id"`
	Slug   string `json:"slug"`
	Status string `json:"status"`
}

// DeletionStatus is the Status of every Deletion.
const DeletionStatus = "deleted"

// NewDeletion builds the confirmation for a removed product.
func NewDeletion(p *Product) Deletion {
	return Deletion{ID: p.ID, Slug: p.Slug, Status: DeletionStatus}
}

// ReindexResult summarizes a full reindex run.
type ReindexResult struct {
	Indexed int `json:"indexed"`
	Pages   int `json:"pages"`
	// Purged counts documents removed because their product is gone.
	Purged int `json:"purged"`
}
