package domain

import "time"

// Optional is a patch field: Set distinguishes "leave untouched" from an
// explicit value, including an explicit nil.
type Optional[T any] struct {
	Set   bool
	Value T
}

// Some returns a set Optional holding v.
func Some[T any](v T) Optional[T] {
	return Optional[T]{Set: true, Value: v}
}

// ProductPatch carries the fields supplied to a partial update. Identity and
// creation time are not patchable. The eco score bucket is not a field here:
// it follows EcoScore.
type ProductPatch struct {
	Slug            Optional[string]
	Title           Optional[string]
	Description     Optional[string]
	Brand           Optional[string]
	Category        Optional[string]
	Tags            Optional[[]string]
	Images          Optional[[]string]
	ZonesDispo      Optional[[]string]
	Prices          Optional[map[string]float64]
	AffiliateURL    Optional[string]
	EcoScore        Optional[*float64]
	AIConfidence    Optional[*float64]
	ConfidencePct   Optional[*int]
	ConfidenceColor Optional[ConfidenceColor]
	VerifiedStatus  Optional[VerifiedStatus]
	ResumeFR        Optional[string]
	ResumeEN        Optional[string]
	EnrichedAt      Optional[time.Time]
}

// IsEmpty reports whether the patch changes nothing.
func (p ProductPatch) IsEmpty() bool {
	return !p.Slug.Set && !p.Title.Set && !p.Description.Set &&
		!p.Brand.Set && !p.Category.Set &&
		!p.Tags.Set && !p.Images.Set && !p.ZonesDispo.Set &&
		!p.Prices.Set && !p.AffiliateURL.Set &&
		!p.EcoScore.Set && !p.AIConfidence.Set && !p.ConfidencePct.Set &&
		!p.ConfidenceColor.Set && !p.VerifiedStatus.Set &&
		!p.ResumeFR.Set && !p.ResumeEN.Set && !p.EnrichedAt.Set
}

// Apply writes every set field of patch onto p and re-derives
// EcoScoreBucket when the score changed.
func (p *Product) Apply(patch ProductPatch) {
	setIf(&p.Slug, patch.Slug)
	setIf(&p.Title, patch.Title)
	setIf(&p.Description, patch.Description)
	setIf(&p.Brand, patch.Brand)
	setIf(&p.Category, patch.Category)
	setIf(&p.Tags, patch.Tags)
	setIf(&p.Images, patch.Images)
	setIf(&p.ZonesDispo, patch.ZonesDispo)
	setIf(&p.Prices, patch.Prices)
	setIf(&p.AffiliateURL, patch.AffiliateURL)
	setIf(&p.AIConfidence, patch.AIConfidence)
	setIf(&p.ConfidencePct, patch.ConfidencePct)
	setIf(&p.ConfidenceColor, patch.ConfidenceColor)
	setIf(&p.VerifiedStatus, patch.VerifiedStatus)
	setIf(&p.ResumeFR, patch.ResumeFR)
	setIf(&p.ResumeEN, patch.ResumeEN)
	setIf(&p.EnrichedAt, patch.EnrichedAt)

	if patch.EcoScore.Set {
		p.EcoScore = patch.EcoScore.Value
		p.EcoScoreBucket = BucketOf(p.EcoScore)
	}
}

// BucketOf is BucketForScore for an optional score; nil yields "".
func BucketOf(score *float64) EcoScoreBucket {
	if score == nil {
		return ""
	}
	return BucketForScore(*score)
}

func setIf[T any](dst *T, o Optional[T]) {
	if o.Set {
		*dst = o.Value
	}
}
