package domain

// ConfidenceColor classifies how much the AI enrichment of a product can be
// trusted.
type ConfidenceColor string

const (
	ConfidenceGreen  ConfidenceColor = "green"
	ConfidenceYellow ConfidenceColor = "yellow"
	ConfidenceRed    ConfidenceColor = "red"
)

// ParseConfidenceColor returns the color named by s, or ConfidenceYellow for
// anything that is not exactly one of the three values.
func ParseConfidenceColor(s string) ConfidenceColor {
	switch c := ConfidenceColor(s); c {
	case ConfidenceGreen, ConfidenceYellow, ConfidenceRed:
		return c
	default:
		return ConfidenceYellow
	}
}

// VerifiedStatus records whether a human has checked a product.
type VerifiedStatus string

const (
	StatusVerified     VerifiedStatus = "verified"
	StatusManualReview VerifiedStatus = "manual_review"
)

// ParseVerifiedStatus returns the status named by s, defaulting to
// StatusManualReview.
func ParseVerifiedStatus(s string) VerifiedStatus {
	switch v := VerifiedStatus(s); v {
	case StatusVerified, StatusManualReview:
		return v
	default:
		return StatusManualReview
	}
}

// EcoScoreBucket is the coarse facet derived from an eco score. The empty
// value means the product has no score.
type EcoScoreBucket string

const (
	BucketHigh   EcoScoreBucket = "> 0.9"
	BucketMedium EcoScoreBucket = "0.8–0.9"
	BucketLow    EcoScoreBucket = "< 0.8"

	// BucketUnknown is what the search projection stores for an unscored
	// product. It is never stored in the catalog.
	BucketUnknown EcoScoreBucket = "unknown"
)

// BucketForScore classifies score with half-open thresholds: [0.9, ∞) is
// high, [0.8, 0.9) medium, everything else low.
func BucketForScore(score float64) EcoScoreBucket {
	switch {
	case score >= 0.9:
		return BucketHigh
	case score >= 0.8:
		return BucketMedium
	default:
		return BucketLow
	}
}

// ParseEcoScoreBucket accepts the three stored bucket labels.
func ParseEcoScoreBucket(s string) (EcoScoreBucket, bool) {
	switch b := EcoScoreBucket(s); b {
	case BucketHigh, BucketMedium, BucketLow:
		return b, true
	default:
		return "", false
	}
}
