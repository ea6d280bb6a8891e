package models

// MatchMethod names the matching stage that produced a score.
type MatchMethod string

const (
	MatchExact    MatchMethod = "exact"
	MatchContains MatchMethod = "contains"
	MatchFuzzy    MatchMethod = "fuzzy"
	MatchNone     MatchMethod = "none"
	MatchManual   MatchMethod = "manual"
)

// OverrideDefault marks a product as intentionally imageless.
const OverrideDefault = "default"

// Overrides pairs a product (by SKU) with an image ID or OverrideDefault.
type Overrides map[string]string

// ScoredCandidate is a product row scored against one clean image name.
type ScoredCandidate struct {
	Row    ProductRow  `json:"row"`
	Index  int         `json:"index"`
	Score  float64     `json:"score"`
	Method MatchMethod `json:"method"`
}

// MatchResult is the outcome for one primary image. Product is nil when no
// candidate cleared the acceptance threshold.
type MatchResult struct {
	ImageID           string            `json:"image_id"`
	FileName          string            `json:"file_name"`
	CleanName         string            `json:"clean_name"`
	Product           *ProductRow       `json:"product"`
	Score             float64           `json:"score"`
	Method            MatchMethod       `json:"method"`
	SecondaryImageIDs []string          `json:"secondary_image_ids"`
	Suggestions       []ScoredCandidate `json:"suggestions,omitempty"`
}

// Matched reports whether the image was paired with a product.
func (m MatchResult) Matched() bool {
	return m.Product != nil
}
