// Package dedupe checks sheet SKUs against the product store before anything
// is written.
package dedupe

import (
	"context"
	"fmt"
	"strings"

	apperrors "github.com/carloz138/catalogo-magico-mx-sub005/common/errors"
	"github.com/carloz138/catalogo-magico-mx-sub005/models"
	"go.uber.org/zap"
)

// SKULookup returns the subset of skus already stored, mapped to the stored
// product name.
type SKULookup interface {
	ExistingSKUs(ctx context.Context, skus []string) (map[string]string, error)
}

// LookupFunc adapts a function to SKULookup.
type LookupFunc func(ctx context.Context, skus []string) (map[string]string, error)

func (f LookupFunc) ExistingSKUs(ctx context.Context, skus []string) (map[string]string, error) {
	return f(ctx, skus)
}

// Detect issues one lookup for all distinct SKUs of rows and returns a record
// per row whose SKU already exists. rows is not modified.
func Detect(ctx context.Context, rows []models.ProductRow, lookup SKULookup) ([]models.DuplicateRecord, error) {
	if len(rows) == 0 {
		return nil, nil
	}

	seen := make(map[string]struct{}, len(rows))
	skus := make([]string, 0, len(rows))
	for _, r := range rows {
		if _, ok := seen[r.SKU]; ok {
			continue
		}
		seen[r.SKU] = struct{}{}
		skus = append(skus, r.SKU)
	}

	existing, err := lookup.ExistingSKUs(ctx, skus)
	if err != nil {
		return nil, &apperrors.LookupError{Err: err}
	}

	var dups []models.DuplicateRecord
	for _, r := range rows {
		name, ok := existing[r.SKU]
		if !ok {
			continue
		}
		dups = append(dups, models.DuplicateRecord{
			SKU:             r.SKU,
			Row:             r.Row,
			ExistsInBackend: true,
			ConflictingName: name,
		})
	}
	if len(dups) > 0 {
		zap.L().Info("Duplicate SKUs detected", zap.Int("count", len(dups)), zap.Int("checked", len(skus)))
	}
	return dups, nil
}

// Policy decides what a run does when duplicates exist.
type Policy string

const (
	// PolicyBlock stops the run and reports the duplicates.
	PolicyBlock Policy = "block"
	// PolicySkip drops duplicate rows and continues.
	PolicySkip Policy = "skip"
	// PolicyCancel aborts the run.
	PolicyCancel Policy = "cancel"
)

// ParsePolicy reads a policy name. Empty means PolicyBlock.
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return PolicyBlock, nil
	case PolicyBlock, PolicySkip, PolicyCancel:
		return p, nil
	default:
		return "", fmt.Errorf("unknown duplicate policy %q", s)
	}
}

// Resolution applies the caller's decision about a set of duplicates.
type Resolution struct {
	dups map[string]bool
}

// NewResolution wraps the records returned by Detect.
func NewResolution(dups []models.DuplicateRecord) Resolution {
	r := Resolution{dups: make(map[string]bool, len(dups))}
	for _, d := range dups {
		if d.ExistsInBackend {
			r.dups[d.SKU] = true
		}
	}
	return r
}

// HasDuplicates reports whether any SKU conflicts.
func (r Resolution) HasDuplicates() bool {
	return len(r.dups) > 0
}

// ContinueSkippingDuplicates returns a new slice without the duplicate rows.
func (r Resolution) ContinueSkippingDuplicates(rows []models.ProductRow) []models.ProductRow {
	out := make([]models.ProductRow, 0, len(rows))
	for _, row := range rows {
		if !r.dups[row.SKU] {
			out = append(out, row)
		}
	}
	return out
}

// Cancel aborts the run.
func (r Resolution) Cancel() error {
	return apperrors.ErrIngestionCancelled
}

// Apply resolves rows under policy.
func (r Resolution) Apply(policy Policy, rows []models.ProductRow) ([]models.ProductRow, error) {
	if !r.HasDuplicates() {
		return rows, nil
	}
	switch policy {
	case PolicySkip:
		return r.ContinueSkippingDuplicates(rows), nil
	case PolicyCancel:
		return nil, r.Cancel()
	default:
		return nil, apperrors.ErrDuplicatesFound
	}
}
