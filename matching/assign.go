package matching

import (
	"github.com/carloz138/catalogo-magico-mx-sub005/models"
)

// MatchAll produces one MatchResult per image group.
//
// Overrides are applied first: a product overridden with an image ID is paired
// with that image's group without scoring, and one overridden with
// models.OverrideDefault stays imageless. Overrides naming an unknown or
// already claimed image are ignored. Remaining groups are matched in input
// order against the products not yet consumed, so each product is paired
// with at most one image.
func (e *Engine) MatchAll(groups []models.ImageGroup, rows []models.ProductRow, overrides models.Overrides) []models.MatchResult {
	groupOf := make(map[string]int, len(groups))
	for gi, g := range groups {
		groupOf[g.Primary.ID] = gi
		for _, s := range g.Secondaries {
			groupOf[s.ID] = gi
		}
	}

	consumed := make([]bool, len(rows))
	claimed := make(map[int]int, len(overrides))
	for ri, row := range rows {
		imageID, ok := overrides[row.SKU]
		if !ok {
			continue
		}
		if imageID == models.OverrideDefault {
			consumed[ri] = true
			continue
		}
		gi, found := groupOf[imageID]
		if !found {
			continue
		}
		if _, taken := claimed[gi]; taken {
			continue
		}
		claimed[gi] = ri
		consumed[ri] = true
	}

	results := make([]models.MatchResult, 0, len(groups))
	for gi, g := range groups {
		res := models.MatchResult{
			ImageID:           g.Primary.ID,
			FileName:          g.Primary.FileName,
			CleanName:         g.Primary.CleanName,
			Method:            models.MatchNone,
			SecondaryImageIDs: g.SecondaryIDs(),
		}

		if ri, ok := claimed[gi]; ok {
			row := rows[ri]
			res.Product = &row
			res.Score = exactScore
			res.Method = models.MatchManual
			results = append(results, res)
			continue
		}

		available := make([]models.ProductRow, 0, len(rows))
		origin := make([]int, 0, len(rows))
		for ri, row := range rows {
			if !consumed[ri] {
				available = append(available, row)
				origin = append(origin, ri)
			}
		}

		ranked := e.Match(g.Primary.CleanName, available)
		for i := range ranked {
			ranked[i].Index = origin[ranked[i].Index]
		}

		if len(ranked) > 0 && ranked[0].Method != models.MatchNone {
			best := ranked[0]
			row := best.Row
			res.Product = &row
			res.Score = best.Score
			res.Method = best.Method
			consumed[best.Index] = true
			ranked = ranked[1:]
		}
		if len(ranked) > maxSuggestions {
			ranked = ranked[:maxSuggestions]
		}
		if len(ranked) > 0 {
			res.Suggestions = ranked
		}
		results = append(results, res)
	}
	return results
}

// Imageless lists the SKUs of rows that ended up without an image.
func Imageless(rows []models.ProductRow, results []models.MatchResult) []string {
	paired := make(map[string]bool, len(results))
	for _, r := range results {
		if r.Product != nil {
			paired[r.Product.SKU] = true
		}
	}
	var out []string
	for _, row := range rows {
		if !paired[row.SKU] {
			out = append(out, row.SKU)
		}
	}
	return out
}
