package matching

import (
	"sort"

	"github.com/carloz138/catalogo-magico-mx-sub005/models"
)

// GroupImages attaches secondary images to the primary image sharing their
// clean name. A second unsuffixed file with the same clean name is attached
// as a secondary too. When a clean name only has suffixed files, the first
// one is promoted to primary. Groups keep the input order of their primary.
func GroupImages(assets []models.ImageAsset) []models.ImageGroup {
	type slot struct {
		first int
		group models.ImageGroup
	}
	slots := map[string]*slot{}
	var ordered []*slot

	for i, a := range assets {
		if a.Secondary {
			continue
		}
		if s, ok := slots[a.CleanName]; ok {
			s.group.Secondaries = append(s.group.Secondaries, a)
			continue
		}
		s := &slot{first: i, group: models.ImageGroup{Primary: a}}
		slots[a.CleanName] = s
		ordered = append(ordered, s)
	}

	for i, a := range assets {
		if !a.Secondary {
			continue
		}
		if s, ok := slots[a.CleanName]; ok {
			s.group.Secondaries = append(s.group.Secondaries, a)
			continue
		}
		promoted := a
		promoted.Secondary = false
		s := &slot{first: i, group: models.ImageGroup{Primary: promoted}}
		slots[a.CleanName] = s
		ordered = append(ordered, s)
	}

	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].first < ordered[j].first })

	groups := make([]models.ImageGroup, len(ordered))
	for i, s := range ordered {
		groups[i] = s.group
	}
	return groups
}
