package syncer

import (
	"cmp"
	"slices"

	"github.com/kiwi-labs/kiwi/internal/registry"
)

// PlanEntry is one directive in a sync plan.
type PlanEntry struct {
	Name     string `json:"name"`
	Category string `json:"category,omitempty"`
	// Current is the pinned version; empty for newly available entries.
	Current     string `json:"current,omitempty"`
	Latest      string `json:"latest"`
	ContentHash string `json:"content_hash,omitempty"`
}

// Plan partitions the registry snapshot against the lockfile pins.
type Plan struct {
	UpdatesAvailable []PlanEntry `json:"updates_available"`
	UpToDate         []PlanEntry `json:"up_to_date"`
	NewlyAvailable   []PlanEntry `json:"newly_available"`
}

// BuildPlan compares pins (name → version) with a registry snapshot. A
// pinned directive whose version differs from the registry's latest is an
// update; equal versions are up to date; snapshot entries without a pin are
// newly available. Pins missing from the snapshot are ignored. Each list is
// sorted by name.
func BuildPlan(pins map[string]string, snapshot []registry.Listing) *Plan {
	p := &Plan{
		UpdatesAvailable: []PlanEntry{},
		UpToDate:         []PlanEntry{},
		NewlyAvailable:   []PlanEntry{},
	}
	for _, l := range snapshot {
		e := PlanEntry{
			Name:        l.Name,
			Category:    l.Category,
			Latest:      l.LatestVersion,
			ContentHash: l.ContentHash,
		}
		current, pinned := pins[l.Name]
		switch {
		case !pinned:
			p.NewlyAvailable = append(p.NewlyAvailable, e)
		case current == l.LatestVersion:
			e.Current = current
			p.UpToDate = append(p.UpToDate, e)
		default:
			e.Current = current
			p.UpdatesAvailable = append(p.UpdatesAvailable, e)
		}
	}
	byName := func(a, b PlanEntry) int { return cmp.Compare(a.Name, b.Name) }
	slices.SortFunc(p.UpdatesAvailable, byName)
	slices.SortFunc(p.UpToDate, byName)
	slices.SortFunc(p.NewlyAvailable, byName)
	return p
}
