// Package filter derives the visible catalog view from enriched records.
package filter

import (
	"slices"
	"sort"
	"strconv"
	"strings"

	"creature-catalog-api/internal/models"
)

// Apply filters and sorts details according to spec. The input slice is
// never mutated. A descending sort is the ascending result reversed, so
// records with equal keys come out in reverse input order.
func Apply(details []models.DetailRecord, spec models.FilterSpec) []models.DetailRecord {
	query := strings.ToLower(strings.TrimSpace(spec.Query))
	tags := normalizeTags(spec.RequiredTags)

	out := make([]models.DetailRecord, 0, len(details))
	for _, d := range details {
		if query != "" && !matchesQuery(d, query) {
			continue
		}
		if len(tags) > 0 && !hasAllTags(d, tags) {
			continue
		}
		if !inRange(d.StatValue(models.StatHP), spec.MinHP, spec.MaxHP) {
			continue
		}
		if !inRange(d.StatValue(models.StatAttack), spec.MinAttack, spec.MaxAttack) {
			continue
		}
		out = append(out, d)
	}

	less := lessFor(spec.SortKey)
	sort.SliceStable(out, func(i, j int) bool {
		return less(out[i], out[j])
	})
	if !spec.Ascending {
		slices.Reverse(out)
	}
	return out
}

func matchesQuery(d models.DetailRecord, query string) bool {
	if strings.Contains(strings.ToLower(d.Name), query) {
		return true
	}
	if strings.Contains(strconv.Itoa(d.ID), query) {
		return true
	}
	for _, t := range d.TypeNames() {
		if strings.Contains(t, query) {
			return true
		}
	}
	return false
}

func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

func hasAllTags(d models.DetailRecord, tags []string) bool {
	have := d.TypeNames()
	for _, t := range tags {
		if !slices.Contains(have, t) {
			return false
		}
	}
	return true
}

func inRange(v int, lo, hi *int) bool {
	if lo != nil && v < *lo {
		return false
	}
	if hi != nil && v > *hi {
		return false
	}
	return true
}

func lessFor(key models.SortKey) func(a, b models.DetailRecord) bool {
	switch key {
	case models.SortByName:
		return func(a, b models.DetailRecord) bool {
			return strings.ToLower(a.Name) < strings.ToLower(b.Name)
		}
	case models.SortByHP:
		return byStat(models.StatHP)
	case models.SortByAttack:
		return byStat(models.StatAttack)
	case models.SortByDefense:
		return byStat(models.StatDefense)
	case models.SortBySpeed:
		return byStat(models.StatSpeed)
	case models.SortByTotal:
		return func(a, b models.DetailRecord) bool { return a.TotalStats() < b.TotalStats() }
	case models.SortByHeight:
		return func(a, b models.DetailRecord) bool { return a.Height < b.Height }
	case models.SortByWeight:
		return func(a, b models.DetailRecord) bool { return a.Weight < b.Weight }
	default:
		return func(a, b models.DetailRecord) bool { return a.ID < b.ID }
	}
}

func byStat(name string) func(a, b models.DetailRecord) bool {
	return func(a, b models.DetailRecord) bool {
		return a.StatValue(name) < b.StatValue(name)
	}
}
