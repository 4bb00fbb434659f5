package models

import (
	"strings"
	"time"
)

// DefaultPageSize is the number of list entries requested per page
const DefaultPageSize = 20

// ListEntry identifies a catalog item before its full detail is known
type ListEntry struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	SourceRef string `json:"sourceRef"`
}

// StoredEntry is a list entry as persisted in the local store.
// Position is the entry's index in the remote catalog listing.
type StoredEntry struct {
	ListEntry
	Position  int       `json:"position"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TypeSlot is one of a creature's types in slot order
type TypeSlot struct {
	Name string `json:"name"`
	Slot int    `json:"slot"`
}

// Stat is a named base stat
type Stat struct {
	Name        string `json:"name"`
	BaseValue   int    `json:"baseValue"`
	EffortValue int    `json:"effortValue"`
}

// Core stat names used by filtering and sorting
const (
	StatHP             = "hp"
	StatAttack         = "attack"
	StatDefense        = "defense"
	StatSpecialAttack  = "special-attack"
	StatSpecialDefense = "special-defense"
	StatSpeed          = "speed"
)

// CoreStats lists the six stats summed by the total sort key
var CoreStats = []string{StatHP, StatAttack, StatDefense, StatSpecialAttack, StatSpecialDefense, StatSpeed}

// DetailRecord is a fully enriched catalog item
type DetailRecord struct {
	ID            int        `json:"id"`
	Name          string     `json:"name"`
	Height        int        `json:"height"`
	Weight        int        `json:"weight"`
	ImageURL      string     `json:"imageUrl"`
	Types         []TypeSlot `json:"types"`
	Stats         []Stat     `json:"stats"`
	LastUpdatedAt time.Time  `json:"lastUpdatedAt"`
}

// Clone returns a copy that shares no slices with d
func (d DetailRecord) Clone() DetailRecord {
	out := d
	out.Types = append([]TypeSlot(nil), d.Types...)
	out.Stats = append([]Stat(nil), d.Stats...)
	return out
}

// StatValue returns the base value of the named stat, or 0 when absent
func (d DetailRecord) StatValue(name string) int {
	for _, s := range d.Stats {
		if s.Name == name {
			return s.BaseValue
		}
	}
	return 0
}

// TotalStats sums the six core stats
func (d DetailRecord) TotalStats() int {
	total := 0
	for _, name := range CoreStats {
		total += d.StatValue(name)
	}
	return total
}

// TypeNames returns the lowercased type names in slot order
func (d DetailRecord) TypeNames() []string {
	names := make([]string, 0, len(d.Types))
	for _, t := range d.Types {
		names = append(names, strings.ToLower(t.Name))
	}
	return names
}

// PageSource tells where a page was served from
type PageSource string

const (
	PageSourceNetwork PageSource = "network"
	PageSourceCache   PageSource = "cache"
	PageSourceStale   PageSource = "stale"
)

// Page is one offset-based slice of the catalog listing
type Page struct {
	Items      []ListEntry `json:"items"`
	HasMore    bool        `json:"hasMore"`
	TotalCount int         `json:"totalCount"`
	Source     PageSource  `json:"source"`
}

// PageCursor tracks pagination progress for a browsing session
type PageCursor struct {
	Offset     int  `json:"offset"`
	PageSize   int  `json:"pageSize"`
	HasMore    bool `json:"hasMore"`
	TotalCount int  `json:"totalCount"`
}

// NewPageCursor returns a cursor positioned before the first page
func NewPageCursor(pageSize int) PageCursor {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return PageCursor{PageSize: pageSize, HasMore: true}
}
