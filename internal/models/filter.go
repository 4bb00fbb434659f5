package models

import (
	"fmt"
	"strings"
)

// SortKey selects the ordering of the filtered view
type SortKey int

const (
	SortByID SortKey = iota
	SortByName
	SortByHP
	SortByAttack
	SortByDefense
	SortBySpeed
	SortByTotal
	SortByHeight
	SortByWeight
)

var sortKeyNames = []string{"id", "name", "hp", "attack", "defense", "speed", "total", "height", "weight"}

func (k SortKey) String() string {
	if k < 0 || int(k) >= len(sortKeyNames) {
		return fmt.Sprintf("SortKey(%d)", int(k))
	}
	return sortKeyNames[k]
}

// ParseSortKey parses a sort key name, case-insensitively
func ParseSortKey(s string) (SortKey, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	if name == "" {
		return SortByID, nil
	}
	for i, n := range sortKeyNames {
		if n == name {
			return SortKey(i), nil
		}
	}
	return SortByID, fmt.Errorf("unknown sort key %q", s)
}

func (k SortKey) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *SortKey) UnmarshalText(text []byte) error {
	parsed, err := ParseSortKey(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// FilterSpec is the user's filter and sort selection. It is replaced
// wholesale on every edit.
type FilterSpec struct {
	Query        string   `json:"query"`
	RequiredTags []string `json:"requiredTags"`
	SortKey      SortKey  `json:"sortKey"`
	Ascending    bool     `json:"ascending"`
	MinHP        *int     `json:"minHp,omitempty"`
	MaxHP        *int     `json:"maxHp,omitempty"`
	MinAttack    *int     `json:"minAttack,omitempty"`
	MaxAttack    *int     `json:"maxAttack,omitempty"`
}

// DefaultFilterSpec shows everything ordered by id ascending
func DefaultFilterSpec() FilterSpec {
	return FilterSpec{SortKey: SortByID, Ascending: true}
}

// IsIdentity reports whether the spec filters nothing out
func (f FilterSpec) IsIdentity() bool {
	return strings.TrimSpace(f.Query) == "" && len(f.RequiredTags) == 0 &&
		f.MinHP == nil && f.MaxHP == nil && f.MinAttack == nil && f.MaxAttack == nil
}

// Clone returns a deep copy so callers can't alias the tag slice or bounds
func (f FilterSpec) Clone() FilterSpec {
	out := f
	if f.RequiredTags != nil {
		out.RequiredTags = append([]string(nil), f.RequiredTags...)
	}
	out.MinHP = cloneInt(f.MinHP)
	out.MaxHP = cloneInt(f.MaxHP)
	out.MinAttack = cloneInt(f.MinAttack)
	out.MaxAttack = cloneInt(f.MaxAttack)
	return out
}

func cloneInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// IntPtr is a convenience for building optional bounds
func IntPtr(v int) *int {
	return &v
}
