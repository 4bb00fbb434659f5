package models

import "time"

// ErrorResponse represents the standard error response format
type ErrorResponse struct {
	Code    string        `json:"code"`
	Message string        `json:"message"`
	Details []ErrorDetail `json:"details,omitempty"`
}

type ErrorDetail struct {
	Field string `json:"field"`
	Issue string `json:"issue"`
}

// SessionStatus is the coarse load state of a browsing session
type SessionStatus string

const (
	SessionIdle    SessionStatus = "idle"
	SessionLoading SessionStatus = "loading"
	SessionReady   SessionStatus = "ready"
	SessionError   SessionStatus = "error"
)

// EnrichmentCounts summarizes per-entry enrichment progress
type EnrichmentCounts struct {
	Listed    int `json:"listed"`
	Enriching int `json:"enriching"`
	Enriched  int `json:"enriched"`
	Failed    int `json:"failed"`
}

// SessionView is the snapshot handed to rendering collaborators
type SessionView struct {
	SessionID     string           `json:"sessionId"`
	Status        SessionStatus    `json:"status"`
	Items         []DetailRecord   `json:"items"`
	Entries       []ListEntry      `json:"entries,omitempty"`
	Cursor        PageCursor       `json:"cursor"`
	Filter        FilterSpec       `json:"filter"`
	Counts        EnrichmentCounts `json:"counts"`
	Error         string           `json:"error,omitempty"`
	LoadMoreError string           `json:"loadMoreError,omitempty"`
	UpdatedAt     time.Time        `json:"updatedAt"`
}

// Clone returns a deep copy of the view
func (v SessionView) Clone() SessionView {
	out := v
	if v.Items != nil {
		out.Items = make([]DetailRecord, len(v.Items))
		for i, item := range v.Items {
			out.Items[i] = item.Clone()
		}
	}
	if v.Entries != nil {
		out.Entries = append([]ListEntry(nil), v.Entries...)
	}
	out.Filter = v.Filter.Clone()
	return out
}

// CacheStatsResponse is returned by the admin cache endpoint
type CacheStatsResponse struct {
	EntryCount    int       `json:"entryCount"`
	DetailCount   int       `json:"detailCount"`
	TotalCount    int       `json:"totalCount"`
	Driver        string    `json:"driver"`
	InitializedAt time.Time `json:"initializedAt"`
}

// HealthResponse represents a health check response
type HealthResponse struct {
	Status    string    `json:"status"`
	Service   string    `json:"service,omitempty"`
	Version   string    `json:"version,omitempty"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}
