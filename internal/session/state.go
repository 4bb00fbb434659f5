package session

import (
	"time"

	"creature-catalog-api/internal/filter"
	"creature-catalog-api/internal/models"
)

// EntryStatus is the enrichment state of one listed entry
type EntryStatus int

const (
	ListedOnly EntryStatus = iota
	Enriching
	Enriched
)

func (s EntryStatus) String() string {
	switch s {
	case Enriching:
		return "enriching"
	case Enriched:
		return "enriched"
	default:
		return "listed"
	}
}

// state is owned by the session loop goroutine. Nothing else reads or
// writes it.
type state struct {
	generation int

	entries  []models.ListEntry
	known    map[string]bool
	details  map[string]models.DetailRecord
	statuses map[string]EntryStatus
	failed   map[string]bool

	filter models.FilterSpec
	view   []models.DetailRecord
	cursor models.PageCursor

	status      models.SessionStatus
	loading     bool
	err         string
	loadMoreErr string
	pending     int
	idleWaiters []chan struct{}
	updatedAt   time.Time
}

func newState(pageSize int, spec models.FilterSpec) *state {
	st := &state{
		filter: spec.Clone(),
		status: models.SessionIdle,
	}
	st.reset(pageSize)
	return st
}

// reset drops every entry and detail and starts a new generation, so
// results of older enrichment batches are ignored
func (st *state) reset(pageSize int) {
	st.generation++
	st.entries = nil
	st.known = make(map[string]bool)
	st.details = make(map[string]models.DetailRecord)
	st.statuses = make(map[string]EntryStatus)
	st.failed = make(map[string]bool)
	st.view = []models.DetailRecord{}
	st.cursor = models.NewPageCursor(pageSize)
	st.err = ""
	st.loadMoreErr = ""
}

// appendPage appends the entries not seen before, advances the cursor
// and returns the new entries
func (st *state) appendPage(offset int, page *models.Page) []models.ListEntry {
	added := make([]models.ListEntry, 0, len(page.Items))
	for _, e := range page.Items {
		if st.known[e.ID] {
			continue
		}
		st.known[e.ID] = true
		st.entries = append(st.entries, e)
		st.statuses[e.ID] = ListedOnly
		added = append(added, e)
	}

	next := offset + len(page.Items)
	if next > st.cursor.Offset {
		st.cursor.Offset = next
	}
	st.cursor.HasMore = page.HasMore
	st.cursor.TotalCount = page.TotalCount
	return added
}

func (st *state) markEnriching(entries []models.ListEntry) {
	for _, e := range entries {
		if st.statuses[e.ID] == ListedOnly {
			st.statuses[e.ID] = Enriching
		}
	}
}

// applyOutcome records one enrichment result. A failed refresh of an
// already enriched entry keeps the old record.
func (st *state) applyOutcome(entryID string, record *models.DetailRecord, err error) {
	if !st.known[entryID] {
		return
	}
	if err != nil || record == nil {
		if _, ok := st.details[entryID]; ok {
			st.statuses[entryID] = Enriched
			return
		}
		st.statuses[entryID] = ListedOnly
		st.failed[entryID] = true
		return
	}
	st.details[entryID] = *record
	st.statuses[entryID] = Enriched
	delete(st.failed, entryID)
}

// recompute re-derives the filtered view from the details in entry order
func (st *state) recompute(now time.Time) {
	ordered := make([]models.DetailRecord, 0, len(st.details))
	for _, e := range st.entries {
		if d, ok := st.details[e.ID]; ok {
			ordered = append(ordered, d)
		}
	}
	st.view = filter.Apply(ordered, st.filter)
	st.updatedAt = now
}

func (st *state) counts() models.EnrichmentCounts {
	c := models.EnrichmentCounts{Failed: len(st.failed)}
	for _, e := range st.entries {
		switch st.statuses[e.ID] {
		case Enriching:
			c.Enriching++
		case Enriched:
			c.Enriched++
		default:
			c.Listed++
		}
	}
	return c
}

func (st *state) notifyIdle() {
	if st.pending > 0 {
		return
	}
	for _, ch := range st.idleWaiters {
		close(ch)
	}
	st.idleWaiters = nil
}

// snapshot builds a view that shares no memory with the state
func (st *state) snapshot(sessionID string) models.SessionView {
	view := models.SessionView{
		SessionID:     sessionID,
		Status:        st.status,
		Items:         st.view,
		Entries:       st.entries,
		Cursor:        st.cursor,
		Filter:        st.filter,
		Counts:        st.counts(),
		Error:         st.err,
		LoadMoreError: st.loadMoreErr,
		UpdatedAt:     st.updatedAt,
	}
	return view.Clone()
}
