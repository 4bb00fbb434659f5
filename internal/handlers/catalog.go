package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"creature-catalog-api/internal/models"
)

// PageFetcher serves pages of list entries
type PageFetcher interface {
	FetchPage(ctx context.Context, offset, limit int) (*models.Page, error)
}

// DetailFetcher serves single detail records
type DetailFetcher interface {
	FetchDetail(ctx context.Context, id int) (*models.DetailRecord, error)
}

// CatalogHandler exposes the pagination fetcher and detail service
type CatalogHandler struct {
	pages   PageFetcher
	details DetailFetcher
}

// NewCatalogHandler creates a new catalog handler
func NewCatalogHandler(pages PageFetcher, details DetailFetcher) *CatalogHandler {
	return &CatalogHandler{pages: pages, details: details}
}

// ListCreatures handles GET /v1/creatures - One page of list entries
func (h *CatalogHandler) ListCreatures(w http.ResponseWriter, r *http.Request) {
	offset, limit, details := parsePageParams(r)
	if len(details) > 0 {
		writeErrorResponse(w, http.StatusBadRequest, "bad_request", "Invalid pagination parameters", details)
		return
	}

	page, err := h.pages.FetchPage(r.Context(), offset, limit)
	if err != nil {
		slog.Warn("Failed to fetch catalog page",
			"offset", offset,
			"limit", limit,
			"error", err,
			"remote_addr", r.RemoteAddr)
		writeCatalogError(w, err)
		return
	}

	slog.Debug("Catalog page served",
		"offset", offset,
		"limit", limit,
		"items", len(page.Items),
		"source", page.Source)

	writeJSONResponse(w, http.StatusOK, page)
}

// GetCreature handles GET /v1/creatures/{id} - One enriched record
func (h *CatalogHandler) GetCreature(w http.ResponseWriter, r *http.Request) {
	raw := mux.Vars(r)["id"]
	id, err := strconv.Atoi(raw)
	if err != nil || id <= 0 {
		writeErrorResponse(w, http.StatusBadRequest, "bad_request", "Creature ID must be a positive integer", []models.ErrorDetail{
			{Field: "id", Issue: "must be a positive integer"},
		})
		return
	}

	record, err := h.details.FetchDetail(r.Context(), id)
	if err != nil {
		slog.Warn("Failed to fetch creature detail", "id", id, "error", err, "remote_addr", r.RemoteAddr)
		writeCatalogError(w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, record)
}

// parsePageParams reads offset and limit. Absent values are zero, which
// the page service treats as the first page and the default size.
func parsePageParams(r *http.Request) (offset, limit int, details []models.ErrorDetail) {
	q := r.URL.Query()
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			details = append(details, models.ErrorDetail{Field: "offset", Issue: "must be a non-negative integer"})
		}
		offset = n
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			details = append(details, models.ErrorDetail{Field: "limit", Issue: "must be a non-negative integer"})
		}
		limit = n
	}
	return offset, limit, details
}
