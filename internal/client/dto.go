package client

import (
	"encoding/json"
	"fmt"
	"strings"

	"creature-catalog-api/internal/models"
)

// Wire shapes of the remote catalog. Only the fields read here are declared.

type listPageDTO struct {
	Count    *int          `json:"count"`
	Next     *string       `json:"next"`
	Previous *string       `json:"previous"`
	Results  []namedRefDTO `json:"results"`
}

type namedRefDTO struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

type detailDTO struct {
	ID      *int       `json:"id"`
	Name    string     `json:"name"`
	Height  int        `json:"height"`
	Weight  int        `json:"weight"`
	Sprites spritesDTO `json:"sprites"`
	Types   []typeDTO  `json:"types"`
	Stats   []statDTO  `json:"stats"`
}

type typeDTO struct {
	Slot int         `json:"slot"`
	Type namedRefDTO `json:"type"`
}

type statDTO struct {
	BaseStat int         `json:"base_stat"`
	Effort   int         `json:"effort"`
	Stat     namedRefDTO `json:"stat"`
}

type spritesDTO struct {
	FrontDefault *string `json:"front_default"`
	Other        struct {
		OfficialArtwork struct {
			FrontDefault *string `json:"front_default"`
		} `json:"official-artwork"`
	} `json:"other"`
}

// decodeListPage maps a list response. Every result must carry a name
// and a URL ending in a numeric id.
func decodeListPage(body []byte) (*models.Page, error) {
	var dto listPageDTO
	if err := json.Unmarshal(body, &dto); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrMalformedResponse, err)
	}
	if dto.Count == nil || *dto.Count < 0 {
		return nil, fmt.Errorf("%w: missing or negative count", models.ErrMalformedResponse)
	}

	items := make([]models.ListEntry, 0, len(dto.Results))
	for i, r := range dto.Results {
		if strings.TrimSpace(r.Name) == "" {
			return nil, fmt.Errorf("%w: results[%d] has no name", models.ErrMalformedResponse, i)
		}
		id, err := IDFromRef(r.URL)
		if err != nil {
			return nil, fmt.Errorf("%w: results[%d]: %v", models.ErrMalformedResponse, i, err)
		}
		items = append(items, models.ListEntry{ID: id, Name: r.Name, SourceRef: r.URL})
	}

	return &models.Page{
		Items:      items,
		HasMore:    dto.Next != nil,
		TotalCount: *dto.Count,
		Source:     models.PageSourceNetwork,
	}, nil
}

// decodeDetail maps a detail response
func decodeDetail(body []byte) (*models.DetailRecord, error) {
	var dto detailDTO
	if err := json.Unmarshal(body, &dto); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrMalformedResponse, err)
	}
	if dto.ID == nil || *dto.ID <= 0 {
		return nil, fmt.Errorf("%w: missing id", models.ErrMalformedResponse)
	}
	if strings.TrimSpace(dto.Name) == "" {
		return nil, fmt.Errorf("%w: missing name", models.ErrMalformedResponse)
	}

	record := &models.DetailRecord{
		ID:       *dto.ID,
		Name:     dto.Name,
		Height:   dto.Height,
		Weight:   dto.Weight,
		ImageURL: imageURL(dto.Sprites),
		Types:    make([]models.TypeSlot, 0, len(dto.Types)),
		Stats:    make([]models.Stat, 0, len(dto.Stats)),
	}
	for _, t := range dto.Types {
		if t.Type.Name == "" {
			return nil, fmt.Errorf("%w: type in slot %d has no name", models.ErrMalformedResponse, t.Slot)
		}
		record.Types = append(record.Types, models.TypeSlot{Name: t.Type.Name, Slot: t.Slot})
	}
	for _, s := range dto.Stats {
		if s.Stat.Name == "" {
			return nil, fmt.Errorf("%w: stat has no name", models.ErrMalformedResponse)
		}
		record.Stats = append(record.Stats, models.Stat{
			Name:        s.Stat.Name,
			BaseValue:   s.BaseStat,
			EffortValue: s.Effort,
		})
	}
	return record, nil
}

// imageURL prefers the official artwork over the default sprite
func imageURL(s spritesDTO) string {
	if art := s.Other.OfficialArtwork.FrontDefault; art != nil && *art != "" {
		return *art
	}
	if s.FrontDefault != nil {
		return *s.FrontDefault
	}
	return ""
}
