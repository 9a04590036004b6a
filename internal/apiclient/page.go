package apiclient

import (
	"bytes"
	"encoding/json"
)

// pageEnvelope reads the list shapes the API uses: a bare array, {"data": [...], "total": n},
// or {"data": [...], "meta": {"total": n, "current_page": p, "per_page": s}}.
type pageEnvelope[T any] struct {
	items    []T
	total    int64
	page     int
	pageSize int
}

func (p *pageEnvelope[T]) decode(raw []byte) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &p.items); err != nil {
			return err
		}
		p.total = int64(len(p.items))
		p.ensureItems()
		return nil
	}

	var body struct {
		Data        []T    `json:"data"`
		Total       *int64 `json:"total"`
		CurrentPage int    `json:"current_page"`
		PerPage     int    `json:"per_page"`
		Meta        *struct {
			Total       int64 `json:"total"`
			CurrentPage int   `json:"current_page"`
			PerPage     int   `json:"per_page"`
		} `json:"meta"`
	}
	if err := json.Unmarshal(trimmed, &body); err != nil {
		return err
	}

	p.items = body.Data
	p.page = body.CurrentPage
	p.pageSize = body.PerPage
	switch {
	case body.Meta != nil:
		p.total = body.Meta.Total
		p.page = body.Meta.CurrentPage
		p.pageSize = body.Meta.PerPage
	case body.Total != nil:
		p.total = *body.Total
	default:
		p.total = int64(len(body.Data))
	}
	p.ensureItems()
	return nil
}

func (p *pageEnvelope[T]) ensureItems() {
	if p.items == nil {
		p.items = []T{}
	}
}
