package app

import (
	"context"
	"encoding/json"
	"fmt"

	"dorian/pkg/domain"
)

var progressFieldOrder = []string{
	"current_page", "total_pages", "audiobook_position",
	"current_chapter", "notes",
	"scroll_position", "progress_percentage",
}

// GetProgress returns the book's progress, creating an empty record on
// first access.
func (a *App) GetProgress(ctx context.Context, bookID int64) (domain.ReadingProgress, error) {
	if _, err := a.mustBook(ctx, bookID); err != nil {
		return domain.ReadingProgress{}, err
	}
	ctx, cancel := a.storeCtx(ctx)
	defer cancel()
	p, ok, err := a.store.GetProgress(ctx, bookID)
	if err != nil {
		return domain.ReadingProgress{}, fmt.Errorf("get progress %d: %w", bookID, err)
	}
	if ok {
		return p, nil
	}
	p, err = a.store.SaveProgress(ctx, domain.ReadingProgress{
		BookID:       bookID,
		LastReadDate: a.now().UTC(),
	})
	if err != nil {
		return domain.ReadingProgress{}, fmt.Errorf("create progress %d: %w", bookID, err)
	}
	return p, nil
}

// UpdateProgress applies the present fields and stamps last_read_date.
func (a *App) UpdateProgress(ctx context.Context, bookID int64, fields Fields) (domain.ReadingProgress, error) {
	if _, err := a.mustBook(ctx, bookID); err != nil {
		return domain.ReadingProgress{}, err
	}
	getCtx, cancelGet := a.storeCtx(ctx)
	defer cancelGet()
	p, _, err := a.store.GetProgress(getCtx, bookID)
	if err != nil {
		return domain.ReadingProgress{}, fmt.Errorf("get progress %d: %w", bookID, err)
	}
	p.BookID = bookID
	for _, key := range progressFieldOrder {
		raw, ok := fields[key]
		if !ok {
			continue
		}
		if err := applyProgressField(&p, key, raw); err != nil {
			return domain.ReadingProgress{}, err
		}
	}
	p.LastReadDate = a.now().UTC()
	saveCtx, cancel := a.storeCtx(ctx)
	defer cancel()
	saved, err := a.store.SaveProgress(saveCtx, p)
	if err != nil {
		return domain.ReadingProgress{}, fmt.Errorf("save progress %d: %w", bookID, err)
	}
	return saved, nil
}

func applyProgressField(p *domain.ReadingProgress, key string, raw json.RawMessage) error {
	bad := invalid("Invalid value for " + key)
	switch key {
	case "current_page", "total_pages", "audiobook_position":
		v, ok := decodeOptInt(raw)
		if !ok {
			return bad
		}
		switch key {
		case "current_page":
			p.CurrentPage = v
		case "total_pages":
			p.TotalPages = v
		default:
			p.AudiobookPosition = v
		}
	case "current_chapter", "notes":
		v, ok := decodeOptString(raw)
		if !ok {
			return bad
		}
		if key == "notes" {
			p.Notes = v
		} else {
			p.CurrentChapter = v
		}
	case "scroll_position", "progress_percentage":
		v, ok := decodeFloat(raw)
		if !ok {
			return bad
		}
		if key == "scroll_position" {
			p.ScrollPosition = v
		} else {
			p.ProgressPercentage = v
		}
	}
	return nil
}
