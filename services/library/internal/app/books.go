package app

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"dorian/internal/util"
	"dorian/pkg/domain"
)

// bookFieldOrder fixes the order fields are applied in, so the first
// reported error is stable.
var bookFieldOrder = []string{
	"title", "author", "cover_url", "isbn", "publisher", "publish_year", "pages",
	"language", "description", "status", "created_at", "start_date", "finish_date", "notes",
	"ebook_url", "ebook_path", "ebook_format",
	"audiobook_url", "audiobook_path", "audiobook_format",
}

// CreateBook validates and stores a new book. Files named by ebook_path or
// audiobook_path are copied from the import directory into object storage.
func (a *App) CreateBook(ctx context.Context, fields Fields) (domain.Book, error) {
	b := domain.Book{
		Status:    domain.StatusToRead,
		CreatedAt: domain.NewDate(a.now()),
	}
	if err := applyBookFields(&b, fields, func(field string) string {
		return fmt.Sprintf("Invalid %s format", field)
	}); err != nil {
		return domain.Book{}, err
	}
	b.Title = strings.TrimSpace(b.Title)
	b.Author = strings.TrimSpace(b.Author)
	if b.Title == "" || b.Author == "" {
		return domain.Book{}, invalid("title and author are required")
	}
	if strings.TrimSpace(string(b.Status)) == "" {
		b.Status = domain.StatusToRead
	}

	var imported []string
	for _, kind := range []domain.FileKind{domain.KindEbook, domain.KindAudiobook} {
		src := b.FilePath(kind)
		if src == "" {
			continue
		}
		if isStoredKey(src) {
			if err := a.claimKey(ctx, 0, kind, src); err != nil {
				a.deleteObjects(ctx, imported...)
				return domain.Book{}, err
			}
		}
		key, format, err := a.importFile(ctx, kind, src)
		if err != nil {
			a.deleteObjects(ctx, imported...)
			return domain.Book{}, err
		}
		if key != src {
			imported = append(imported, key)
		}
		setFile(&b, kind, key, format)
	}

	storeCtx, cancel := a.storeCtx(ctx)
	defer cancel()
	created, err := a.store.CreateBook(storeCtx, b)
	if err != nil {
		a.deleteObjects(ctx, imported...)
		return domain.Book{}, fmt.Errorf("save book: %w", err)
	}
	return created, nil
}

// UpdateBook applies a partial update.
func (a *App) UpdateBook(ctx context.Context, id int64, fields Fields) (domain.Book, error) {
	b, err := a.mustBook(ctx, id)
	if err != nil {
		return domain.Book{}, err
	}
	before := b
	if err := applyBookFields(&b, fields, func(field string) string {
		return "Invalid date format for " + field
	}); err != nil {
		return domain.Book{}, err
	}
	b.ID = id
	if strings.TrimSpace(b.Title) == "" || strings.TrimSpace(b.Author) == "" {
		return domain.Book{}, invalid("title and author are required")
	}
	for _, kind := range []domain.FileKind{domain.KindEbook, domain.KindAudiobook} {
		key := b.FilePath(kind)
		if key == before.FilePath(kind) || !isStoredKey(key) {
			continue
		}
		if err := a.claimKey(ctx, id, kind, key); err != nil {
			return domain.Book{}, err
		}
	}
	storeCtx, cancel := a.storeCtx(ctx)
	defer cancel()
	if err := a.store.UpdateBook(storeCtx, b); err != nil {
		return domain.Book{}, fmt.Errorf("update book %d: %w", id, err)
	}
	return b, nil
}

func (a *App) GetBook(ctx context.Context, id int64) (domain.Book, error) {
	return a.mustBook(ctx, id)
}

func (a *App) ListBooks(ctx context.Context) ([]domain.Book, error) {
	ctx, cancel := a.storeCtx(ctx)
	defer cancel()
	books, err := a.store.ListBooks(ctx)
	if err != nil {
		return nil, fmt.Errorf("list books: %w", err)
	}
	return books, nil
}

// ListBooksWithProgress returns every book with its progress record, if any.
func (a *App) ListBooksWithProgress(ctx context.Context) ([]domain.BookWithProgress, error) {
	books, err := a.ListBooks(ctx)
	if err != nil {
		return nil, err
	}
	storeCtx, cancel := a.storeCtx(ctx)
	defer cancel()
	entries, err := a.store.ListProgress(storeCtx)
	if err != nil {
		return nil, fmt.Errorf("list progress: %w", err)
	}
	byBook := make(map[int64]domain.ReadingProgress, len(entries))
	for _, e := range entries {
		byBook[e.BookID] = e.ReadingProgress
	}
	out := make([]domain.BookWithProgress, 0, len(books))
	for _, b := range books {
		item := domain.BookWithProgress{Book: b}
		if p, ok := byBook[b.ID]; ok {
			item.Progress = &p
		}
		out = append(out, item)
	}
	return out, nil
}

// DeleteBook removes the book, its progress and its stored files.
func (a *App) DeleteBook(ctx context.Context, id int64) error {
	b, err := a.mustBook(ctx, id)
	if err != nil {
		return err
	}
	storeCtx, cancel := a.storeCtx(ctx)
	defer cancel()
	if err := a.store.DeleteBook(storeCtx, id); err != nil {
		return fmt.Errorf("delete book %d: %w", id, err)
	}
	var keys []string
	for _, kind := range []domain.FileKind{domain.KindEbook, domain.KindAudiobook} {
		if key := b.FilePath(kind); isStoredKey(key) {
			keys = append(keys, key)
		}
	}
	a.deleteObjects(ctx, a.unreferenced(ctx, keys)...)
	return nil
}

// claimKey rejects pointing a book at a stored file that belongs to another
// book: an upload named after another book's id, or a key another book
// references. id is 0 for a book not yet created.
func (a *App) claimKey(ctx context.Context, id int64, kind domain.FileKind, key string) error {
	taken := invalid(fmt.Sprintf("%s_path belongs to another book", kind))
	if owner, ok := uploadOwner(key); ok && owner != id {
		return taken
	}
	books, err := a.ListBooks(ctx)
	if err != nil {
		return err
	}
	for _, other := range books {
		if other.ID == id {
			continue
		}
		if other.EbookPath == key || other.AudiobookPath == key {
			return taken
		}
	}
	return nil
}

// unreferenced drops keys some remaining book still points at. When the
// books cannot be listed nothing is returned, so no file is deleted.
func (a *App) unreferenced(ctx context.Context, keys []string) []string {
	if len(keys) == 0 {
		return nil
	}
	books, err := a.ListBooks(ctx)
	if err != nil {
		util.LoggerFromContext(ctx).Warn("skip stored file cleanup", "keys", keys, "err", err)
		return nil
	}
	inUse := make(map[string]bool, 2*len(books))
	for _, b := range books {
		inUse[b.EbookPath] = true
		inUse[b.AudiobookPath] = true
	}
	out := keys[:0:0]
	for _, key := range keys {
		if !inUse[key] {
			out = append(out, key)
		}
	}
	return out
}

func (a *App) deleteObjects(ctx context.Context, keys ...string) {
	if a.objects == nil {
		return
	}
	for _, key := range keys {
		deleteCtx, cancel := a.storeCtx(ctx)
		err := a.objects.Delete(deleteCtx, key)
		cancel()
		if err != nil {
			util.LoggerFromContext(ctx).Warn("delete stored file failed", "key", key, "err", err)
		}
	}
}

func setFile(b *domain.Book, kind domain.FileKind, key, format string) {
	if kind == domain.KindAudiobook {
		b.AudiobookPath = key
		if format != "" {
			b.AudiobookFormat = format
		}
		return
	}
	b.EbookPath = key
	if format != "" {
		b.EbookFormat = format
	}
}

func applyBookFields(b *domain.Book, fields Fields, dateError func(field string) string) error {
	for _, key := range bookFieldOrder {
		raw, ok := fields[key]
		if !ok {
			continue
		}
		if err := applyBookField(b, key, raw, dateError); err != nil {
			return err
		}
	}
	return nil
}

func applyBookField(b *domain.Book, key string, raw json.RawMessage, dateError func(string) string) error {
	bad := invalid("Invalid value for " + key)

	switch key {
	case "publish_year", "pages":
		v, ok := decodeOptInt(raw)
		if !ok {
			return bad
		}
		if key == "pages" {
			b.Pages = v
		} else {
			b.PublishYear = v
		}
		return nil
	case "created_at", "start_date", "finish_date":
		s, ok := decodeString(raw)
		if !ok {
			return invalid(dateError(key))
		}
		var d *domain.Date
		if s = strings.TrimSpace(s); s != "" {
			parsed, err := domain.ParseDate(s)
			if err != nil {
				return invalid(dateError(key))
			}
			d = &parsed
		}
		switch key {
		case "created_at":
			if d != nil {
				b.CreatedAt = *d
			}
		case "start_date":
			b.StartDate = d
		default:
			b.FinishDate = d
		}
		return nil
	}

	s, ok := decodeString(raw)
	if !ok {
		return bad
	}
	switch key {
	case "title":
		b.Title = s
	case "author":
		b.Author = s
	case "cover_url":
		b.CoverURL = s
	case "isbn":
		b.ISBN = s
	case "publisher":
		b.Publisher = s
	case "language":
		b.Language = s
	case "description":
		b.Description = s
	case "status":
		b.Status = domain.BookStatus(s)
	case "notes":
		b.Notes = s
	case "ebook_url":
		b.EbookURL = s
	case "ebook_path":
		b.EbookPath = s
	case "ebook_format":
		b.EbookFormat = s
	case "audiobook_url":
		b.AudiobookURL = s
	case "audiobook_path":
		b.AudiobookPath = s
	case "audiobook_format":
		b.AudiobookFormat = s
	}
	return nil
}
