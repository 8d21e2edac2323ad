package assistant

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"dorian/internal/util"
	"dorian/pkg/ai"
	"dorian/pkg/domain"
	"dorian/pkg/store"
)

// bookRow is the book projection handed to the model.
type bookRow struct {
	Title       string  `json:"title"`
	Author      string  `json:"author"`
	PublishYear *int    `json:"publish_year"`
	Status      string  `json:"status"`
	StartDate   *string `json:"start_date"`
	FinishDate  *string `json:"finish_date"`
}

type progressRow struct {
	BookID             int64   `json:"book_id"`
	BookTitle          string  `json:"book_title"`
	CurrentPage        *int    `json:"current_page"`
	TotalPages         *int    `json:"total_pages"`
	CurrentChapter     *string `json:"current_chapter"`
	AudiobookPosition  *int    `json:"audiobook_position"`
	ScrollPosition     float64 `json:"scroll_position"`
	ProgressPercentage float64 `json:"progress_percentage"`
	LastReadDate       string  `json:"last_read_date"`
	Notes              *string `json:"notes"`
}

// Assembler fetches the rows a classification asks for and renders them as
// the JSON block embedded in the chat prompt. It never writes.
type Assembler struct {
	library        store.LibraryReader
	titles         ai.TextGenerator
	llmTimeout     time.Duration
	storageTimeout time.Duration
}

func NewAssembler(library store.LibraryReader, titles ai.TextGenerator, llmTimeout, storageTimeout time.Duration) *Assembler {
	return &Assembler{
		library:        library,
		titles:         titles,
		llmTimeout:     llmTimeout,
		storageTimeout: storageTimeout,
	}
}

// Assemble returns a pretty-printed JSON array: book rows first, then
// progress rows. An empty selection renders as [].
func (a *Assembler) Assemble(ctx context.Context, question string, c Classification) (string, error) {
	rows := make([]any, 0)

	if c.Requires(CategoryBooks) {
		books, err := a.selectBooks(ctx, question, c.QueryType)
		if err != nil {
			return "", err
		}
		for _, b := range books {
			rows = append(rows, toBookRow(b))
		}
	}

	if c.Requires(CategoryReadingProgress) {
		storeCtx, cancel := boundedCall(ctx, a.storageTimeout)
		entries, err := a.library.ListProgress(storeCtx)
		cancel()
		if err != nil {
			return "", fmt.Errorf("list progress: %w", err)
		}
		for _, e := range entries {
			rows = append(rows, toProgressRow(e))
		}
	}

	out, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode library context: %w", err)
	}
	return string(out), nil
}

func (a *Assembler) selectBooks(ctx context.Context, question string, qt QueryType) ([]domain.Book, error) {
	if qt != QuerySingleBook {
		storeCtx, cancel := boundedCall(ctx, a.storageTimeout)
		defer cancel()
		books, err := a.library.ListBooks(storeCtx)
		if err != nil {
			return nil, fmt.Errorf("list books: %w", err)
		}
		return books, nil
	}

	title, ok := a.extractTitle(ctx, question)
	if !ok {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return nil, nil
	}
	storeCtx, cancel := boundedCall(ctx, a.storageTimeout)
	defer cancel()
	books, err := a.library.SearchBooksByTitle(storeCtx, title)
	if err != nil {
		return nil, fmt.Errorf("search books %q: %w", title, err)
	}
	return books, nil
}

// extractTitle asks the model which book the question names.
// It reports false when none is named or the call fails.
func (a *Assembler) extractTitle(ctx context.Context, question string) (string, bool) {
	callCtx, cancel := boundedCall(ctx, a.llmTimeout)
	defer cancel()
	raw, err := a.titles.GenerateText(callCtx, titleExtractionInstruction, question)
	if err != nil {
		util.LoggerFromContext(ctx).Warn("title extraction failed", "err", err)
		return "", false
	}
	title := strings.Trim(strings.TrimSpace(raw), `"'`)
	if title == "" || strings.EqualFold(title, noTitle) {
		return "", false
	}
	return title, true
}

func toBookRow(b domain.Book) bookRow {
	return bookRow{
		Title:       b.Title,
		Author:      b.Author,
		PublishYear: b.PublishYear,
		Status:      string(b.Status),
		StartDate:   dateString(b.StartDate),
		FinishDate:  dateString(b.FinishDate),
	}
}

func toProgressRow(e domain.ProgressEntry) progressRow {
	return progressRow{
		BookID:             e.BookID,
		BookTitle:          e.BookTitle,
		CurrentPage:        e.CurrentPage,
		TotalPages:         e.TotalPages,
		CurrentChapter:     e.CurrentChapter,
		AudiobookPosition:  e.AudiobookPosition,
		ScrollPosition:     e.ScrollPosition,
		ProgressPercentage: e.ProgressPercentage,
		LastReadDate:       e.LastReadDate.UTC().Format(time.RFC3339),
		Notes:              e.Notes,
	}
}

func dateString(d *domain.Date) *string {
	if d == nil {
		return nil
	}
	s := d.String()
	return &s
}
