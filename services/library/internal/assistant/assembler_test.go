package assistant

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"dorian/pkg/domain"
	"dorian/pkg/store"
)

func seededLibrary(t *testing.T) *countingLibrary {
	t.Helper()
	ctx := context.Background()
	mem := store.NewMemoryStore()
	dune, err := mem.CreateBook(ctx, domain.Book{
		Title:       "Dune",
		Author:      "Frank Herbert",
		PublishYear: intPtr(1965),
		Status:      domain.StatusRead,
		StartDate:   datePtr("2024-01-02"),
		FinishDate:  datePtr("2024-02-10"),
	})
	if err != nil {
		t.Fatalf("create book: %v", err)
	}
	if _, err := mem.CreateBook(ctx, domain.Book{
		Title:  "Cien años de soledad",
		Author: "Gabriel García Márquez",
		Status: domain.StatusToRead,
	}); err != nil {
		t.Fatalf("create book: %v", err)
	}
	if _, err := mem.SaveProgress(ctx, domain.ReadingProgress{
		BookID:             dune.ID,
		CurrentPage:        intPtr(120),
		TotalPages:         intPtr(412),
		CurrentChapter:     strPtr("Book One"),
		ProgressPercentage: 29.1,
		LastReadDate:       time.Date(2024, 3, 1, 21, 30, 0, 0, time.UTC),
	}); err != nil {
		t.Fatalf("save progress: %v", err)
	}
	return &countingLibrary{MemoryStore: mem}
}

func TestAssembleAllBooks(t *testing.T) {
	lib := seededLibrary(t)
	a := NewAssembler(lib, &fakeGenerator{}, 0, 0)

	got, err := a.Assemble(context.Background(), "what do I own?", Classification{
		NeedsDB:      true,
		RequiredData: []DataCategory{CategoryBooks},
		QueryType:    QueryAllBooks,
	})
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	want := `[
  {
    "title": "Dune",
    "author": "Frank Herbert",
    "publish_year": 1965,
    "status": "Leído",
    "start_date": "2024-01-02",
    "finish_date": "2024-02-10"
  },
  {
    "title": "Cien años de soledad",
    "author": "Gabriel García Márquez",
    "publish_year": null,
    "status": "Por leer",
    "start_date": null,
    "finish_date": null
  }
]`
	if got != want {
		t.Fatalf("assemble =\n%s\nwant\n%s", got, want)
	}
}

func TestAssembleSingleBookUsesExtractedTitle(t *testing.T) {
	lib := seededLibrary(t)
	gen := &fakeGenerator{title: func(string) (string, error) { return " Dune\n", nil }}
	a := NewAssembler(lib, gen, 0, 0)

	got, err := a.Assemble(context.Background(), "When did I finish Dune?", Classification{
		NeedsDB:      true,
		RequiredData: []DataCategory{CategoryBooks},
		QueryType:    QuerySingleBook,
	})
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	if len(lib.searches) != 1 || lib.searches[0] != "Dune" {
		t.Fatalf("searches = %v, want [Dune]", lib.searches)
	}
	if want := `"title": "Dune"`; !strings.Contains(got, want) {
		t.Fatalf("assemble = %s, want it to contain %s", got, want)
	}
	if strings.Contains(got, "Cien") {
		t.Fatalf("assemble = %s, should only contain the matched book", got)
	}
}

func TestAssembleSingleBookSearchIsCaseSensitive(t *testing.T) {
	lib := seededLibrary(t)
	gen := &fakeGenerator{title: func(string) (string, error) { return "dune", nil }}
	a := NewAssembler(lib, gen, 0, 0)

	got, err := a.Assemble(context.Background(), "when did I finish dune?", Classification{
		NeedsDB:      true,
		RequiredData: []DataCategory{CategoryBooks},
		QueryType:    QuerySingleBook,
	})
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	if got != "[]" {
		t.Fatalf("assemble = %s, want []", got)
	}
}

func TestAssembleSingleBookWithoutTitle(t *testing.T) {
	for name, title := range map[string]func(string) (string, error){
		"none":  func(string) (string, error) { return "None", nil },
		"blank": func(string) (string, error) { return "  ", nil },
		"error": func(string) (string, error) { return "", errors.New("upstream down") },
	} {
		t.Run(name, func(t *testing.T) {
			lib := seededLibrary(t)
			a := NewAssembler(lib, &fakeGenerator{title: title}, 0, 0)
			got, err := a.Assemble(context.Background(), "tell me about a book", Classification{
				NeedsDB:      true,
				RequiredData: []DataCategory{CategoryBooks},
				QueryType:    QuerySingleBook,
			})
			if err != nil {
				t.Fatalf("assemble: %v", err)
			}
			if got != "[]" {
				t.Fatalf("assemble = %s, want []", got)
			}
			if n := lib.readCount(); n != 0 {
				t.Fatalf("store reads = %d, want 0", n)
			}
		})
	}
}

func TestAssembleProgressRows(t *testing.T) {
	lib := seededLibrary(t)
	a := NewAssembler(lib, &fakeGenerator{}, 0, 0)

	got, err := a.Assemble(context.Background(), "how far am I?", Classification{
		NeedsDB:      true,
		RequiredData: []DataCategory{CategoryReadingProgress},
		QueryType:    QueryReadingProgress,
	})
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	want := `[
  {
    "book_id": 1,
    "book_title": "Dune",
    "current_page": 120,
    "total_pages": 412,
    "current_chapter": "Book One",
    "audiobook_position": null,
    "scroll_position": 0,
    "progress_percentage": 29.1,
    "last_read_date": "2024-03-01T21:30:00Z",
    "notes": null
  }
]`
	if got != want {
		t.Fatalf("assemble =\n%s\nwant\n%s", got, want)
	}
}

func TestAssembleBooksThenProgress(t *testing.T) {
	lib := seededLibrary(t)
	a := NewAssembler(lib, &fakeGenerator{}, 0, 0)

	got, err := a.Assemble(context.Background(), "summary please", Classification{
		NeedsDB:      true,
		RequiredData: []DataCategory{CategoryReadingProgress, CategoryBooks},
		QueryType:    QueryAllBooks,
	})
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	books := strings.Index(got, `"title": "Dune"`)
	progress := strings.Index(got, `"book_title": "Dune"`)
	if books < 0 || progress < 0 || books > progress {
		t.Fatalf("expected book rows before progress rows, got %s", got)
	}
}

func TestAssembleStoreFailure(t *testing.T) {
	lib := seededLibrary(t)
	lib.fail = errors.New("db down")
	a := NewAssembler(lib, &fakeGenerator{}, 0, 0)

	_, err := a.Assemble(context.Background(), "what do I own?", Classification{
		NeedsDB:      true,
		RequiredData: []DataCategory{CategoryBooks},
		QueryType:    QueryAllBooks,
	})
	if err == nil {
		t.Fatal("expected store error")
	}
}
