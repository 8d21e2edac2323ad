package store

import (
	"context"
	"testing"
	"time"

	"dorian/pkg/domain"
)

func TestMemoryStoreSearchIsCaseSensitiveSubstring(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	for _, title := range []string{"Dune", "Dune Messiah", "The Hobbit"} {
		if _, err := s.CreateBook(ctx, domain.Book{Title: title, Author: "x"}); err != nil {
			t.Fatalf("create book: %v", err)
		}
	}

	got, err := s.SearchBooksByTitle(ctx, "Dune")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("search Dune = %d books, want 2", len(got))
	}
	got, err = s.SearchBooksByTitle(ctx, "dune")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("search dune = %d books, want 0", len(got))
	}
}

func TestMemoryStoreDeleteBookRemovesProgress(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	book, _ := s.CreateBook(ctx, domain.Book{Title: "Dune", Author: "Herbert"})
	if _, err := s.SaveProgress(ctx, domain.ReadingProgress{BookID: book.ID, LastReadDate: time.Now()}); err != nil {
		t.Fatalf("save progress: %v", err)
	}
	if err := s.DeleteBook(ctx, book.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, _ := s.GetProgress(ctx, book.ID); ok {
		t.Fatalf("progress still present after book delete")
	}
	entries, _ := s.ListProgress(ctx)
	if len(entries) != 0 {
		t.Fatalf("list progress = %d entries, want 0", len(entries))
	}
}

func TestMemoryStoreSaveProgressKeepsOneRecordPerBook(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	book, _ := s.CreateBook(ctx, domain.Book{Title: "Dune", Author: "Herbert"})

	first, _ := s.SaveProgress(ctx, domain.ReadingProgress{BookID: book.ID, ProgressPercentage: 10})
	second, _ := s.SaveProgress(ctx, domain.ReadingProgress{BookID: book.ID, ProgressPercentage: 20})
	if first.ID != second.ID {
		t.Fatalf("progress id changed: %d -> %d", first.ID, second.ID)
	}
	entries, _ := s.ListProgress(ctx)
	if len(entries) != 1 {
		t.Fatalf("list progress = %d entries, want 1", len(entries))
	}
	if entries[0].BookTitle != "Dune" || entries[0].ProgressPercentage != 20 {
		t.Fatalf("unexpected entry: %+v", entries[0])
	}
}
