package store

import (
	"context"

	"dorian/pkg/domain"
)

// Store defines persistence operations for books and reading progress.
type Store interface {
	// books
	CreateBook(ctx context.Context, b domain.Book) (domain.Book, error)
	UpdateBook(ctx context.Context, b domain.Book) error
	GetBook(ctx context.Context, id int64) (domain.Book, bool, error)
	ListBooks(ctx context.Context) ([]domain.Book, error)
	SearchBooksByTitle(ctx context.Context, fragment string) ([]domain.Book, error)
	// DeleteBook removes the book together with its progress record.
	DeleteBook(ctx context.Context, id int64) error

	// progress
	GetProgress(ctx context.Context, bookID int64) (domain.ReadingProgress, bool, error)
	SaveProgress(ctx context.Context, p domain.ReadingProgress) (domain.ReadingProgress, error)
	ListProgress(ctx context.Context) ([]domain.ProgressEntry, error)
}

// LibraryReader is the read-only view used when answering questions.
type LibraryReader interface {
	ListBooks(ctx context.Context) ([]domain.Book, error)
	SearchBooksByTitle(ctx context.Context, fragment string) ([]domain.Book, error)
	ListProgress(ctx context.Context) ([]domain.ProgressEntry, error)
}
