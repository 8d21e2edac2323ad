package store

import (
	"context"
	"sort"
	"strings"
	"sync"

	"dorian/pkg/domain"
)

// MemoryStore keeps the library in-process. Used by tests and local runs
// without a database.
type MemoryStore struct {
	mu       sync.RWMutex
	books    map[int64]domain.Book
	progress map[int64]domain.ReadingProgress // key: book ID
	nextBook int64
	nextProg int64
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		books:    make(map[int64]domain.Book),
		progress: make(map[int64]domain.ReadingProgress),
	}
}

func (m *MemoryStore) CreateBook(_ context.Context, b domain.Book) (domain.Book, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextBook++
	b.ID = m.nextBook
	m.books[b.ID] = b
	return b, nil
}

func (m *MemoryStore) UpdateBook(_ context.Context, b domain.Book) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.books[b.ID]; !ok {
		return nil
	}
	m.books[b.ID] = b
	return nil
}

func (m *MemoryStore) GetBook(_ context.Context, id int64) (domain.Book, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.books[id]
	return b, ok, nil
}

func (m *MemoryStore) ListBooks(ctx context.Context) ([]domain.Book, error) {
	return m.filterBooks(ctx, func(domain.Book) bool { return true })
}

// SearchBooksByTitle matches titles containing fragment, case-sensitively.
func (m *MemoryStore) SearchBooksByTitle(ctx context.Context, fragment string) ([]domain.Book, error) {
	return m.filterBooks(ctx, func(b domain.Book) bool {
		return strings.Contains(b.Title, fragment)
	})
}

func (m *MemoryStore) filterBooks(ctx context.Context, keep func(domain.Book) bool) ([]domain.Book, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Book, 0, len(m.books))
	for _, b := range m.books {
		if keep(b) {
			res = append(res, b)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res, nil
}

func (m *MemoryStore) DeleteBook(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.progress, id)
	delete(m.books, id)
	return nil
}

func (m *MemoryStore) GetProgress(_ context.Context, bookID int64) (domain.ReadingProgress, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.progress[bookID]
	return p, ok, nil
}

func (m *MemoryStore) SaveProgress(_ context.Context, p domain.ReadingProgress) (domain.ReadingProgress, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.progress[p.BookID]; ok {
		p.ID = existing.ID
	} else {
		m.nextProg++
		p.ID = m.nextProg
	}
	m.progress[p.BookID] = p
	return p, nil
}

func (m *MemoryStore) ListProgress(ctx context.Context) ([]domain.ProgressEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.ProgressEntry, 0, len(m.progress))
	for bookID, p := range m.progress {
		book, ok := m.books[bookID]
		if !ok {
			continue
		}
		res = append(res, domain.ProgressEntry{ReadingProgress: p, BookTitle: book.Title})
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res, nil
}
