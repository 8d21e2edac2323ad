// Package app implements the library operations behind the HTTP API:
// books, reading progress, stored files and statistics.
package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"dorian/pkg/domain"
	"dorian/pkg/storage"
	"dorian/pkg/store"
)

const (
	defaultPresignExpiry  = 15 * time.Minute
	defaultContentTimeout = 2 * time.Minute
	defaultStorageTimeout = 10 * time.Second
)

// Config holds runtime configuration for the core application.
type Config struct {
	DatabaseURL string
	Store       store.Store
	Objects     storage.ObjectStore
	// ImportDir is where ebook_path/audiobook_path given on create are read from.
	ImportDir string
	// PublicBaseURL prefixes /static links when the object store cannot presign.
	PublicBaseURL string
	PresignExpiry time.Duration
	// ContentTimeout bounds text extraction and whole-object transfers.
	ContentTimeout time.Duration
	// StorageTimeout bounds each database call and each object store
	// lookup, delete or presign.
	StorageTimeout time.Duration
	Now            func() time.Time
}

// App is the core application service wiring together storage and domain logic.
type App struct {
	store          store.Store
	objects        storage.ObjectStore
	importDir      string
	publicBaseURL  string
	presignExpiry  time.Duration
	contentTimeout time.Duration
	storageTimeout time.Duration
	now            func() time.Time

	contentGroup singleflight.Group
}

// New constructs the application. Without an explicit Store a Postgres
// store is opened from DatabaseURL.
func New(cfg Config) (*App, error) {
	dataStore := cfg.Store
	if dataStore == nil {
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("database URL required")
		}
		var err error
		dataStore, err = store.NewGormStore(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("init postgres store: %w", err)
		}
	}
	presignExpiry := cfg.PresignExpiry
	if presignExpiry <= 0 {
		presignExpiry = defaultPresignExpiry
	}
	contentTimeout := cfg.ContentTimeout
	if contentTimeout <= 0 {
		contentTimeout = defaultContentTimeout
	}
	storageTimeout := cfg.StorageTimeout
	if storageTimeout <= 0 {
		storageTimeout = defaultStorageTimeout
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &App{
		store:          dataStore,
		objects:        cfg.Objects,
		importDir:      strings.TrimSpace(cfg.ImportDir),
		publicBaseURL:  strings.TrimRight(strings.TrimSpace(cfg.PublicBaseURL), "/"),
		presignExpiry:  presignExpiry,
		contentTimeout: contentTimeout,
		storageTimeout: storageTimeout,
		now:            now,
	}, nil
}

// Library exposes the store for read-only consumers such as the assistant.
func (a *App) Library() store.LibraryReader {
	return a.store
}

// storeCtx bounds a single storage call.
func (a *App) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, a.storageTimeout)
}

// transferCtx bounds a call that moves a whole object body.
func (a *App) transferCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, a.contentTimeout)
}

func (a *App) mustBook(ctx context.Context, id int64) (domain.Book, error) {
	ctx, cancel := a.storeCtx(ctx)
	defer cancel()
	b, ok, err := a.store.GetBook(ctx, id)
	if err != nil {
		return b, fmt.Errorf("get book %d: %w", id, err)
	}
	if !ok {
		return b, ErrBookNotFound
	}
	return b, nil
}
