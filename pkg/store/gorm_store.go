package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"dorian/pkg/domain"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

const migrateLockID int64 = 41730915

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations.
func NewGormStore(dsn string) (*GormStore, error) {
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := withMigrationLock(db, func(tx *gorm.DB) error {
		if err := tx.AutoMigrate(&BookModel{}, &ProgressModel{}); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		if err := tx.Exec(`
			DO $$
			BEGIN
				DELETE FROM progress_models p
				WHERE NOT EXISTS (SELECT 1 FROM book_models b WHERE b.id = p.book_id);
				IF NOT EXISTS (
					SELECT 1 FROM information_schema.table_constraints
					WHERE table_schema = 'public'
					AND table_name = 'progress_models'
					AND constraint_name = 'progress_models_book_id_fkey'
				) THEN
					ALTER TABLE progress_models
					ADD CONSTRAINT progress_models_book_id_fkey
					FOREIGN KEY (book_id) REFERENCES book_models(id) ON DELETE CASCADE;
				END IF;
			END $$;
		`).Error; err != nil {
			return fmt.Errorf("ensure progress foreign key: %w", err)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

func withMigrationLock(db *gorm.DB, fn func(*gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()
	if err := execAdvisory(ctx, conn, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_ = execAdvisory(ctx, conn, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn(db)
}

func execAdvisory(ctx context.Context, conn *sql.Conn, query string, lockID int64) error {
	_, err := conn.ExecContext(ctx, query, lockID)
	return err
}

// CreateBook inserts a book and returns it with its assigned ID.
func (s *GormStore) CreateBook(ctx context.Context, b domain.Book) (domain.Book, error) {
	model := bookToModel(b)
	model.ID = 0
	if err := s.db.WithContext(ctx).Create(&model).Error; err != nil {
		return domain.Book{}, err
	}
	return bookFromModel(model), nil
}

// UpdateBook overwrites every column of an existing book.
func (s *GormStore) UpdateBook(ctx context.Context, b domain.Book) error {
	model := bookToModel(b)
	return s.db.WithContext(ctx).Save(&model).Error
}

// GetBook retrieves a book.
func (s *GormStore) GetBook(ctx context.Context, id int64) (domain.Book, bool, error) {
	var model BookModel
	if err := s.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Book{}, false, nil
		}
		return domain.Book{}, false, err
	}
	return bookFromModel(model), true, nil
}

// ListBooks returns all books ordered by ID.
func (s *GormStore) ListBooks(ctx context.Context) ([]domain.Book, error) {
	return s.listBooks(ctx)
}

// SearchBooksByTitle returns books whose title contains fragment.
// LIKE is case-sensitive on Postgres, which is the intended match.
func (s *GormStore) SearchBooksByTitle(ctx context.Context, fragment string) ([]domain.Book, error) {
	return s.listBooks(ctx, "title LIKE ?", "%"+escapeLike(fragment)+"%")
}

func (s *GormStore) listBooks(ctx context.Context, conds ...any) ([]domain.Book, error) {
	var models []BookModel
	tx := s.db.WithContext(ctx).Order("id ASC")
	if len(conds) > 0 {
		tx = tx.Where(conds[0], conds[1:]...)
	}
	if err := tx.Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Book, 0, len(models))
	for _, m := range models {
		res = append(res, bookFromModel(m))
	}
	return res, nil
}

// DeleteBook removes the progress record and then the book.
func (s *GormStore) DeleteBook(ctx context.Context, id int64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&ProgressModel{}, "book_id = ?", id).Error; err != nil {
			return err
		}
		return tx.Delete(&BookModel{}, "id = ?", id).Error
	})
}

// GetProgress returns the progress record of a book.
func (s *GormStore) GetProgress(ctx context.Context, bookID int64) (domain.ReadingProgress, bool, error) {
	var model ProgressModel
	if err := s.db.WithContext(ctx).First(&model, "book_id = ?", bookID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.ReadingProgress{}, false, nil
		}
		return domain.ReadingProgress{}, false, err
	}
	return progressFromModel(model), true, nil
}

// SaveProgress upserts the single progress record of a book.
func (s *GormStore) SaveProgress(ctx context.Context, p domain.ReadingProgress) (domain.ReadingProgress, error) {
	model := progressToModel(p)
	model.ID = 0
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "book_id"}},
		UpdateAll: true,
	}).Create(&model).Error
	if err != nil {
		return domain.ReadingProgress{}, err
	}
	return progressFromModel(model), nil
}

// ListProgress returns every progress record joined with its book title.
func (s *GormStore) ListProgress(ctx context.Context) ([]domain.ProgressEntry, error) {
	var rows []progressRow
	if err := s.db.WithContext(ctx).
		Table("progress_models AS p").
		Select("p.*, b.title AS book_title").
		Joins("JOIN book_models AS b ON b.id = p.book_id").
		Order("p.id ASC").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	res := make([]domain.ProgressEntry, 0, len(rows))
	for _, row := range rows {
		res = append(res, domain.ProgressEntry{
			ReadingProgress: progressFromModel(row.ProgressModel),
			BookTitle:       row.BookTitle,
		})
	}
	return res, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func bookToModel(b domain.Book) BookModel {
	return BookModel{
		ID:              b.ID,
		Title:           b.Title,
		Author:          b.Author,
		CoverURL:        b.CoverURL,
		ISBN:            b.ISBN,
		Publisher:       b.Publisher,
		PublishYear:     b.PublishYear,
		Pages:           b.Pages,
		Language:        b.Language,
		Description:     b.Description,
		Status:          string(b.Status),
		StartDate:       dateToModel(b.StartDate),
		FinishDate:      dateToModel(b.FinishDate),
		Notes:           b.Notes,
		CreatedAt:       datatypes.Date(b.CreatedAt.Time),
		EbookURL:        b.EbookURL,
		EbookPath:       b.EbookPath,
		EbookFormat:     b.EbookFormat,
		AudiobookURL:    b.AudiobookURL,
		AudiobookPath:   b.AudiobookPath,
		AudiobookFormat: b.AudiobookFormat,
	}
}

func bookFromModel(m BookModel) domain.Book {
	return domain.Book{
		ID:              m.ID,
		Title:           m.Title,
		Author:          m.Author,
		CoverURL:        m.CoverURL,
		ISBN:            m.ISBN,
		Publisher:       m.Publisher,
		PublishYear:     m.PublishYear,
		Pages:           m.Pages,
		Language:        m.Language,
		Description:     m.Description,
		Status:          domain.BookStatus(m.Status),
		StartDate:       dateFromModel(m.StartDate),
		FinishDate:      dateFromModel(m.FinishDate),
		Notes:           m.Notes,
		CreatedAt:       domain.NewDate(time.Time(m.CreatedAt)),
		EbookURL:        m.EbookURL,
		EbookPath:       m.EbookPath,
		EbookFormat:     m.EbookFormat,
		AudiobookURL:    m.AudiobookURL,
		AudiobookPath:   m.AudiobookPath,
		AudiobookFormat: m.AudiobookFormat,
	}
}

func dateToModel(d *domain.Date) *datatypes.Date {
	if d == nil {
		return nil
	}
	v := datatypes.Date(d.Time)
	return &v
}

func dateFromModel(d *datatypes.Date) *domain.Date {
	if d == nil {
		return nil
	}
	v := domain.NewDate(time.Time(*d))
	return &v
}

func progressToModel(p domain.ReadingProgress) ProgressModel {
	return ProgressModel{
		ID:                 p.ID,
		BookID:             p.BookID,
		CurrentPage:        p.CurrentPage,
		TotalPages:         p.TotalPages,
		CurrentChapter:     p.CurrentChapter,
		AudiobookPosition:  p.AudiobookPosition,
		ScrollPosition:     p.ScrollPosition,
		ProgressPercentage: p.ProgressPercentage,
		LastReadDate:       p.LastReadDate,
		Notes:              p.Notes,
	}
}

func progressFromModel(m ProgressModel) domain.ReadingProgress {
	return domain.ReadingProgress{
		ID:                 m.ID,
		BookID:             m.BookID,
		CurrentPage:        m.CurrentPage,
		TotalPages:         m.TotalPages,
		CurrentChapter:     m.CurrentChapter,
		AudiobookPosition:  m.AudiobookPosition,
		ScrollPosition:     m.ScrollPosition,
		ProgressPercentage: m.ProgressPercentage,
		LastReadDate:       m.LastReadDate,
		Notes:              m.Notes,
	}
}
