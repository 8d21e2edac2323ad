package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

type BookStatus string

const (
	StatusToRead  BookStatus = "Por leer"
	StatusReading BookStatus = "Leyendo"
	StatusRead    BookStatus = "Leído"
)

// FileKind selects which of a book's attachments an operation targets.
type FileKind string

const (
	KindEbook     FileKind = "ebook"
	KindAudiobook FileKind = "audiobook"
)

// Folder is the storage prefix for files of this kind.
func (k FileKind) Folder() string {
	if k == KindAudiobook {
		return "audiobooks"
	}
	return "ebooks"
}

// ParseFileKind accepts "ebook" and "audiobook" (case-insensitive).
func ParseFileKind(raw string) (FileKind, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(KindEbook):
		return KindEbook, true
	case string(KindAudiobook):
		return KindAudiobook, true
	default:
		return "", false
	}
}

// DateLayout is the wire and storage format of calendar dates.
const DateLayout = "2006-01-02"

// Date is a calendar day without time-of-day, rendered as YYYY-MM-DD.
type Date struct {
	time.Time
}

// NewDate truncates t to its calendar day in UTC.
func NewDate(t time.Time) Date {
	y, m, d := t.Date()
	return Date{time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses an ISO-8601 calendar date.
func ParseDate(raw string) (Date, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(raw))
	if err != nil {
		return Date{}, err
	}
	return Date{t}, nil
}

func (d Date) String() string {
	return d.Format(DateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseDate(raw)
	if err != nil {
		return fmt.Errorf("invalid date %q", raw)
	}
	*d = parsed
	return nil
}

type Book struct {
	ID              int64      `json:"id"`
	Title           string     `json:"title"`
	Author          string     `json:"author"`
	CoverURL        string     `json:"cover_url,omitempty"`
	ISBN            string     `json:"isbn,omitempty"`
	Publisher       string     `json:"publisher,omitempty"`
	PublishYear     *int       `json:"publish_year"`
	Pages           *int       `json:"pages"`
	Language        string     `json:"language,omitempty"`
	Description     string     `json:"description,omitempty"`
	Status          BookStatus `json:"status"`
	StartDate       *Date      `json:"start_date"`
	FinishDate      *Date      `json:"finish_date"`
	Notes           string     `json:"notes,omitempty"`
	CreatedAt       Date       `json:"created_at"`
	EbookURL        string     `json:"ebook_url,omitempty"`
	EbookPath       string     `json:"ebook_path,omitempty"`
	EbookFormat     string     `json:"ebook_format,omitempty"`
	AudiobookURL    string     `json:"audiobook_url,omitempty"`
	AudiobookPath   string     `json:"audiobook_path,omitempty"`
	AudiobookFormat string     `json:"audiobook_format,omitempty"`
}

// FilePath returns the stored object key of the given attachment.
func (b Book) FilePath(kind FileKind) string {
	if kind == KindAudiobook {
		return b.AudiobookPath
	}
	return b.EbookPath
}

type ReadingProgress struct {
	ID                 int64     `json:"id"`
	BookID             int64     `json:"book_id"`
	CurrentPage        *int      `json:"current_page"`
	TotalPages         *int      `json:"total_pages"`
	CurrentChapter     *string   `json:"current_chapter"`
	AudiobookPosition  *int      `json:"audiobook_position"`
	ScrollPosition     float64   `json:"scroll_position"`
	ProgressPercentage float64   `json:"progress_percentage"`
	LastReadDate       time.Time `json:"last_read_date"`
	Notes              *string   `json:"notes"`
}

// ProgressEntry is a progress row joined with the title of its book.
type ProgressEntry struct {
	ReadingProgress
	BookTitle string `json:"book_title"`
}

// BookWithProgress is a book plus its progress record, if one exists.
type BookWithProgress struct {
	Book
	Progress *ReadingProgress `json:"progress"`
}

type Answer struct {
	Response  string `json:"response"`
	SessionID string `json:"session_id"`
}

// VoiceAnswer is the assistant reply to a spoken question.
type VoiceAnswer struct {
	Response     string `json:"response"`
	AudioContent string `json:"audioContent"`
}

type LibraryStats struct {
	TotalBooks       int `json:"totalBooks"`
	BooksRead        int `json:"booksRead"`
	BooksReading     int `json:"booksReading"`
	BooksToRead      int `json:"booksToRead"`
	ReadingStreak    int `json:"readingStreak"`
	TotalReadingTime int `json:"totalReadingTime"`
}
