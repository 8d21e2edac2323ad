package store

import (
	"time"

	"gorm.io/datatypes"
)

// GORM models used for persistence.
type BookModel struct {
	ID              int64  `gorm:"primaryKey;autoIncrement"`
	Title           string `gorm:"not null;index"`
	Author          string `gorm:"not null"`
	CoverURL        string
	ISBN            string
	Publisher       string
	PublishYear     *int
	Pages           *int
	Language        string
	Description     string `gorm:"type:text"`
	Status          string `gorm:"not null;default:'Por leer'"`
	StartDate       *datatypes.Date
	FinishDate      *datatypes.Date
	Notes           string         `gorm:"type:text"`
	CreatedAt       datatypes.Date `gorm:"not null"`
	EbookURL        string
	EbookPath       string
	EbookFormat     string
	AudiobookURL    string
	AudiobookPath   string
	AudiobookFormat string
}

type ProgressModel struct {
	ID                 int64 `gorm:"primaryKey;autoIncrement"`
	BookID             int64 `gorm:"not null;uniqueIndex"`
	CurrentPage        *int
	TotalPages         *int
	CurrentChapter     *string
	AudiobookPosition  *int
	ScrollPosition     float64   `gorm:"not null;default:0"`
	ProgressPercentage float64   `gorm:"not null;default:0"`
	LastReadDate       time.Time `gorm:"not null"`
	Notes              *string   `gorm:"type:text"`
}

type progressRow struct {
	ProgressModel
	BookTitle string
}
