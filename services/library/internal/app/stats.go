package app

import (
	"context"
	"math"
	"strings"
	"time"

	"dorian/pkg/domain"
)

const (
	minutesPerPage = 2
	maxStreakDays  = 365
)

// Status spellings counted for each bucket. The frontend has used both
// Spanish and English labels.
var (
	readStatuses    = []string{string(domain.StatusRead), "leido", "read"}
	readingStatuses = []string{string(domain.StatusReading), "reading"}
	toReadStatuses  = []string{string(domain.StatusToRead), "to read"}
)

// Statistics summarizes the library: counts per status, the current daily
// reading streak and an estimate of minutes spent reading.
func (a *App) Statistics(ctx context.Context) (domain.LibraryStats, error) {
	books, err := a.ListBooksWithProgress(ctx)
	if err != nil {
		return domain.LibraryStats{}, err
	}
	stats := domain.LibraryStats{TotalBooks: len(books)}
	var minutes float64
	var activity []time.Time
	for _, b := range books {
		pages := 0
		if b.Pages != nil {
			pages = *b.Pages
		}
		switch {
		case statusIn(b.Status, readStatuses):
			stats.BooksRead++
			minutes += float64(pages * minutesPerPage)
		case statusIn(b.Status, readingStatuses):
			stats.BooksReading++
			if b.Progress != nil && b.Progress.ProgressPercentage > 0 {
				minutes += float64(pages) * b.Progress.ProgressPercentage / 100 * minutesPerPage
			}
		case statusIn(b.Status, toReadStatuses):
			stats.BooksToRead++
		}
		if b.Progress != nil && !b.Progress.LastReadDate.IsZero() {
			activity = append(activity, b.Progress.LastReadDate)
		}
	}
	stats.TotalReadingTime = int(math.Round(minutes))
	stats.ReadingStreak = readingStreak(activity, a.now())
	return stats, nil
}

// readingStreak counts consecutive days with activity ending today, or
// yesterday when nothing was read yet today.
func readingStreak(activity []time.Time, now time.Time) int {
	if len(activity) == 0 {
		return 0
	}
	loc := now.Location()
	days := make(map[string]bool, len(activity))
	for _, t := range activity {
		days[t.In(loc).Format(domain.DateLayout)] = true
	}
	y, m, d := now.Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, loc)

	streak := 0
	for i := 0; i < maxStreakDays; i++ {
		day := today.AddDate(0, 0, -i).Format(domain.DateLayout)
		switch {
		case days[day]:
			streak++
		case i == 0:
			continue
		default:
			return streak
		}
	}
	return streak
}

func statusIn(status domain.BookStatus, options []string) bool {
	s := strings.TrimSpace(string(status))
	for _, o := range options {
		if strings.EqualFold(s, o) {
			return true
		}
	}
	return false
}
