package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"

	"dorian/pkg/extract"
	"dorian/pkg/storage"
)

// BookContent extracts the readable text of the book's ebook. Concurrent
// requests for the same file share one extraction.
func (a *App) BookContent(ctx context.Context, bookID int64) (string, error) {
	b, err := a.mustBook(ctx, bookID)
	if err != nil {
		return "", err
	}
	if b.EbookPath == "" {
		return "", ErrNoFile
	}
	if a.objects == nil {
		return "", ErrNoObjectStore
	}

	key := strconv.FormatInt(bookID, 10) + ":" + b.EbookPath
	ch := a.contentGroup.DoChan(key, func() (any, error) {
		extractCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.contentTimeout)
		defer cancel()
		return a.extractText(extractCtx, b.EbookPath)
	})
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

func (a *App) extractText(ctx context.Context, key string) (string, error) {
	rc, err := a.openObject(ctx, key)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return "", ErrFileNotFound
		}
		return "", fmt.Errorf("open %s: %w", key, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", key, err)
	}
	text, err := extract.Text(key, data)
	if err != nil {
		return "", fmt.Errorf("extract %s: %w", key, err)
	}
	return text, nil
}
