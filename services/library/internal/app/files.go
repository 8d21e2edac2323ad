package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"dorian/pkg/domain"
	"dorian/pkg/extract"
	"dorian/pkg/storage"
)

// isStoredKey reports whether key points into one of the managed folders.
func isStoredKey(key string) bool {
	key = strings.TrimSpace(key)
	if key == "" || strings.Contains(key, "..") {
		return false
	}
	return strings.HasPrefix(key, domain.KindEbook.Folder()+"/") ||
		strings.HasPrefix(key, domain.KindAudiobook.Folder()+"/")
}

// uploadOwner returns the book id an upload key such as audiobooks/7.mp3
// was stored for.
func uploadOwner(key string) (int64, bool) {
	_, name, ok := strings.Cut(key, "/")
	if !ok || strings.Contains(name, "/") {
		return 0, false
	}
	id, err := strconv.ParseInt(strings.TrimSuffix(name, path.Ext(name)), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// importFile copies src from the import directory into object storage under
// {folder}/{format}/{name}. Keys already in storage are returned unchanged.
func (a *App) importFile(ctx context.Context, kind domain.FileKind, src string) (string, string, error) {
	if isStoredKey(src) {
		return src, extract.Format(src), nil
	}
	if a.objects == nil {
		return "", "", ErrNoObjectStore
	}
	if a.importDir == "" {
		return "", "", invalid(fmt.Sprintf("Error copying %s: import directory not configured", kind))
	}
	name := filepath.Base(filepath.Clean(src))
	if name == "." || name == string(filepath.Separator) {
		return "", "", invalid(fmt.Sprintf("Error copying %s: invalid path", kind))
	}
	f, err := os.Open(filepath.Join(a.importDir, name))
	if err != nil {
		return "", "", invalid(fmt.Sprintf("Error copying %s: %s not found", kind, name))
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return "", "", fmt.Errorf("stat %s: %w", name, err)
	}

	format := extract.Format(name)
	key := path.Join(kind.Folder(), format, name)
	putCtx, cancel := a.transferCtx(ctx)
	defer cancel()
	if err := a.objects.Put(putCtx, key, f, info.Size(), contentType(name)); err != nil {
		return "", "", fmt.Errorf("store %s: %w", key, err)
	}
	return key, format, nil
}

// UploadFile stores an uploaded file as {folder}/{bookID}{ext} and points
// the book at it. It returns the stored key.
func (a *App) UploadFile(ctx context.Context, kind domain.FileKind, bookID int64, filename string, r io.Reader, size int64) (string, error) {
	if a.objects == nil {
		return "", ErrNoObjectStore
	}
	b, err := a.mustBook(ctx, bookID)
	if err != nil {
		return "", err
	}
	ext := strings.ToLower(path.Ext(filepath.Base(filename)))
	key := kind.Folder() + "/" + strconv.FormatInt(bookID, 10) + ext
	putCtx, cancelPut := a.transferCtx(ctx)
	defer cancelPut()
	if err := a.objects.Put(putCtx, key, r, size, contentType(filename)); err != nil {
		return "", fmt.Errorf("save file: %w", err)
	}

	previous := b.FilePath(kind)
	setFile(&b, kind, key, extract.Format(key))
	storeCtx, cancel := a.storeCtx(ctx)
	defer cancel()
	if err := a.store.UpdateBook(storeCtx, b); err != nil {
		return "", fmt.Errorf("update book %d: %w", bookID, err)
	}
	if previous != key && isStoredKey(previous) {
		a.deleteObjects(ctx, a.unreferenced(ctx, []string{previous})...)
	}
	return key, nil
}

// OpenFile streams a stored file. Only keys inside the managed folders
// can be read.
func (a *App) OpenFile(ctx context.Context, key string) (io.ReadCloser, string, error) {
	if a.objects == nil {
		return nil, "", ErrNoObjectStore
	}
	if !isStoredKey(key) {
		return nil, "", ErrFileNotFound
	}
	rc, err := a.openObject(ctx, key)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, "", ErrFileNotFound
		}
		return nil, "", fmt.Errorf("open %s: %w", key, err)
	}
	return rc, contentType(key), nil
}

// openObject bounds opening key by the storage timeout. The returned
// stream stays readable until Close.
func (a *App) openObject(ctx context.Context, key string) (io.ReadCloser, error) {
	ctx, cancel := context.WithCancel(ctx)
	expired := time.AfterFunc(a.storageTimeout, cancel)
	rc, err := a.objects.Get(ctx, key)
	if !expired.Stop() {
		if err == nil {
			rc.Close()
		}
		cancel()
		return nil, context.DeadlineExceeded
	}
	if err != nil {
		cancel()
		return nil, err
	}
	stream := &objectStream{ReadCloser: rc, release: cancel}
	if seeker, ok := rc.(io.Seeker); ok {
		return &seekableObjectStream{objectStream: stream, Seeker: seeker}, nil
	}
	return stream, nil
}

type objectStream struct {
	io.ReadCloser
	release context.CancelFunc
}

func (s *objectStream) Close() error {
	err := s.ReadCloser.Close()
	s.release()
	return err
}

type seekableObjectStream struct {
	*objectStream
	io.Seeker
}

// SignedURL returns a URL the browser can fetch the book's file from.
func (a *App) SignedURL(ctx context.Context, bookID int64, kind domain.FileKind) (string, error) {
	b, err := a.mustBook(ctx, bookID)
	if err != nil {
		return "", err
	}
	key := b.FilePath(kind)
	if key == "" {
		return "", ErrNoFile
	}
	if presigner, ok := a.objects.(storage.Presigner); ok {
		presignCtx, cancel := a.storeCtx(ctx)
		defer cancel()
		signed, err := presigner.PresignGet(presignCtx, key, a.presignExpiry)
		if err != nil {
			return "", fmt.Errorf("presign %s: %w", key, err)
		}
		return signed, nil
	}
	return a.publicBaseURL + "/static/" + escapeKey(key), nil
}

func escapeKey(key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}

var bookContentTypes = map[string]string{
	".epub": "application/epub+zip",
	".pdf":  "application/pdf",
	".txt":  "text/plain; charset=utf-8",
	".mp3":  "audio/mpeg",
	".m4a":  "audio/mp4",
	".m4b":  "audio/mp4",
}

func contentType(name string) string {
	ext := strings.ToLower(path.Ext(name))
	if ct, ok := bookContentTypes[ext]; ok {
		return ct
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
