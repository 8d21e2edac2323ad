package app

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"dorian/pkg/domain"
	"dorian/pkg/storage"
	"dorian/pkg/store"
)

var fixedNow = time.Date(2024, 5, 20, 15, 0, 0, 0, time.UTC)

type testEnv struct {
	app       *App
	store     *store.MemoryStore
	objects   *storage.FileStore
	importDir string
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	objects, err := storage.NewFileStore(filepath.Join(t.TempDir(), "objects"))
	if err != nil {
		t.Fatalf("new file store: %v", err)
	}
	importDir := t.TempDir()
	mem := store.NewMemoryStore()
	a, err := New(Config{
		Store:         mem,
		Objects:       objects,
		ImportDir:     importDir,
		PublicBaseURL: "http://localhost:8000/",
		Now:           func() time.Time { return fixedNow },
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	return testEnv{app: a, store: mem, objects: objects, importDir: importDir}
}

func fields(t *testing.T, raw string) Fields {
	t.Helper()
	var f Fields
	if err := json.Unmarshal([]byte(raw), &f); err != nil {
		t.Fatalf("decode fields: %v", err)
	}
	return f
}

func validationMessage(err error) string {
	var v *ValidationError
	if errors.As(err, &v) {
		return v.Message
	}
	return ""
}

func TestNewRequiresStoreOrDatabaseURL(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("expected error without store or database url")
	}
}

func TestCreateBookDefaults(t *testing.T) {
	env := newTestEnv(t)
	b, err := env.app.CreateBook(context.Background(), fields(t, `{"title": " Dune ", "author": "Frank Herbert", "publish_year": "1965", "start_date": "2024-01-02"}`))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if b.ID == 0 || b.Title != "Dune" {
		t.Fatalf("book = %+v", b)
	}
	if b.Status != domain.StatusToRead {
		t.Fatalf("status = %q, want %q", b.Status, domain.StatusToRead)
	}
	if b.CreatedAt.String() != "2024-05-20" {
		t.Fatalf("created_at = %s", b.CreatedAt)
	}
	if b.PublishYear == nil || *b.PublishYear != 1965 {
		t.Fatalf("publish_year = %v", b.PublishYear)
	}
	if b.StartDate == nil || b.StartDate.String() != "2024-01-02" || b.FinishDate != nil {
		t.Fatalf("dates = %v %v", b.StartDate, b.FinishDate)
	}
}

func TestCreateBookValidation(t *testing.T) {
	env := newTestEnv(t)
	tests := []struct {
		body string
		want string
	}{
		{body: `{"title": "Dune"}`, want: "title and author are required"},
		{body: `{"title": "Dune", "author": "x", "start_date": "2024-13-01"}`, want: "Invalid start_date format"},
		{body: `{"title": "Dune", "author": "x", "finish_date": "yesterday"}`, want: "Invalid finish_date format"},
		{body: `{"title": "Dune", "author": "x", "pages": "many"}`, want: "Invalid value for pages"},
	}
	for _, tc := range tests {
		_, err := env.app.CreateBook(context.Background(), fields(t, tc.body))
		if got := validationMessage(err); got != tc.want {
			t.Fatalf("create %s: err = %v, want validation %q", tc.body, err, tc.want)
		}
	}
}

func TestCreateBookImportsFiles(t *testing.T) {
	env := newTestEnv(t)
	if err := os.WriteFile(filepath.Join(env.importDir, "dune.txt"), []byte("A beginning is a delicate time."), 0o644); err != nil {
		t.Fatalf("write import file: %v", err)
	}
	ctx := context.Background()

	b, err := env.app.CreateBook(ctx, fields(t, `{"title": "Dune", "author": "Herbert", "ebook_path": "/somewhere/else/dune.txt"}`))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if b.EbookPath != "ebooks/txt/dune.txt" || b.EbookFormat != "txt" {
		t.Fatalf("ebook = %q (%q)", b.EbookPath, b.EbookFormat)
	}
	rc, err := env.objects.Get(ctx, b.EbookPath)
	if err != nil {
		t.Fatalf("get imported object: %v", err)
	}
	rc.Close()

	_, err = env.app.CreateBook(ctx, fields(t, `{"title": "Lost", "author": "x", "audiobook_path": "missing.mp3"}`))
	if msg := validationMessage(err); !strings.HasPrefix(msg, "Error copying audiobook") {
		t.Fatalf("err = %v, want copy validation error", err)
	}

	kept, err := env.app.CreateBook(ctx, fields(t, `{"title": "Kept", "author": "x", "audiobook_path": "audiobooks/mp3/kept.mp3"}`))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if kept.AudiobookPath != "audiobooks/mp3/kept.mp3" || kept.AudiobookFormat != "mp3" {
		t.Fatalf("audiobook = %q (%q)", kept.AudiobookPath, kept.AudiobookFormat)
	}
}

func TestUpdateBookPartial(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	b, err := env.app.CreateBook(ctx, fields(t, `{"title": "Dune", "author": "Herbert", "notes": "keep me"}`))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	updated, err := env.app.UpdateBook(ctx, b.ID, fields(t, `{"status": "Leyendo", "start_date": "2024-05-01", "unknown": 1}`))
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Status != domain.StatusReading || updated.Notes != "keep me" || updated.StartDate.String() != "2024-05-01" {
		t.Fatalf("updated = %+v", updated)
	}

	_, err = env.app.UpdateBook(ctx, b.ID, fields(t, `{"finish_date": "05/01/2024"}`))
	if got := validationMessage(err); got != "Invalid date format for finish_date" {
		t.Fatalf("err = %v", err)
	}
	if _, err := env.app.UpdateBook(ctx, 999, fields(t, `{"status": "Leído"}`)); !errors.Is(err, ErrBookNotFound) {
		t.Fatalf("err = %v, want ErrBookNotFound", err)
	}
}

func TestDeleteBookRemovesProgressAndFiles(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	b, err := env.app.CreateBook(ctx, fields(t, `{"title": "Dune", "author": "Herbert"}`))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	key, err := env.app.UploadFile(ctx, domain.KindEbook, b.ID, "Dune.TXT", strings.NewReader("spice"), 5)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if _, err := env.app.GetProgress(ctx, b.ID); err != nil {
		t.Fatalf("get progress: %v", err)
	}

	if err := env.app.DeleteBook(ctx, b.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, _ := env.store.GetBook(ctx, b.ID); ok {
		t.Fatal("book should be deleted")
	}
	if _, ok, _ := env.store.GetProgress(ctx, b.ID); ok {
		t.Fatal("progress should be deleted with the book")
	}
	if _, err := env.objects.Get(ctx, key); !errors.Is(err, storage.ErrObjectNotFound) {
		t.Fatalf("stored file err = %v, want ErrObjectNotFound", err)
	}
	if err := env.app.DeleteBook(ctx, b.ID); !errors.Is(err, ErrBookNotFound) {
		t.Fatalf("second delete err = %v, want ErrBookNotFound", err)
	}
}

func TestProgressGetOrCreateAndUpdate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	b, err := env.app.CreateBook(ctx, fields(t, `{"title": "Dune", "author": "Herbert"}`))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	p, err := env.app.GetProgress(ctx, b.ID)
	if err != nil {
		t.Fatalf("get progress: %v", err)
	}
	if p.ID == 0 || p.BookID != b.ID || p.CurrentPage != nil || p.ProgressPercentage != 0 || !p.LastReadDate.Equal(fixedNow) {
		t.Fatalf("fresh progress = %+v", p)
	}
	again, err := env.app.GetProgress(ctx, b.ID)
	if err != nil || again.ID != p.ID {
		t.Fatalf("second get = (%+v, %v), want the same record", again, err)
	}

	updated, err := env.app.UpdateProgress(ctx, b.ID, fields(t, `{"current_page": 42, "progress_percentage": 10.5, "current_chapter": "Muad'Dib"}`))
	if err != nil {
		t.Fatalf("update progress: %v", err)
	}
	if updated.ID != p.ID || *updated.CurrentPage != 42 || updated.ProgressPercentage != 10.5 || *updated.CurrentChapter != "Muad'Dib" {
		t.Fatalf("updated = %+v", updated)
	}

	cleared, err := env.app.UpdateProgress(ctx, b.ID, fields(t, `{"current_chapter": null}`))
	if err != nil {
		t.Fatalf("update progress: %v", err)
	}
	if cleared.CurrentChapter != nil || *cleared.CurrentPage != 42 {
		t.Fatalf("cleared = %+v", cleared)
	}

	if _, err := env.app.GetProgress(ctx, 999); !errors.Is(err, ErrBookNotFound) {
		t.Fatalf("err = %v, want ErrBookNotFound", err)
	}
	_, err = env.app.UpdateProgress(ctx, b.ID, fields(t, `{"scroll_position": "far"}`))
	if got := validationMessage(err); got != "Invalid value for scroll_position" {
		t.Fatalf("err = %v", err)
	}
}

func TestUploadContentAndSignedURL(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	b, err := env.app.CreateBook(ctx, fields(t, `{"title": "Dune", "author": "Herbert"}`))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := env.app.BookContent(ctx, b.ID); !errors.Is(err, ErrNoFile) {
		t.Fatalf("content err = %v, want ErrNoFile", err)
	}

	key, err := env.app.UploadFile(ctx, domain.KindEbook, b.ID, "My Dune.txt", strings.NewReader("  Fear is the mind-killer.  "), 26)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if key != "ebooks/1.txt" {
		t.Fatalf("key = %q, want ebooks/1.txt", key)
	}
	got, err := env.app.GetBook(ctx, b.ID)
	if err != nil {
		t.Fatalf("get book: %v", err)
	}
	if got.EbookPath != key || got.EbookFormat != "txt" {
		t.Fatalf("book file = %q (%q)", got.EbookPath, got.EbookFormat)
	}

	text, err := env.app.BookContent(ctx, b.ID)
	if err != nil {
		t.Fatalf("content: %v", err)
	}
	if text != "Fear is the mind-killer." {
		t.Fatalf("content = %q", text)
	}

	signed, err := env.app.SignedURL(ctx, b.ID, domain.KindEbook)
	if err != nil {
		t.Fatalf("signed url: %v", err)
	}
	if signed != "http://localhost:8000/static/ebooks/1.txt" {
		t.Fatalf("signed url = %q", signed)
	}
	if _, err := env.app.SignedURL(ctx, b.ID, domain.KindAudiobook); !errors.Is(err, ErrNoFile) {
		t.Fatalf("audiobook url err = %v, want ErrNoFile", err)
	}
}

func TestOpenFile(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	if err := env.objects.Put(ctx, "audiobooks/3.mp3", strings.NewReader("ID3"), 3, "audio/mpeg"); err != nil {
		t.Fatalf("put: %v", err)
	}

	rc, ct, err := env.app.OpenFile(ctx, "audiobooks/3.mp3")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	data, _ := io.ReadAll(rc)
	rc.Close()
	if string(data) != "ID3" || ct != "audio/mpeg" {
		t.Fatalf("open = (%q, %q)", data, ct)
	}

	for _, key := range []string{"audiobooks/4.mp3", "secrets/config.yaml", "ebooks/../../etc/passwd"} {
		if _, _, err := env.app.OpenFile(ctx, key); !errors.Is(err, ErrFileNotFound) {
			t.Fatalf("open %q err = %v, want ErrFileNotFound", key, err)
		}
	}
}

func TestListBooksWithProgress(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	first, _ := env.app.CreateBook(ctx, fields(t, `{"title": "Dune", "author": "Herbert"}`))
	if _, err := env.app.CreateBook(ctx, fields(t, `{"title": "Emma", "author": "Austen"}`)); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := env.app.UpdateProgress(ctx, first.ID, fields(t, `{"current_page": 3}`)); err != nil {
		t.Fatalf("update progress: %v", err)
	}

	items, err := env.app.ListBooksWithProgress(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("items = %d, want 2", len(items))
	}
	if items[0].Progress == nil || *items[0].Progress.CurrentPage != 3 {
		t.Fatalf("first progress = %+v", items[0].Progress)
	}
	if items[1].Progress != nil {
		t.Fatalf("second progress = %+v, want nil", items[1].Progress)
	}
}

type stalledStore struct {
	*store.MemoryStore
}

func (stalledStore) ListBooks(ctx context.Context) ([]domain.Book, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestStorageCallsAreBounded(t *testing.T) {
	a, err := New(Config{Store: stalledStore{store.NewMemoryStore()}, StorageTimeout: 20 * time.Millisecond})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	done := make(chan error, 1)
	go func() {
		_, err := a.ListBooks(context.Background())
		done <- err
	}()
	select {
	case err := <-done:
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("err = %v, want deadline exceeded", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("ListBooks still blocked after the storage timeout")
	}
}

// slowObjects blocks Get until its context ends and hands out readers that
// fail once their context is done.
type slowObjects struct {
	*storage.FileStore
	stall bool
}

func (s slowObjects) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	if s.stall {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	rc, err := s.FileStore.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	return ctxReader{ReadCloser: rc, ctx: ctx}, nil
}

type ctxReader struct {
	io.ReadCloser
	ctx context.Context
}

func (r ctxReader) Read(p []byte) (int, error) {
	if err := r.ctx.Err(); err != nil {
		return 0, err
	}
	return r.ReadCloser.Read(p)
}

func TestOpenFileBoundsOpenButNotStream(t *testing.T) {
	files, err := storage.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("new file store: %v", err)
	}
	ctx := context.Background()
	if err := files.Put(ctx, "audiobooks/3.mp3", strings.NewReader("ID3"), 3, "audio/mpeg"); err != nil {
		t.Fatalf("put: %v", err)
	}

	stalled, err := New(Config{Store: store.NewMemoryStore(), Objects: slowObjects{FileStore: files, stall: true}, StorageTimeout: 20 * time.Millisecond})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	if _, _, err := stalled.OpenFile(ctx, "audiobooks/3.mp3"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("open err = %v, want deadline exceeded", err)
	}

	a, err := New(Config{Store: store.NewMemoryStore(), Objects: slowObjects{FileStore: files}, StorageTimeout: 20 * time.Millisecond})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	rc, _, err := a.OpenFile(ctx, "audiobooks/3.mp3")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer rc.Close()
	time.Sleep(60 * time.Millisecond)
	data, err := io.ReadAll(rc)
	if err != nil || string(data) != "ID3" {
		t.Fatalf("read after timeout = (%q, %v), want the whole file", data, err)
	}
}

func TestBookCannotClaimAnotherBooksFile(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner, err := env.app.CreateBook(ctx, fields(t, `{"title": "Dune", "author": "Herbert"}`))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	key, err := env.app.UploadFile(ctx, domain.KindAudiobook, owner.ID, "dune.mp3", strings.NewReader("ID3"), 3)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	other, err := env.app.CreateBook(ctx, fields(t, `{"title": "Emma", "author": "Austen"}`))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	_, err = env.app.UpdateBook(ctx, other.ID, Fields{"audiobook_path": json.RawMessage(`"` + key + `"`)})
	if got := validationMessage(err); got != "audiobook_path belongs to another book" {
		t.Fatalf("update err = %v", err)
	}
	_, err = env.app.CreateBook(ctx, fields(t, `{"title": "Copy", "author": "x", "audiobook_path": "`+key+`"}`))
	if got := validationMessage(err); got != "audiobook_path belongs to another book" {
		t.Fatalf("create err = %v", err)
	}

	// Keeping the book's own key in an update is fine.
	if _, err := env.app.UpdateBook(ctx, owner.ID, Fields{"audiobook_path": json.RawMessage(`"` + key + `"`)}); err != nil {
		t.Fatalf("update own key: %v", err)
	}

	// A record that already shares the key must not take the file with it.
	shared, err := env.store.CreateBook(ctx, domain.Book{Title: "Shared", Author: "x", Status: domain.StatusToRead, AudiobookPath: key})
	if err != nil {
		t.Fatalf("store create: %v", err)
	}
	if err := env.app.DeleteBook(ctx, shared.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	rc, err := env.objects.Get(ctx, key)
	if err != nil {
		t.Fatalf("owner's file was deleted: %v", err)
	}
	rc.Close()
}
