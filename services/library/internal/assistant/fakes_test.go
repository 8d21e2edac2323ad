package assistant

import (
	"context"
	"strings"
	"sync"

	"dorian/pkg/ai"
	"dorian/pkg/domain"
	"dorian/pkg/store"
)

var errRateLimited = &ai.APIError{Provider: "gemini", StatusCode: 429, Status: "RESOURCE_EXHAUSTED", Message: "quota"}

// fakeGenerator answers by system prompt and records every call.
type fakeGenerator struct {
	mu sync.Mutex

	classify func(call int) (string, error)
	title    func(question string) (string, error)
	chat     func(call int, turns []ai.Turn) (string, error)

	classifyCalls int
	titleCalls    int
	chatCalls     int
	chatPrompts   []string
}

func (f *fakeGenerator) GenerateText(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return "", err
	}
	switch systemPrompt {
	case analysisInstruction:
		f.classifyCalls++
		if f.classify == nil {
			return `{"needs_db": false, "required_data": [], "query_type": null}`, nil
		}
		return f.classify(f.classifyCalls)
	case titleExtractionInstruction:
		f.titleCalls++
		if f.title == nil {
			return noTitle, nil
		}
		return f.title(userPrompt)
	}
	return "", ai.ErrEmptyResponse
}

func (f *fakeGenerator) GenerateChat(ctx context.Context, _ string, turns []ai.Turn) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return "", err
	}
	f.chatCalls++
	f.chatPrompts = append(f.chatPrompts, turns[len(turns)-1].Content)
	if f.chat == nil {
		return "reply", nil
	}
	return f.chat(f.chatCalls, turns)
}

func (f *fakeGenerator) counts() (classify, title, chat int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.classifyCalls, f.titleCalls, f.chatCalls
}

func (f *fakeGenerator) lastPrompt() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.chatPrompts) == 0 {
		return ""
	}
	return f.chatPrompts[len(f.chatPrompts)-1]
}

// countingLibrary wraps a MemoryStore and counts reads.
type countingLibrary struct {
	*store.MemoryStore
	mu       sync.Mutex
	reads    int
	searches []string
	fail     error
}

func (c *countingLibrary) ListBooks(ctx context.Context) ([]domain.Book, error) {
	c.touch("")
	if c.fail != nil {
		return nil, c.fail
	}
	return c.MemoryStore.ListBooks(ctx)
}

func (c *countingLibrary) SearchBooksByTitle(ctx context.Context, fragment string) ([]domain.Book, error) {
	c.touch(fragment)
	if c.fail != nil {
		return nil, c.fail
	}
	return c.MemoryStore.SearchBooksByTitle(ctx, fragment)
}

func (c *countingLibrary) ListProgress(ctx context.Context) ([]domain.ProgressEntry, error) {
	c.touch("")
	if c.fail != nil {
		return nil, c.fail
	}
	return c.MemoryStore.ListProgress(ctx)
}

func (c *countingLibrary) touch(fragment string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reads++
	if strings.TrimSpace(fragment) != "" {
		c.searches = append(c.searches, fragment)
	}
}

func (c *countingLibrary) readCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reads
}

func intPtr(v int) *int { return &v }

func strPtr(v string) *string { return &v }

func datePtr(raw string) *domain.Date {
	d, err := domain.ParseDate(raw)
	if err != nil {
		panic(err)
	}
	return &d
}
