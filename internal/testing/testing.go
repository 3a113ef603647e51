// package testing contains shared testing utilities
package testing

import (
	"context"
	"errors"
	"io"
	"iter"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/desertthunder/curatarr/internal/models"
	"github.com/desertthunder/curatarr/internal/providers"
)

// MemorySettingsStore is an in-memory settings store. FailSave, when set, is consulted before every save.
type MemorySettingsStore struct {
	mu       sync.Mutex
	records  map[[2]string]any
	FailSave func(rec models.SettingRecord) error
	Saves    int
}

func NewMemorySettingsStore() *MemorySettingsStore {
	return &MemorySettingsStore{records: make(map[[2]string]any)}
}

func (m *MemorySettingsStore) LoadAll(context.Context) ([]models.SettingRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.SettingRecord, 0, len(m.records))
	for k, v := range m.records {
		out = append(out, models.SettingRecord{Group: k[0], Key: k[1], Value: v})
	}
	return out, nil
}

func (m *MemorySettingsStore) Save(_ context.Context, rec models.SettingRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailSave != nil {
		if err := m.FailSave(rec); err != nil {
			return err
		}
	}
	m.Saves++
	m.records[[2]string{rec.Group, rec.Key}] = rec.Value
	return nil
}

// Value returns the stored value and whether it exists.
func (m *MemorySettingsStore) Value(group, key string) (any, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.records[[2]string{group, key}]
	return v, ok
}

// Set stores a value without going through FailSave.
func (m *MemorySettingsStore) Set(group, key string, v any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[[2]string{group, key}] = v
}

// MockLibrary is a test double for [providers.Library]
type MockLibrary struct {
	NameValue   string
	Users       []providers.User
	UsersErr    error
	Favorites   map[string][]providers.MediaRef
	FavoriteErr error
	History     map[string][]providers.HistoryEntry
	HistoryErr  error

	mu     sync.Mutex
	Since  map[string]*time.Time
	Limits map[string]int
}

func (m *MockLibrary) Name() string { return m.NameValue }

func (m *MockLibrary) ListUsers(context.Context) ([]providers.User, error) {
	return m.Users, m.UsersErr
}

func (m *MockLibrary) ListFavorites(_ context.Context, user providers.User) ([]providers.MediaRef, error) {
	if m.FavoriteErr != nil {
		return nil, m.FavoriteErr
	}
	return m.Favorites[user.Name], nil
}

// ListWatchHistory records the window it was asked for and yields the user's entries newest first.
func (m *MockLibrary) ListWatchHistory(_ context.Context, user providers.User, since *time.Time, limit int) iter.Seq2[providers.HistoryEntry, error] {
	m.mu.Lock()
	if m.Since == nil {
		m.Since = make(map[string]*time.Time)
		m.Limits = make(map[string]int)
	}
	m.Since[user.Name] = since
	m.Limits[user.Name] = limit
	m.mu.Unlock()

	return func(yield func(providers.HistoryEntry, error) bool) {
		if m.HistoryErr != nil {
			yield(providers.HistoryEntry{}, m.HistoryErr)
			return
		}
		n := 0
		for _, e := range m.History[user.Name] {
			if since != nil && !e.WatchedAt.After(*since) {
				continue
			}
			if limit > 0 && n >= limit {
				return
			}
			n++
			if !yield(e, nil) {
				return
			}
		}
	}
}

// SinceFor returns the since argument of the last history call for a user.
func (m *MockLibrary) SinceFor(user string) (*time.Time, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Since[user], m.Limits[user]
}

// MockRequest is a test double for [providers.Request]
type MockRequest struct {
	NameValue string
	Profiles  []providers.Profile
	SubmitErr error

	mu        sync.Mutex
	Submitted []providers.MediaRef
}

func (m *MockRequest) Name() string { return m.NameValue }

func (m *MockRequest) ListQualityProfiles(context.Context, models.MediaType) ([]providers.Profile, error) {
	return m.Profiles, nil
}

func (m *MockRequest) SubmitRequest(_ context.Context, ref providers.MediaRef, _ *int) (providers.RequestID, error) {
	if m.SubmitErr != nil {
		return "", m.SubmitErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Submitted = append(m.Submitted, ref)
	return providers.RequestID("req-1"), nil
}

func (m *MockRequest) ListKnownUsers(context.Context) ([]providers.User, error) {
	return nil, nil
}

// MockGeneration is a test double for [providers.Generation] that counts calls.
type MockGeneration struct {
	NameValue string
	Models    []string
	Result    *providers.GenerateResult
	Err       error

	calls      atomic.Int32
	mu         sync.Mutex
	LastPrompt string
}

func (m *MockGeneration) Name() string { return m.NameValue }

func (m *MockGeneration) ListModels(context.Context) ([]string, error) {
	return m.Models, nil
}

func (m *MockGeneration) Generate(_ context.Context, req providers.GenerateRequest) (*providers.GenerateResult, error) {
	m.calls.Add(1)
	m.mu.Lock()
	m.LastPrompt = req.Prompt
	m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Result, nil
}

// Calls returns the number of Generate calls.
func (m *MockGeneration) Calls() int { return int(m.calls.Load()) }

// MockMetadata is a test double for [providers.Metadata]. Titles missing from Details have no match.
type MockMetadata struct {
	NameValue string
	Details   map[string]*providers.MediaDetails
	Errs      map[string]error

	mu      sync.Mutex
	Lookups []string
}

func (m *MockMetadata) Name() string { return m.NameValue }

func (m *MockMetadata) Lookup(_ context.Context, title string, _ models.MediaType) (*providers.MediaDetails, error) {
	m.mu.Lock()
	m.Lookups = append(m.Lookups, title)
	m.mu.Unlock()
	if err := m.Errs[title]; err != nil {
		return nil, err
	}
	return m.Details[title], nil
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// LimitedWriter fails after a certain number of writes
type LimitedWriter struct {
	maxWrites int
	written   int
	target    io.Writer
}

func (l *LimitedWriter) Write(p []byte) (n int, err error) {
	if l.written >= l.maxWrites {
		return 0, errors.New("write limit exceeded")
	}
	l.written++
	return l.target.Write(p)
}

func NewLimitedWriter(maxWrites, written int, target io.Writer) LimitedWriter {
	return LimitedWriter{maxWrites: maxWrites, written: written, target: target}
}

// MockRoundTripper allows custom HTTP responses for testing
type MockRoundTripper struct {
	response *http.Response
	err      error
}

func NewMockRoundTripper(r *http.Response, e error) *MockRoundTripper {
	return &MockRoundTripper{response: r, err: e}
}

func (m *MockRoundTripper) RoundTrip(*http.Request) (*http.Response, error) {
	return m.response, m.err
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}
