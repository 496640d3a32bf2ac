package recording

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/PatrickCDun14/Memoora-calls-sub000/internal/clock"
	"github.com/PatrickCDun14/Memoora-calls-sub000/internal/commons"
	"github.com/PatrickCDun14/Memoora-calls-sub000/internal/telephony"
)

type fakeAdapter struct {
	telephony.Adapter
	attempts     int
	failN404     int
	finalBody    string
	failNonRetry bool
}

func (f *fakeAdapter) DownloadRecording(ctx context.Context, mediaURL string) (io.ReadCloser, error) {
	f.attempts++
	if f.failNonRetry {
		return nil, &telephony.ProviderRejected{Code: "500", Message: "internal error"}
	}
	if f.attempts <= f.failN404 {
		return nil, &telephony.ProviderRejected{Code: "404", Message: "not yet available"}
	}
	return io.NopCloser(strings.NewReader(f.finalBody)), nil
}

func newTestFetcher(t *testing.T, adapter telephony.Adapter) (Fetcher, string) {
	t.Helper()
	dir := t.TempDir()
	recordingsDir := filepath.Join(dir, "recordings")
	tempDir := filepath.Join(dir, "tmp")
	fc := clock.NewFake(time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC))
	return NewFetcher(adapter, recordingsDir, tempDir, fc, commons.NewLogger("debug")), recordingsDir
}

func TestFetchSucceedsImmediately(t *testing.T) {
	adapter := &fakeAdapter{finalBody: "audio-bytes"}
	f, recordingsDir := newTestFetcher(t, adapter)

	result, err := f.Fetch(context.Background(), "https://provider.example/media/1", 42)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if adapter.attempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", adapter.attempts)
	}
	if !strings.HasPrefix(result.Filename, "story-") || !strings.HasSuffix(result.Filename, ".mp3") {
		t.Fatalf("unexpected filename: %s", result.Filename)
	}
	data, err := os.ReadFile(filepath.Join(recordingsDir, result.Filename))
	if err != nil {
		t.Fatalf("read recorded file: %v", err)
	}
	if string(data) != "audio-bytes" {
		t.Fatalf("unexpected file contents: %s", data)
	}
	if result.SizeBytes != int64(len("audio-bytes")) {
		t.Fatalf("expected SizeBytes to match the bytes written, got %d", result.SizeBytes)
	}
	if result.DurationSeconds != 42 {
		t.Fatalf("expected DurationSeconds to be threaded through, got %d", result.DurationSeconds)
	}
}

func TestFetchRejectsEmptyBody(t *testing.T) {
	adapter := &fakeAdapter{finalBody: ""}
	f, _ := newTestFetcher(t, adapter)

	_, err := f.Fetch(context.Background(), "https://provider.example/media/empty", 0)
	if err == nil {
		t.Fatal("expected an error for a zero-byte recording body")
	}
}

func TestFetchRetriesOn404ThenSucceeds(t *testing.T) {
	adapter := &fakeAdapter{finalBody: "audio-bytes", failN404: 2}
	f, _ := newTestFetcher(t, adapter)

	result, err := f.Fetch(context.Background(), "https://provider.example/media/2", 0)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if adapter.attempts != 3 {
		t.Fatalf("expected 3 attempts (2 retries then success), got %d", adapter.attempts)
	}
	if result == nil {
		t.Fatal("expected a result")
	}
}

func TestFetchGivesUpAfterMaxAttempts(t *testing.T) {
	adapter := &fakeAdapter{finalBody: "audio-bytes", failN404: 10}
	f, _ := newTestFetcher(t, adapter)

	_, err := f.Fetch(context.Background(), "https://provider.example/media/3", 0)
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if adapter.attempts != maxAttempts {
		t.Fatalf("expected exactly %d attempts, got %d", maxAttempts, adapter.attempts)
	}
}

func TestFetchDoesNotRetryNonRetryableError(t *testing.T) {
	adapter := &fakeAdapter{failNonRetry: true}
	f, _ := newTestFetcher(t, adapter)

	_, err := f.Fetch(context.Background(), "https://provider.example/media/4", 0)
	if err == nil {
		t.Fatal("expected non-retryable error to surface")
	}
	if adapter.attempts != 1 {
		t.Fatalf("expected exactly 1 attempt for a non-retryable error, got %d", adapter.attempts)
	}
}

func TestFetchNeverOverwritesExistingFile(t *testing.T) {
	adapter := &fakeAdapter{finalBody: "first"}
	_, recordingsDir := newTestFetcher(t, adapter)

	if err := os.MkdirAll(recordingsDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	existing := filepath.Join(recordingsDir, "story-1753963200000.mp3")
	if err := os.WriteFile(existing, []byte("already here"), 0o644); err != nil {
		t.Fatalf("seed existing file: %v", err)
	}

	// Force the fake clock's UnixMilli to collide with the seeded file name.
	fc := clock.NewFake(time.UnixMilli(1753963200000))
	fetcherWithClock := NewFetcher(adapter, recordingsDir, filepath.Dir(recordingsDir)+"/tmp", fc, commons.NewLogger("debug"))

	_, err := fetcherWithClock.Fetch(context.Background(), "https://provider.example/media/5", 0)
	if err == nil {
		t.Fatal("expected an error rather than overwriting the existing file")
	}
	data, readErr := os.ReadFile(existing)
	if readErr != nil {
		t.Fatalf("read existing file: %v", readErr)
	}
	if string(data) != "already here" {
		t.Fatal("existing file was overwritten")
	}
}
