// Package recording implements the Recording Fetcher (C7): authenticated
// download of provider recording media with bounded retry on 404, and
// atomic placement into the recordings directory (spec.md §4.7).
package recording

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/PatrickCDun14/Memoora-calls-sub000/internal/clock"
	"github.com/PatrickCDun14/Memoora-calls-sub000/internal/commons"
	"github.com/PatrickCDun14/Memoora-calls-sub000/internal/telephony"
)

const (
	maxAttempts    = 3
	initialBackoff = 2 * time.Second
)

// FetchResult is the Ok arm of Fetch: the recording landed at Path under
// the final filename Filename. SizeBytes is the byte count actually
// streamed to disk (spec.md §3 invariant: "size > 0 on success").
// DurationSeconds is the provider-reported duration of the recording clip,
// when the caller has one (spec.md §3 Recording: "duration in seconds
// (may be null)").
type FetchResult struct {
	Filename        string
	Path            string
	SizeBytes       int64
	DurationSeconds int
}

// Fetcher is the Recording Fetcher contract (C7). durationSeconds is the
// provider's own report of the recording's length (0 if unknown) and is
// carried through unchanged onto the FetchResult for the Turn Processor to
// forward to the Notification Publisher (spec.md §4.8).
type Fetcher interface {
	Fetch(ctx context.Context, mediaURL string, durationSeconds int) (*FetchResult, error)
}

type fetcher struct {
	adapter       telephony.Adapter
	recordingsDir string
	tempDir       string
	clock         clock.Clock
	logger        commons.Logger
}

// NewFetcher builds the Recording Fetcher over the Telephony Adapter's
// authenticated download (spec.md §4.7), grounded on the Adapter's own
// DownloadRecording doc comment: "retry/backoff lives in the Recording
// Fetcher (C7), which is the only caller of this method."
func NewFetcher(adapter telephony.Adapter, recordingsDir, tempDir string, clk clock.Clock, logger commons.Logger) Fetcher {
	return &fetcher{adapter: adapter, recordingsDir: recordingsDir, tempDir: tempDir, clock: clk, logger: logger}
}

// Fetch downloads mediaURL, retrying up to maxAttempts times with
// exponential backoff starting at initialBackoff when the provider
// responds 404 (the recording may not be available yet), then streams the
// body to a temp file and atomically renames it into the recordings
// directory (spec.md §4.7 invariants: never overwrite, never leave a
// partial file under the final name).
func (f *fetcher) Fetch(ctx context.Context, mediaURL string, durationSeconds int) (*FetchResult, error) {
	backoff := initialBackoff
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		body, err := f.adapter.DownloadRecording(ctx, mediaURL)
		if err == nil {
			return f.persist(body, durationSeconds)
		}

		lastErr = err
		var rejected *telephony.ProviderRejected
		if !errors.As(err, &rejected) || rejected.Code != "404" || attempt == maxAttempts {
			return nil, err
		}

		f.logger.Warnf("recording not yet available (attempt %d/%d), retrying in %s", attempt, maxAttempts, backoff)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-f.clock.After(backoff):
		}
		backoff *= 2
	}
	return nil, lastErr
}

func (f *fetcher) persist(body io.ReadCloser, durationSeconds int) (*FetchResult, error) {
	defer body.Close()

	filename := fmt.Sprintf("story-%d.mp3", f.clock.Now().UnixMilli())
	finalPath := filepath.Join(f.recordingsDir, filename)
	if _, err := os.Stat(finalPath); err == nil {
		return nil, fmt.Errorf("recording file already exists, refusing to overwrite: %s", finalPath)
	}

	if err := os.MkdirAll(f.tempDir, 0o755); err != nil {
		return nil, fmt.Errorf("prepare temp dir: %w", err)
	}
	if err := os.MkdirAll(f.recordingsDir, 0o755); err != nil {
		return nil, fmt.Errorf("prepare recordings dir: %w", err)
	}

	tmp, err := os.CreateTemp(f.tempDir, "recording-*.tmp")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	copied, err := io.Copy(tmp, body)
	if err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return nil, fmt.Errorf("stream recording to temp file: %w", err)
	}
	if copied == 0 {
		tmp.Close()
		os.Remove(tmpPath)
		return nil, fmt.Errorf("recording body was empty, refusing to persist a zero-byte file")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("rename temp file into place: %w", err)
	}

	return &FetchResult{Filename: filename, Path: finalPath, SizeBytes: copied, DurationSeconds: durationSeconds}, nil
}
