package aiclients

import (
	"context"
	"errors"
	"os"

	"github.com/PatrickCDun14/Memoora-calls-sub000/internal/commons"
	"github.com/PatrickCDun14/Memoora-calls-sub000/internal/config"
	dgclient "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	dglisten "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"
)

// transcriptionAPI is the narrow subset of the Deepgram prerecorded REST
// client this adapter depends on, mirroring the callAPI pattern in
// internal/telephony/twilio.go so tests can substitute a fake without
// hitting the network.
type transcriptionAPI interface {
	FromFile(ctx context.Context, file *os.File, opts *dgclient.PreRecordedTranscriptionOptions) (*dgclient.PreRecordedResponse, error)
}

type deepgramRecognition struct {
	logger commons.Logger
	api    transcriptionAPI
	apiKey string
}

// NewDeepgramRecognition builds the Recognition capability backed by
// Deepgram's prerecorded transcription API (spec.md §4.10), grounded on
// the narrow-wrapper-over-generated-client shape of
// internal/telephony/twilio.go.
func NewDeepgramRecognition(cfg config.AIConfig, logger commons.Logger) Recognition {
	return &deepgramRecognition{
		logger: logger,
		apiKey: cfg.DeepgramAPIKey,
		api:    dglisten.NewRESTClient(cfg.DeepgramAPIKey, &dgclient.ClientOptions{}),
	}
}

func (d *deepgramRecognition) Available() bool { return d.apiKey != "" }

// Recognize transcribes the locally-fetched recording at filePath
// (spec.md §4.6 step 3: "Call the recognition client (C10) on the local
// file → transcript").
func (d *deepgramRecognition) Recognize(ctx context.Context, filePath string) (string, error) {
	if !d.Available() {
		return "", errors.New("recognition client not configured")
	}

	file, err := os.Open(filePath)
	if err != nil {
		return "", err
	}
	defer file.Close()

	resp, err := d.api.FromFile(ctx, file, &dgclient.PreRecordedTranscriptionOptions{
		Model:       "nova-2",
		SmartFormat: true,
		Punctuate:   true,
	})
	if err != nil {
		return "", err
	}
	return extractTranscript(resp), nil
}

func extractTranscript(resp *dgclient.PreRecordedResponse) string {
	if resp == nil || resp.Results == nil {
		return ""
	}
	channels := resp.Results.Channels
	if len(channels) == 0 {
		return ""
	}
	alternatives := channels[0].Alternatives
	if len(alternatives) == 0 {
		return ""
	}
	return alternatives[0].Transcript
}
