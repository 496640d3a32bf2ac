package aiclients

import (
	"context"
	"errors"

	texttospeech "cloud.google.com/go/texttospeech/apiv1"
	texttospeechpb "cloud.google.com/go/texttospeech/apiv1/texttospeechpb"

	"github.com/PatrickCDun14/Memoora-calls-sub000/internal/commons"
	"github.com/PatrickCDun14/Memoora-calls-sub000/internal/config"
)

// synthesizeAPI is the narrow subset of the Google Cloud Text-to-Speech
// client this adapter depends on, so tests can substitute a fake.
type synthesizeAPI interface {
	SynthesizeSpeech(ctx context.Context, req *texttospeechpb.SynthesizeSpeechRequest) (*texttospeechpb.SynthesizeSpeechResponse, error)
}

type googleSynthesis struct {
	logger   commons.Logger
	api      synthesizeAPI
	credsSet bool
}

// NewGoogleSynthesis builds the Synthesis capability backed by Google
// Cloud Text-to-Speech (spec.md §4.10). An empty cfg.GoogleTTSCredsJSON
// leaves synthesis unavailable; otherwise the client is built with the
// Google SDK's default credential lookup (GOOGLE_APPLICATION_CREDENTIALS),
// and the contents of cfg.GoogleTTSCredsJSON are not passed to it.
// Construction failure is logged and the client reports itself
// unavailable rather than aborting startup.
func NewGoogleSynthesis(ctx context.Context, cfg config.AIConfig, logger commons.Logger) Synthesis {
	if cfg.GoogleTTSCredsJSON == "" {
		logger.Warnf("google text-to-speech credentials not configured, synthesis unavailable")
		return &googleSynthesis{logger: logger, credsSet: false}
	}

	client, err := texttospeech.NewClient(ctx)
	if err != nil {
		logger.Errorf("failed to build google text-to-speech client: %v", err)
		return &googleSynthesis{logger: logger, credsSet: false}
	}
	return &googleSynthesis{logger: logger, api: client, credsSet: true}
}

func (g *googleSynthesis) Available() bool { return g.credsSet && g.api != nil }

// Synthesize renders text to MP3 bytes (spec.md §4.10).
func (g *googleSynthesis) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if !g.Available() {
		return nil, errors.New("synthesis client not configured")
	}

	resp, err := g.api.SynthesizeSpeech(ctx, &texttospeechpb.SynthesizeSpeechRequest{
		Input: &texttospeechpb.SynthesisInput{
			InputSource: &texttospeechpb.SynthesisInput_Text{Text: text},
		},
		Voice: &texttospeechpb.VoiceSelectionParams{
			LanguageCode: "en-US",
			SsmlGender:   texttospeechpb.SsmlVoiceGender_NEUTRAL,
		},
		AudioConfig: &texttospeechpb.AudioConfig{
			AudioEncoding: texttospeechpb.AudioEncoding_MP3,
		},
	})
	if err != nil {
		return nil, err
	}
	return resp.AudioContent, nil
}
