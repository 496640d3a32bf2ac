package promptwebhook

import (
	"fmt"

	"github.com/twilio/twilio-go/twiml"
)

const defaultGreeting = "Hello, thank you for answering. We'd love to hear your story."

// buildTurnMarkup renders the provider markup for one turn: speak the
// prompt (audioURL when synthesis already produced it, spoken text
// otherwise) then record the callee's answer, bounded to maxSeconds, with
// the recording-complete callback pointed at the Turn Processor's
// webhook (spec.md §4.4).
func buildTurnMarkup(promptText, audioURL, recordingCallbackURL string, maxSeconds int) (string, error) {
	var sayOrPlay twiml.Element
	if audioURL != "" {
		sayOrPlay = &twiml.VoicePlay{Url: audioURL}
	} else {
		sayOrPlay = &twiml.VoiceSay{Message: promptText}
	}

	verbs := []twiml.Element{
		sayOrPlay,
		&twiml.VoiceRecord{
			MaxLength:        fmt.Sprintf("%d", maxSeconds),
			Action:           recordingCallbackURL,
			RecordingStatusCallback: recordingCallbackURL,
			PlayBeep:         "true",
			Trim:             "trim-silence",
		},
	}
	return twiml.Voice(verbs)
}

// buildClosingMarkup renders a final spoken message with no further
// recording step, used when the Dialog Engine has closed the call.
func buildClosingMarkup(closingText string) (string, error) {
	verbs := []twiml.Element{
		&twiml.VoiceSay{Message: closingText},
		&twiml.VoiceHangup{},
	}
	return twiml.Voice(verbs)
}

// buildFallbackMarkup is the basic greeting+record script used when the
// CallRecord or Dialog Engine state is missing, or turn markup fails to
// render (spec.md §4.4 fallbacks). Missing synthesized audio does not use
// it: the prompt is then spoken with Say.
func buildFallbackMarkup(recordingCallbackURL string, maxSeconds int) (string, error) {
	return buildTurnMarkup(defaultGreeting, "", recordingCallbackURL, maxSeconds)
}
