// Package tts turns assistant replies into audible speech.
//
// A Synthesizer produces audio for a piece of text; a Speaker owns playback
// of one utterance at a time and reports when it has finished.
package tts

import "context"

// SynthesizeOpts controls synthesis behavior.
type SynthesizeOpts struct {
	// Language is the ISO-639-1 code (e.g., "ru", "en") used to select the voice.
	Language string

	// Voice overrides automatic language-based voice selection.
	Voice string
}

// Synthesizer converts text to audio.
type Synthesizer interface {
	// Synthesize generates a WAV file for text.
	Synthesize(ctx context.Context, text string, opts SynthesizeOpts) (*SynthesizeResult, error)

	// Close releases any resources held by the synthesizer.
	Close() error
}

// SynthesizeResult holds the output of TTS synthesis.
type SynthesizeResult struct {
	// Audio is the synthesized audio as a WAV file.
	Audio []byte

	// ContentType is the MIME type of the audio (e.g., "audio/wav").
	ContentType string

	// SampleRate is the audio sample rate in Hz (e.g., 22050).
	SampleRate int

	// Channels is the number of audio channels (typically 1).
	Channels int
}

// Speaker speaks one utterance at a time.
type Speaker interface {
	// Speak starts speaking text, replacing any utterance in progress.
	// onDone runs once on an arbitrary goroutine when the utterance finishes
	// or fails; it does not run for an utterance that was replaced or
	// stopped.
	Speak(text string, onDone func())

	// Stop silences the current utterance.
	Stop()

	// Close stops speaking and releases the speaker.
	Close() error
}
