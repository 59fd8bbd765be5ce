// Package transcription turns audio chunks into text through a hosted
// speech-to-text backend. Backends register a factory by name; import
// transcription/huggingface or transcription/whisper for side effects.
package transcription

import "context"

// Provider transcribes one audio payload. An empty string is a valid result
// for silence. Every failure is a *Failure.
type Provider interface {
	Name() string
	Transcribe(ctx context.Context, audio []byte) (string, error)
}

// Func adapts a function to Provider.
type Func func(ctx context.Context, audio []byte) (string, error)

func (f Func) Name() string { return "func" }

func (f Func) Transcribe(ctx context.Context, audio []byte) (string, error) {
	return f(ctx, audio)
}
