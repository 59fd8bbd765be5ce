package realtime

import "encoding/json"

// Inbound events.
const (
	EventStartTranscription = "start-transcription"
	EventAudioChunk         = "audio-chunk"
	EventStopTranscription  = "stop-transcription"
)

// Outbound events.
const (
	EventTranscriptionStarted = "transcription-started"
	EventTranscriptChunk      = "transcript-chunk"
	EventTranscriptionStopped = "transcription-stopped"
	EventTranscriptionError   = "transcription-error"
)

// Frame is the JSON envelope of every socket message.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// StartRequest is the payload of start-transcription.
type StartRequest struct {
	SessionID string `json:"sessionId"`
	UserID    string `json:"userId"`
}

// ChunkRequest is the payload of audio-chunk. AudioData is base64.
type ChunkRequest struct {
	AudioData string `json:"audioData"`
	IsLast    bool   `json:"isLast"`
}

// Started is the payload of transcription-started.
type Started struct {
	SessionID string `json:"sessionId"`
}

// ChunkTranscribed is the payload of transcript-chunk. Timestamp is in
// Unix milliseconds.
type ChunkTranscribed struct {
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
	IsLast    bool   `json:"isLast"`
}

// Stopped is the payload of transcription-stopped.
type Stopped struct {
	SessionID       string `json:"sessionId"`
	FinalTranscript string `json:"finalTranscript"`
}

// ErrorPayload is the payload of transcription-error.
type ErrorPayload struct {
	Error   string    `json:"error"`
	Code    ErrorCode `json:"code"`
	Details any       `json:"details,omitempty"`
}

// Emitter delivers outbound events to a connection. Events for a closed
// connection are dropped.
type Emitter interface {
	Emit(connID, event string, payload any)
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(connID, event string, payload any)

func (f EmitterFunc) Emit(connID, event string, payload any) { f(connID, event, payload) }
