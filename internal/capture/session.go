// Package capture implements the meeting capture-session lifecycle: media
// acquisition, live transcription, chunked recording, participant state and
// the registry multiplexing all concurrent sessions.
package capture

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrSessionNotFound is returned when an operation references a session id
// that was never created.
var ErrSessionNotFound = errors.New("capture: session not found")

// defaultConfidence is used when the recognizer reports no score.
const defaultConfidence = 0.9

// defaultSpeaker is the placeholder attribution; diarization is out of scope.
const defaultSpeaker = "Current Speaker"

// State is the capture-session lifecycle state. Transitions are
// one-directional: Initializing → Active → Stopping → Closed.
type State string

const (
	StateInitializing State = "initializing"
	StateActive       State = "active"
	StateStopping     State = "stopping"
	StateClosed       State = "closed"
)

// TranscriptEntry is one final recognized utterance. Entries are immutable
// once created; interim text is never persisted.
type TranscriptEntry struct {
	ID         string    `json:"id"`
	Speaker    string    `json:"speaker"`
	Text       string    `json:"text"`
	Timestamp  time.Time `json:"timestamp"`
	Confidence float64   `json:"confidence"`
	IsFinal    bool      `json:"isFinal"`
}

func newTranscriptEntry(text string, confidence float64) TranscriptEntry {
	if confidence <= 0 {
		confidence = defaultConfidence
	}
	return TranscriptEntry{
		ID:         uuid.NewString(),
		Speaker:    defaultSpeaker,
		Text:       text,
		Timestamp:  time.Now(),
		Confidence: confidence,
		IsFinal:    true,
	}
}

// Session is one end-to-end attempt to record and transcribe a single
// meeting. All sequence fields are append-only for the session's lifetime.
type Session struct {
	mu sync.Mutex

	id         string
	platform   string
	meetingURL string
	startTime  time.Time

	state          State
	isRecording    bool
	isTranscribing bool

	participants      []string
	recordingChunks   [][]byte
	transcriptEntries []TranscriptEntry
}

func newSession(platform, meetingURL string) *Session {
	return &Session{
		id:         uuid.NewString(),
		platform:   platform,
		meetingURL: meetingURL,
		startTime:  time.Now(),
		state:      StateInitializing,
	}
}

func (s *Session) ID() string         { return s.id }
func (s *Session) Platform() string   { return s.platform }
func (s *Session) MeetingURL() string { return s.meetingURL }

func (s *Session) StartTime() time.Time { return s.startTime }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) IsRecording() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isRecording
}

func (s *Session) IsTranscribing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isTranscribing
}

// Participants returns a copy of the participant names in join order.
func (s *Session) Participants() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.participants...)
}

// TranscriptEntries returns a copy of the entries in arrival order.
func (s *Session) TranscriptEntries() []TranscriptEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]TranscriptEntry(nil), s.transcriptEntries...)
}

// activate flips the session to Active. transcribing is false when the
// recognizer turned out to be unavailable and the session proceeds without
// transcription.
func (s *Session) activate(transcribing bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateActive
	s.isRecording = true
	s.isTranscribing = transcribing
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
	if state == StateClosed {
		s.isRecording = false
		s.isTranscribing = false
	}
}

func (s *Session) appendEntry(entry TranscriptEntry) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateActive {
		return false
	}
	s.transcriptEntries = append(s.transcriptEntries, entry)
	return true
}

// appendChunk buffers one recording chunk. Chunks are accepted while Active
// and during Stopping, when the sink flushes its final partial chunk.
func (s *Session) appendChunk(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateActive && s.state != StateStopping {
		return fmt.Errorf("session %s is %s", s.id, s.state)
	}
	s.recordingChunks = append(s.recordingChunks, chunk)
	return nil
}

func (s *Session) addParticipant(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateActive {
		return false
	}
	s.participants = append(s.participants, name)
	return true
}

// takeChunks hands the buffered chunks to teardown and clears them.
func (s *Session) takeChunks() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	chunks := s.recordingChunks
	s.recordingChunks = nil
	return chunks
}

// Snapshot is the wire representation of a session.
type Snapshot struct {
	ID                string            `json:"id"`
	Platform          string            `json:"platform"`
	MeetingURL        string            `json:"meetingUrl"`
	StartTime         time.Time         `json:"startTime"`
	State             State             `json:"state"`
	IsRecording       bool              `json:"isRecording"`
	IsTranscribing    bool              `json:"isTranscribing"`
	Participants      []string          `json:"participants"`
	TranscriptEntries []TranscriptEntry `json:"transcriptEntries"`
}

// Snapshot returns a consistent copy of the session's visible state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		ID:                s.id,
		Platform:          s.platform,
		MeetingURL:        s.meetingURL,
		StartTime:         s.startTime,
		State:             s.state,
		IsRecording:       s.isRecording,
		IsTranscribing:    s.isTranscribing,
		Participants:      append([]string(nil), s.participants...),
		TranscriptEntries: append([]TranscriptEntry(nil), s.transcriptEntries...),
	}
}
