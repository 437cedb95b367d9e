package capture

import "sync"

// TranscriptUpdate carries the latest final and interim text. Interim text
// is transient display state and is never persisted.
type TranscriptUpdate struct {
	Final   string `json:"final,omitempty"`
	Interim string `json:"interim,omitempty"`
}

// RecordingComplete is the final handoff after teardown: the consolidated
// recording blob and the ordered transcript.
type RecordingComplete struct {
	Recording []byte            `json:"-"`
	Entries   []TranscriptEntry `json:"transcriptEntries"`
}

type (
	TranscriptFunc  func(TranscriptUpdate)
	ParticipantFunc func(name string)
	RecordingFunc   func(RecordingComplete)
)

type subscriber[T any] struct {
	token int
	fn    T
}

// Broadcaster fans session events out to any number of subscribers per
// session, in subscription order. Callbacks run synchronously on whatever
// goroutine published the event.
type Broadcaster struct {
	mu          sync.Mutex
	next        int
	transcript  map[string][]subscriber[TranscriptFunc]
	participant map[string][]subscriber[ParticipantFunc]
	recording   map[string][]subscriber[RecordingFunc]
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		transcript:  make(map[string][]subscriber[TranscriptFunc]),
		participant: make(map[string][]subscriber[ParticipantFunc]),
		recording:   make(map[string][]subscriber[RecordingFunc]),
	}
}

func (b *Broadcaster) SubscribeTranscript(sessionID string, fn TranscriptFunc) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.next++
	b.transcript[sessionID] = append(b.transcript[sessionID], subscriber[TranscriptFunc]{b.next, fn})
	return b.next
}

func (b *Broadcaster) SubscribeParticipant(sessionID string, fn ParticipantFunc) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.next++
	b.participant[sessionID] = append(b.participant[sessionID], subscriber[ParticipantFunc]{b.next, fn})
	return b.next
}

func (b *Broadcaster) SubscribeRecording(sessionID string, fn RecordingFunc) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.next++
	b.recording[sessionID] = append(b.recording[sessionID], subscriber[RecordingFunc]{b.next, fn})
	return b.next
}

func (b *Broadcaster) Unsubscribe(sessionID string, token int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.transcript[sessionID] = drop(b.transcript[sessionID], token)
	b.participant[sessionID] = drop(b.participant[sessionID], token)
	b.recording[sessionID] = drop(b.recording[sessionID], token)
}

func drop[T any](subs []subscriber[T], token int) []subscriber[T] {
	for i, s := range subs {
		if s.token == token {
			return append(subs[:i:i], subs[i+1:]...)
		}
	}
	return subs
}

func (b *Broadcaster) publishTranscript(sessionID string, u TranscriptUpdate) {
	b.mu.Lock()
	subs := append([]subscriber[TranscriptFunc](nil), b.transcript[sessionID]...)
	b.mu.Unlock()
	for _, s := range subs {
		s.fn(u)
	}
}

func (b *Broadcaster) publishParticipant(sessionID, name string) {
	b.mu.Lock()
	subs := append([]subscriber[ParticipantFunc](nil), b.participant[sessionID]...)
	b.mu.Unlock()
	for _, s := range subs {
		s.fn(name)
	}
}

func (b *Broadcaster) publishRecording(sessionID string, rc RecordingComplete) {
	b.mu.Lock()
	subs := append([]subscriber[RecordingFunc](nil), b.recording[sessionID]...)
	b.mu.Unlock()
	for _, s := range subs {
		s.fn(rc)
	}
}

// dropSession clears all subscriber lists for a closed session.
func (b *Broadcaster) dropSession(sessionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.transcript, sessionID)
	delete(b.participant, sessionID)
	delete(b.recording, sessionID)
}
