package server

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/G1r1dhar/MeetBuddy-AI/internal/capture"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait).
	pingPeriod = (pongWait * 9) / 10
)

// event is one message on the session event feed.
type event struct {
	Type    string `json:"type"`
	Final   string `json:"final,omitempty"`
	Interim string `json:"interim,omitempty"`
	Name    string `json:"name,omitempty"`

	// Recording-complete payload.
	TranscriptEntries []capture.TranscriptEntry `json:"transcriptEntries,omitempty"`
	RecordingBytes    int                       `json:"recordingBytes,omitempty"`
}

// handleEvents streams a session's transcript, participant and
// recording-complete events to a websocket subscriber.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request, sessionID string) {
	if _, ok := s.svc.GetActiveSession(sessionID); !ok {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Str("session", sessionID).Err(err).Msg("event websocket upgrade failed")
		return
	}

	// Slow subscribers lose events rather than stall the capture path.
	outbound := make(chan event, 64)
	send := func(e event) {
		select {
		case outbound <- e:
		default:
		}
	}

	events := s.svc.Events()
	tokens := []int{
		events.SubscribeTranscript(sessionID, func(u capture.TranscriptUpdate) {
			send(event{Type: "transcript", Final: u.Final, Interim: u.Interim})
		}),
		events.SubscribeParticipant(sessionID, func(name string) {
			send(event{Type: "participant", Name: name})
		}),
		events.SubscribeRecording(sessionID, func(rc capture.RecordingComplete) {
			send(event{Type: "recording-complete", TranscriptEntries: rc.Entries, RecordingBytes: len(rc.Recording)})
		}),
	}
	defer func() {
		for _, t := range tokens {
			events.Unsubscribe(sessionID, t)
		}
		conn.Close()
	}()

	// Reader: we never expect data, but reads drive pong handling and
	// detect the peer going away.
	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case e := <-outbound:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(e); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-readerDone:
			return
		}
	}
}
