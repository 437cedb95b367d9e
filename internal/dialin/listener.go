// Package dialin lets phone participants join a capture session over the
// AudioSocket protocol. The UUID in the connection handshake is the capture
// session id the caller dials into; their audio feeds the session's
// recognizer and recording like any other audio track.
package dialin

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"

	"github.com/CyCoreSystems/audiosocket"
	"github.com/rs/zerolog/log"

	"github.com/G1r1dhar/MeetBuddy-AI/internal/metrics"
)

// participantName is how dial-in callers appear in the participant list.
const participantName = "Dial-in caller"

// SessionSink is the slice of the capture service the listener needs.
type SessionSink interface {
	AddParticipant(sessionID, name string) error
	IngestAudio(sessionID string, pcm []byte) error
}

// Config for the dial-in listener.
type Config struct {
	Addr string
	// AnnouncementFile is an optional 8kHz mono WAV played to callers on
	// connect ("this call is being recorded").
	AnnouncementFile string
}

// Listener accepts AudioSocket connections and bridges them into live
// capture sessions.
type Listener struct {
	cfg          Config
	sink         SessionSink
	announcement []byte

	listener net.Listener
	shutdown chan struct{}
	wg       sync.WaitGroup
}

// New builds a listener. The announcement, when configured, is preloaded
// into memory so playback never touches the filesystem mid-call.
func New(cfg Config, sink SessionSink) (*Listener, error) {
	l := &Listener{
		cfg:      cfg,
		sink:     sink,
		shutdown: make(chan struct{}),
	}
	if cfg.AnnouncementFile != "" {
		pcm, err := loadWAV(cfg.AnnouncementFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load announcement: %w", err)
		}
		l.announcement = pcm
	}
	return l, nil
}

// Start runs the accept loop until Stop.
func (l *Listener) Start() error {
	listener, err := net.Listen("tcp", l.cfg.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", l.cfg.Addr, err)
	}
	l.listener = listener
	log.Info().Str("addr", l.cfg.Addr).Msg("dial-in listener started")

	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-l.shutdown:
				return nil
			default:
				log.Warn().Err(err).Msg("dial-in accept error")
				continue
			}
		}
		l.wg.Add(1)
		go l.handleConnection(conn)
	}
}

// Stop closes the listener and waits for in-flight connections.
func (l *Listener) Stop() {
	close(l.shutdown)
	if l.listener != nil {
		l.listener.Close()
	}
	l.wg.Wait()
}

func (l *Listener) handleConnection(conn net.Conn) {
	defer l.wg.Done()
	defer conn.Close()

	id, err := audiosocket.GetID(conn)
	if err != nil {
		log.Warn().Err(err).Msg("dial-in connection without session id")
		return
	}
	sessionID := id.String()

	if err := l.sink.AddParticipant(sessionID, participantName); err != nil {
		log.Warn().Str("session", sessionID).Err(err).Msg("dial-in for unknown session")
		conn.Write(audiosocket.HangupMessage())
		return
	}

	metrics.DialinConnections.Inc()
	log.Info().Str("session", sessionID).Str("remote", conn.RemoteAddr().String()).Msg("dial-in caller joined")

	if len(l.announcement) > 0 {
		// 320-byte slin chunks: 8000Hz x 20ms x 2 bytes. Other sizes make
		// playback run at the wrong speed.
		if err := audiosocket.SendSlinChunks(conn, audiosocket.DefaultSlinChunkSize, l.announcement); err != nil {
			log.Warn().Str("session", sessionID).Err(err).Msg("failed to play announcement")
		}
	}

	for {
		msg, err := audiosocket.NextMessage(conn)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				log.Warn().Str("session", sessionID).Err(err).Msg("dial-in read error")
			}
			break
		}

		switch msg.Kind() {
		case audiosocket.KindSlin:
			if payload := msg.Payload(); len(payload) > 0 {
				if err := l.sink.IngestAudio(sessionID, payload); err != nil {
					// Session ended while the caller was still connected.
					conn.Write(audiosocket.HangupMessage())
					return
				}
			}
		case audiosocket.KindHangup:
			log.Info().Str("session", sessionID).Msg("dial-in caller hung up")
			return
		case audiosocket.KindError:
			log.Warn().Str("session", sessionID).Interface("code", msg.ErrorCode()).Msg("dial-in error message")
			return
		}
	}
}

// loadWAV reads a WAV file and returns the raw PCM data.
func loadWAV(path string) ([]byte, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	header := make([]byte, 44)
	if _, err := io.ReadFull(file, header); err != nil {
		return nil, fmt.Errorf("failed to read WAV header: %w", err)
	}
	if string(header[0:4]) != "RIFF" || string(header[8:12]) != "WAVE" {
		return nil, fmt.Errorf("not a valid WAV file")
	}

	// Locate the data chunk; canonical files have it at offset 36.
	dataStart := 44
	for i := 12; i < len(header)-4; i++ {
		if string(header[i:i+4]) == "data" {
			dataStart = i + 8
			break
		}
	}
	if _, err := file.Seek(int64(dataStart), io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to seek to data chunk: %w", err)
	}
	return io.ReadAll(file)
}
