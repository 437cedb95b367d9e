package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/G1r1dhar/MeetBuddy-AI/internal/media"
)

// handshakeTimeout bounds how long a connected browser may take to report
// the outcome of its device permission prompts.
const handshakeTimeout = 30 * time.Second

// mediaHandshake is the first message on a media websocket: either the
// granted track list or the reason acquisition failed in the browser.
type mediaHandshake struct {
	Type   string   `json:"type"` // "tracks" or "error"
	Tracks []string `json:"tracks,omitempty"`
	Reason string   `json:"reason,omitempty"` // "permission-denied" or "no-device"
}

var trackKinds = map[string]media.TrackKind{
	"screen-video": media.TrackScreenVideo,
	"screen-audio": media.TrackScreenAudio,
	"mic-audio":    media.TrackMicAudio,
}

// Bridge implements media.Acquirer over a browser websocket. The capture
// start call blocks in Acquire under a client-chosen pairing key until the
// browser connects its media socket under the same key, answers its
// permission prompts and sends the handshake; media frames then flow over
// the same connection as binary messages, one byte of track kind followed
// by the payload.
type Bridge struct {
	upgrader websocket.Upgrader

	mu      sync.Mutex
	pending map[string]chan acquireResult
}

type acquireResult struct {
	stream *media.Stream
	err    error
}

func NewBridge() *Bridge {
	return &Bridge{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 4 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		pending: make(map[string]chan acquireResult),
	}
}

// Acquire waits for the browser's media connection under key. When the
// context ends first, a stream that arrives late is released on the spot so
// a canceled acquisition leaks nothing.
func (b *Bridge) Acquire(ctx context.Context, key string) (*media.Stream, error) {
	// Unbuffered: a result nobody is waiting for must not park in a buffer,
	// it must fall through to deliver's release path.
	ch := make(chan acquireResult)

	b.mu.Lock()
	if _, exists := b.pending[key]; exists {
		b.mu.Unlock()
		return nil, fmt.Errorf("acquisition already pending for key %s", key)
	}
	b.pending[key] = ch
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		delete(b.pending, key)
		b.mu.Unlock()
	}()

	select {
	case r := <-ch:
		return r.stream, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ServeMedia handles the browser's media websocket for one pending
// acquisition.
func (b *Bridge) ServeMedia(w http.ResponseWriter, r *http.Request, key string) {
	b.mu.Lock()
	ch, ok := b.pending[key]
	b.mu.Unlock()
	if !ok {
		http.Error(w, "no pending acquisition for key", http.StatusNotFound)
		return
	}

	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Str("key", key).Err(err).Msg("media websocket upgrade failed")
		return
	}

	conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	var hs mediaHandshake
	if err := conn.ReadJSON(&hs); err != nil {
		conn.Close()
		deliver(ch, acquireResult{err: fmt.Errorf("media handshake failed: %w", err)})
		return
	}

	if hs.Type == "error" {
		conn.Close()
		switch hs.Reason {
		case "no-device":
			deliver(ch, acquireResult{err: media.ErrNoDevice})
		default:
			deliver(ch, acquireResult{err: media.ErrPermissionDenied})
		}
		return
	}

	kinds := make([]media.TrackKind, 0, len(hs.Tracks))
	for _, name := range hs.Tracks {
		if kind, ok := trackKinds[name]; ok {
			kinds = append(kinds, kind)
		}
	}
	if len(kinds) == 0 {
		conn.Close()
		deliver(ch, acquireResult{err: media.ErrNoDevice})
		return
	}

	frames := make(chan media.Frame, 64)
	stream := media.NewStream(key, kinds, frames, func() {
		// Closing the socket unblocks the read loop below, which owns the
		// frame channel and closes it.
		conn.Close()
	})
	deliver(ch, acquireResult{stream: stream})

	conn.SetReadDeadline(time.Time{})
	log.Info().Str("key", key).Strs("tracks", hs.Tracks).Msg("media stream attached")

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			close(frames)
			conn.Close()
			return
		}
		if msgType != websocket.BinaryMessage || len(data) < 2 {
			continue
		}
		frames <- media.Frame{Track: media.TrackKind(data[0]), Data: data[1:]}
	}
}

// deliver hands the result to the waiting Acquire, if it is still waiting.
func deliver(ch chan acquireResult, r acquireResult) {
	select {
	case ch <- r:
	default:
		// Acquire gave up; release anything we produced.
		if r.stream != nil {
			r.stream.Release()
		}
	}
}
