package media

import (
	"context"
	"errors"
	"sync"
)

// Acquisition failure classes. Callers need to tell a declined permission
// prompt apart from a machine with no capture-capable device, because only
// the former is actionable by the user.
var (
	ErrPermissionDenied = errors.New("media: capture permission denied")
	ErrNoDevice         = errors.New("media: no capture-capable device")
)

// TrackKind identifies one logical track inside a combined stream.
type TrackKind byte

const (
	TrackScreenVideo TrackKind = 1
	TrackScreenAudio TrackKind = 2
	TrackMicAudio    TrackKind = 3
)

func (k TrackKind) String() string {
	switch k {
	case TrackScreenVideo:
		return "screen-video"
	case TrackScreenAudio:
		return "screen-audio"
	case TrackMicAudio:
		return "mic-audio"
	}
	return "unknown"
}

// IsAudio reports whether frames of this kind carry audio samples that
// should be fed to the speech recognizer.
func (k TrackKind) IsAudio() bool {
	return k == TrackScreenAudio || k == TrackMicAudio
}

// Frame is one slice of captured media on a single track.
type Frame struct {
	Track TrackKind
	Data  []byte
}

// Acquirer hands out a combined capture stream. Acquire blocks until the
// underlying devices are granted, the context ends, or acquisition fails.
// key identifies the acquisition to the media source; it is chosen by the
// caller, which may still be holding the session id private. A context
// deadline expiring is reported as ErrPermissionDenied: a prompt nobody
// answered is indistinguishable from a declined one.
type Acquirer interface {
	Acquire(ctx context.Context, key string) (*Stream, error)
}

// Stream is the single combined stream for one session: screen video,
// screen audio and microphone audio multiplexed onto one frame channel.
// The producer closes the frame channel when the source goes away.
type Stream struct {
	sessionID string
	tracks    []TrackKind
	frames    chan Frame

	releaseOnce sync.Once
	release     func()
}

// NewStream builds a stream over the given frame channel. release is invoked
// exactly once, from the first Release call, and must tear down the producer.
func NewStream(sessionID string, tracks []TrackKind, frames chan Frame, release func()) *Stream {
	return &Stream{
		sessionID: sessionID,
		tracks:    tracks,
		frames:    frames,
		release:   release,
	}
}

func (s *Stream) SessionID() string { return s.sessionID }

// Tracks returns the track kinds the user actually granted.
func (s *Stream) Tracks() []TrackKind { return s.tracks }

// HasTrack reports whether the stream carries the given track.
func (s *Stream) HasTrack(kind TrackKind) bool {
	for _, t := range s.tracks {
		if t == kind {
			return true
		}
	}
	return false
}

// Frames is the fan-in of all tracks, in arrival order.
func (s *Stream) Frames() <-chan Frame { return s.frames }

// Release stops the producer and frees the underlying device handles. It is
// idempotent and never blocks on already-released resources.
func (s *Stream) Release() {
	s.releaseOnce.Do(func() {
		if s.release != nil {
			s.release()
		}
	})
}
