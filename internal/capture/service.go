package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/G1r1dhar/MeetBuddy-AI/internal/media"
	"github.com/G1r1dhar/MeetBuddy-AI/internal/metrics"
	"github.com/G1r1dhar/MeetBuddy-AI/internal/recorder"
	"github.com/G1r1dhar/MeetBuddy-AI/internal/transcriber"
)

// CompletedCapture is the archival record of one finished session.
type CompletedCapture struct {
	SessionID    string
	Platform     string
	MeetingURL   string
	StartTime    time.Time
	EndTime      time.Time
	Participants []string
	Entries      []TranscriptEntry
	Recording    []byte
}

// Archiver persists finished captures. Archival is best-effort: a failing
// archiver never fails the stop path.
type Archiver interface {
	ArchiveCapture(ctx context.Context, c *CompletedCapture) error
}

// Config holds the tunables of the capture service.
type Config struct {
	// ChunkInterval is the recording chunk cadence (default 1s).
	ChunkInterval time.Duration
	// RestartBackoff is the recognizer auto-restart delay (default 100ms).
	RestartBackoff time.Duration
	// AcquireTimeout bounds the wait on device permission prompts. Expiry
	// counts as a declined permission. Zero means no bound.
	AcquireTimeout time.Duration
}

// Service owns the capture-session registry and drives every session's
// resource lifecycle. Construct one per process and inject it into callers;
// there is no package-level instance.
type Service struct {
	cfg        Config
	acquirer   media.Acquirer
	recFactory transcriber.Factory
	registry   *Registry
	events     *Broadcaster
	archiver   Archiver

	mu     sync.Mutex
	active map[string]*activeCapture
}

// activeCapture bundles the live resources behind one Active session.
type activeCapture struct {
	session     *Session
	stream      *media.Stream
	engine      *transcriber.Engine
	sink        *recorder.Sink
	cancelJoins func()
	pumpDone    chan struct{}
}

// NewService builds the capture service. archiver may be nil.
func NewService(cfg Config, acquirer media.Acquirer, recFactory transcriber.Factory, archiver Archiver) *Service {
	return &Service{
		cfg:        cfg,
		acquirer:   acquirer,
		recFactory: recFactory,
		registry:   NewRegistry(),
		events:     NewBroadcaster(),
		archiver:   archiver,
		active:     make(map[string]*activeCapture),
	}
}

// Events returns the session event broadcaster.
func (s *Service) Events() *Broadcaster { return s.events }

// PlatformIntegrations returns the static platform descriptors.
func (s *Service) PlatformIntegrations() []PlatformIntegration {
	out := make([]PlatformIntegration, 0, len(platformTable))
	for _, p := range platformTable {
		out = append(out, p.PlatformIntegration)
	}
	return out
}

// StartCapture acquires media for a new session, attaches transcription and
// recording, and registers the session as Active. On any failure every
// partially acquired resource is released and the session never becomes
// visible. Each session acquires its own device handles, so concurrent
// sessions do not fight over shared hardware.
//
// mediaKey is the pairing key handed to the acquirer. The session id is not
// known to the media source while StartCapture is still blocked here, so
// callers pass a key of their own choosing; empty selects the session id.
func (s *Service) StartCapture(ctx context.Context, platform, meetingURL, mediaKey string) (string, error) {
	spec := platformByID(platform)
	sess := newSession(platform, meetingURL)
	if mediaKey == "" {
		mediaKey = sess.ID()
	}

	actx := ctx
	if s.cfg.AcquireTimeout > 0 {
		var cancel context.CancelFunc
		actx, cancel = context.WithTimeout(ctx, s.cfg.AcquireTimeout)
		defer cancel()
	}

	stream, err := s.acquirer.Acquire(actx, mediaKey)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w: permission prompt timed out", media.ErrPermissionDenied)
		}
		metrics.CaptureFailures.WithLabelValues(failureReason(err)).Inc()
		return "", fmt.Errorf("failed to acquire media for %s: %w", platform, err)
	}

	engine := transcriber.NewEngine(s.recFactory, s.cfg.RestartBackoff)
	transcribing := true
	if err := engine.Start(s.resultHandler(sess)); err != nil {
		if errors.Is(err, transcriber.ErrUnavailable) {
			// Terminal for transcription only: capture proceeds without it.
			log.Warn().Str("session", sess.ID()).Err(err).Msg("continuing without transcription")
			transcribing = false
			engine = nil
		} else {
			stream.Release()
			metrics.CaptureFailures.WithLabelValues("transcriber").Inc()
			return "", fmt.Errorf("failed to start transcription: %w", err)
		}
	}

	sink := recorder.NewSink(s.cfg.ChunkInterval, func(chunk []byte) error {
		if err := sess.appendChunk(chunk); err != nil {
			return err
		}
		metrics.RecordingBytes.Add(float64(len(chunk)))
		return nil
	})
	sink.Start()

	sess.activate(transcribing)
	s.registry.Create(sess)

	ac := &activeCapture{
		session:  sess,
		stream:   stream,
		engine:   engine,
		sink:     sink,
		pumpDone: make(chan struct{}),
	}
	ac.cancelJoins = spec.beginJoins(func(name string) {
		if sess.addParticipant(name) {
			s.events.publishParticipant(sess.ID(), name)
		}
	})

	s.mu.Lock()
	s.active[sess.ID()] = ac
	s.mu.Unlock()

	go s.pump(ac)

	metrics.SessionsStarted.Inc()
	log.Info().
		Str("session", sess.ID()).
		Str("platform", spec.ID).
		Str("url", meetingURL).
		Bool("transcribing", transcribing).
		Msg("capture started")
	return sess.ID(), nil
}

// pump dispatches stream frames: every byte feeds the recording sink, audio
// frames additionally feed the recognizer. It exits when the stream is
// released and its frame channel closes.
func (s *Service) pump(ac *activeCapture) {
	defer close(ac.pumpDone)
	for frame := range ac.stream.Frames() {
		ac.sink.Write(frame.Data)
		if frame.Track.IsAudio() && ac.engine != nil {
			ac.engine.ProcessAudio(frame.Data)
		}
	}
}

// resultHandler persists final segments as transcript entries and surfaces
// both final and interim text through the broadcaster.
func (s *Service) resultHandler(sess *Session) transcriber.ResultFunc {
	return func(r transcriber.Result) {
		if r.Text == "" {
			return
		}
		if !r.IsFinal {
			s.events.publishTranscript(sess.ID(), TranscriptUpdate{Interim: r.Text})
			return
		}
		entry := newTranscriptEntry(r.Text, r.Confidence)
		if !sess.appendEntry(entry) {
			return
		}
		metrics.TranscriptEntries.Inc()
		s.events.publishTranscript(sess.ID(), TranscriptUpdate{Final: r.Text})
	}
}

// StopCapture tears a session down: stop transcription and recording,
// release the media stream, consolidate the buffered chunks into one
// recording blob and hand it off. Stopping an already stopped session is a
// no-op; stopping an id that never existed returns ErrSessionNotFound.
func (s *Service) StopCapture(ctx context.Context, id string) error {
	sess, ok := s.registry.Claim(id)
	if !ok {
		if s.registry.WasClosed(id) {
			return nil
		}
		return ErrSessionNotFound
	}

	s.mu.Lock()
	ac := s.active[id]
	delete(s.active, id)
	s.mu.Unlock()

	sess.setState(StateStopping)

	if ac != nil {
		ac.cancelJoins()
		if ac.engine != nil {
			ac.engine.Stop()
		}
		ac.stream.Release()
		<-ac.pumpDone
		ac.sink.Stop()
	}

	blob := recorder.Finalize(sess.takeChunks())
	entries := sess.TranscriptEntries()
	s.events.publishRecording(id, RecordingComplete{Recording: blob, Entries: entries})

	if s.archiver != nil {
		completed := &CompletedCapture{
			SessionID:    id,
			Platform:     sess.Platform(),
			MeetingURL:   sess.MeetingURL(),
			StartTime:    sess.StartTime(),
			EndTime:      time.Now(),
			Participants: sess.Participants(),
			Entries:      entries,
			Recording:    blob,
		}
		if err := s.archiver.ArchiveCapture(ctx, completed); err != nil {
			log.Warn().Str("session", id).Err(err).Msg("failed to archive capture")
		}
	}

	sess.setState(StateClosed)
	s.registry.Remove(id)
	s.events.dropSession(id)

	metrics.SessionsStopped.Inc()
	log.Info().
		Str("session", id).
		Dur("duration", time.Since(sess.StartTime())).
		Int("entries", len(entries)).
		Int("recording_bytes", len(blob)).
		Msg("capture stopped")
	return nil
}

// StopAll stops every live session, for shutdown.
func (s *Service) StopAll(ctx context.Context) {
	s.mu.Lock()
	ids := make([]string, 0, len(s.active))
	for id := range s.active {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	for _, id := range ids {
		if err := s.StopCapture(ctx, id); err != nil && !errors.Is(err, ErrSessionNotFound) {
			log.Warn().Str("session", id).Err(err).Msg("failed to stop session during shutdown")
		}
	}
}

// GetActiveSession looks a session up by id.
func (s *Service) GetActiveSession(id string) (*Session, bool) {
	return s.registry.Get(id)
}

// GetAllActiveSessions lists the sessions currently Active.
func (s *Service) GetAllActiveSessions() []*Session {
	return s.registry.ListActive()
}

// AddParticipant appends a participant to an Active session and notifies
// subscribers. Used by live ingress paths such as dial-in.
func (s *Service) AddParticipant(id, name string) error {
	sess, ok := s.registry.Get(id)
	if !ok {
		return ErrSessionNotFound
	}
	if sess.addParticipant(name) {
		s.events.publishParticipant(id, name)
	}
	return nil
}

// IngestAudio feeds externally sourced audio (dial-in callers) into a live
// session's recognizer and recording.
func (s *Service) IngestAudio(id string, pcm []byte) error {
	s.mu.Lock()
	ac, ok := s.active[id]
	s.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}
	ac.sink.Write(pcm)
	if ac.engine != nil {
		ac.engine.ProcessAudio(pcm)
	}
	return nil
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, media.ErrPermissionDenied):
		return "permission"
	case errors.Is(err, media.ErrNoDevice):
		return "no_device"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "other"
	}
}
