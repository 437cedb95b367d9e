package capture

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/G1r1dhar/MeetBuddy-AI/internal/media"
	"github.com/G1r1dhar/MeetBuddy-AI/internal/transcriber"
)

// fakeAcquirer hands out in-memory streams and records releases.
type fakeAcquirer struct {
	mu       sync.Mutex
	err      error
	block    bool
	frames   map[string]chan media.Frame
	released map[string]bool
}

func newFakeAcquirer() *fakeAcquirer {
	return &fakeAcquirer{
		frames:   make(map[string]chan media.Frame),
		released: make(map[string]bool),
	}
}

func (a *fakeAcquirer) Acquire(ctx context.Context, sessionID string) (*media.Stream, error) {
	if a.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return nil, a.err
	}
	frames := make(chan media.Frame, 64)
	a.frames[sessionID] = frames
	tracks := []media.TrackKind{media.TrackScreenVideo, media.TrackScreenAudio, media.TrackMicAudio}
	return media.NewStream(sessionID, tracks, frames, func() {
		a.mu.Lock()
		defer a.mu.Unlock()
		if !a.released[sessionID] {
			a.released[sessionID] = true
			close(frames)
		}
	}), nil
}

func (a *fakeAcquirer) push(sessionID string, f media.Frame) {
	a.mu.Lock()
	ch := a.frames[sessionID]
	a.mu.Unlock()
	ch <- f
}

func (a *fakeAcquirer) wasReleased(sessionID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.released[sessionID]
}

// stubRecognizer lets tests emit recognition results by hand.
type stubRecognizer struct {
	mu      sync.Mutex
	results chan transcriber.Result
	closed  bool
}

func (r *stubRecognizer) ProcessAudio([]byte) error { return nil }

func (r *stubRecognizer) Results() <-chan transcriber.Result { return r.results }

func (r *stubRecognizer) emit(res transcriber.Result) { r.results <- res }

func (r *stubRecognizer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.closed {
		r.closed = true
		close(r.results)
	}
	return nil
}

// recognizerStub returns a factory plus access to the most recent recognizer.
func recognizerStub() (transcriber.Factory, func() *stubRecognizer) {
	var mu sync.Mutex
	var last *stubRecognizer
	factory := func() (transcriber.Recognizer, error) {
		r := &stubRecognizer{results: make(chan transcriber.Result, 16)}
		mu.Lock()
		last = r
		mu.Unlock()
		return r, nil
	}
	return factory, func() *stubRecognizer {
		mu.Lock()
		defer mu.Unlock()
		return last
	}
}

func newTestService(t *testing.T, acq *fakeAcquirer, factory transcriber.Factory) *Service {
	t.Helper()
	return NewService(Config{
		ChunkInterval:  10 * time.Millisecond,
		RestartBackoff: time.Millisecond,
	}, acq, factory, nil)
}

func TestStartCaptureActivatesSession(t *testing.T) {
	acq := newFakeAcquirer()
	factory, _ := recognizerStub()
	svc := newTestService(t, acq, factory)

	id, err := svc.StartCapture(context.Background(), "zoom", "https://zoom.us/j/123", "")
	require.NoError(t, err)
	defer svc.StopCapture(context.Background(), id)

	sess, ok := svc.GetActiveSession(id)
	require.True(t, ok)

	snap := sess.Snapshot()
	assert.Equal(t, "zoom", snap.Platform)
	assert.Equal(t, "https://zoom.us/j/123", snap.MeetingURL)
	assert.Equal(t, StateActive, snap.State)
	assert.True(t, snap.IsRecording)
	assert.True(t, snap.IsTranscribing)
	assert.Empty(t, snap.Participants)
	assert.Empty(t, snap.TranscriptEntries)
	assert.False(t, snap.StartTime.IsZero())
}

func TestFinalResultsBecomeTranscriptEntries(t *testing.T) {
	acq := newFakeAcquirer()
	factory, lastRec := recognizerStub()
	svc := newTestService(t, acq, factory)

	id, err := svc.StartCapture(context.Background(), "google-meet", "https://meet.google.com/abc", "")
	require.NoError(t, err)
	defer svc.StopCapture(context.Background(), id)

	lastRec().emit(transcriber.Result{Text: "hello", IsFinal: true, Confidence: 0.95})
	lastRec().emit(transcriber.Result{Text: "world", IsFinal: true, Confidence: 0.80})

	sess, _ := svc.GetActiveSession(id)
	require.Eventually(t, func() bool {
		return len(sess.TranscriptEntries()) == 2
	}, time.Second, time.Millisecond)

	entries := sess.TranscriptEntries()
	assert.Equal(t, "hello", entries[0].Text)
	assert.InDelta(t, 0.95, entries[0].Confidence, 1e-9)
	assert.Equal(t, "world", entries[1].Text)
	assert.InDelta(t, 0.80, entries[1].Confidence, 1e-9)
	for _, e := range entries {
		assert.NotEmpty(t, e.ID)
		assert.Equal(t, "Current Speaker", e.Speaker)
		assert.True(t, e.IsFinal)
		assert.False(t, e.Timestamp.IsZero())
	}
	assert.NotEqual(t, entries[0].ID, entries[1].ID)
}

func TestInterimResultsAreNotPersisted(t *testing.T) {
	acq := newFakeAcquirer()
	factory, lastRec := recognizerStub()
	svc := newTestService(t, acq, factory)

	id, err := svc.StartCapture(context.Background(), "zoom", "https://zoom.us/j/1", "")
	require.NoError(t, err)
	defer svc.StopCapture(context.Background(), id)

	var mu sync.Mutex
	var interims []string
	svc.Events().SubscribeTranscript(id, func(u TranscriptUpdate) {
		mu.Lock()
		defer mu.Unlock()
		if u.Interim != "" {
			interims = append(interims, u.Interim)
		}
	})

	lastRec().emit(transcriber.Result{Text: "hel", IsFinal: false})
	lastRec().emit(transcriber.Result{Text: "hello", IsFinal: true, Confidence: 0.9})

	sess, _ := svc.GetActiveSession(id)
	require.Eventually(t, func() bool {
		return len(sess.TranscriptEntries()) == 1
	}, time.Second, time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"hel"}, interims)
}

func TestZeroConfidenceDefaults(t *testing.T) {
	acq := newFakeAcquirer()
	factory, lastRec := recognizerStub()
	svc := newTestService(t, acq, factory)

	id, err := svc.StartCapture(context.Background(), "zoom", "https://zoom.us/j/1", "")
	require.NoError(t, err)
	defer svc.StopCapture(context.Background(), id)

	lastRec().emit(transcriber.Result{Text: "unsure", IsFinal: true})

	sess, _ := svc.GetActiveSession(id)
	require.Eventually(t, func() bool {
		return len(sess.TranscriptEntries()) == 1
	}, time.Second, time.Millisecond)
	assert.InDelta(t, 0.9, sess.TranscriptEntries()[0].Confidence, 1e-9)
}

func TestStopCaptureDeliversRecording(t *testing.T) {
	acq := newFakeAcquirer()
	factory, lastRec := recognizerStub()
	svc := newTestService(t, acq, factory)

	id, err := svc.StartCapture(context.Background(), "zoom", "https://zoom.us/j/1", "")
	require.NoError(t, err)

	lastRec().emit(transcriber.Result{Text: "hello", IsFinal: true, Confidence: 0.9})
	acq.push(id, media.Frame{Track: media.TrackScreenVideo, Data: make([]byte, 10)})
	acq.push(id, media.Frame{Track: media.TrackScreenAudio, Data: make([]byte, 20)})
	acq.push(id, media.Frame{Track: media.TrackMicAudio, Data: make([]byte, 15)})

	sess, _ := svc.GetActiveSession(id)
	require.Eventually(t, func() bool {
		return len(sess.TranscriptEntries()) == 1
	}, time.Second, time.Millisecond)
	// Let at least one chunk cut happen before stopping.
	time.Sleep(30 * time.Millisecond)

	var mu sync.Mutex
	var got *RecordingComplete
	svc.Events().SubscribeRecording(id, func(rc RecordingComplete) {
		mu.Lock()
		defer mu.Unlock()
		got = &rc
	})

	require.NoError(t, svc.StopCapture(context.Background(), id))

	mu.Lock()
	defer mu.Unlock()
	require.NotNil(t, got)
	assert.Len(t, got.Recording, 45)
	require.Len(t, got.Entries, 1)
	assert.Equal(t, "hello", got.Entries[0].Text)

	assert.True(t, acq.wasReleased(id))
	assert.Equal(t, StateClosed, sess.State())
	assert.False(t, sess.IsRecording())
	assert.False(t, sess.IsTranscribing())
	_, ok := svc.GetActiveSession(id)
	assert.False(t, ok)
}

func TestStopCaptureTwiceIsIdempotent(t *testing.T) {
	acq := newFakeAcquirer()
	factory, _ := recognizerStub()
	svc := newTestService(t, acq, factory)

	id, err := svc.StartCapture(context.Background(), "zoom", "https://zoom.us/j/1", "")
	require.NoError(t, err)

	require.NoError(t, svc.StopCapture(context.Background(), id))
	require.NoError(t, svc.StopCapture(context.Background(), id))
}

func TestStopCaptureUnknownID(t *testing.T) {
	acq := newFakeAcquirer()
	factory, _ := recognizerStub()
	svc := newTestService(t, acq, factory)

	err := svc.StopCapture(context.Background(), "no-such-session")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestStartCapturePermissionDenied(t *testing.T) {
	acq := newFakeAcquirer()
	acq.err = media.ErrPermissionDenied
	factory, _ := recognizerStub()
	svc := newTestService(t, acq, factory)

	_, err := svc.StartCapture(context.Background(), "zoom", "https://zoom.us/j/1", "")
	require.ErrorIs(t, err, media.ErrPermissionDenied)
	assert.Empty(t, svc.GetAllActiveSessions())
}

func TestStartCaptureNoDevice(t *testing.T) {
	acq := newFakeAcquirer()
	acq.err = media.ErrNoDevice
	factory, _ := recognizerStub()
	svc := newTestService(t, acq, factory)

	_, err := svc.StartCapture(context.Background(), "zoom", "https://zoom.us/j/1", "")
	assert.ErrorIs(t, err, media.ErrNoDevice)
}

func TestAcquireTimeoutCountsAsDeniedPermission(t *testing.T) {
	acq := newFakeAcquirer()
	acq.block = true
	factory, _ := recognizerStub()
	svc := NewService(Config{AcquireTimeout: 20 * time.Millisecond}, acq, factory, nil)

	_, err := svc.StartCapture(context.Background(), "zoom", "https://zoom.us/j/1", "")
	assert.ErrorIs(t, err, media.ErrPermissionDenied)
}

func TestStartCaptureCanceledMidAcquisition(t *testing.T) {
	acq := newFakeAcquirer()
	acq.block = true
	factory, _ := recognizerStub()
	svc := newTestService(t, acq, factory)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := svc.StartCapture(ctx, "zoom", "https://zoom.us/j/1", "")
		done <- err
	}()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("start did not return after cancellation")
	}
	assert.Empty(t, svc.GetAllActiveSessions())
}

func TestCaptureContinuesWhenTranscriptionUnavailable(t *testing.T) {
	acq := newFakeAcquirer()
	factory := func() (transcriber.Recognizer, error) {
		return nil, transcriber.ErrUnavailable
	}
	svc := newTestService(t, acq, factory)

	id, err := svc.StartCapture(context.Background(), "zoom", "https://zoom.us/j/1", "")
	require.NoError(t, err)
	defer svc.StopCapture(context.Background(), id)

	sess, ok := svc.GetActiveSession(id)
	require.True(t, ok)
	assert.True(t, sess.IsRecording())
	assert.False(t, sess.IsTranscribing())
}

func TestConcurrentSessionsAreIndependent(t *testing.T) {
	acq := newFakeAcquirer()
	factory, lastRec := recognizerStub()
	svc := newTestService(t, acq, factory)

	id1, err := svc.StartCapture(context.Background(), "zoom", "https://zoom.us/j/1", "")
	require.NoError(t, err)
	id2, err := svc.StartCapture(context.Background(), "google-meet", "https://meet.google.com/x", "")
	require.NoError(t, err)

	// The second start built the most recent recognizer.
	lastRec().emit(transcriber.Result{Text: "only here", IsFinal: true, Confidence: 0.9})

	sess2, _ := svc.GetActiveSession(id2)
	require.Eventually(t, func() bool {
		return len(sess2.TranscriptEntries()) == 1
	}, time.Second, time.Millisecond)

	sess1, _ := svc.GetActiveSession(id1)
	assert.Empty(t, sess1.TranscriptEntries())

	require.NoError(t, svc.StopCapture(context.Background(), id1))
	assert.Equal(t, StateActive, sess2.State())
	require.NoError(t, svc.StopCapture(context.Background(), id2))
}

func TestAddParticipant(t *testing.T) {
	acq := newFakeAcquirer()
	factory, _ := recognizerStub()
	svc := newTestService(t, acq, factory)

	id, err := svc.StartCapture(context.Background(), "zoom", "https://zoom.us/j/1", "")
	require.NoError(t, err)
	defer svc.StopCapture(context.Background(), id)

	var mu sync.Mutex
	var joined []string
	svc.Events().SubscribeParticipant(id, func(name string) {
		mu.Lock()
		defer mu.Unlock()
		joined = append(joined, name)
	})

	require.NoError(t, svc.AddParticipant(id, "Dial-in caller"))
	sess, _ := svc.GetActiveSession(id)
	assert.Equal(t, []string{"Dial-in caller"}, sess.Participants())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"Dial-in caller"}, joined)
}

func TestAddParticipantUnknownSession(t *testing.T) {
	acq := newFakeAcquirer()
	factory, _ := recognizerStub()
	svc := newTestService(t, acq, factory)

	assert.ErrorIs(t, svc.AddParticipant("missing", "Someone"), ErrSessionNotFound)
}

func TestIngestAudioFeedsRecording(t *testing.T) {
	acq := newFakeAcquirer()
	factory, _ := recognizerStub()
	svc := newTestService(t, acq, factory)

	id, err := svc.StartCapture(context.Background(), "zoom", "https://zoom.us/j/1", "")
	require.NoError(t, err)

	require.NoError(t, svc.IngestAudio(id, make([]byte, 320)))
	time.Sleep(30 * time.Millisecond)

	var mu sync.Mutex
	var got *RecordingComplete
	svc.Events().SubscribeRecording(id, func(rc RecordingComplete) {
		mu.Lock()
		defer mu.Unlock()
		got = &rc
	})
	require.NoError(t, svc.StopCapture(context.Background(), id))

	mu.Lock()
	defer mu.Unlock()
	require.NotNil(t, got)
	assert.Len(t, got.Recording, 320)

	assert.ErrorIs(t, svc.IngestAudio(id, []byte{1}), ErrSessionNotFound)
}

func TestStopAll(t *testing.T) {
	acq := newFakeAcquirer()
	factory, _ := recognizerStub()
	svc := newTestService(t, acq, factory)

	id1, err := svc.StartCapture(context.Background(), "zoom", "https://zoom.us/j/1", "")
	require.NoError(t, err)
	id2, err := svc.StartCapture(context.Background(), "discord", "https://discord.gg/x", "")
	require.NoError(t, err)

	svc.StopAll(context.Background())

	_, ok := svc.GetActiveSession(id1)
	assert.False(t, ok)
	_, ok = svc.GetActiveSession(id2)
	assert.False(t, ok)
	assert.True(t, acq.wasReleased(id1))
	assert.True(t, acq.wasReleased(id2))
}

func TestPlatformIntegrations(t *testing.T) {
	acq := newFakeAcquirer()
	factory, _ := recognizerStub()
	svc := newTestService(t, acq, factory)

	platforms := svc.PlatformIntegrations()
	require.Len(t, platforms, 6)

	byID := make(map[string]PlatformIntegration, len(platforms))
	for _, p := range platforms {
		byID[p.ID] = p
	}

	assert.Equal(t, "connected", byID["google-meet"].Status)
	assert.Equal(t, "ready", byID["zoom"].Status)
	assert.Equal(t, "Cisco Webex", byID["webex"].Name)
	assert.True(t, byID["discord"].Capabilities.ScreenCapture)
	assert.False(t, byID["skype"].Capabilities.ScreenCapture)
	assert.True(t, byID["skype"].Capabilities.Transcription)
}
