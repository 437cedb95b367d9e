package transcriber

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultRestartBackoff is the pause before reopening a recognizer that
// ended on its own. Streaming recognizers drop the stream after silence
// timeouts; restarting without a pause turns that into a tight crash loop.
const DefaultRestartBackoff = 100 * time.Millisecond

// EngineState is the engine lifecycle state.
type EngineState int

const (
	EngineRunning EngineState = iota
	EngineRestarting
	EngineStopped
)

func (s EngineState) String() string {
	switch s {
	case EngineRunning:
		return "running"
	case EngineRestarting:
		return "restarting"
	case EngineStopped:
		return "stopped"
	}
	return "unknown"
}

// ResultFunc receives every recognizer result, interim and final alike.
type ResultFunc func(Result)

// Engine keeps a streaming recognizer running continuously. When the
// recognizer ends on its own the engine opens a fresh one after a short
// backoff; Stop suppresses that permanently. The restart decision is made
// by re-checking state inside the timer callback, not by remembering
// whether Stop was called when the timer was armed.
type Engine struct {
	newRecognizer Factory
	backoff       time.Duration
	onResult      ResultFunc

	mu           sync.Mutex
	state        EngineState
	rec          Recognizer
	restartTimer *time.Timer
}

// NewEngine builds an engine around the recognizer factory. A zero backoff
// selects DefaultRestartBackoff.
func NewEngine(factory Factory, backoff time.Duration) *Engine {
	if backoff <= 0 {
		backoff = DefaultRestartBackoff
	}
	return &Engine{
		newRecognizer: factory,
		backoff:       backoff,
		state:         EngineStopped,
	}
}

// Start opens the first recognizer and begins delivering results to
// onResult. An ErrUnavailable from the factory is terminal: the caller
// should continue without transcription rather than retry.
func (e *Engine) Start(onResult ResultFunc) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != EngineStopped {
		return fmt.Errorf("engine already started (state %s)", e.state)
	}

	rec, err := e.newRecognizer()
	if err != nil {
		if errors.Is(err, ErrUnavailable) {
			return err
		}
		return fmt.Errorf("failed to open recognizer: %w", err)
	}

	e.onResult = onResult
	e.rec = rec
	e.state = EngineRunning
	go e.consume(rec)
	return nil
}

// Stop shuts the engine down and suppresses any pending or future restart.
// Safe to call more than once.
func (e *Engine) Stop() {
	e.mu.Lock()
	e.state = EngineStopped
	if e.restartTimer != nil {
		e.restartTimer.Stop()
		e.restartTimer = nil
	}
	rec := e.rec
	e.rec = nil
	e.mu.Unlock()

	if rec != nil {
		if err := rec.Close(); err != nil {
			log.Debug().Err(err).Msg("recognizer close")
		}
	}
}

// ProcessAudio forwards audio to the current recognizer. Audio arriving in
// a restart window is dropped; recognizer write errors are logged and
// swallowed so a mid-session fault never aborts the capture.
func (e *Engine) ProcessAudio(audioData []byte) {
	e.mu.Lock()
	rec := e.rec
	running := e.state == EngineRunning
	e.mu.Unlock()

	if !running || rec == nil {
		return
	}
	if err := rec.ProcessAudio(audioData); err != nil {
		log.Warn().Err(err).Msg("recognizer rejected audio")
	}
}

// State returns the current engine state.
func (e *Engine) State() EngineState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// consume drains one recognizer until its results channel closes, then
// decides whether that end was ordered (Stop) or spontaneous (restart).
func (e *Engine) consume(rec Recognizer) {
	for result := range rec.Results() {
		e.onResult(result)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != EngineRunning || e.rec != rec {
		// Ordered shutdown, or a stale recognizer from before a restart.
		return
	}

	log.Info().Dur("backoff", e.backoff).Msg("recognizer ended, scheduling restart")
	e.state = EngineRestarting
	e.rec = nil
	e.restartTimer = time.AfterFunc(e.backoff, e.restart)
}

func (e *Engine) restart() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != EngineRestarting {
		// Stop won the race while the timer was pending.
		return
	}

	rec, err := e.newRecognizer()
	if err != nil {
		if errors.Is(err, ErrUnavailable) {
			log.Warn().Err(err).Msg("transcription unavailable, giving up restarts")
			e.state = EngineStopped
			return
		}
		log.Warn().Err(err).Msg("recognizer restart failed, retrying")
		e.restartTimer = time.AfterFunc(e.backoff, e.restart)
		return
	}

	e.rec = rec
	e.state = EngineRunning
	go e.consume(rec)
}
