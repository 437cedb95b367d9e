package transcriber

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// VoskRecognizer streams audio to a Vosk server over a websocket and turns
// its partial/final messages into Results.
type VoskRecognizer struct {
	conn       *websocket.Conn
	results    chan Result
	mu         sync.Mutex
	sampleRate int
	closed     bool
}

type voskMessage struct {
	Text   string `json:"text"`
	Result []struct {
		Word  string  `json:"word"`
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Conf  float64 `json:"conf"`
	} `json:"result"`
	Partial string `json:"partial"`
}

// NewVoskRecognizer connects to a Vosk server WebSocket. An HTTP 401/403
// during the handshake is reported as ErrUnavailable: bad credentials do
// not get better on retry.
func NewVoskRecognizer(serverURL string, sampleRate int) (*VoskRecognizer, error) {
	url := fmt.Sprintf("%s/ws?sample_rate=%d", serverURL, sampleRate)
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, fmt.Errorf("%w: vosk handshake rejected with %d", ErrUnavailable, resp.StatusCode)
		}
		return nil, fmt.Errorf("failed to connect to Vosk server: %w", err)
	}

	vr := &VoskRecognizer{
		conn:       conn,
		results:    make(chan Result, 100),
		sampleRate: sampleRate,
	}

	go vr.handleResults()

	return vr, nil
}

func (vr *VoskRecognizer) ProcessAudio(audioData []byte) error {
	vr.mu.Lock()
	defer vr.mu.Unlock()

	if vr.closed {
		return nil
	}
	if err := vr.conn.WriteMessage(websocket.BinaryMessage, audioData); err != nil {
		return fmt.Errorf("failed to send audio to Vosk: %w", err)
	}
	return nil
}

func (vr *VoskRecognizer) handleResults() {
	for {
		_, message, err := vr.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Msg("vosk websocket closed")
			}
			close(vr.results)
			return
		}

		var msg voskMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			log.Warn().Err(err).Msg("failed to parse vosk result")
			continue
		}

		if msg.Partial != "" {
			vr.results <- Result{Text: msg.Partial, IsFinal: false}
		}

		if msg.Text != "" {
			vr.results <- Result{
				Text:       msg.Text,
				IsFinal:    true,
				Confidence: wordConfidence(msg),
			}
		}
	}
}

// wordConfidence averages per-word confidences when the server sends them.
func wordConfidence(msg voskMessage) float64 {
	if len(msg.Result) == 0 {
		return 0
	}
	var sum float64
	for _, w := range msg.Result {
		sum += w.Conf
	}
	return sum / float64(len(msg.Result))
}

func (vr *VoskRecognizer) Results() <-chan Result {
	return vr.results
}

func (vr *VoskRecognizer) Close() error {
	vr.mu.Lock()
	defer vr.mu.Unlock()

	if vr.closed {
		return nil
	}
	vr.closed = true

	// EOF asks Vosk to flush any pending final result before we close.
	if err := vr.conn.WriteMessage(websocket.TextMessage, []byte(`{"eof": 1}`)); err != nil {
		log.Debug().Err(err).Msg("failed to send EOF to vosk")
	}
	return vr.conn.Close()
}
