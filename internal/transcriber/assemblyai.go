package transcriber

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const assemblyAIWebSocketURL = "wss://streaming.assemblyai.com/v3/ws"

// AssemblyAI accepts audio chunks between 50ms and 1000ms. At 16kHz 16-bit
// mono that is 1600 to 32000 bytes; stay at 950ms to keep a margin.
const (
	assemblyAIMinChunk = 1600
	assemblyAIMaxChunk = 30400
)

// AssemblyAIRecognizer streams audio to the AssemblyAI realtime API. Audio
// is paced onto the wire from an internal buffer every 50ms, since the API
// rejects chunks outside its duration window.
type AssemblyAIRecognizer struct {
	conn    *websocket.Conn
	results chan Result

	sampleRate int

	bufferMu    sync.Mutex
	audioBuffer []byte

	stopSending chan struct{}
	wg          sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

type assemblyAIMessage struct {
	Type               string  `json:"type"`
	ID                 string  `json:"id,omitempty"`
	Transcript         string  `json:"transcript,omitempty"`
	TurnIsFormatted    bool    `json:"turn_is_formatted,omitempty"`
	Confidence         float64 `json:"end_of_turn_confidence,omitempty"`
	AudioDurationSec   float64 `json:"audio_duration_seconds,omitempty"`
	SessionDurationSec float64 `json:"session_duration_seconds,omitempty"`
}

// NewAssemblyAIRecognizer connects to the AssemblyAI realtime websocket.
// A 401/403 handshake is reported as ErrUnavailable. sampleRate is the rate
// of the audio handed to ProcessAudio; 8kHz input is upsampled, since the
// API wants 16kHz.
func NewAssemblyAIRecognizer(apiKey string, sampleRate int) (*AssemblyAIRecognizer, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: AssemblyAI API key not set", ErrUnavailable)
	}

	url := fmt.Sprintf("%s?sample_rate=%d&format_turns=true", assemblyAIWebSocketURL, 16000)
	header := http.Header{}
	header.Add("Authorization", apiKey)

	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, fmt.Errorf("%w: assemblyai handshake rejected with %d", ErrUnavailable, resp.StatusCode)
		}
		return nil, fmt.Errorf("failed to connect to AssemblyAI: %w", err)
	}

	ar := &AssemblyAIRecognizer{
		conn:        conn,
		results:     make(chan Result, 100),
		sampleRate:  sampleRate,
		audioBuffer: make([]byte, 0, 2*assemblyAIMinChunk),
		stopSending: make(chan struct{}),
	}

	go ar.handleResults()

	ar.wg.Add(1)
	go ar.audioSender()

	return ar, nil
}

func (ar *AssemblyAIRecognizer) ProcessAudio(audioData []byte) error {
	processed := audioData
	if ar.sampleRate == 8000 {
		processed = resample8to16(audioData)
	}

	ar.bufferMu.Lock()
	ar.audioBuffer = append(ar.audioBuffer, processed...)
	ar.bufferMu.Unlock()
	return nil
}

// audioSender drains the buffer onto the wire every 50ms.
func (ar *AssemblyAIRecognizer) audioSender() {
	defer ar.wg.Done()

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ar.sendBufferedAudio()
		case <-ar.stopSending:
			ar.sendBufferedAudio()
			return
		}
	}
}

func (ar *AssemblyAIRecognizer) sendBufferedAudio() {
	ar.bufferMu.Lock()
	defer ar.bufferMu.Unlock()

	for len(ar.audioBuffer) >= assemblyAIMinChunk {
		chunkSize := len(ar.audioBuffer)
		if chunkSize > assemblyAIMaxChunk {
			chunkSize = assemblyAIMaxChunk
		}
		if err := ar.conn.WriteMessage(websocket.BinaryMessage, ar.audioBuffer[:chunkSize]); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn().Err(err).Msg("failed to send audio to assemblyai")
			}
			ar.audioBuffer = ar.audioBuffer[:0]
			return
		}
		ar.audioBuffer = ar.audioBuffer[chunkSize:]
	}
}

// resample8to16 upsamples 16-bit PCM by 2x with linear interpolation.
func resample8to16(input []byte) []byte {
	samples := make([]int16, len(input)/2)
	for i := 0; i < len(samples); i++ {
		samples[i] = int16(binary.LittleEndian.Uint16(input[i*2 : i*2+2]))
	}

	upsampled := make([]int16, len(samples)*2)
	for i := 0; i < len(samples)-1; i++ {
		upsampled[i*2] = samples[i]
		upsampled[i*2+1] = (samples[i] + samples[i+1]) / 2
	}
	if len(samples) > 0 {
		upsampled[len(upsampled)-2] = samples[len(samples)-1]
		upsampled[len(upsampled)-1] = samples[len(samples)-1]
	}

	output := make([]byte, len(upsampled)*2)
	for i, sample := range upsampled {
		binary.LittleEndian.PutUint16(output[i*2:i*2+2], uint16(sample))
	}
	return output
}

func (ar *AssemblyAIRecognizer) handleResults() {
	for {
		_, message, err := ar.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Msg("assemblyai websocket closed")
			}
			close(ar.results)
			return
		}

		var msg assemblyAIMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			log.Warn().Err(err).Msg("failed to parse assemblyai message")
			continue
		}

		switch msg.Type {
		case "Begin":
			log.Debug().Str("assemblyai_session", msg.ID).Msg("assemblyai session started")
		case "Turn":
			if msg.Transcript == "" {
				continue
			}
			ar.results <- Result{
				Text:       msg.Transcript,
				IsFinal:    msg.TurnIsFormatted,
				Confidence: msg.Confidence,
			}
		case "Termination":
			log.Debug().
				Float64("audio_sec", msg.AudioDurationSec).
				Float64("session_sec", msg.SessionDurationSec).
				Msg("assemblyai session terminated")
		}
	}
}

func (ar *AssemblyAIRecognizer) Results() <-chan Result {
	return ar.results
}

func (ar *AssemblyAIRecognizer) Close() error {
	ar.mu.Lock()
	if ar.closed {
		ar.mu.Unlock()
		return nil
	}
	ar.closed = true
	ar.mu.Unlock()

	close(ar.stopSending)
	ar.wg.Wait()

	// Flush whatever is left, even below the minimum chunk size.
	ar.bufferMu.Lock()
	if len(ar.audioBuffer) > 0 {
		_ = ar.conn.WriteMessage(websocket.BinaryMessage, ar.audioBuffer)
		ar.audioBuffer = ar.audioBuffer[:0]
	}
	ar.bufferMu.Unlock()

	if msg, err := json.Marshal(assemblyAIMessage{Type: "Terminate"}); err == nil {
		ar.conn.WriteMessage(websocket.TextMessage, msg)
	}
	return ar.conn.Close()
}
