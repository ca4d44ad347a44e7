package elevenlabs

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/harunnryd/kuchi/pkg/adapters/tts"
	"github.com/harunnryd/kuchi/pkg/resilience"
)

type Config struct {
	APIKey       string
	VoiceID      string
	ModelID      string
	OutputFormat string
	SampleRate   int
	SessionID    string
	// OnAudio, when set, receives decoded audio chunks for external
	// playback. The pipeline itself never touches audio bytes.
	OnAudio func(pcm []byte)
}

// Synthesizer streams phrases to the ElevenLabs stream-input websocket.
// Each Speak call is flushed as its own generation so the isFinal marker
// maps one-to-one onto a phrase completion.
type Synthesizer struct {
	cfg     Config
	conn    *websocket.Conn
	done    chan tts.Completion
	writeCh chan synthMessage
	ctx     context.Context
	cancel  context.CancelFunc
	breaker *resilience.CircuitBreaker
	mu      sync.Mutex
	pending []string
}

type synthMessage struct {
	text  string
	flush bool
}

func New(cfg Config) *Synthesizer {
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 44100
	}
	return &Synthesizer{
		cfg:     cfg,
		done:    make(chan tts.Completion, 64),
		writeCh: make(chan synthMessage, 64),
		breaker: resilience.NewCircuitBreaker(3, 30*time.Second),
	}
}

func (s *Synthesizer) Name() string { return "elevenlabs_tts" }

func (s *Synthesizer) Start(ctx context.Context) error {
	if s.cfg.APIKey == "" || s.cfg.VoiceID == "" {
		return errors.New("missing elevenlabs config")
	}
	if !s.breaker.Allow() {
		return resilience.RateLimitError{Provider: "elevenlabs", Message: "circuit open"}
	}
	if ctx == nil {
		ctx = context.Background()
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	u := s.buildURL()

	slog.Debug("connecting to ElevenLabs",
		slog.String("session_id", s.cfg.SessionID),
		slog.String("output_format", s.cfg.OutputFormat))

	dialer := websocket.Dialer{Proxy: http.ProxyFromEnvironment}
	conn, resp, err := dialer.Dial(u, http.Header{
		"xi-api-key": []string{s.cfg.APIKey},
	})
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusTooManyRequests {
			slog.Error("ElevenLabs rate limit exceeded",
				slog.String("session_id", s.cfg.SessionID),
				slog.String("status", resp.Status))
			rlErr := resilience.RateLimitError{Provider: "elevenlabs", Message: resp.Status}
			s.breaker.OnError(rlErr)
			return rlErr
		}
		slog.Error("failed to connect to ElevenLabs",
			slog.String("session_id", s.cfg.SessionID),
			slog.String("error", err.Error()))
		return err
	}
	s.breaker.OnSuccess()

	s.conn = conn
	slog.Info("connected to ElevenLabs",
		slog.String("session_id", s.cfg.SessionID),
		slog.String("output_format", s.cfg.OutputFormat))

	_ = s.send(map[string]any{
		"text": " ",
		"voice_settings": map[string]any{
			"stability":        0.5,
			"similarity_boost": 0.8,
		},
		"generation_config": map[string]any{
			"chunk_length_schedule": []int{120, 160, 250, 290},
		},
	})
	go s.readLoop()
	go s.writeLoop()
	return nil
}

func (s *Synthesizer) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	slog.Info("synthesizer close called",
		slog.String("session_id", s.cfg.SessionID))
	if s.cancel != nil {
		s.cancel()
	}
	if s.conn != nil {
		_ = s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		return s.conn.Close()
	}
	return nil
}

// Speak queues one phrase as its own flushed generation.
func (s *Synthesizer) Speak(text string) error {
	if s.conn == nil {
		return errors.New("not connected")
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	s.mu.Lock()
	s.pending = append(s.pending, text)
	s.mu.Unlock()
	// The stream-input API expects generation text to end with a space.
	text += " "
	select {
	case s.writeCh <- synthMessage{text: text, flush: true}:
	default:
		return errors.New("write buffer full")
	}
	return nil
}

// Cancel stops current generation and drops pending phrases without
// completions.
func (s *Synthesizer) Cancel() {
	_ = s.send(map[string]any{"text": " ", "flush": true})

	s.mu.Lock()
	s.pending = nil
	s.mu.Unlock()

drainLoop:
	for {
		select {
		case <-s.done:
		default:
			break drainLoop
		}
	}
	slog.Info("synthesizer canceled",
		slog.String("session_id", s.cfg.SessionID))
}

func (s *Synthesizer) Done() <-chan tts.Completion { return s.done }

func (s *Synthesizer) buildURL() string {
	base := "wss://api.elevenlabs.io/v1/text-to-speech/" + s.cfg.VoiceID + "/stream-input"
	q := url.Values{}
	if s.cfg.ModelID != "" {
		q.Set("model_id", s.cfg.ModelID)
	}
	if s.cfg.OutputFormat != "" {
		q.Set("output_format", s.cfg.OutputFormat)
	}
	q.Set("optimize_streaming_latency", "4")
	return base + "?" + q.Encode()
}

func (s *Synthesizer) writeLoop() {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case msg := <-s.writeCh:
			payload := map[string]any{"text": msg.text}
			if msg.flush {
				payload["flush"] = true
			}
			_ = s.send(payload)
		case <-ticker.C:
			// Keep-alive: empty text prevents the 20s idle timeout.
			_ = s.send(map[string]any{"text": " "})
		}
	}
}

func (s *Synthesizer) readLoop() {
	for {
		select {
		case <-s.ctx.Done():
			slog.Info("synthesizer read loop exit",
				slog.String("session_id", s.cfg.SessionID),
				slog.String("reason", "context_cancelled"))
			return
		default:
			_, data, err := s.conn.ReadMessage()
			if err != nil {
				slog.Error("synthesizer read loop error",
					slog.String("session_id", s.cfg.SessionID),
					slog.String("error", err.Error()))
				return
			}
			s.handleMessage(data)
		}
	}
}

func (s *Synthesizer) handleMessage(data []byte) {
	var msg map[string]any
	if err := json.Unmarshal(data, &msg); err != nil {
		slog.Warn("synthesizer websocket raw data", "data", string(data))
		return
	}

	if audio, ok := audioField(msg); ok {
		raw, err := base64.StdEncoding.DecodeString(audio)
		if err != nil {
			slog.Error("synthesizer audio decode error", "error", err)
			return
		}
		slog.Debug("audio chunk received",
			slog.String("session_id", s.cfg.SessionID),
			slog.Int("size_bytes", len(raw)))
		if s.cfg.OnAudio != nil {
			s.cfg.OnAudio(raw)
		}
	}

	if isFinal, ok := msg["isFinal"].(bool); ok && isFinal {
		s.mu.Lock()
		var text string
		if len(s.pending) > 0 {
			text = s.pending[0]
			s.pending = s.pending[1:]
		}
		done := s.done
		s.mu.Unlock()
		if text == "" {
			return
		}
		select {
		case done <- tts.Completion{Text: text}:
		default:
			slog.Warn("completion buffer full",
				slog.String("session_id", s.cfg.SessionID))
		}
	}
}

func audioField(msg map[string]any) (string, bool) {
	if a, ok := msg["audio"].(string); ok {
		return a, true
	}
	if a, ok := msg["audio_base_64"].(string); ok {
		return a, true
	}
	if a, ok := msg["audio_base64"].(string); ok {
		return a, true
	}
	return "", false
}

func (s *Synthesizer) send(payload map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return errors.New("not connected")
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return s.conn.WriteMessage(websocket.TextMessage, b)
}

var _ tts.Synthesizer = (*Synthesizer)(nil)
