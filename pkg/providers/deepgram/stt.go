package deepgram

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/harunnryd/kuchi/pkg/adapters/stt"
	"github.com/harunnryd/kuchi/pkg/errorsx"
	"github.com/harunnryd/kuchi/pkg/logging"
	"github.com/harunnryd/kuchi/pkg/resilience"

	msginterfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket/interfaces"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	client "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"
)

type Config struct {
	APIKey     string
	Model      string
	Language   string
	SampleRate int
	Encoding   string
	Interim    bool
	SessionID  string
	// UtteranceEndMS enables native end-of-utterance detection when > 0.
	UtteranceEndMS int
}

// Recognizer streams audio to Deepgram's live transcription websocket and
// surfaces transcripts on the Results channel.
type Recognizer struct {
	cfg        Config
	dgClient   *client.WSCallback
	out        chan stt.Transcript
	ctx        context.Context
	cancel     context.CancelFunc
	pipeReader *io.PipeReader
	pipeWriter *io.PipeWriter
	metaLogged bool
	logger     *slog.Logger
	retry      resilience.RetryPolicy
}

func New(cfg Config) *Recognizer {
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 16000
	}
	logger := logging.NewComponentLogger(slog.Default(), "deepgram_stt")
	return &Recognizer{
		cfg:    cfg,
		out:    make(chan stt.Transcript, 256),
		logger: logger,
		retry:  resilience.NewRetryPolicy(3, 200*time.Millisecond),
	}
}

func (r *Recognizer) Name() string { return "deepgram_streaming" }

func (r *Recognizer) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	r.ctx, r.cancel = context.WithCancel(ctx)

	r.pipeReader, r.pipeWriter = io.Pipe()

	clientOptions := &interfaces.ClientOptions{
		EnableKeepAlive: true,
	}

	transcriptOptions := &interfaces.LiveTranscriptionOptions{
		Model:          r.cfg.Model,
		Language:       r.cfg.Language,
		Encoding:       r.cfg.Encoding,
		SampleRate:     r.cfg.SampleRate,
		InterimResults: r.cfg.Interim,
		SmartFormat:    true,
	}
	if r.cfg.UtteranceEndMS > 0 {
		transcriptOptions.UtteranceEndMs = fmt.Sprintf("%d", r.cfg.UtteranceEndMS)
		r.logger.Info("configured native utterance detection",
			slog.Int("utterance_end_ms", r.cfg.UtteranceEndMS),
			slog.String("session_id", r.cfg.SessionID))
	}

	r.logger.Info("initializing deepgram connection",
		slog.String("session_id", r.cfg.SessionID),
		slog.String("model", r.cfg.Model),
		slog.Int("sample_rate", r.cfg.SampleRate))

	cb := &callback{parent: r}

	dgClient, err := client.NewWSUsingCallback(r.ctx, r.cfg.APIKey, clientOptions, transcriptOptions, cb)
	if err != nil {
		r.logger.Error("deepgram_client_create_error",
			slog.String("error", err.Error()),
			slog.String("session_id", r.cfg.SessionID))
		return errorsx.Wrap(err, errorsx.ReasonRecognizerConnect)
	}
	r.dgClient = dgClient

	connectErr := r.retry.Do(r.ctx, func() error {
		if connected := r.dgClient.Connect(); !connected {
			return fmt.Errorf("deepgram connection failed")
		}
		return nil
	})
	if connectErr != nil {
		r.logger.Error("deepgram_connect_failed",
			slog.String("session_id", r.cfg.SessionID))
		return errorsx.Wrap(connectErr, errorsx.ReasonRecognizerConnect)
	}

	r.logger.Info("deepgram_connected",
		slog.String("session_id", r.cfg.SessionID),
		slog.String("model", r.cfg.Model))

	go func() {
		if err := r.dgClient.Stream(r.pipeReader); err != nil && r.ctx.Err() == nil {
			r.logger.Error("deepgram_stream_error",
				slog.String("error", err.Error()),
				slog.String("session_id", r.cfg.SessionID))
		}
	}()

	return nil
}

func (r *Recognizer) Close() error {
	r.logger.Info("closing deepgram connection",
		slog.String("session_id", r.cfg.SessionID))

	if r.cancel != nil {
		r.cancel()
	}
	if r.pipeWriter != nil {
		_ = r.pipeWriter.Close()
	}
	if r.dgClient != nil {
		r.dgClient.Stop()
	}
	return nil
}

func (r *Recognizer) SendAudio(pcm []byte) error {
	if r.pipeWriter == nil {
		return errorsx.Wrap(fmt.Errorf("not started"), errorsx.ReasonRecognizerSend)
	}

	_, err := r.pipeWriter.Write(pcm)
	if err != nil {
		r.logger.Error("failed to send audio to deepgram",
			slog.String("error", err.Error()),
			slog.String("session_id", r.cfg.SessionID))
		return errorsx.Wrap(err, errorsx.ReasonRecognizerSend)
	}
	return nil
}

// Finalize asks Deepgram to flush pending interim results.
func (r *Recognizer) Finalize() error {
	if r.dgClient == nil {
		return errorsx.Wrap(fmt.Errorf("not started"), errorsx.ReasonRecognizerFinalize)
	}
	if err := r.dgClient.Finalize(); err != nil {
		r.logger.Error("deepgram_finalize_error",
			slog.String("error", err.Error()),
			slog.String("session_id", r.cfg.SessionID))
		return errorsx.Wrap(err, errorsx.ReasonRecognizerFinalize)
	}
	return nil
}

func (r *Recognizer) Results() <-chan stt.Transcript { return r.out }

// --- Callback Implementation ---

type callback struct {
	parent *Recognizer
}

func (c *callback) Open(or *msginterfaces.OpenResponse) error {
	c.parent.logger.Info("deepgram_connection_opened",
		slog.String("session_id", c.parent.cfg.SessionID))
	return nil
}

func (c *callback) Message(mr *msginterfaces.MessageResponse) error {
	if len(mr.Channel.Alternatives) == 0 {
		return nil
	}
	alt := mr.Channel.Alternatives[0]
	if alt.Transcript == "" {
		return nil
	}

	isFinal := mr.IsFinal || mr.SpeechFinal

	c.parent.logger.Debug("transcript_received",
		slog.String("session_id", c.parent.cfg.SessionID),
		slog.String("transcript", alt.Transcript),
		slog.Bool("is_final", isFinal))

	t := stt.Transcript{
		Text:       alt.Transcript,
		IsFinal:    isFinal,
		Confidence: alt.Confidence,
	}

	select {
	case c.parent.out <- t:
	default:
		c.parent.logger.Warn("deepgram_out_channel_full",
			slog.String("session_id", c.parent.cfg.SessionID))
	}
	return nil
}

func (c *callback) Metadata(md *msginterfaces.MetadataResponse) error {
	if !c.parent.metaLogged {
		c.parent.metaLogged = true
		c.parent.logger.Info("deepgram_metadata_received",
			slog.String("session_id", c.parent.cfg.SessionID),
			slog.String("request_id", md.RequestID))
	}
	return nil
}

func (c *callback) SpeechStarted(ssr *msginterfaces.SpeechStartedResponse) error {
	c.parent.logger.Debug("speech_started_event",
		slog.String("session_id", c.parent.cfg.SessionID))
	return nil
}

func (c *callback) UtteranceEnd(ur *msginterfaces.UtteranceEndResponse) error {
	c.parent.logger.Debug("utterance_end_event",
		slog.String("session_id", c.parent.cfg.SessionID),
		slog.Int("utterance_end_ms", c.parent.cfg.UtteranceEndMS))
	return nil
}

func (c *callback) Close(cr *msginterfaces.CloseResponse) error {
	c.parent.logger.Info("deepgram_connection_closed",
		slog.String("session_id", c.parent.cfg.SessionID))
	return nil
}

func (c *callback) Error(er *msginterfaces.ErrorResponse) error {
	c.parent.logger.Error("deepgram_error",
		slog.String("session_id", c.parent.cfg.SessionID),
		slog.String("error_code", er.ErrCode),
		slog.String("error_message", er.ErrMsg))
	return nil
}

func (c *callback) UnhandledEvent(byData []byte) error {
	c.parent.logger.Debug("deepgram_unhandled_event",
		slog.String("session_id", c.parent.cfg.SessionID),
		slog.String("data", string(byData)))
	return nil
}

var _ stt.Recognizer = (*Recognizer)(nil)
