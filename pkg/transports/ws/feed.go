package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/harunnryd/kuchi/pkg/events"
)

type Config struct {
	ServerAddr     string   `mapstructure:"server_addr"`
	FeedPath       string   `mapstructure:"feed_path"`
	AllowAnyOrigin bool     `mapstructure:"allow_any_origin"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

func (c Config) withDefaults() Config {
	if c.ServerAddr == "" {
		c.ServerAddr = ":8080"
	}
	if c.FeedPath == "" {
		c.FeedPath = "/feed"
	}
	if !c.AllowAnyOrigin && len(c.AllowedOrigins) == 0 {
		c.AllowAnyOrigin = true
	}
	return c
}

// Feed streams pipeline events to rendering clients over a websocket.
// Every connected client receives the full event stream as JSON text
// messages; a client that falls behind is dropped rather than allowed
// to stall the pipeline.
type Feed struct {
	cfg      Config
	bus      *events.Bus
	server   *http.Server
	upgrader websocket.Upgrader
	logger   *slog.Logger

	mu      sync.Mutex
	clients map[string]*client

	draining atomic.Bool
}

func NewFeed(cfg Config, bus *events.Bus) *Feed {
	cfg = cfg.withDefaults()
	f := &Feed{
		cfg: cfg,
		bus: bus,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		logger:  slog.Default().With(slog.String("component", "ws_feed")),
		clients: make(map[string]*client),
	}
	f.upgrader.CheckOrigin = f.checkOrigin
	return f
}

func (f *Feed) Name() string { return "ws_feed" }

func (f *Feed) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	mux := http.NewServeMux()
	mux.Handle(f.cfg.FeedPath, f)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	f.server = &http.Server{
		Addr:              f.cfg.ServerAddr,
		ReadHeaderTimeout: 5 * time.Second,
		Handler:           mux,
	}
	sub := f.bus.Subscribe()
	go f.fanout(sub)
	go func() {
		<-ctx.Done()
		_ = f.server.Close()
	}()
	go func() {
		if err := f.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			f.logger.Error("feed_server_error", "error", err.Error())
		}
	}()
	return nil
}

func (f *Feed) Stop() error {
	f.draining.Store(true)
	if f.server != nil {
		_ = f.server.Close()
	}
	f.mu.Lock()
	for _, c := range f.clients {
		_ = c.close()
	}
	f.clients = make(map[string]*client)
	f.mu.Unlock()
	return nil
}

func (f *Feed) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if f.draining.Load() {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	id := uuid.NewString()
	c := &client{conn: conn, sendCh: make(chan []byte, 256)}
	f.mu.Lock()
	f.clients[id] = c
	f.mu.Unlock()
	f.logger.Info("feed_client_connected", slog.String("client_id", id))

	go c.loop()

	// Reads are only consumed to notice the close handshake.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	f.detach(id)
	f.logger.Info("feed_client_disconnected", slog.String("client_id", id))
}

// ClientCount reports connected clients, for logging and tests.
func (f *Feed) ClientCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.clients)
}

func (f *Feed) fanout(sub <-chan events.Event) {
	for ev := range sub {
		b, err := json.Marshal(ev)
		if err != nil {
			continue
		}
		f.mu.Lock()
		var stale []string
		for id, c := range f.clients {
			if !c.enqueue(b) {
				stale = append(stale, id)
			}
		}
		f.mu.Unlock()
		for _, id := range stale {
			f.logger.Warn("feed_client_dropped",
				slog.String("client_id", id),
				slog.String("reason", "send_buffer_full"))
			f.detach(id)
		}
	}
}

func (f *Feed) detach(id string) {
	f.mu.Lock()
	c, ok := f.clients[id]
	if ok {
		delete(f.clients, id)
	}
	f.mu.Unlock()
	if ok {
		_ = c.close()
	}
}

func (f *Feed) checkOrigin(r *http.Request) bool {
	if f.cfg.AllowAnyOrigin {
		return true
	}
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	origin = strings.TrimRight(origin, "/")
	originHost := strings.TrimPrefix(origin, "https://")
	originHost = strings.TrimPrefix(originHost, "http://")
	for _, allowed := range f.cfg.AllowedOrigins {
		a := strings.TrimSpace(allowed)
		if a == "" {
			continue
		}
		a = strings.TrimRight(a, "/")
		if strings.HasPrefix(a, "http://") || strings.HasPrefix(a, "https://") {
			if strings.EqualFold(a, origin) {
				return true
			}
			continue
		}
		if strings.EqualFold(a, originHost) {
			return true
		}
	}
	return false
}

type client struct {
	conn   *websocket.Conn
	sendCh chan []byte
	closed atomic.Bool
}

func (c *client) enqueue(msg []byte) bool {
	if c.closed.Load() {
		return false
	}
	select {
	case c.sendCh <- msg:
		return true
	default:
		return false
	}
}

func (c *client) loop() {
	for msg := range c.sendCh {
		_ = c.conn.WriteMessage(websocket.TextMessage, msg)
	}
}

func (c *client) close() error {
	if c.closed.CompareAndSwap(false, true) {
		close(c.sendCh)
	}
	return c.conn.Close()
}
