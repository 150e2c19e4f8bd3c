package vybe

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// TransferHandler receives one live transfer event.
type TransferHandler func(ctx context.Context, t Transfer)

// LiveFeed maintains a single websocket subscription for transfer events on
// the currently tracked wallets. It reconnects with exponential backoff and
// re-sends the filter configuration on every (re)connect.
type LiveFeed struct {
	wss     string
	apiKey  string
	wallets func() []string // resolved fresh on each connect
	handler TransferHandler

	mu   sync.Mutex
	seen map[string]time.Time // signature -> first seen, drops duplicate frames
}

func NewLiveFeed(wss, apiKey string, wallets func() []string, handler TransferHandler) *LiveFeed {
	return &LiveFeed{
		wss:     wss,
		apiKey:  apiKey,
		wallets: wallets,
		handler: handler,
		seen:    make(map[string]time.Time),
	}
}

func (f *LiveFeed) Run(ctx context.Context) error {
	go f.cleanSeen(ctx)

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Second
	bo.MaxInterval = 30 * time.Second
	bo.MaxElapsedTime = 0 // retry forever

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.wss, http.Header{"X-API-Key": {f.apiKey}})
		if err != nil {
			wait := bo.NextBackOff()
			log.Warn().Err(err).Dur("retry_in", wait).Msg("live feed dial failed")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
			continue
		}
		bo.Reset()

		if err := f.readLoop(ctx, conn); err != nil && ctx.Err() == nil {
			log.Warn().Err(err).Msg("live feed disconnected")
		}
		_ = conn.Close()
	}
}

func (f *LiveFeed) readLoop(ctx context.Context, conn *websocket.Conn) error {
	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		<-connCtx.Done()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "stopping"),
			time.Now().Add(2*time.Second))
		_ = conn.Close()
	}()

	_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	})

	go func() {
		ticker := time.NewTicker(20 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-connCtx.Done():
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(5*time.Second)); err != nil {
					return
				}
			}
		}
	}()

	// Configure the transfer filter for the wallets under tracking.
	filters := make([]map[string]string, 0)
	for _, w := range f.wallets() {
		filters = append(filters, map[string]string{"feePayer": w})
	}
	cfgMsg := map[string]any{
		"type":    "configure",
		"filters": map[string]any{"transfers": filters},
	}
	if err := conn.WriteJSON(cfgMsg); err != nil {
		return err
	}

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var t Transfer
		if err := json.Unmarshal(msg, &t); err != nil || t.Signature == "" {
			continue
		}
		if f.isDuplicate(t.Signature) {
			continue
		}
		f.handler(ctx, t)
	}
}

func (f *LiveFeed) isDuplicate(signature string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ts, ok := f.seen[signature]; ok && time.Since(ts) < 30*time.Second {
		return true
	}
	f.seen[signature] = time.Now()
	return false
}

func (f *LiveFeed) cleanSeen(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			f.mu.Lock()
			for sig, ts := range f.seen {
				if time.Since(ts) > time.Minute {
					delete(f.seen, sig)
				}
			}
			f.mu.Unlock()
		}
	}
}
