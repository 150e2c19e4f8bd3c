package dispatch

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"
)

// ErrBlocked is returned by a Transport when the recipient has blocked the
// bot. Blocked recipients are unsubscribed from broadcasts, never retried.
var ErrBlocked = errors.New("dispatch: recipient blocked the bot")

// Transport delivers one message. Implementations map their provider's
// "forbidden" condition to ErrBlocked.
type Transport interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
}

// SubscriptionStore clears broadcast flags for unreachable recipients.
type SubscriptionStore interface {
	SetKOLUpdates(userID int64, enabled bool) error
}

type Config struct {
	Tick         time.Duration // queue drain interval
	BatchSize    int           // max deliveries per tick
	MessageDelay time.Duration // gap between consecutive sends
	MaxRetries   int
	Cooldown     time.Duration // per-(mint,user,direction) alert throttle
}

type item struct {
	chatID    int64
	text      string
	attempts  int
	notBefore time.Time
	bo        *backoff.ExponentialBackOff
}

type cooldownKey struct {
	mint      string
	userID    int64
	direction string
}

// Dispatcher owns the outbound message queue. Enqueue is fire-and-forget
// with retry; Send is synchronous for callers that must observe delivery
// before mutating state (the wallet watermark contract).
type Dispatcher struct {
	tr   Transport
	subs SubscriptionStore
	cfg  Config

	mu        sync.Mutex
	queue     []*item
	cooldowns map[cooldownKey]time.Time

	sendMu   sync.Mutex
	lastSend time.Time
}

func New(tr Transport, subs SubscriptionStore, cfg Config) *Dispatcher {
	if cfg.Tick <= 0 {
		cfg.Tick = time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	return &Dispatcher{
		tr:        tr,
		subs:      subs,
		cfg:       cfg,
		cooldowns: make(map[cooldownKey]time.Time),
	}
}

// Enqueue queues a message for asynchronous delivery.
func (d *Dispatcher) Enqueue(chatID int64, text string) {
	d.mu.Lock()
	d.queue = append(d.queue, &item{chatID: chatID, text: text})
	d.mu.Unlock()
}

// Send delivers one message immediately, honoring the inter-message delay.
// On failure the message is NOT queued for retry; the caller keeps ownership
// and decides whether to advance its own state.
func (d *Dispatcher) Send(ctx context.Context, chatID int64, text string) error {
	err := d.deliver(ctx, chatID, text)
	if errors.Is(err, ErrBlocked) && d.subs != nil {
		if serr := d.subs.SetKOLUpdates(chatID, false); serr != nil {
			log.Error().Err(serr).Int64("chat_id", chatID).Msg("unsubscribe failed")
		}
	}
	return err
}

// QueueLen reports the number of pending queue items.
func (d *Dispatcher) QueueLen() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queue)
}

// AllowAlert checks and arms the per-(mint, user, direction) cooldown.
// Returns false while a previous alert for the same key is still cooling.
func (d *Dispatcher) AllowAlert(mint string, userID int64, direction string) bool {
	if d.cfg.Cooldown <= 0 {
		return true
	}
	key := cooldownKey{mint: mint, userID: userID, direction: direction}
	now := time.Now()

	d.mu.Lock()
	defer d.mu.Unlock()
	if last, ok := d.cooldowns[key]; ok && now.Sub(last) < d.cfg.Cooldown {
		return false
	}
	d.cooldowns[key] = now
	return true
}

// Run drains the queue on a timer until ctx is done.
func (d *Dispatcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.cfg.Tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			d.drainBatch(ctx)
		}
	}
}

func (d *Dispatcher) drainBatch(ctx context.Context) {
	now := time.Now()
	batch := d.takeReady(now, d.cfg.BatchSize)

	for _, it := range batch {
		if ctx.Err() != nil {
			return
		}

		err := d.deliver(ctx, it.chatID, it.text)
		if err == nil {
			continue
		}

		if errors.Is(err, ErrBlocked) {
			log.Info().Int64("chat_id", it.chatID).Msg("recipient blocked the bot, unsubscribing")
			if d.subs != nil {
				if serr := d.subs.SetKOLUpdates(it.chatID, false); serr != nil {
					log.Error().Err(serr).Int64("chat_id", it.chatID).Msg("unsubscribe failed")
				}
			}
			continue // dropped, never retried
		}

		it.attempts++
		if it.attempts > d.cfg.MaxRetries {
			log.Error().Err(err).Int64("chat_id", it.chatID).Int("attempts", it.attempts).Msg("message dropped after max retries")
			continue
		}
		if it.bo == nil {
			it.bo = backoff.NewExponentialBackOff()
			it.bo.InitialInterval = 2 * time.Second
			it.bo.MaxInterval = time.Minute
			it.bo.MaxElapsedTime = 0
		}
		wait := it.bo.NextBackOff()
		it.notBefore = time.Now().Add(wait)
		log.Warn().Err(err).Int64("chat_id", it.chatID).Int("attempt", it.attempts).Dur("retry_in", wait).Msg("send failed, requeued")

		d.mu.Lock()
		d.queue = append(d.queue, it)
		d.mu.Unlock()
	}
}

// takeReady pops up to n items whose retry delay (if any) has elapsed,
// preserving FIFO order among the rest.
func (d *Dispatcher) takeReady(now time.Time, n int) []*item {
	d.mu.Lock()
	defer d.mu.Unlock()

	var ready []*item
	var keep []*item
	for _, it := range d.queue {
		if len(ready) < n && !it.notBefore.After(now) {
			ready = append(ready, it)
			continue
		}
		keep = append(keep, it)
	}
	d.queue = keep
	return ready
}

func (d *Dispatcher) deliver(ctx context.Context, chatID int64, text string) error {
	d.sendMu.Lock()
	if gap := d.cfg.MessageDelay - time.Since(d.lastSend); gap > 0 {
		select {
		case <-ctx.Done():
			d.sendMu.Unlock()
			return ctx.Err()
		case <-time.After(gap):
		}
	}
	d.lastSend = time.Now()
	d.sendMu.Unlock()

	return d.tr.SendMessage(ctx, chatID, text)
}
