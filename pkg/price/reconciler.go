package price

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/bucketshop69/bs-vybe-sub000/pkg/db"
	"github.com/bucketshop69/bs-vybe-sub000/pkg/render"
	"github.com/bucketshop69/bs-vybe-sub000/pkg/vybe"
)

// Gateway is the slice of the market-data API the reconciler consumes.
type Gateway interface {
	TokenPrice(ctx context.Context, mint string) (*vybe.TokenPrice, error)
}

// Store is the persisted alert/cache state.
type Store interface {
	GetTokenPrice(mint string) (*db.TokenPrice, error)
	UpsertTokenPrice(p db.TokenPrice) error
	ActiveAlertsForMint(mint string) ([]db.PriceAlert, error)
	MarkAlertTriggered(alertID int64) error
}

// Notifier queues alert messages. AllowAlert throttles repeated general
// movement alerts per (mint, user, direction); target alerts bypass it
// because the triggered flag already makes them one-shot.
type Notifier interface {
	Enqueue(chatID int64, text string)
	AllowAlert(mint string, userID int64, direction string) bool
}

type Config struct {
	Mints            []string
	RingSize         int
	Interval         time.Duration // nominal poll interval
	MaxInterval      time.Duration // backoff cap after repeated failures
	FailureThreshold int           // consecutive failed cycles before backing off
	MoveAlertPct     float64       // broadcast threshold for general movement alerts
	MoveWindow       time.Duration // ring window for the movement heuristic
}

// Reconciler polls token prices, maintains history, and fires each alert
// exactly once on its crossing.
type Reconciler struct {
	gw     Gateway
	store  Store
	notify Notifier
	cfg    Config

	rings    map[string]*Ring
	running  atomic.Bool
	failures int
}

func New(gw Gateway, store Store, notify Notifier, cfg Config) *Reconciler {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.MaxInterval < cfg.Interval {
		cfg.MaxInterval = cfg.Interval
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 3
	}
	if cfg.MoveWindow <= 0 {
		cfg.MoveWindow = 15 * time.Minute
	}
	rings := make(map[string]*Ring, len(cfg.Mints))
	for _, m := range cfg.Mints {
		rings[m] = NewRing(cfg.RingSize)
	}
	return &Reconciler{gw: gw, store: store, notify: notify, cfg: cfg, rings: rings}
}

// Run polls until ctx is done. The interval stretches with exponential
// backoff once consecutive full-cycle failures pass the threshold and snaps
// back to nominal after the first success.
func (r *Reconciler) Run(ctx context.Context) error {
	timer := time.NewTimer(r.cfg.Interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			r.Poll(ctx)
			timer.Reset(r.currentInterval())
		}
	}
}

// Poll runs one full price cycle. Overlapping invocations are no-ops.
func (r *Reconciler) Poll(ctx context.Context) {
	if !r.running.CompareAndSwap(false, true) {
		log.Debug().Msg("price poll already in progress, skipping")
		return
	}
	defer r.running.Store(false)
	defer func() {
		if p := recover(); p != nil {
			log.Error().Any("panic", p).Msg("price reconciler panicked")
		}
	}()

	succeeded := 0
	for _, mint := range r.cfg.Mints {
		if ctx.Err() != nil {
			return
		}
		if err := r.pollMint(ctx, mint); err != nil {
			log.Warn().Err(err).Str("mint", render.Abbrev(mint)).Msg("price poll failed")
			continue
		}
		succeeded++
	}

	if succeeded == 0 && len(r.cfg.Mints) > 0 {
		r.failures++
		if r.failures >= r.cfg.FailureThreshold {
			log.Warn().Int("consecutive_failures", r.failures).Dur("interval", r.currentInterval()).Msg("price polling backing off")
		}
	} else {
		r.failures = 0
	}
}

func (r *Reconciler) currentInterval() time.Duration {
	over := r.failures - r.cfg.FailureThreshold
	if over < 0 {
		return r.cfg.Interval
	}
	iv := r.cfg.Interval
	for i := 0; i <= over; i++ {
		iv *= 2
		if iv >= r.cfg.MaxInterval {
			return r.cfg.MaxInterval
		}
	}
	return iv
}

func (r *Reconciler) pollMint(ctx context.Context, mint string) error {
	rec, err := r.gw.TokenPrice(ctx, mint)
	if err != nil {
		return err
	}
	now := time.Now()

	var previous float64
	cached, err := r.store.GetTokenPrice(mint)
	if err == nil {
		previous = cached.CurrentPrice
	}

	ring := r.rings[mint]
	if ring == nil {
		ring = NewRing(r.cfg.RingSize)
		r.rings[mint] = ring
	}
	ring.Push(rec.Price, now)

	// No valid reference price yet: persist the observation, evaluate nothing.
	if previous > 0 {
		r.evaluate(ctx, mint, rec, previous)
	}

	return r.store.UpsertTokenPrice(db.TokenPrice{
		MintAddress:    mint,
		Symbol:         rec.Symbol,
		Name:           rec.Name,
		CurrentPrice:   rec.Price,
		LastUpdateTime: now.Unix(),
	})
}

func (r *Reconciler) evaluate(ctx context.Context, mint string, rec *vybe.TokenPrice, previous float64) {
	current := rec.Price
	changePct := (current - previous) / previous * 100

	alerts, err := r.store.ActiveAlertsForMint(mint)
	if err != nil {
		log.Error().Err(err).Str("mint", render.Abbrev(mint)).Msg("alert lookup failed")
		alerts = nil
	}

	for _, a := range alerts {
		if ctx.Err() != nil {
			return
		}
		fired := (a.IsAboveTarget && CrossedUp(previous, a.TargetPrice, current)) ||
			(!a.IsAboveTarget && CrossedDown(previous, a.TargetPrice, current))
		if !fired {
			continue
		}
		r.notify.Enqueue(a.UserID, render.FormatTargetAlert(a, rec.Symbol, current))
		if err := r.store.MarkAlertTriggered(a.ID); err != nil {
			log.Error().Err(err).Int64("alert", a.ID).Msg("mark triggered failed")
		}
	}

	// General movement alert: large swing over the ring window, throttled
	// per (mint, user, direction) so a choppy market does not spam.
	if r.cfg.MoveAlertPct > 0 {
		windowPct, ok := r.rings[mint].ChangeOverWindow(r.cfg.MoveWindow)
		if !ok {
			windowPct = changePct
		}
		if abs(windowPct) >= r.cfg.MoveAlertPct {
			direction := "up"
			if windowPct < 0 {
				direction = "down"
			}
			for _, a := range alerts {
				if !r.notify.AllowAlert(mint, a.UserID, direction) {
					continue
				}
				r.notify.Enqueue(a.UserID, render.FormatMoveAlert(rec.Symbol, mint, windowPct, current))
			}
		}
	}
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
