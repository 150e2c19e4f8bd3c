package wallet

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/bucketshop69/bs-vybe-sub000/pkg/db"
	"github.com/bucketshop69/bs-vybe-sub000/pkg/render"
	"github.com/bucketshop69/bs-vybe-sub000/pkg/vybe"
)

// Gateway is the slice of the market-data API the reconciler consumes.
type Gateway interface {
	RecentTransfers(ctx context.Context, wallet string, limit int) ([]vybe.Transfer, error)
	RecentSignatures(ctx context.Context, wallet string, limit int) ([]string, error)
}

// Store is the persisted tracking state the reconciler reads and advances.
type Store interface {
	TrackedWalletAddresses() ([]string, error)
	TrackersForWallet(address string) ([]db.TrackedWallet, error)
	AdvanceWalletWatermark(userID int64, address, signature string, blockTime int64) error
}

// Notifier delivers one message synchronously. The watermark only advances
// after Send returns nil, so a failed delivery is re-attempted next cycle
// (at-least-once; a crash between send and persist may duplicate, never lose).
type Notifier interface {
	Send(ctx context.Context, chatID int64, text string) error
}

type Config struct {
	FetchLimit  int           // transfers fetched per wallet, newest first
	DisplayCap  int           // transfers shown per notification
	WalletDelay time.Duration // pause between wallets
	SpamList    []string      // senders/receivers that never notify
}

// Reconciler compares fresh transfer activity against each tracking user's
// watermark and notifies about the difference, exactly once per
// (user, wallet, signature) under normal operation.
type Reconciler struct {
	gw     Gateway
	store  Store
	notify Notifier
	cfg    Config

	deny    map[string]struct{}
	running atomic.Bool

	mu            sync.Mutex
	lastBlockTime map[string]int64 // push-mode cache: wallet -> newest handled blockTime
}

func New(gw Gateway, store Store, notify Notifier, cfg Config) *Reconciler {
	if cfg.FetchLimit <= 0 {
		cfg.FetchLimit = 20
	}
	if cfg.DisplayCap <= 0 {
		cfg.DisplayCap = 5
	}
	deny := make(map[string]struct{}, len(cfg.SpamList))
	for _, a := range cfg.SpamList {
		deny[a] = struct{}{}
	}
	return &Reconciler{
		gw:            gw,
		store:         store,
		notify:        notify,
		cfg:           cfg,
		deny:          deny,
		lastBlockTime: make(map[string]int64),
	}
}

// Run executes one reconciliation cycle over every tracked wallet. A cycle
// that starts while another is in flight is a no-op.
func (r *Reconciler) Run(ctx context.Context) {
	if !r.running.CompareAndSwap(false, true) {
		log.Debug().Msg("wallet scan already in progress, skipping")
		return
	}
	defer r.running.Store(false)
	defer func() {
		if p := recover(); p != nil {
			log.Error().Any("panic", p).Msg("wallet reconciler panicked")
		}
	}()

	addrs, err := r.store.TrackedWalletAddresses()
	if err != nil {
		log.Error().Err(err).Msg("list tracked wallets failed")
		return
	}

	for i, addr := range addrs {
		if ctx.Err() != nil {
			return
		}
		if err := r.reconcileWallet(ctx, addr); err != nil {
			// One wallet failing must not block the rest.
			log.Warn().Err(err).Str("wallet", render.Abbrev(addr)).Msg("wallet reconcile failed")
		}
		if i < len(addrs)-1 {
			time.Sleep(r.cfg.WalletDelay)
		}
	}
}

func (r *Reconciler) reconcileWallet(ctx context.Context, addr string) error {
	trackers, err := r.store.TrackersForWallet(addr)
	if err != nil {
		return err
	}
	if len(trackers) == 0 {
		return nil
	}

	// Cheap probe first: when the newest signature is already the watermark
	// for every tracker, skip the full transfer fetch.
	if sigs, err := r.gw.RecentSignatures(ctx, addr, 1); err == nil && len(sigs) > 0 {
		allSeen := true
		for _, t := range trackers {
			if t.LastNotifiedSignature != sigs[0] {
				allSeen = false
				break
			}
		}
		if allSeen {
			return nil
		}
	}

	transfers, err := r.gw.RecentTransfers(ctx, addr, r.cfg.FetchLimit)
	if err != nil {
		return err
	}
	transfers = r.filterSpam(transfers)
	if len(transfers) == 0 {
		return nil
	}

	for _, tracker := range trackers {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		r.notifyTracker(ctx, tracker, transfers)
	}

	r.rememberBlockTime(addr, transfers[0].BlockTime)
	return nil
}

// notifyTracker walks transfers newest first, collects what this user has
// not seen, sends a single batched message, then advances the watermark.
func (r *Reconciler) notifyTracker(ctx context.Context, tracker db.TrackedWallet, transfers []vybe.Transfer) {
	fresh := NewTransfersFor(tracker, transfers)
	if len(fresh) == 0 {
		return
	}

	msg := render.FormatTransferBatch(tracker.WalletAddress, tracker.Label, fresh, r.cfg.DisplayCap)
	if err := r.notify.Send(ctx, tracker.UserID, msg); err != nil {
		// Watermark untouched: the same transfers are retried next cycle.
		log.Warn().Err(err).Int64("user", tracker.UserID).Str("wallet", render.Abbrev(tracker.WalletAddress)).Msg("transfer notification failed")
		return
	}

	newest := fresh[0]
	if err := r.store.AdvanceWalletWatermark(tracker.UserID, tracker.WalletAddress, newest.Signature, newest.BlockTime); err != nil {
		log.Error().Err(err).Int64("user", tracker.UserID).Msg("watermark advance failed")
	}
}

// NewTransfersFor returns the subset of transfers (newest first) this tracker
// has not been notified about:
//
//   - scanning stops at the last notified signature, everything older was seen
//   - transfers at or before the tracking start are history, never notified
//   - transfers at or before the processed block time are already accounted for
//   - duplicate signatures within one batch collapse to the first occurrence
func NewTransfersFor(tracker db.TrackedWallet, transfers []vybe.Transfer) []vybe.Transfer {
	start := tracker.TrackingStart()
	if start == 0 {
		// Unresolvable tracking start: refuse to guess, notify nothing.
		log.Warn().Int64("user", tracker.UserID).Str("wallet", render.Abbrev(tracker.WalletAddress)).Msg("tracker has no tracking start, skipped")
		return nil
	}

	seen := make(map[string]struct{})
	var fresh []vybe.Transfer
	for _, t := range transfers {
		if tracker.LastNotifiedSignature != "" && t.Signature == tracker.LastNotifiedSignature {
			break
		}
		if t.BlockTime <= start {
			continue
		}
		if tracker.LastProcessedBlockTime > 0 && t.BlockTime <= tracker.LastProcessedBlockTime {
			continue
		}
		if _, dup := seen[t.Signature]; dup {
			continue
		}
		seen[t.Signature] = struct{}{}
		fresh = append(fresh, t)
	}
	return fresh
}

// HandleTransfer is the push-mode entry point: one live event evaluated
// against the same rules as a polled batch. The in-memory block-time cache
// skips store reads for rapid repeats on the same wallet.
func (r *Reconciler) HandleTransfer(ctx context.Context, t vybe.Transfer) {
	if r.isSpam(t) {
		return
	}
	for _, addr := range []string{t.SenderAddress, t.ReceiverAddress} {
		if addr == "" {
			continue
		}
		if last := r.cachedBlockTime(addr); last > 0 && t.BlockTime < last {
			continue
		}

		trackers, err := r.store.TrackersForWallet(addr)
		if err != nil {
			log.Warn().Err(err).Str("wallet", render.Abbrev(addr)).Msg("push event: tracker lookup failed")
			continue
		}
		if len(trackers) == 0 {
			continue
		}
		for _, tracker := range trackers {
			if ctx.Err() != nil {
				return
			}
			r.notifyTracker(ctx, tracker, []vybe.Transfer{t})
		}
		r.rememberBlockTime(addr, t.BlockTime)
	}
}

func (r *Reconciler) filterSpam(transfers []vybe.Transfer) []vybe.Transfer {
	out := transfers[:0]
	for _, t := range transfers {
		if r.isSpam(t) {
			continue
		}
		out = append(out, t)
	}
	return out
}

func (r *Reconciler) isSpam(t vybe.Transfer) bool {
	if _, ok := r.deny[t.SenderAddress]; ok {
		return true
	}
	_, ok := r.deny[t.ReceiverAddress]
	return ok
}

func (r *Reconciler) cachedBlockTime(addr string) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastBlockTime[addr]
}

func (r *Reconciler) rememberBlockTime(addr string, bt int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if bt > r.lastBlockTime[addr] {
		r.lastBlockTime[addr] = bt
	}
}
