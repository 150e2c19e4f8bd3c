package kol

import (
	"context"
	"sort"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"github.com/bucketshop69/bs-vybe-sub000/pkg/db"
	"github.com/bucketshop69/bs-vybe-sub000/pkg/render"
	"github.com/bucketshop69/bs-vybe-sub000/pkg/vybe"
)

// rankingLabel selects the account set fetched from the known-accounts API.
const rankingLabel = "kol"

type Gateway interface {
	KnownAccounts(ctx context.Context, label string) ([]vybe.KnownAccount, error)
}

type Store interface {
	GetKOLRanks() ([]db.KOLRank, error)
	ReplaceKOLRanks(ranks []db.KOLRank) error
	KOLSubscribers() ([]int64, error)
}

type Notifier interface {
	Enqueue(chatID int64, text string)
}

// Change describes what moved between two ranking snapshots.
type Change struct {
	NewNumberOne    *db.KOLRank
	NewEntrantsTop5 []db.KOLRank
}

// Reconciler periodically refreshes the volume ranking and broadcasts only
// meaningful position changes: a new #1 or a new top-5 entrant.
type Reconciler struct {
	gw      Gateway
	store   Store
	notify  Notifier
	topN    int
	running atomic.Bool
}

func New(gw Gateway, store Store, notify Notifier, topN int) *Reconciler {
	if topN <= 0 {
		topN = 10
	}
	return &Reconciler{gw: gw, store: store, notify: notify, topN: topN}
}

// Run executes one ranking check. Overlapping invocations are no-ops.
func (r *Reconciler) Run(ctx context.Context) {
	if !r.running.CompareAndSwap(false, true) {
		log.Debug().Msg("kol check already in progress, skipping")
		return
	}
	defer r.running.Store(false)
	defer func() {
		if p := recover(); p != nil {
			log.Error().Any("panic", p).Msg("kol reconciler panicked")
		}
	}()

	accounts, err := r.gw.KnownAccounts(ctx, rankingLabel)
	if err != nil {
		log.Warn().Err(err).Msg("kol ranking fetch failed")
		return
	}
	if len(accounts) == 0 {
		return
	}

	current := rankAccounts(accounts, r.topN)

	previous, err := r.store.GetKOLRanks()
	if err != nil {
		log.Error().Err(err).Msg("kol snapshot read failed")
		return
	}

	change := DiffRankings(previous, current)
	if change != nil && len(previous) > 0 {
		r.broadcast(change)
	}

	// The snapshot is replaced even when nothing changed, so the next
	// comparison always runs against the freshest ranking.
	if ctx.Err() != nil {
		return
	}
	if err := r.store.ReplaceKOLRanks(current); err != nil {
		log.Error().Err(err).Msg("kol snapshot replace failed")
	}
}

// rankAccounts sorts by volume descending and assigns 1-based ranks.
func rankAccounts(accounts []vybe.KnownAccount, topN int) []db.KOLRank {
	sorted := make([]vybe.KnownAccount, len(accounts))
	copy(sorted, accounts)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].VolumeUSD > sorted[j].VolumeUSD
	})
	if len(sorted) > topN {
		sorted = sorted[:topN]
	}

	ranks := make([]db.KOLRank, len(sorted))
	for i, a := range sorted {
		ranks[i] = db.KOLRank{Rank: i + 1, OwnerAddress: a.OwnerAddress, Name: a.Name}
	}
	return ranks
}

// DiffRankings compares two snapshots and reports a change only when the #1
// owner differs or an address entered the top 5. Returns nil when neither
// happened.
func DiffRankings(previous, current []db.KOLRank) *Change {
	if len(current) == 0 {
		return nil
	}

	var change Change

	if len(previous) == 0 || previous[0].OwnerAddress != current[0].OwnerAddress {
		top := current[0]
		change.NewNumberOne = &top
	}

	prevTop5 := make(map[string]struct{})
	for _, r := range previous {
		if r.Rank <= 5 {
			prevTop5[r.OwnerAddress] = struct{}{}
		}
	}
	for _, r := range current {
		if r.Rank > 5 {
			break
		}
		if _, ok := prevTop5[r.OwnerAddress]; !ok && len(previous) > 0 {
			change.NewEntrantsTop5 = append(change.NewEntrantsTop5, r)
		}
	}

	if change.NewNumberOne == nil && len(change.NewEntrantsTop5) == 0 {
		return nil
	}
	return &change
}

func (r *Reconciler) broadcast(change *Change) {
	subscribers, err := r.store.KOLSubscribers()
	if err != nil {
		log.Error().Err(err).Msg("kol subscriber lookup failed")
		return
	}
	if len(subscribers) == 0 {
		return
	}

	msg := render.FormatKOLChange(change.NewNumberOne, change.NewEntrantsTop5)
	for _, chatID := range subscribers {
		r.notify.Enqueue(chatID, msg)
	}
	log.Info().Int("subscribers", len(subscribers)).Bool("new_number_one", change.NewNumberOne != nil).
		Int("new_top5", len(change.NewEntrantsTop5)).Msg("👑 kol ranking change broadcast")
}
