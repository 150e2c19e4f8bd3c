package kol

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bucketshop69/bs-vybe-sub000/pkg/db"
	"github.com/bucketshop69/bs-vybe-sub000/pkg/vybe"
)

type fakeGateway struct {
	accounts []vybe.KnownAccount
	err      error
}

func (g *fakeGateway) KnownAccounts(context.Context, string) ([]vybe.KnownAccount, error) {
	return g.accounts, g.err
}

type fakeStore struct {
	ranks       []db.KOLRank
	subscribers []int64
	replaced    int
}

func (s *fakeStore) GetKOLRanks() ([]db.KOLRank, error) { return s.ranks, nil }

func (s *fakeStore) ReplaceKOLRanks(ranks []db.KOLRank) error {
	s.ranks = ranks
	s.replaced++
	return nil
}

func (s *fakeStore) KOLSubscribers() ([]int64, error) { return s.subscribers, nil }

type fakeNotifier struct {
	queued []string
	to     []int64
}

func (n *fakeNotifier) Enqueue(chatID int64, text string) {
	n.to = append(n.to, chatID)
	n.queued = append(n.queued, text)
}

func ranks(owners ...string) []db.KOLRank {
	out := make([]db.KOLRank, len(owners))
	for i, o := range owners {
		out[i] = db.KOLRank{Rank: i + 1, OwnerAddress: o}
	}
	return out
}

func TestDiffRankings_NoChange(t *testing.T) {
	prev := ranks("A", "B", "C", "D", "E")
	cur := ranks("A", "B", "C", "D", "E")
	assert.Nil(t, DiffRankings(prev, cur))
}

func TestDiffRankings_ReorderWithinTop5(t *testing.T) {
	// B and A swap, F pushes E out: new #1 plus one new entrant.
	prev := ranks("A", "B", "C", "D", "E")
	cur := ranks("B", "A", "C", "D", "F")

	change := DiffRankings(prev, cur)
	require.NotNil(t, change)
	require.NotNil(t, change.NewNumberOne)
	assert.Equal(t, "B", change.NewNumberOne.OwnerAddress)
	require.Len(t, change.NewEntrantsTop5, 1)
	assert.Equal(t, "F", change.NewEntrantsTop5[0].OwnerAddress)
	assert.Equal(t, 5, change.NewEntrantsTop5[0].Rank)
}

func TestDiffRankings_ShuffleBelowNumberOne(t *testing.T) {
	// Positions 2-5 shuffle but the membership is stable: no change at all.
	prev := ranks("A", "B", "C", "D", "E")
	cur := ranks("A", "E", "D", "C", "B")
	assert.Nil(t, DiffRankings(prev, cur))
}

func TestDiffRankings_RiserFromBelowTop5(t *testing.T) {
	prev := ranks("A", "B", "C", "D", "E", "F", "G")
	cur := ranks("A", "B", "C", "D", "G", "E", "F")

	change := DiffRankings(prev, cur)
	require.NotNil(t, change)
	assert.Nil(t, change.NewNumberOne)
	require.Len(t, change.NewEntrantsTop5, 1)
	assert.Equal(t, "G", change.NewEntrantsTop5[0].OwnerAddress)
}

func TestDiffRankings_FirstSnapshot(t *testing.T) {
	// No previous snapshot: the new #1 is reported, nothing counts as an
	// entrant because there was no board to enter.
	change := DiffRankings(nil, ranks("A", "B", "C"))
	require.NotNil(t, change)
	require.NotNil(t, change.NewNumberOne)
	assert.Equal(t, "A", change.NewNumberOne.OwnerAddress)
	assert.Empty(t, change.NewEntrantsTop5)
}

func TestRankAccounts_SortsByVolume(t *testing.T) {
	accounts := []vybe.KnownAccount{
		{OwnerAddress: "low", VolumeUSD: 100},
		{OwnerAddress: "high", VolumeUSD: 900},
		{OwnerAddress: "mid", VolumeUSD: 500},
	}

	got := rankAccounts(accounts, 2)
	require.Len(t, got, 2)
	assert.Equal(t, db.KOLRank{Rank: 1, OwnerAddress: "high"}, got[0])
	assert.Equal(t, db.KOLRank{Rank: 2, OwnerAddress: "mid"}, got[1])
}

func TestRun_BroadcastsToSubscribers(t *testing.T) {
	gw := &fakeGateway{accounts: []vybe.KnownAccount{
		{OwnerAddress: "B", VolumeUSD: 900},
		{OwnerAddress: "A", VolumeUSD: 800},
	}}
	st := &fakeStore{ranks: ranks("A", "B"), subscribers: []int64{7, 8}}
	n := &fakeNotifier{}

	r := New(gw, st, n, 10)
	r.Run(context.Background())

	assert.Equal(t, []int64{7, 8}, n.to)
	assert.Equal(t, ranks("B", "A"), st.ranks, "snapshot replaced with the new ordering")
}

func TestRun_QuietWhenNothingChanged(t *testing.T) {
	gw := &fakeGateway{accounts: []vybe.KnownAccount{
		{OwnerAddress: "A", VolumeUSD: 900},
		{OwnerAddress: "B", VolumeUSD: 800},
	}}
	st := &fakeStore{ranks: ranks("A", "B"), subscribers: []int64{7}}
	n := &fakeNotifier{}

	r := New(gw, st, n, 10)
	r.Run(context.Background())

	assert.Empty(t, n.queued)
	assert.Equal(t, 1, st.replaced, "snapshot still refreshed")
}

func TestRun_FirstSnapshotIsSilent(t *testing.T) {
	gw := &fakeGateway{accounts: []vybe.KnownAccount{
		{OwnerAddress: "A", VolumeUSD: 900},
	}}
	st := &fakeStore{subscribers: []int64{7}}
	n := &fakeNotifier{}

	r := New(gw, st, n, 10)
	r.Run(context.Background())

	assert.Empty(t, n.queued, "no broadcast without a previous board")
	assert.Equal(t, ranks("A"), st.ranks)
}

func TestRun_FetchErrorKeepsSnapshot(t *testing.T) {
	gw := &fakeGateway{err: errors.New("api down")}
	st := &fakeStore{ranks: ranks("A", "B"), subscribers: []int64{7}}
	n := &fakeNotifier{}

	r := New(gw, st, n, 10)
	r.Run(context.Background())

	assert.Empty(t, n.queued)
	assert.Zero(t, st.replaced)
	assert.Equal(t, ranks("A", "B"), st.ranks)
}
