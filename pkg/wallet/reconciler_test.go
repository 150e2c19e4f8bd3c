package wallet

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
	transfers  map[string][]vybe.Transfer
	signatures map[string][]string
	fetches    int
}

func (g *fakeGateway) RecentTransfers(_ context.Context, wallet string, _ int) ([]vybe.Transfer, error) {
	g.fetches++
	return g.transfers[wallet], nil
}

func (g *fakeGateway) RecentSignatures(_ context.Context, wallet string, _ int) ([]string, error) {
	return g.signatures[wallet], nil
}

type fakeStore struct {
	trackers   map[string][]db.TrackedWallet
	watermarks map[int64]struct {
		sig string
		bt  int64
	}
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		trackers: make(map[string][]db.TrackedWallet),
		watermarks: make(map[int64]struct {
			sig string
			bt  int64
		}),
	}
}

func (s *fakeStore) TrackedWalletAddresses() ([]string, error) {
	var addrs []string
	for a := range s.trackers {
		addrs = append(addrs, a)
	}
	return addrs, nil
}

func (s *fakeStore) TrackersForWallet(address string) ([]db.TrackedWallet, error) {
	return s.trackers[address], nil
}

func (s *fakeStore) AdvanceWalletWatermark(userID int64, address, signature string, blockTime int64) error {
	s.watermarks[userID] = struct {
		sig string
		bt  int64
	}{signature, blockTime}
	// Keep the in-memory tracker rows consistent, like the real store does
	// for the next cycle's read.
	for i, tr := range s.trackers[address] {
		if tr.UserID == userID {
			s.trackers[address][i].LastNotifiedSignature = signature
			s.trackers[address][i].LastProcessedBlockTime = blockTime
		}
	}
	return nil
}

type fakeNotifier struct {
	sent []string
	to   []int64
	err  error
}

func (n *fakeNotifier) Send(_ context.Context, chatID int64, text string) error {
	if n.err != nil {
		return n.err
	}
	n.to = append(n.to, chatID)
	n.sent = append(n.sent, text)
	return nil
}

func tracker(userID int64, wallet string, startedAt int64) db.TrackedWallet {
	return db.TrackedWallet{UserID: userID, WalletAddress: wallet, TrackingStartedAt: startedAt}
}

func TestNewTransfersFor_TrackingStartFilter(t *testing.T) {
	// Newest first: 1100 is after the start, 900 is history.
	transfers := []vybe.Transfer{
		{Signature: "s3", BlockTime: 1100},
		{Signature: "s2", BlockTime: 900},
		{Signature: "s1", BlockTime: 800},
	}

	fresh := NewTransfersFor(tracker(1, "w", 1000), transfers)
	require.Len(t, fresh, 1)
	assert.Equal(t, "s3", fresh[0].Signature)
}

func TestNewTransfersFor_BreaksAtNotifiedSignature(t *testing.T) {
	tr := tracker(1, "w", 500)
	tr.LastNotifiedSignature = "s2"

	transfers := []vybe.Transfer{
		{Signature: "s4", BlockTime: 1300},
		{Signature: "s3", BlockTime: 1200},
		{Signature: "s2", BlockTime: 1100},
		{Signature: "s1", BlockTime: 1000},
	}

	fresh := NewTransfersFor(tr, transfers)
	require.Len(t, fresh, 2)
	assert.Equal(t, "s4", fresh[0].Signature)
	assert.Equal(t, "s3", fresh[1].Signature)
}

func TestNewTransfersFor_BlockTimeWatermark(t *testing.T) {
	// Signature rotated out of the fetch window: the block-time watermark
	// still fences off everything already accounted for.
	tr := tracker(1, "w", 500)
	tr.LastNotifiedSignature = "gone"
	tr.LastProcessedBlockTime = 1100

	transfers := []vybe.Transfer{
		{Signature: "s4", BlockTime: 1300},
		{Signature: "s3", BlockTime: 1100},
		{Signature: "s2", BlockTime: 1000},
	}

	fresh := NewTransfersFor(tr, transfers)
	require.Len(t, fresh, 1)
	assert.Equal(t, "s4", fresh[0].Signature)
}

func TestNewTransfersFor_DedupesWithinBatch(t *testing.T) {
	transfers := []vybe.Transfer{
		{Signature: "s1", BlockTime: 1100},
		{Signature: "s1", BlockTime: 1100},
	}

	fresh := NewTransfersFor(tracker(1, "w", 1000), transfers)
	assert.Len(t, fresh, 1)
}

func TestNewTransfersFor_NoTrackingStart(t *testing.T) {
	fresh := NewTransfersFor(db.TrackedWallet{UserID: 1, WalletAddress: "w"}, []vybe.Transfer{
		{Signature: "s1", BlockTime: 1100},
	})
	assert.Nil(t, fresh)
}

func TestRun_NotifiesAndAdvancesWatermark(t *testing.T) {
	gw := &fakeGateway{
		transfers: map[string][]vybe.Transfer{
			"w": {
				{Signature: "s2", BlockTime: 1100, SenderAddress: "w", ReceiverAddress: "x", Symbol: "SOL", Amount: 1},
				{Signature: "s1", BlockTime: 900, SenderAddress: "y", ReceiverAddress: "w", Symbol: "SOL", Amount: 2},
			},
		},
		signatures: map[string][]string{"w": {"s2"}},
	}
	st := newFakeStore()
	st.trackers["w"] = []db.TrackedWallet{tracker(7, "w", 1000)}
	n := &fakeNotifier{}

	r := New(gw, st, n, Config{})
	r.Run(context.Background())

	require.Len(t, n.sent, 1)
	assert.Equal(t, []int64{7}, n.to)
	wm := st.watermarks[7]
	assert.Equal(t, "s2", wm.sig)
	assert.Equal(t, int64(1100), wm.bt)

	// Second cycle: newest signature matches the watermark, the probe
	// short-circuits and nothing is re-sent.
	fetchesBefore := gw.fetches
	r.Run(context.Background())
	assert.Len(t, n.sent, 1)
	assert.Equal(t, fetchesBefore, gw.fetches)
}

func TestRun_SendFailureKeepsWatermark(t *testing.T) {
	gw := &fakeGateway{
		transfers: map[string][]vybe.Transfer{
			"w": {{Signature: "s1", BlockTime: 1100, SenderAddress: "w", ReceiverAddress: "x"}},
		},
	}
	st := newFakeStore()
	st.trackers["w"] = []db.TrackedWallet{tracker(7, "w", 1000)}
	n := &fakeNotifier{err: errors.New("telegram down")}

	r := New(gw, st, n, Config{})
	r.Run(context.Background())

	_, advanced := st.watermarks[7]
	assert.False(t, advanced, "watermark must not move on failed delivery")

	// Delivery recovers: the same transfer goes out next cycle.
	n.err = nil
	r.Run(context.Background())
	require.Len(t, n.sent, 1)
	assert.Equal(t, "s1", st.watermarks[7].sig)
}

func TestRun_SpamFiltered(t *testing.T) {
	gw := &fakeGateway{
		transfers: map[string][]vybe.Transfer{
			"w": {
				{Signature: "s2", BlockTime: 1200, SenderAddress: "spammer", ReceiverAddress: "w"},
				{Signature: "s1", BlockTime: 1100, SenderAddress: "w", ReceiverAddress: "x"},
			},
		},
	}
	st := newFakeStore()
	st.trackers["w"] = []db.TrackedWallet{tracker(7, "w", 1000)}
	n := &fakeNotifier{}

	r := New(gw, st, n, Config{SpamList: []string{"spammer"}})
	r.Run(context.Background())

	require.Len(t, n.sent, 1)
	assert.NotContains(t, n.sent[0], "s2")
	assert.Equal(t, "s1", st.watermarks[7].sig)
}

func TestRun_MultipleTrackersIndependentWatermarks(t *testing.T) {
	gw := &fakeGateway{
		transfers: map[string][]vybe.Transfer{
			"w": {
				{Signature: "s2", BlockTime: 1200, SenderAddress: "w", ReceiverAddress: "x"},
				{Signature: "s1", BlockTime: 1100, SenderAddress: "y", ReceiverAddress: "w"},
			},
		},
	}
	st := newFakeStore()
	caughtUp := tracker(1, "w", 1000)
	caughtUp.LastNotifiedSignature = "s2"
	caughtUp.LastProcessedBlockTime = 1200
	st.trackers["w"] = []db.TrackedWallet{caughtUp, tracker(2, "w", 1000)}
	n := &fakeNotifier{}

	r := New(gw, st, n, Config{})
	r.Run(context.Background())

	// Only the user behind the watermark is notified.
	assert.Equal(t, []int64{2}, n.to)
}

func TestHandleTransfer_PushMode(t *testing.T) {
	st := newFakeStore()
	st.trackers["w"] = []db.TrackedWallet{tracker(7, "w", 1000)}
	n := &fakeNotifier{}

	r := New(&fakeGateway{}, st, n, Config{SpamList: []string{"spammer"}})

	r.HandleTransfer(context.Background(), vybe.Transfer{
		Signature: "s1", BlockTime: 1100, SenderAddress: "y", ReceiverAddress: "w",
	})
	require.Len(t, n.sent, 1)
	assert.Equal(t, "s1", st.watermarks[7].sig)

	// Spam events never notify.
	r.HandleTransfer(context.Background(), vybe.Transfer{
		Signature: "s2", BlockTime: 1200, SenderAddress: "spammer", ReceiverAddress: "w",
	})
	assert.Len(t, n.sent, 1)

	// Stale events behind the cached block time are dropped.
	r.HandleTransfer(context.Background(), vybe.Transfer{
		Signature: "s0", BlockTime: 1050, SenderAddress: "y", ReceiverAddress: "w",
	})
	assert.Len(t, n.sent, 1)
}
