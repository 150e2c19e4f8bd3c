package db

import "time"

// ---- Core Models ----

type User struct {
	ID                int64     `json:"id"` // Telegram chat id
	Username          string    `json:"username"`
	ReceiveKOLUpdates bool      `json:"receive_kol_updates"`
	CreatedAt         time.Time `json:"created_at"`
}

type TrackedWallet struct {
	ID                     int64     `json:"id"`
	UserID                 int64     `json:"user_id"`
	WalletAddress          string    `json:"wallet_address"`
	Label                  string    `json:"label"`
	LastNotifiedSignature  string    `json:"last_notified_signature"`
	LastProcessedBlockTime int64     `json:"last_processed_block_time"` // unix seconds, 0 = never
	TrackingStartedAt      int64     `json:"tracking_started_at"`       // unix seconds
	CreatedAt              time.Time `json:"created_at"`
}

// TrackingStart resolves the watermark below which transfers are history.
// Falls back to the row creation time when tracking_started_at is missing
// (rows migrated from older schema versions). Returns 0 if neither is set.
func (w TrackedWallet) TrackingStart() int64 {
	if w.TrackingStartedAt > 0 {
		return w.TrackingStartedAt
	}
	if !w.CreatedAt.IsZero() {
		return w.CreatedAt.Unix()
	}
	return 0
}

type PriceAlert struct {
	ID            int64     `json:"id"`
	UserID        int64     `json:"user_id"`
	MintAddress   string    `json:"mint_address"`
	TargetPrice   float64   `json:"target_price"`
	IsAboveTarget bool      `json:"is_above_target"` // crossing direction, fixed at creation
	IsTriggered   bool      `json:"is_triggered"`
	CreatedAt     time.Time `json:"created_at"`
}

type TokenPrice struct {
	MintAddress    string  `json:"mint_address"`
	Symbol         string  `json:"symbol"`
	Name           string  `json:"name"`
	CurrentPrice   float64 `json:"current_price"`
	LastUpdateTime int64   `json:"last_update_time"` // unix seconds
}

type KOLRank struct {
	Rank         int    `json:"rank"` // 1-based
	OwnerAddress string `json:"owner_address"`
	Name         string `json:"name"`
}
