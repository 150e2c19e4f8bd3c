package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

var (
	ErrNotFound     = errors.New("db: not found")
	ErrLimitReached = errors.New("db: limit reached")
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
    id INTEGER PRIMARY KEY,
    username TEXT DEFAULT '',
    receive_kol_updates BOOLEAN DEFAULT TRUE,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS tracked_wallets (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id INTEGER NOT NULL REFERENCES users(id),
    wallet_address TEXT NOT NULL,
    label TEXT DEFAULT '',
    last_notified_signature TEXT,
    last_processed_block_time INTEGER,
    tracking_started_at INTEGER NOT NULL,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    UNIQUE(user_id, wallet_address)
);

CREATE TABLE IF NOT EXISTS price_alerts (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id INTEGER NOT NULL REFERENCES users(id),
    mint_address TEXT NOT NULL,
    target_price REAL NOT NULL,
    is_above_target BOOLEAN NOT NULL,
    is_triggered BOOLEAN DEFAULT FALSE,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS token_prices (
    mint_address TEXT PRIMARY KEY,
    symbol TEXT DEFAULT '',
    name TEXT DEFAULT '',
    current_price REAL NOT NULL,
    last_update_time INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS kol_ranks (
    rank INTEGER PRIMARY KEY,
    owner_address TEXT NOT NULL,
    name TEXT DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_wallet_addr ON tracked_wallets(wallet_address);
CREATE INDEX IF NOT EXISTS idx_wallet_user ON tracked_wallets(user_id);
CREATE INDEX IF NOT EXISTS idx_alert_mint ON price_alerts(mint_address, is_triggered);
CREATE INDEX IF NOT EXISTS idx_alert_user ON price_alerts(user_id);
`

// Store is the single owner of all persisted rows. Limits on tracked wallets
// and active alerts are enforced here, inside the same transaction as the
// insert, so concurrent commands cannot overshoot them.
type Store struct {
	db         *sql.DB
	maxWallets int
	maxAlerts  int
}

func NewStore(dbPath string, maxWallets, maxAlerts int) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return &Store{db: db, maxWallets: maxWallets, maxAlerts: maxAlerts}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// ---- Users ----

// EnsureUser creates the user row on first contact. Idempotent.
func (s *Store) EnsureUser(id int64, username string) error {
	_, err := s.db.Exec(`INSERT OR IGNORE INTO users (id, username) VALUES (?, ?)`, id, username)
	return err
}

func (s *Store) SetKOLUpdates(userID int64, enabled bool) error {
	_, err := s.db.Exec(`UPDATE users SET receive_kol_updates=? WHERE id=?`, enabled, userID)
	return err
}

func (s *Store) KOLSubscribers() ([]int64, error) {
	rows, err := s.db.Query(`SELECT id FROM users WHERE receive_kol_updates=TRUE`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ---- Tracked Wallets ----

func (s *Store) AddTrackedWallet(userID int64, address, label string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var count int
	if err := tx.QueryRow(`SELECT COUNT(*) FROM tracked_wallets WHERE user_id=?`, userID).Scan(&count); err != nil {
		return err
	}
	if count >= s.maxWallets {
		return ErrLimitReached
	}

	_, err = tx.Exec(`
		INSERT INTO tracked_wallets (user_id, wallet_address, label, tracking_started_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id, wallet_address) DO UPDATE SET label=excluded.label`,
		userID, address, label, time.Now().Unix())
	if err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) RemoveTrackedWallet(userID int64, address string) error {
	res, err := s.db.Exec(`DELETE FROM tracked_wallets WHERE user_id=? AND wallet_address=?`, userID, address)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) WalletsByUser(userID int64) ([]TrackedWallet, error) {
	rows, err := s.db.Query(`
		SELECT id, user_id, wallet_address, COALESCE(label,''), COALESCE(last_notified_signature,''),
		       COALESCE(last_processed_block_time,0), tracking_started_at, created_at
		FROM tracked_wallets WHERE user_id=? ORDER BY created_at ASC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanWallets(rows)
}

// TrackedWalletAddresses returns every distinct wallet under tracking,
// regardless of how many users track it.
func (s *Store) TrackedWalletAddresses() ([]string, error) {
	rows, err := s.db.Query(`SELECT DISTINCT wallet_address FROM tracked_wallets`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var addrs []string
	for rows.Next() {
		var a string
		if err := rows.Scan(&a); err != nil {
			continue
		}
		addrs = append(addrs, a)
	}
	return addrs, rows.Err()
}

func (s *Store) TrackersForWallet(address string) ([]TrackedWallet, error) {
	rows, err := s.db.Query(`
		SELECT id, user_id, wallet_address, COALESCE(label,''), COALESCE(last_notified_signature,''),
		       COALESCE(last_processed_block_time,0), tracking_started_at, created_at
		FROM tracked_wallets WHERE wallet_address=?`, address)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanWallets(rows)
}

// AdvanceWalletWatermark records the newest notified transfer for one
// (user, wallet) pair. Idempotent single-row update.
func (s *Store) AdvanceWalletWatermark(userID int64, address, signature string, blockTime int64) error {
	_, err := s.db.Exec(`
		UPDATE tracked_wallets
		SET last_notified_signature=?, last_processed_block_time=?
		WHERE user_id=? AND wallet_address=?`,
		signature, blockTime, userID, address)
	return err
}

func scanWallets(rows *sql.Rows) ([]TrackedWallet, error) {
	var wallets []TrackedWallet
	for rows.Next() {
		var w TrackedWallet
		if err := rows.Scan(&w.ID, &w.UserID, &w.WalletAddress, &w.Label, &w.LastNotifiedSignature,
			&w.LastProcessedBlockTime, &w.TrackingStartedAt, &w.CreatedAt); err != nil {
			continue
		}
		wallets = append(wallets, w)
	}
	return wallets, rows.Err()
}

// ---- Price Alerts ----

// AddPriceAlert inserts a new alert. Only non-triggered alerts count toward
// the per-user limit; triggered ones are inert and free.
func (s *Store) AddPriceAlert(userID int64, mint string, target float64, isAbove bool) (int64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var count int
	if err := tx.QueryRow(`SELECT COUNT(*) FROM price_alerts WHERE user_id=? AND is_triggered=FALSE`, userID).Scan(&count); err != nil {
		return 0, err
	}
	if count >= s.maxAlerts {
		return 0, ErrLimitReached
	}

	res, err := tx.Exec(`
		INSERT INTO price_alerts (user_id, mint_address, target_price, is_above_target)
		VALUES (?, ?, ?, ?)`, userID, mint, target, isAbove)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return id, tx.Commit()
}

func (s *Store) RemovePriceAlert(userID, alertID int64) error {
	res, err := s.db.Exec(`DELETE FROM price_alerts WHERE id=? AND user_id=?`, alertID, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) AlertsByUser(userID int64) ([]PriceAlert, error) {
	rows, err := s.db.Query(`
		SELECT id, user_id, mint_address, target_price, is_above_target, is_triggered, created_at
		FROM price_alerts WHERE user_id=? ORDER BY created_at ASC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAlerts(rows)
}

func (s *Store) ActiveAlertsForMint(mint string) ([]PriceAlert, error) {
	rows, err := s.db.Query(`
		SELECT id, user_id, mint_address, target_price, is_above_target, is_triggered, created_at
		FROM price_alerts WHERE mint_address=? AND is_triggered=FALSE`, mint)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAlerts(rows)
}

// MarkAlertTriggered flips is_triggered exactly once. The WHERE clause makes
// a second call a no-op, which is what keeps alerts one-shot across crashes.
func (s *Store) MarkAlertTriggered(alertID int64) error {
	_, err := s.db.Exec(`UPDATE price_alerts SET is_triggered=TRUE WHERE id=? AND is_triggered=FALSE`, alertID)
	return err
}

func scanAlerts(rows *sql.Rows) ([]PriceAlert, error) {
	var alerts []PriceAlert
	for rows.Next() {
		var a PriceAlert
		if err := rows.Scan(&a.ID, &a.UserID, &a.MintAddress, &a.TargetPrice, &a.IsAboveTarget, &a.IsTriggered, &a.CreatedAt); err != nil {
			continue
		}
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

// ---- Token Price Cache ----

func (s *Store) UpsertTokenPrice(p TokenPrice) error {
	_, err := s.db.Exec(`
		INSERT INTO token_prices (mint_address, symbol, name, current_price, last_update_time)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(mint_address) DO UPDATE SET
			symbol=excluded.symbol, name=excluded.name,
			current_price=excluded.current_price, last_update_time=excluded.last_update_time`,
		p.MintAddress, p.Symbol, p.Name, p.CurrentPrice, p.LastUpdateTime)
	return err
}

func (s *Store) GetTokenPrice(mint string) (*TokenPrice, error) {
	var p TokenPrice
	err := s.db.QueryRow(`
		SELECT mint_address, symbol, name, current_price, last_update_time
		FROM token_prices WHERE mint_address=?`, mint).
		Scan(&p.MintAddress, &p.Symbol, &p.Name, &p.CurrentPrice, &p.LastUpdateTime)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ---- KOL Ranking Snapshot ----

// ReplaceKOLRanks swaps the stored snapshot wholesale. Clear and bulk insert
// run in one transaction so a partial ranking is never visible.
func (s *Store) ReplaceKOLRanks(ranks []KOLRank) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM kol_ranks`); err != nil {
		return err
	}
	stmt, err := tx.Prepare(`INSERT INTO kol_ranks (rank, owner_address, name) VALUES (?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, r := range ranks {
		if _, err := stmt.Exec(r.Rank, r.OwnerAddress, r.Name); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) GetKOLRanks() ([]KOLRank, error) {
	rows, err := s.db.Query(`SELECT rank, owner_address, name FROM kol_ranks ORDER BY rank ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ranks []KOLRank
	for rows.Next() {
		var r KOLRank
		if err := rows.Scan(&r.Rank, &r.OwnerAddress, &r.Name); err != nil {
			continue
		}
		ranks = append(ranks, r)
	}
	return ranks, rows.Err()
}
