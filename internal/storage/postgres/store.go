package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/shieldfi/walletmon/internal/storage"
)

// Store implements storage.Store using PostgreSQL.
type Store struct {
	pool *Pool
}

// NewStore creates a store over an open pool. Run migrations first.
func NewStore(pool *Pool) *Store {
	return &Store{pool: pool}
}

var _ storage.Store = (*Store)(nil)

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) Close() {
	s.pool.Close()
}

// ---------------------------------------------------------------------------
// Delegations
// ---------------------------------------------------------------------------

func (s *Store) UpsertDelegation(ctx context.Context, d *storage.Delegation) error {
	if d == nil || d.WalletAddress == "" || d.TokenMint == "" || d.SpenderAddress == "" {
		return storage.ErrInvalidInput
	}
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	flags := d.RiskFlags
	if flags == nil {
		flags = []string{}
	}

	query := `
		INSERT INTO delegations (
			id, wallet_address, token_mint, spender_address, delegated_amount,
			owner_balance, is_unlimited, risk_level, risk_score, risk_flags,
			token_symbol, token_icon, last_scanned
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NULLIF($11, ''), NULLIF($12, ''), $13)
		ON CONFLICT (wallet_address, token_mint, spender_address) DO UPDATE SET
			delegated_amount = EXCLUDED.delegated_amount,
			owner_balance    = EXCLUDED.owner_balance,
			is_unlimited     = EXCLUDED.is_unlimited,
			risk_level       = EXCLUDED.risk_level,
			risk_score       = EXCLUDED.risk_score,
			risk_flags       = EXCLUDED.risk_flags,
			token_symbol     = EXCLUDED.token_symbol,
			token_icon       = EXCLUDED.token_icon,
			last_scanned     = EXCLUDED.last_scanned
		RETURNING id
	`

	err := s.pool.QueryRow(ctx, query,
		d.ID, d.WalletAddress, d.TokenMint, d.SpenderAddress, d.DelegatedAmount,
		d.OwnerBalance, d.IsUnlimited, d.RiskLevel, d.RiskScore, flags,
		d.TokenSymbol, d.TokenIcon, d.LastScanned,
	).Scan(&d.ID)
	if err != nil {
		return fmt.Errorf("upsert delegation: %w", err)
	}
	return nil
}

func (s *Store) ListDelegations(ctx context.Context, walletAddress string) ([]*storage.Delegation, error) {
	query := `
		SELECT id, wallet_address, token_mint, spender_address, delegated_amount,
		       owner_balance, is_unlimited, risk_level, risk_score, risk_flags,
		       COALESCE(token_symbol, ''), COALESCE(token_icon, ''), last_scanned
		FROM delegations
		WHERE wallet_address = $1
		ORDER BY risk_score DESC, token_mint ASC
	`

	rows, err := s.pool.Query(ctx, query, walletAddress)
	if err != nil {
		return nil, fmt.Errorf("list delegations: %w", err)
	}
	defer rows.Close()

	var result []*storage.Delegation
	for rows.Next() {
		var d storage.Delegation
		if err := rows.Scan(
			&d.ID, &d.WalletAddress, &d.TokenMint, &d.SpenderAddress, &d.DelegatedAmount,
			&d.OwnerBalance, &d.IsUnlimited, &d.RiskLevel, &d.RiskScore, &d.RiskFlags,
			&d.TokenSymbol, &d.TokenIcon, &d.LastScanned,
		); err != nil {
			return nil, fmt.Errorf("scan delegation: %w", err)
		}
		result = append(result, &d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate delegations: %w", err)
	}
	return result, nil
}

// ---------------------------------------------------------------------------
// Wallets
// ---------------------------------------------------------------------------

const walletColumns = `id, address, is_active, COALESCE(last_signature, ''), last_checked_at, COALESCE(notify_target, ''), created_at`

func (s *Store) UpsertWallet(ctx context.Context, w *storage.MonitoredWallet) (*storage.MonitoredWallet, error) {
	if w == nil || w.Address == "" {
		return nil, storage.ErrInvalidInput
	}
	id := w.ID
	if id == "" {
		id = uuid.NewString()
	}
	createdAt := w.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	query := `
		INSERT INTO monitored_wallets (id, address, is_active, notify_target, created_at)
		VALUES ($1, $2, TRUE, NULLIF($3, ''), $4)
		ON CONFLICT (address) DO UPDATE SET
			is_active     = TRUE,
			notify_target = COALESCE(EXCLUDED.notify_target, monitored_wallets.notify_target)
		RETURNING ` + walletColumns

	out, err := scanWallet(s.pool.QueryRow(ctx, query, id, w.Address, w.NotifyTarget, createdAt))
	if err != nil {
		return nil, fmt.Errorf("upsert wallet: %w", err)
	}
	return out, nil
}

func (s *Store) GetWallet(ctx context.Context, address string) (*storage.MonitoredWallet, error) {
	query := `SELECT ` + walletColumns + ` FROM monitored_wallets WHERE address = $1`

	w, err := scanWallet(s.pool.QueryRow(ctx, query, address))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get wallet: %w", err)
	}
	return w, nil
}

func (s *Store) DeactivateWallet(ctx context.Context, address string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE monitored_wallets SET is_active = FALSE WHERE address = $1`, address)
	if err != nil {
		return fmt.Errorf("deactivate wallet: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) ListActiveWallets(ctx context.Context) ([]*storage.MonitoredWallet, error) {
	query := `SELECT ` + walletColumns + ` FROM monitored_wallets WHERE is_active ORDER BY created_at ASC, address ASC`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list active wallets: %w", err)
	}
	defer rows.Close()

	var result []*storage.MonitoredWallet
	for rows.Next() {
		w, err := scanWallet(rows)
		if err != nil {
			return nil, fmt.Errorf("scan wallet: %w", err)
		}
		result = append(result, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate wallets: %w", err)
	}
	return result, nil
}

func (s *Store) UpdateCursor(ctx context.Context, address, lastSignature string, checkedAt time.Time) error {
	query := `
		UPDATE monitored_wallets
		SET last_signature  = COALESCE(NULLIF($2, ''), last_signature),
		    last_checked_at = $3
		WHERE address = $1
	`
	tag, err := s.pool.Exec(ctx, query, address, lastSignature, checkedAt)
	if err != nil {
		return fmt.Errorf("update cursor: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func scanWallet(row pgx.Row) (*storage.MonitoredWallet, error) {
	var w storage.MonitoredWallet
	if err := row.Scan(&w.ID, &w.Address, &w.IsActive, &w.LastSignature, &w.LastCheckedAt, &w.NotifyTarget, &w.CreatedAt); err != nil {
		return nil, err
	}
	return &w, nil
}

// ---------------------------------------------------------------------------
// Alerts and risk history
// ---------------------------------------------------------------------------

func (s *Store) AppendAlert(ctx context.Context, a *storage.MonitorAlert) error {
	if a == nil || a.MonitoredWalletID == "" || a.Type == "" {
		return storage.ErrInvalidInput
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO monitor_alerts (id, monitored_wallet_id, type, severity, title, message, tx_signature, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8)
	`
	_, err := s.pool.Exec(ctx, query, a.ID, a.MonitoredWalletID, a.Type, a.Severity, a.Title, a.Message, a.TxSignature, a.CreatedAt)
	if err != nil {
		switch {
		case isDuplicateKeyError(err):
			return storage.ErrDuplicateKey
		case isForeignKeyError(err):
			return storage.ErrInvalidInput
		}
		return fmt.Errorf("insert alert: %w", err)
	}
	return nil
}

func (s *Store) ListAlerts(ctx context.Context, walletID string, limit int) ([]*storage.MonitorAlert, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT id, monitored_wallet_id, type, severity, title, message, COALESCE(tx_signature, ''), created_at
		FROM monitor_alerts
		WHERE monitored_wallet_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`

	rows, err := s.pool.Query(ctx, query, walletID, limit)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	defer rows.Close()

	var result []*storage.MonitorAlert
	for rows.Next() {
		var a storage.MonitorAlert
		if err := rows.Scan(&a.ID, &a.MonitoredWalletID, &a.Type, &a.Severity, &a.Title, &a.Message, &a.TxSignature, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		result = append(result, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate alerts: %w", err)
	}
	return result, nil
}

func (s *Store) AppendRiskRecord(ctx context.Context, r *storage.RiskRecord) error {
	if r == nil || r.WalletAddress == "" {
		return storage.ErrInvalidInput
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	flags := r.Flags
	if flags == nil {
		flags = []string{}
	}

	query := `
		INSERT INTO wallet_risk_history (id, wallet_address, score, level, flags, approval_count, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := s.pool.Exec(ctx, query, r.ID, r.WalletAddress, r.Score, r.Level, flags, r.ApprovalCount, r.CreatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert risk record: %w", err)
	}
	return nil
}

func (s *Store) ListRiskRecords(ctx context.Context, walletAddress string, limit int) ([]*storage.RiskRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT id, wallet_address, score, level, flags, approval_count, created_at
		FROM wallet_risk_history
		WHERE wallet_address = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`

	rows, err := s.pool.Query(ctx, query, walletAddress, limit)
	if err != nil {
		return nil, fmt.Errorf("list risk records: %w", err)
	}
	defer rows.Close()

	var result []*storage.RiskRecord
	for rows.Next() {
		var r storage.RiskRecord
		if err := rows.Scan(&r.ID, &r.WalletAddress, &r.Score, &r.Level, &r.Flags, &r.ApprovalCount, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan risk record: %w", err)
		}
		result = append(result, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate risk records: %w", err)
	}
	return result, nil
}
