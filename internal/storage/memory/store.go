package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shieldfi/walletmon/internal/storage"
)

// Store is an in-memory implementation of storage.Store.
// Records are copied on the way in and on the way out.
type Store struct {
	mu          sync.RWMutex
	delegations map[delegationKey]*storage.Delegation
	wallets     map[string]*storage.MonitoredWallet // by address
	alerts      []*storage.MonitorAlert
	risk        []*storage.RiskRecord
	now         func() time.Time
}

type delegationKey struct {
	wallet, mint, spender string
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		delegations: make(map[delegationKey]*storage.Delegation),
		wallets:     make(map[string]*storage.MonitoredWallet),
		now:         time.Now,
	}
}

var _ storage.Store = (*Store)(nil)

// ---------------------------------------------------------------------------
// Delegations
// ---------------------------------------------------------------------------

func (s *Store) UpsertDelegation(_ context.Context, d *storage.Delegation) error {
	if d == nil || d.WalletAddress == "" || d.TokenMint == "" || d.SpenderAddress == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := delegationKey{d.WalletAddress, d.TokenMint, d.SpenderAddress}
	cp := copyDelegation(d)
	if existing, ok := s.delegations[key]; ok {
		cp.ID = existing.ID
	} else if cp.ID == "" {
		cp.ID = uuid.NewString()
	}
	d.ID = cp.ID
	s.delegations[key] = cp
	return nil
}

func (s *Store) ListDelegations(_ context.Context, walletAddress string) ([]*storage.Delegation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*storage.Delegation
	for key, d := range s.delegations {
		if key.wallet == walletAddress {
			result = append(result, copyDelegation(d))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].RiskScore != result[j].RiskScore {
			return result[i].RiskScore > result[j].RiskScore
		}
		return result[i].TokenMint < result[j].TokenMint
	})
	return result, nil
}

func copyDelegation(d *storage.Delegation) *storage.Delegation {
	cp := *d
	cp.RiskFlags = append([]string(nil), d.RiskFlags...)
	return &cp
}

// ---------------------------------------------------------------------------
// Wallets
// ---------------------------------------------------------------------------

func (s *Store) UpsertWallet(_ context.Context, w *storage.MonitoredWallet) (*storage.MonitoredWallet, error) {
	if w == nil || w.Address == "" {
		return nil, storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.wallets[w.Address]; ok {
		existing.IsActive = true
		if w.NotifyTarget != "" {
			existing.NotifyTarget = w.NotifyTarget
		}
		return copyWallet(existing), nil
	}

	cp := copyWallet(w)
	if cp.ID == "" {
		cp.ID = uuid.NewString()
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = s.now()
	}
	cp.IsActive = true
	s.wallets[w.Address] = cp
	return copyWallet(cp), nil
}

func (s *Store) GetWallet(_ context.Context, address string) (*storage.MonitoredWallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	w, ok := s.wallets[address]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return copyWallet(w), nil
}

func (s *Store) DeactivateWallet(_ context.Context, address string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.wallets[address]
	if !ok {
		return storage.ErrNotFound
	}
	w.IsActive = false
	return nil
}

func (s *Store) ListActiveWallets(_ context.Context) ([]*storage.MonitoredWallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*storage.MonitoredWallet
	for _, w := range s.wallets {
		if w.IsActive {
			result = append(result, copyWallet(w))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].Address < result[j].Address
	})
	return result, nil
}

func (s *Store) UpdateCursor(_ context.Context, address, lastSignature string, checkedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.wallets[address]
	if !ok {
		return storage.ErrNotFound
	}
	if lastSignature != "" {
		w.LastSignature = lastSignature
	}
	t := checkedAt
	w.LastCheckedAt = &t
	return nil
}

func copyWallet(w *storage.MonitoredWallet) *storage.MonitoredWallet {
	cp := *w
	if w.LastCheckedAt != nil {
		t := *w.LastCheckedAt
		cp.LastCheckedAt = &t
	}
	return &cp
}

// ---------------------------------------------------------------------------
// Alerts and risk history
// ---------------------------------------------------------------------------

func (s *Store) AppendAlert(_ context.Context, a *storage.MonitorAlert) error {
	if a == nil || a.MonitoredWalletID == "" || a.Type == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *a
	if cp.ID == "" {
		cp.ID = uuid.NewString()
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = s.now()
	}
	a.ID = cp.ID
	s.alerts = append(s.alerts, &cp)
	return nil
}

func (s *Store) ListAlerts(_ context.Context, walletID string, limit int) ([]*storage.MonitorAlert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*storage.MonitorAlert
	for i := len(s.alerts) - 1; i >= 0; i-- {
		if s.alerts[i].MonitoredWalletID != walletID {
			continue
		}
		cp := *s.alerts[i]
		result = append(result, &cp)
		if limit > 0 && len(result) == limit {
			break
		}
	}
	return result, nil
}

func (s *Store) AppendRiskRecord(_ context.Context, r *storage.RiskRecord) error {
	if r == nil || r.WalletAddress == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *r
	cp.Flags = append([]string(nil), r.Flags...)
	if cp.ID == "" {
		cp.ID = uuid.NewString()
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = s.now()
	}
	r.ID = cp.ID
	s.risk = append(s.risk, &cp)
	return nil
}

func (s *Store) ListRiskRecords(_ context.Context, walletAddress string, limit int) ([]*storage.RiskRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*storage.RiskRecord
	for i := len(s.risk) - 1; i >= 0; i-- {
		if s.risk[i].WalletAddress != walletAddress {
			continue
		}
		cp := *s.risk[i]
		cp.Flags = append([]string(nil), s.risk[i].Flags...)
		result = append(result, &cp)
		if limit > 0 && len(result) == limit {
			break
		}
	}
	return result, nil
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close() {}
