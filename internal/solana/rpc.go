package solana

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// ---------------------------------------------------------------------------
// RPC Client Interface
// ---------------------------------------------------------------------------

// RPCClient is the interface for Solana chain-data calls.
// Implementations: LiveRPCClient (real endpoint), StubRPCClient (testing).
type RPCClient interface {
	// GetTokenAccountsByOwner returns all token accounts of owner under one token program.
	GetTokenAccountsByOwner(ctx context.Context, owner, programID Pubkey) ([]TokenAccount, error)

	// GetBalance returns the native balance in lamports.
	GetBalance(ctx context.Context, account Pubkey) (uint64, error)

	// GetSlot returns the latest slot. Used as a liveness probe.
	GetSlot(ctx context.Context) (uint64, error)

	// GetAccountInfo returns basic account facts. A missing account is not an error.
	GetAccountInfo(ctx context.Context, account Pubkey) (*AccountInfo, error)

	// Health returns the RPC endpoint health.
	Health(ctx context.Context) error
}

// Acquirer gates outbound calls on a shared budget.
type Acquirer interface {
	Acquire(ctx context.Context) error
}

// RPCConfig configures the Solana RPC client.
type RPCConfig struct {
	Endpoint   string        `yaml:"endpoint"`    // e.g. https://mainnet.helius-rpc.com/?api-key=...
	WSEndpoint string        `yaml:"ws_endpoint"` // e.g. wss://api.mainnet-beta.solana.com
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
}

// DefaultRPCConfig returns public mainnet defaults.
func DefaultRPCConfig() RPCConfig {
	return RPCConfig{
		Endpoint:   "https://api.mainnet-beta.solana.com",
		WSEndpoint: "wss://api.mainnet-beta.solana.com",
		Timeout:    10 * time.Second,
		MaxRetries: 2,
	}
}

// ---------------------------------------------------------------------------
// Stub RPC Client (for testing and development)
// ---------------------------------------------------------------------------

// StubRPCClient is an in-memory RPC client for testing.
type StubRPCClient struct {
	mu       sync.RWMutex
	accounts map[Pubkey][]TokenAccount // owner -> accounts (all programs)
	balances map[Pubkey]uint64
	infos    map[Pubkey]*AccountInfo
	slot     uint64
	failAll  bool
	failNext bool
	calls    map[string]int
}

// NewStubRPCClient creates a stub RPC client for testing.
func NewStubRPCClient() *StubRPCClient {
	return &StubRPCClient{
		accounts: make(map[Pubkey][]TokenAccount),
		balances: make(map[Pubkey]uint64),
		infos:    make(map[Pubkey]*AccountInfo),
		slot:     1,
		calls:    make(map[string]int),
	}
}

// AddTokenAccount registers a token account for its owner.
func (s *StubRPCClient) AddTokenAccount(acct TokenAccount) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if acct.Program == "" {
		acct.Program = TokenProgramID
	}
	s.accounts[acct.Owner] = append(s.accounts[acct.Owner], acct)
}

// SetBalance sets the native balance of an account.
func (s *StubRPCClient) SetBalance(account Pubkey, lamports uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances[account] = lamports
}

// SetAccountInfo registers account facts returned by GetAccountInfo.
func (s *StubRPCClient) SetAccountInfo(info AccountInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	info.Exists = true
	s.infos[info.Address] = &info
}

// SetFailNext makes the next call fail.
func (s *StubRPCClient) SetFailNext() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = true
}

// SetFailAll makes every call fail until reset.
func (s *StubRPCClient) SetFailAll(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failAll = fail
}

// Calls returns how many times a method was invoked.
func (s *StubRPCClient) Calls(method string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.calls[method]
}

func (s *StubRPCClient) begin(method string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[method]++
	if s.failAll {
		return true
	}
	if s.failNext {
		s.failNext = false
		return true
	}
	return false
}

// --- Interface implementation ---

func (s *StubRPCClient) GetTokenAccountsByOwner(_ context.Context, owner, programID Pubkey) ([]TokenAccount, error) {
	if s.begin("getTokenAccountsByOwner") {
		return nil, fmt.Errorf("stub: simulated RPC failure")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []TokenAccount
	for _, a := range s.accounts[owner] {
		if a.Program == programID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *StubRPCClient) GetBalance(_ context.Context, account Pubkey) (uint64, error) {
	if s.begin("getBalance") {
		return 0, fmt.Errorf("stub: simulated RPC failure")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.balances[account], nil
}

func (s *StubRPCClient) GetSlot(_ context.Context) (uint64, error) {
	if s.begin("getSlot") {
		return 0, fmt.Errorf("stub: simulated RPC failure")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slot++
	return s.slot, nil
}

func (s *StubRPCClient) GetAccountInfo(_ context.Context, account Pubkey) (*AccountInfo, error) {
	if s.begin("getAccountInfo") {
		return nil, fmt.Errorf("stub: simulated RPC failure")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if info, ok := s.infos[account]; ok {
		cp := *info
		return &cp, nil
	}
	return &AccountInfo{Address: account}, nil
}

func (s *StubRPCClient) Health(_ context.Context) error {
	if s.begin("getHealth") {
		return fmt.Errorf("stub: simulated RPC failure")
	}
	return nil
}
