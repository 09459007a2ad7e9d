package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/shieldfi/walletmon/internal/monitor"
	"github.com/shieldfi/walletmon/internal/scanner"
	"github.com/shieldfi/walletmon/internal/storage"
)

// walletScanner is the slice of *scanner.Scanner the API serves.
type walletScanner interface {
	LookupWalletApprovals(ctx context.Context, address string) (*scanner.Snapshot, error)
	ScanWalletApprovals(ctx context.Context, address string) ([]storage.Delegation, error)
	AnalyzeWalletRisk(ctx context.Context, address string) (*scanner.RiskAnalysis, error)
}

// walletMonitor is the slice of *monitor.Manager the API serves.
type walletMonitor interface {
	AddWallet(ctx context.Context, address, notifyTarget string) (*storage.MonitoredWallet, error)
	RemoveWallet(ctx context.Context, address string) error
	CheckWallet(ctx context.Context, address string) ([]monitor.Alert, error)
}

type api struct {
	scans   walletScanner
	wallets walletMonitor
	store   storage.Store
}

func (a *api) register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/wallets/{address}/approvals", a.getApprovals)
	mux.HandleFunc("POST /api/wallets/{address}/scan", a.postScan)
	mux.HandleFunc("GET /api/wallets/{address}/delegations", a.getDelegations)
	mux.HandleFunc("GET /api/wallets/{address}/risk", a.getRisk)
	mux.HandleFunc("GET /api/wallets/{address}/risk/history", a.getRiskHistory)

	mux.HandleFunc("GET /api/monitor", a.listMonitored)
	mux.HandleFunc("POST /api/monitor", a.postMonitor)
	mux.HandleFunc("DELETE /api/monitor/{address}", a.deleteMonitor)
	mux.HandleFunc("GET /api/monitor/{address}/alerts", a.getAlerts)
	mux.HandleFunc("POST /api/monitor/{address}/check", a.postCheck)
}

// ---------------------------------------------------------------------------
// Approvals and risk
// ---------------------------------------------------------------------------

func (a *api) getApprovals(w http.ResponseWriter, r *http.Request) {
	snap, err := a.scans.LookupWalletApprovals(r.Context(), r.PathValue("address"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (a *api) postScan(w http.ResponseWriter, r *http.Request) {
	delegations, err := a.scans.ScanWalletApprovals(r.Context(), r.PathValue("address"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"delegations": delegations, "count": len(delegations)})
}

func (a *api) getDelegations(w http.ResponseWriter, r *http.Request) {
	delegations, err := a.store.ListDelegations(r.Context(), r.PathValue("address"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"delegations": nonNil(delegations)})
}

func (a *api) getRisk(w http.ResponseWriter, r *http.Request) {
	analysis, err := a.scans.AnalyzeWalletRisk(r.Context(), r.PathValue("address"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, analysis)
}

func (a *api) getRiskHistory(w http.ResponseWriter, r *http.Request) {
	records, err := a.store.ListRiskRecords(r.Context(), r.PathValue("address"), queryLimit(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": nonNil(records)})
}

// ---------------------------------------------------------------------------
// Monitoring
// ---------------------------------------------------------------------------

type monitorRequest struct {
	Address      string `json:"address"`
	NotifyTarget string `json:"notify_target"`
}

func (a *api) postMonitor(w http.ResponseWriter, r *http.Request) {
	var req monitorRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<16)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	wallet, err := a.wallets.AddWallet(r.Context(), req.Address, req.NotifyTarget)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, wallet)
}

func (a *api) deleteMonitor(w http.ResponseWriter, r *http.Request) {
	if err := a.wallets.RemoveWallet(r.Context(), r.PathValue("address")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"removed": true})
}

func (a *api) listMonitored(w http.ResponseWriter, r *http.Request) {
	wallets, err := a.store.ListActiveWallets(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"wallets": nonNil(wallets)})
}

func (a *api) getAlerts(w http.ResponseWriter, r *http.Request) {
	wallet, err := a.store.GetWallet(r.Context(), r.PathValue("address"))
	if err != nil {
		writeError(w, err)
		return
	}
	alerts, err := a.store.ListAlerts(r.Context(), wallet.ID, queryLimit(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"alerts": nonNil(alerts)})
}

func (a *api) postCheck(w http.ResponseWriter, r *http.Request) {
	alerts, err := a.wallets.CheckWallet(r.Context(), r.PathValue("address"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"alerts": nonNil(alerts)})
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func queryLimit(r *http.Request) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || n <= 0 || n > 500 {
		return 50
	}
	return n
}

func nonNil[T any](xs []T) []T {
	if xs == nil {
		return []T{}
	}
	return xs
}

func writeError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	msg := "internal error"
	switch {
	case errors.Is(err, scanner.ErrInvalidAddress), errors.Is(err, monitor.ErrInvalidAddress),
		errors.Is(err, storage.ErrInvalidInput):
		code, msg = http.StatusBadRequest, "invalid wallet address"
	case errors.Is(err, storage.ErrNotFound):
		code, msg = http.StatusNotFound, "wallet not found"
	case errors.Is(err, context.Canceled):
		code, msg = 499, "request cancelled"
	default:
		log.Error().Err(err).Msg("api: request failed")
	}
	writeJSON(w, code, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("api: write response failed")
	}
}
