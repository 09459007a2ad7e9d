package monitor

import (
	"bytes"
	"crypto/subtle"
	"encoding/json"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/shieldfi/walletmon/internal/adapters/helius"
)

const maxWebhookBody = 5 << 20

// WebhookHandler accepts enhanced-transaction pushes. When a secret is
// configured the request must carry it verbatim in the Authorization header.
// Checks run in the background; the handler answers as soon as they are queued.
func (m *Manager) WebhookHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
			return
		}
		if secret := m.cfg.WebhookSecret; secret != "" {
			got := r.Header.Get("Authorization")
			if subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
				log.Warn().Str("remote", r.RemoteAddr).Msg("monitor: webhook rejected, bad authorization")
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
				return
			}
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "read body"})
			return
		}
		txs, err := decodeWebhookBody(body)
		if err != nil {
			log.Debug().Err(err).Msg("monitor: webhook body not decodable")
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
			return
		}

		scheduled, err := m.HandleWebhook(r.Context(), txs)
		if err != nil {
			log.Error().Err(err).Msg("monitor: webhook handling failed")
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"received": len(txs), "scheduled": scheduled})
	})
}

// decodeWebhookBody accepts either an array of transactions or a single one.
func decodeWebhookBody(body []byte) ([]helius.EnhancedTransaction, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, nil
	}
	if body[0] == '[' {
		var txs []helius.EnhancedTransaction
		if err := json.Unmarshal(body, &txs); err != nil {
			return nil, err
		}
		return txs, nil
	}
	var tx helius.EnhancedTransaction
	if err := json.Unmarshal(body, &tx); err != nil {
		return nil, err
	}
	return []helius.EnhancedTransaction{tx}, nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("monitor: write response failed")
	}
}
