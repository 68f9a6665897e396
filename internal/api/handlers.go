package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/balance-tracker/internal/types"
)

// handleQueryBalances handles GET /api/v1/balances?save=true
func (s *Server) handleQueryBalances(w http.ResponseWriter, r *http.Request) {
	saveData := r.URL.Query().Get("save") == "true"

	snapshot, err := s.portfolio.QueryBalances(r.Context(), saveData)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, snapshot)
}

// handleSetupExchange handles PUT /api/v1/exchanges/{name}
func (s *Server) handleSetupExchange(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	var body struct {
		APIKey    string `json:"api_key"`
		APISecret string `json:"api_secret"`
	}
	if err := parseJSONBody(r, &body); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_INPUT", "invalid request body", nil)
		return
	}
	if body.APIKey == "" || body.APISecret == "" {
		respondError(w, http.StatusBadRequest, "INVALID_INPUT", "api_key and api_secret are required", nil)
		return
	}

	if err := s.portfolio.SetupExchange(r.Context(), types.ExchangeName(name), body.APIKey, body.APISecret); err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"result": "registered", "exchange": name})
}

// handleRemoveExchange handles DELETE /api/v1/exchanges/{name}
func (s *Server) handleRemoveExchange(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	if err := s.portfolio.RemoveExchange(types.ExchangeName(name)); err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"result": "unregistered", "exchange": name})
}

// handleGetSettings handles GET /api/v1/settings
func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.portfolio.GetSettings())
}

// handleShutdown handles POST /api/v1/shutdown. The response goes out before
// the process begins winding down; the server drains via graceful shutdown.
func (s *Server) handleShutdown(w http.ResponseWriter, r *http.Request) {
	s.portfolio.Shutdown()
	respondJSON(w, http.StatusOK, map[string]string{"result": "shutting down"})
}

// handleSetMainCurrency handles PUT /api/v1/settings/currency
func (s *Server) handleSetMainCurrency(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Currency string `json:"currency"`
	}
	if err := parseJSONBody(r, &body); err != nil || body.Currency == "" {
		respondError(w, http.StatusBadRequest, "INVALID_INPUT", "currency is required", nil)
		return
	}

	if err := s.portfolio.SetMainCurrency(r.Context(), body.Currency); err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, s.portfolio.GetSettings())
}
