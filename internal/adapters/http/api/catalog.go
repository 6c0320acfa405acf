package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

type currencyResponse struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	Plural          string          `json:"plural"`
	Symbol          string          `json:"symbol"`
	DecimalPlaces   int32           `json:"decimal_places"`
	SymbolSuffix    bool            `json:"symbol_suffix"`
	StartingBalance decimal.Decimal `json:"starting_balance"`
	Default         bool            `json:"default"`
}

type playerRequest struct {
	Name string `json:"name"`
}

func (s *Server) listCurrencies(w http.ResponseWriter, _ *http.Request) {
	all := s.deps.Ledger.Registry().All()
	out := make([]currencyResponse, 0, len(all))
	for _, c := range all {
		out = append(out, currencyResponse{
			ID: c.ID, Name: c.Name, Plural: c.Plural, Symbol: c.Symbol,
			DecimalPlaces: c.DecimalPlaces, SymbolSuffix: c.SymbolSuffix,
			StartingBalance: c.StartingBalance, Default: c.Default,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"currencies": out, "cap": s.deps.Ledger.Registry().Cap()})
}

// registerPlayer handles PUT /api/v1/players/{id}: it records the display
// name and makes sure the account exists.
func (s *Server) registerPlayer(w http.ResponseWriter, r *http.Request) {
	const op = "api.register_player"
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	var req playerRequest
	if err := decode(r, op, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := s.deps.Players.Register(r.Context(), id, req.Name); err != nil {
		writeError(w, Wrap(op, err))
		return
	}
	if _, err := s.deps.Ledger.Open(r.Context(), id); err != nil {
		writeError(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id, "name": req.Name})
}
