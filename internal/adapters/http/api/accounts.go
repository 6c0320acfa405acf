package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/okian/tally/internal/domain/ledger"
	"github.com/okian/tally/internal/domain/money"
)

type amountRequest struct {
	Amount *decimal.Decimal `json:"amount"`
}

type transferRequest struct {
	To       string           `json:"to"`
	Currency string           `json:"currency"`
	Amount   *decimal.Decimal `json:"amount"`
}

type resultResponse struct {
	ledger.Result
	Formatted string `json:"formatted,omitempty"`
	Error     string `json:"error,omitempty"`
}

type balanceResponse struct {
	Account   string          `json:"account"`
	Currency  string          `json:"currency"`
	Balance   decimal.Decimal `json:"balance"`
	Formatted string          `json:"formatted"`
}

// amount validates a request amount. Negative and missing values are
// rejected before the ledger sees them.
func amount(op string, d *decimal.Decimal) (decimal.Decimal, error) {
	if d == nil {
		return decimal.Zero, WrapKind(op, ErrBadRequest, money.ErrInvalidAmount)
	}
	v, err := money.ParseAmount(d.String())
	if err != nil {
		return decimal.Zero, Wrap(op, err)
	}
	return v, nil
}

func (s *Server) format(currency string, d decimal.Decimal) string {
	c, ok := s.deps.Ledger.Registry().Lookup(currency)
	if !ok {
		return ""
	}
	return c.Format(d)
}

func (s *Server) response(r ledger.Result) resultResponse {
	out := resultResponse{Result: r}
	if r.Currency != "" {
		out.Formatted = s.format(r.Currency, r.Balance)
	}
	if r.Err != nil {
		out.Error = r.Err.Error()
	}
	return out
}

// writeResult maps an outcome onto a status: success 200, insufficient
// funds 409, failures by their cause.
func (s *Server) writeResult(w http.ResponseWriter, r ledger.Result) {
	status := http.StatusOK
	switch r.Outcome {
	case ledger.Success:
	case ledger.InsufficientFunds:
		status = http.StatusConflict
	default:
		status, _ = classify(r.Err)
		if status < http.StatusBadRequest {
			status = http.StatusInternalServerError
		}
	}
	writeJSON(w, status, s.response(r))
}

func (s *Server) getBalances(w http.ResponseWriter, r *http.Request) {
	acct, ok := s.open(w, r, "api.get_balances")
	if !ok {
		return
	}
	all, err := acct.Balances(r.Context())
	if err != nil {
		writeError(w, Wrap("api.get_balances", err))
		return
	}
	out := make([]balanceResponse, 0, len(all))
	for _, c := range s.deps.Ledger.Registry().All() {
		bal, found := all[c.ID]
		if !found {
			continue
		}
		out = append(out, balanceResponse{Account: acct.ID(), Currency: c.ID, Balance: bal, Formatted: c.Format(bal)})
	}
	writeJSON(w, http.StatusOK, map[string]any{"account": acct.ID(), "balances": out})
}

func (s *Server) getBalance(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_balance"
	c, err := s.deps.Ledger.Registry().Resolve(chi.URLParam(r, "currency"))
	if err != nil {
		writeError(w, Wrap(op, err))
		return
	}
	acct, ok := s.open(w, r, op)
	if !ok {
		return
	}
	bal, err := acct.Balance(r.Context(), c.ID)
	if err != nil {
		writeError(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, balanceResponse{Account: acct.ID(), Currency: c.ID, Balance: bal, Formatted: c.Format(bal)})
}

// mutate decodes an amount body and applies fn to the request account.
func (s *Server) mutate(w http.ResponseWriter, r *http.Request, op string, fn func(*ledger.Account, string, decimal.Decimal) ledger.Result) {
	var req amountRequest
	if err := decode(r, op, &req); err != nil {
		writeError(w, err)
		return
	}
	v, err := amount(op, req.Amount)
	if err != nil {
		writeError(w, err)
		return
	}
	acct, ok := s.open(w, r, op)
	if !ok {
		return
	}
	s.writeResult(w, fn(acct, chi.URLParam(r, "currency"), v))
}

func (s *Server) setBalance(w http.ResponseWriter, r *http.Request) {
	s.mutate(w, r, "api.set_balance", func(a *ledger.Account, cur string, v decimal.Decimal) ledger.Result {
		return a.SetBalance(r.Context(), cur, v)
	})
}

func (s *Server) deposit(w http.ResponseWriter, r *http.Request) {
	s.mutate(w, r, "api.deposit", func(a *ledger.Account, cur string, v decimal.Decimal) ledger.Result {
		return a.Deposit(r.Context(), cur, v)
	})
}

func (s *Server) withdraw(w http.ResponseWriter, r *http.Request) {
	s.mutate(w, r, "api.withdraw", func(a *ledger.Account, cur string, v decimal.Decimal) ledger.Result {
		return a.Withdraw(r.Context(), cur, v)
	})
}

func (s *Server) resetBalance(w http.ResponseWriter, r *http.Request) {
	acct, ok := s.open(w, r, "api.reset_balance")
	if !ok {
		return
	}
	s.writeResult(w, acct.ResetBalance(r.Context(), chi.URLParam(r, "currency")))
}

func (s *Server) resetBalances(w http.ResponseWriter, r *http.Request) {
	acct, ok := s.open(w, r, "api.reset_balances")
	if !ok {
		return
	}
	results := acct.ResetBalances(r.Context())
	out := make([]resultResponse, 0, len(results))
	status := http.StatusOK
	for _, res := range results {
		if !res.OK() {
			status = http.StatusInternalServerError
		}
		out = append(out, s.response(res))
	}
	writeJSON(w, status, map[string]any{"account": acct.ID(), "results": out})
}

func (s *Server) transfer(w http.ResponseWriter, r *http.Request) {
	const op = "api.transfer"
	var req transferRequest
	if err := decode(r, op, &req); err != nil {
		writeError(w, err)
		return
	}
	to, err := parseID(req.To)
	if err != nil {
		writeError(w, err)
		return
	}
	v, err := amount(op, req.Amount)
	if err != nil {
		writeError(w, err)
		return
	}
	acct, ok := s.open(w, r, op)
	if !ok {
		return
	}
	s.writeResult(w, acct.Transfer(r.Context(), to, req.Currency, v))
}
