package api

import (
	"net/http"
	"strconv"

	"github.com/okian/tally/internal/domain/leaderboard"
)

// getLeaderboard handles GET /api/v1/leaderboard?currency=&limit=&wait=.
// The cached snapshot is served immediately; 202 means the first ranking of
// the currency is still being computed. wait=true blocks until a fresh
// snapshot exists.
func (s *Server) getLeaderboard(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_leaderboard"
	q := r.URL.Query()
	limit := 0
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, WrapKind(op, ErrBadRequest, err))
			return
		}
		limit = n
	}
	cur := q.Get("currency")
	view, err := s.deps.Leaderboard.Get(r.Context(), cur)
	if err != nil {
		writeError(w, Wrap(op, err))
		return
	}
	if wait, _ := strconv.ParseBool(q.Get("wait")); wait && view.Calculating {
		if err := s.deps.Leaderboard.Wait(r.Context(), cur); err != nil {
			writeError(w, Wrap(op, err))
			return
		}
		if view, err = s.deps.Leaderboard.Get(r.Context(), cur); err != nil {
			writeError(w, Wrap(op, err))
			return
		}
	}
	if view.Snapshot == nil {
		writeJSON(w, http.StatusAccepted, view)
		return
	}
	if limit > 0 && limit < len(view.Snapshot.Entries) {
		trimmed := *view.Snapshot
		trimmed.Entries = trimmed.Entries[:limit]
		view = leaderboard.View{Snapshot: &trimmed, Calculating: view.Calculating}
	}
	writeJSON(w, http.StatusOK, view)
}
