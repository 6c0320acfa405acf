package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/okian/tally/internal/domain/jobs"
	"github.com/okian/tally/internal/domain/progression"
)

type jobRequest struct {
	Job string `json:"job"`
}

type levelRequest struct {
	Level *int `json:"level"`
}

type expRequest struct {
	Exp *int `json:"exp"`
	// Raw adds experience without applying level-ups.
	Raw bool `json:"raw"`
}

type jobStatsResponse struct {
	Job   string `json:"job"`
	Level int    `json:"level"`
	Exp   int    `json:"exp"`
}

// player opens the request account, creating its record on first lookup,
// and returns its progression handle.
func (s *Server) player(w http.ResponseWriter, r *http.Request, op string) (*progression.Player, bool) {
	acct, ok := s.open(w, r, op)
	if !ok {
		return nil, false
	}
	return s.deps.Progression.For(acct.ID()), true
}

func (s *Server) listJobs(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"jobs": s.deps.Progression.Jobs().All()})
}

func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_job"
	pl, ok := s.player(w, r, op)
	if !ok {
		return
	}
	info, err := pl.Info(r.Context())
	if err != nil {
		writeError(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) getJobStats(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_job_stats"
	job, err := s.deps.Progression.Jobs().Resolve(chi.URLParam(r, "job"))
	if err != nil {
		writeError(w, Wrap(op, err))
		return
	}
	pl, ok := s.player(w, r, op)
	if !ok {
		return
	}
	lvl, err := pl.JobLevel(r.Context(), job.Name)
	if err != nil {
		writeError(w, Wrap(op, err))
		return
	}
	exp, err := pl.JobExp(r.Context(), job.Name)
	if err != nil {
		writeError(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, jobStatsResponse{Job: job.Name, Level: lvl, Exp: exp})
}

// setJob handles PUT /accounts/{id}/job. The job requirement is checked
// against the permissions listed in X-Permissions.
func (s *Server) setJob(w http.ResponseWriter, r *http.Request) {
	const op = "api.set_job"
	var req jobRequest
	if err := decode(r, op, &req); err != nil {
		writeError(w, err)
		return
	}
	pl, ok := s.player(w, r, op)
	if !ok {
		return
	}
	info, err := pl.Join(r.Context(), req.Job, principal(r))
	if err != nil {
		writeError(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) setLevel(w http.ResponseWriter, r *http.Request) {
	const op = "api.set_level"
	var req levelRequest
	if err := decode(r, op, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Level == nil {
		writeError(w, NewKind(op, ErrBadRequest))
		return
	}
	pl, ok := s.player(w, r, op)
	if !ok {
		return
	}
	if err := pl.SetCurrentJobLevel(r.Context(), *req.Level); err != nil {
		writeError(w, Wrap(op, err))
		return
	}
	info, err := pl.Info(r.Context())
	if err != nil {
		writeError(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) grantExp(w http.ResponseWriter, r *http.Request) {
	const op = "api.grant_exp"
	var req expRequest
	if err := decode(r, op, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Exp == nil || *req.Exp > jobs.MaxExp || *req.Exp < -jobs.MaxExp {
		writeError(w, NewKind(op, ErrBadRequest))
		return
	}
	pl, ok := s.player(w, r, op)
	if !ok {
		return
	}
	if req.Raw {
		exp, err := pl.AddExpToCurrentJob(r.Context(), *req.Exp)
		if err != nil {
			writeError(w, Wrap(op, err))
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"exp": exp})
		return
	}
	grant, err := pl.GrantExp(r.Context(), *req.Exp)
	if err != nil {
		writeError(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, grant)
}

func (s *Server) getOptions(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_options"
	pl, ok := s.player(w, r, op)
	if !ok {
		return
	}
	notify, err := pl.HasJobNotifications(r.Context())
	if err != nil {
		writeError(w, Wrap(op, err))
		return
	}
	opts := make(map[string]string, len(progression.Options))
	for _, o := range progression.Options {
		v, err := pl.Option(r.Context(), o)
		if err != nil {
			writeError(w, Wrap(op, err))
			return
		}
		opts[o] = v
	}
	writeJSON(w, http.StatusOK, map[string]any{"notifications": notify, "options": opts})
}

func (s *Server) toggleNotifications(w http.ResponseWriter, r *http.Request) {
	const op = "api.toggle_notifications"
	pl, ok := s.player(w, r, op)
	if !ok {
		return
	}
	on, err := pl.ToggleNotifications(r.Context())
	if err != nil {
		writeError(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"notifications": on})
}

func (s *Server) toggleOption(w http.ResponseWriter, r *http.Request) {
	const op = "api.toggle_option"
	pl, ok := s.player(w, r, op)
	if !ok {
		return
	}
	option := chi.URLParam(r, "option")
	v, err := pl.ToggleOption(r.Context(), option)
	if err != nil {
		writeError(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"option": option, "value": v})
}
