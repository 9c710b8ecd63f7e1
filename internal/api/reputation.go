package api

import (
	"net/http"

	"github.com/agenttrust/trustcore/internal/domain"
	"github.com/agenttrust/trustcore/internal/errs"
	"github.com/agenttrust/trustcore/internal/reputation"
)

func (s *Server) handleGetReputation(w http.ResponseWriter, r *http.Request) {
	rep, err := s.reputation.Get(r.Context(), r.PathValue("agentId"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (s *Server) handleListReputation(w http.ResponseWriter, r *http.Request) {
	reps, err := s.reputation.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reps)
}

type recordOutcomeBody struct {
	AgentID     string             `json:"agentId"`
	EventID     int64              `json:"eventId"`
	OutcomeType domain.OutcomeType `json:"outcomeType"`
	Reporter    string             `json:"reporter"`
	Impact      *float64           `json:"impact"`
	Details     string             `json:"details"`
}

func (s *Server) handleRecordOutcome(w http.ResponseWriter, r *http.Request) {
	var body recordOutcomeBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, err)
		return
	}

	rep, err := s.reputation.RecordOutcome(r.Context(), reputation.RecordOutcomeRequest{
		AgentID: body.AgentID, EventID: body.EventID, OutcomeType: body.OutcomeType,
		Reporter: body.Reporter, Impact: body.Impact, Details: body.Details,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rep)
}

type updateDomainScoreBody struct {
	Domain string  `json:"domain"`
	Score  float64 `json:"score"`
}

func (s *Server) handleUpdateDomainScore(w http.ResponseWriter, r *http.Request) {
	var body updateDomainScoreBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, err)
		return
	}
	if body.Domain == "" {
		writeError(w, errs.New(errs.Validation, "domain is required"))
		return
	}

	rep, err := s.reputation.UpdateDomainScore(r.Context(), r.PathValue("agentId"), body.Domain, body.Score)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (s *Server) handleShouldDowngrade(w http.ResponseWriter, r *http.Request) {
	verdict, err := s.reputation.ShouldDowngrade(r.Context(), r.PathValue("agentId"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, verdict)
}
