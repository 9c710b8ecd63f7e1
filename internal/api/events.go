package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/agenttrust/trustcore/internal/domain"
	"github.com/agenttrust/trustcore/internal/errs"
	"github.com/agenttrust/trustcore/internal/ledger"
	"github.com/agenttrust/trustcore/internal/store"
)

type appendEventBody struct {
	AgentID       string                 `json:"agent_id"`
	EventType     domain.EventType       `json:"event_type"`
	Timestamp     *time.Time             `json:"timestamp"`
	PrevHash      *string                `json:"prev_hash"`
	Payload       map[string]interface{} `json:"payload"`
	CorrelationID string                 `json:"correlation_id"`
	Hash          string                 `json:"hash"`
	Signature     string                 `json:"signature"`
}

func (s *Server) handleAppendEvent(w http.ResponseWriter, r *http.Request, ag *domain.Agent) {
	var body appendEventBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, err)
		return
	}
	if body.AgentID != ag.AgentID {
		writeError(w, errs.New(errs.Unauthorized, "signed agent_id does not match authenticated agent"))
		return
	}

	ev, err := s.ledger.Admit(r.Context(), ledger.AdmitRequest{
		AgentID: body.AgentID, EventType: body.EventType, Timestamp: body.Timestamp, PrevHash: body.PrevHash,
		Payload: body.Payload, CorrelationID: body.CorrelationID, Hash: body.Hash, Signature: body.Signature,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ev)
}

func (s *Server) handleQueryEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.EventFilter{
		AgentID:       q.Get("agentId"),
		EventType:     domain.EventType(q.Get("eventType")),
		CorrelationID: q.Get("correlationId"),
		Limit:         100,
	}
	if since := q.Get("since"); since != "" {
		if t, err := time.Parse(time.RFC3339, since); err == nil {
			filter.Since = &t
		}
	}
	if until := q.Get("until"); until != "" {
		if t, err := time.Parse(time.RFC3339, until); err == nil {
			filter.Until = &t
		}
	}
	if limit := q.Get("limit"); limit != "" {
		if n, err := strconv.Atoi(limit); err == nil {
			filter.Limit = n
		}
	}
	if offset := q.Get("offset"); offset != "" {
		if n, err := strconv.Atoi(offset); err == nil {
			filter.Offset = n
		}
	}

	events, err := s.ledger.Query(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func (s *Server) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, errs.New(errs.Validation, "id must be numeric"))
		return
	}
	ev, err := s.ledger.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

func (s *Server) handleLastHash(w http.ResponseWriter, r *http.Request) {
	agentID := r.PathValue("agentId")
	hash, err := s.ledger.LastHash(r.Context(), agentID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"agentId": agentID, "lastHash": hash})
}

type verifyChainBody struct {
	AgentID string `json:"agentId"`
}

func (s *Server) handleVerifyChain(w http.ResponseWriter, r *http.Request) {
	var body verifyChainBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, err)
		return
	}

	result, err := s.ledger.VerifyAgentChain(r.Context(), body.AgentID)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := map[string]interface{}{
		"valid":       result.Valid,
		"totalEvents": result.EventCount,
		"errors":      violationReasons(result.Violations),
	}
	if !result.Valid {
		resp["firstInvalidEvent"] = result.FirstOffendingID
	}
	writeJSON(w, http.StatusOK, resp)
}

func violationReasons(violations []ledger.ChainViolation) []string {
	reasons := make([]string, 0, len(violations))
	for _, v := range violations {
		reasons = append(reasons, v.Reason)
	}
	return reasons
}
