package api

import (
	"net/http"
	"time"

	"github.com/agenttrust/trustcore/internal/capability"
	"github.com/agenttrust/trustcore/internal/errs"
)

type mintCapabilityBody struct {
	AgentID   string                 `json:"agentId"`
	Scope     map[string]interface{} `json:"scope"`
	IssuedBy  string                 `json:"issuedBy"`
	ExpiresAt time.Time              `json:"expiresAt"`
}

func (s *Server) handleMintCapability(w http.ResponseWriter, r *http.Request) {
	var body mintCapabilityBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, err)
		return
	}

	result, err := s.capability.Mint(r.Context(), capability.MintRequest{
		AgentID: body.AgentID, Scope: body.Scope, IssuedBy: body.IssuedBy, ExpiresAt: body.ExpiresAt,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"capability": result.Capability, "token": result.Token,
	})
}

type validateCapabilityBody struct {
	Token string `json:"token"`
}

func (s *Server) handleValidateCapability(w http.ResponseWriter, r *http.Request) {
	var body validateCapabilityBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, err)
		return
	}
	if body.Token == "" {
		writeError(w, errs.New(errs.Validation, "token is required"))
		return
	}

	result, err := s.capability.Validate(r.Context(), body.Token)
	if err != nil {
		writeError(w, err)
		return
	}
	resp := map[string]interface{}{"valid": result.Valid}
	if result.Reason != "" {
		resp["reason"] = result.Reason
	}
	if result.Capability != nil {
		resp["capability"] = result.Capability
	}
	writeJSON(w, http.StatusOK, resp)
}

type checkPermissionBody struct {
	AgentID string `json:"agentId"`
	Action  string `json:"action"`
}

func (s *Server) handleCheckPermission(w http.ResponseWriter, r *http.Request) {
	var body checkPermissionBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, err)
		return
	}
	if body.AgentID == "" || body.Action == "" {
		writeError(w, errs.New(errs.Validation, "agentId and action are required"))
		return
	}

	result, err := s.capability.CheckPermission(r.Context(), body.AgentID, body.Action)
	if err != nil {
		writeError(w, err)
		return
	}
	resp := map[string]interface{}{"granted": result.Granted}
	if result.Reason != "" {
		resp["reason"] = result.Reason
	}
	if result.Constraint != nil {
		resp["constraint"] = result.Constraint
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListCapabilities(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	agentID := q.Get("agentId")
	if agentID == "" {
		writeError(w, errs.New(errs.Validation, "agentId is required"))
		return
	}
	activeOnly := q.Get("activeOnly") == "true"

	caps, err := s.capability.List(r.Context(), agentID, activeOnly)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, caps)
}

func (s *Server) handleRevokeCapability(w http.ResponseWriter, r *http.Request) {
	cap, err := s.capability.Revoke(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cap)
}
