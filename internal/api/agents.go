package api

import (
	"net/http"

	"github.com/agenttrust/trustcore/internal/domain"
	"github.com/agenttrust/trustcore/internal/registry"
	"github.com/agenttrust/trustcore/internal/store"
)

type registerAgentBody struct {
	PublicKey string                 `json:"publicKey"`
	Name      string                 `json:"name"`
	Owner     string                 `json:"owner"`
	Metadata  map[string]interface{} `json:"metadata"`
}

func (s *Server) handleRegisterAgent(w http.ResponseWriter, r *http.Request) {
	var body registerAgentBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, err)
		return
	}

	ag, err := s.registry.Register(r.Context(), registry.RegisterRequest{
		PublicKeyHex: body.PublicKey, Name: body.Name, Owner: body.Owner, Metadata: body.Metadata,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ag)
}

func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	filter := store.AgentFilter{
		Status: domain.AgentStatus(r.URL.Query().Get("status")),
		Owner:  r.URL.Query().Get("owner"),
	}
	agents, err := s.registry.List(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, agents)
}

func (s *Server) handleGetAgent(w http.ResponseWriter, r *http.Request) {
	ag, err := s.registry.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ag)
}

type revokeAgentBody struct {
	Reason string `json:"reason"`
}

func (s *Server) handleRevokeAgent(w http.ResponseWriter, r *http.Request) {
	var body revokeAgentBody
	if r.ContentLength != 0 {
		if err := decodeBody(r, &body); err != nil {
			writeError(w, err)
			return
		}
	}

	ag, err := s.registry.Revoke(r.Context(), r.PathValue("id"), body.Reason)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ag)
}
