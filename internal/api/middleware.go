package api

import (
	"bytes"
	"io"
	"net/http"
	"strconv"

	"github.com/agenttrust/trustcore/internal/authn"
	"github.com/agenttrust/trustcore/internal/domain"
	"github.com/agenttrust/trustcore/internal/errs"
)

// readBody drains r.Body into memory and replaces it with a fresh
// reader, so the signature check and the JSON decoder can both read
// the exact same bytes.
func readBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	data, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, errs.Wrap(errs.Validation, "read request body", err)
	}
	r.Body = io.NopCloser(bytes.NewReader(data))
	return data, nil
}

// requireServiceKey authorizes administrative mutations (spec §4.7).
func (s *Server) requireServiceKey(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get("X-Service-Key")
		if key == "" || !s.authn.CheckServiceKey(key) {
			writeError(w, errs.New(errs.Unauthorized, "missing or invalid service key"))
			return
		}
		next(w, r)
	}
}

// requireAgentSignature authorizes event appends (spec §4.7). On
// success the authenticated agent is passed to next as its third argument.
func (s *Server) requireAgentSignature(next func(http.ResponseWriter, *http.Request, *domain.Agent)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := readBody(r)
		if err != nil {
			writeError(w, err)
			return
		}

		agentID := r.Header.Get("X-Agent-Id")
		tsHeader := r.Header.Get("X-Timestamp")
		sigHex := r.Header.Get("X-Signature")
		if agentID == "" || tsHeader == "" || sigHex == "" {
			writeError(w, errs.New(errs.Unauthorized, "missing agent signature headers"))
			return
		}
		ts, err := strconv.ParseInt(tsHeader, 10, 64)
		if err != nil {
			writeError(w, errs.New(errs.Unauthorized, "malformed timestamp header"))
			return
		}

		ag, err := s.authn.VerifyAgentSignature(r.Context(), authn.AgentSignatureRequest{
			AgentID: agentID, TimestampUnix: ts, SignatureHex: sigHex,
			Method: r.Method, Path: r.URL.Path, BodyJSON: body,
		})
		if err != nil {
			writeError(w, err)
			return
		}

		next(w, r, ag)
	}
}

// rateLimited enforces the per-key request quota (spec §5), keyed by
// the agent id header when present and the remote address otherwise.
func (s *Server) rateLimited(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get("X-Agent-Id")
		if key == "" {
			key = r.RemoteAddr
		}
		if !s.limiter.Allow(key) {
			w.Header().Set("Retry-After", strconv.Itoa(int(s.rateLimitWindow.Seconds())))
			writeJSON(w, http.StatusTooManyRequests, map[string]interface{}{
				"error": "rate limit exceeded", "kind": string(errs.RateLimited),
				"retryAfter": int(s.rateLimitWindow.Seconds()),
			})
			return
		}
		next(w, r)
	}
}
