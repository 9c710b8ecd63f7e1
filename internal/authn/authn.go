// Package authn implements the request authenticator (spec §4.7): a
// shared service key for administrative mutations, and a per-request
// Ed25519 signature scheme for agent-originated event appends.
// Grounded on the teacher's core/rfc9421 verifier's timestamp-skew and
// signature-base construction, generalized from RFC 9421's structured
// signature base to the spec's flat "METHOD:PATH:BODY_JSON:TIMESTAMP"
// string.
package authn

import (
	"context"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/agenttrust/trustcore/internal/domain"
	"github.com/agenttrust/trustcore/internal/errs"
	"github.com/agenttrust/trustcore/internal/registry"
	"github.com/agenttrust/trustcore/pkg/canonical"
	"github.com/agenttrust/trustcore/pkg/signer"
)

// DefaultReplayWindow is W from spec §4.7.
const DefaultReplayWindow = 300 * time.Second

// Authenticator validates the two admissible credential schemes.
type Authenticator struct {
	serviceKey   string
	replayWindow time.Duration
	registry     *registry.Registry
}

// New constructs an Authenticator. serviceKey is the shared secret
// compared in constant time; replayWindow overrides DefaultReplayWindow
// when positive.
func New(serviceKey string, replayWindow time.Duration, reg *registry.Registry) *Authenticator {
	if replayWindow <= 0 {
		replayWindow = DefaultReplayWindow
	}
	return &Authenticator{serviceKey: serviceKey, replayWindow: replayWindow, registry: reg}
}

// CheckServiceKey reports whether presented matches the configured
// service key in constant time.
func (a *Authenticator) CheckServiceKey(presented string) bool {
	if a.serviceKey == "" || presented == "" {
		return false
	}
	return signer.ConstantTimeEqualHex(signer.SHA256Hex([]byte(presented)), signer.SHA256Hex([]byte(a.serviceKey)))
}

// AgentSignatureRequest carries the three headers and the material the
// signature covers.
type AgentSignatureRequest struct {
	AgentID        string
	TimestampUnix  int64
	SignatureHex   string
	Method         string
	Path           string
	BodyJSON       []byte
}

// VerifyAgentSignature implements the agent-signature credential:
// range-checks the timestamp against the replay window, loads and
// checks the agent is active, and verifies the signature over
// "METHOD:PATH:BODY_JSON:TIMESTAMP".
func (a *Authenticator) VerifyAgentSignature(ctx context.Context, req AgentSignatureRequest) (*domain.Agent, error) {
	now := time.Now().Unix()
	skew := now - req.TimestampUnix
	if skew < 0 {
		skew = -skew
	}
	if time.Duration(skew)*time.Second > a.replayWindow {
		return nil, errs.New(errs.Unauthorized, "timestamp outside replay window").
			WithDetail("skew_seconds", skew).WithDetail("window_seconds", int64(a.replayWindow/time.Second))
	}

	ag, err := a.registry.Get(ctx, req.AgentID)
	if err != nil {
		return nil, errs.New(errs.Unauthorized, "unknown agent")
	}
	if err := registry.EnsureActive(ag); err != nil {
		return nil, errs.New(errs.Unauthorized, "agent is not active")
	}

	pub, err := signer.DecodeHexKey(ag.PublicKey)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, "decode agent public key", err)
	}

	sigBytes, err := hex.DecodeString(req.SignatureHex)
	if err != nil {
		return nil, errs.New(errs.Unauthorized, "malformed signature encoding")
	}

	signedPayload, err := SignaturePayload(req.Method, req.Path, req.BodyJSON, req.TimestampUnix)
	if err != nil {
		return nil, errs.New(errs.Unauthorized, "malformed request body")
	}
	if !signer.Verify(sigBytes, signedPayload, pub) {
		return nil, errs.New(errs.Unauthorized, "signature does not verify")
	}

	return ag, nil
}

// SignaturePayload builds the literal string a client signs:
// "METHOD:PATH:BODY_JSON:TIMESTAMP". bodyJSON is canonicalized (RFC
// 8785) before composing the string, so a signer and verifier that
// serialize the same JSON value differently (key order, whitespace)
// still agree on what was signed.
func SignaturePayload(method, path string, bodyJSON []byte, timestampUnix int64) ([]byte, error) {
	canonicalBody, err := canonical.MarshalJSON(bodyJSON)
	if err != nil {
		return nil, fmt.Errorf("authn: canonicalize body: %w", err)
	}
	return []byte(fmt.Sprintf("%s:%s:%s:%d", method, path, canonicalBody, timestampUnix)), nil
}
