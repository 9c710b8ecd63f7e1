package api

import (
	"bytes"
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenttrust/trustcore/internal/authn"
	"github.com/agenttrust/trustcore/internal/capability"
	"github.com/agenttrust/trustcore/internal/domain"
	"github.com/agenttrust/trustcore/internal/ledger"
	"github.com/agenttrust/trustcore/internal/logger"
	"github.com/agenttrust/trustcore/internal/ratelimit"
	"github.com/agenttrust/trustcore/internal/registry"
	"github.com/agenttrust/trustcore/internal/reputation"
	"github.com/agenttrust/trustcore/internal/store/memory"
	"github.com/agenttrust/trustcore/pkg/signer"
)

const serviceKey = "test-service-key"

func setupTestServer(t *testing.T) http.Handler {
	st := memory.New()
	log := logger.New(&bytes.Buffer{}, logger.ErrorLevel)
	reg := registry.New(st, log)
	limiter := ratelimit.New(1000, time.Minute, time.Minute, time.Hour)
	t.Cleanup(limiter.Stop)

	srv := NewServer(Deps{
		Registry:        reg,
		Ledger:          ledger.New(st, log),
		Capability:      capability.New(st, log),
		Reputation:      reputation.New(st, log),
		Authn:           authn.New(serviceKey, 300*time.Second, reg),
		Limiter:         limiter,
		Log:             log,
		RateLimitWindow: time.Minute,
	})
	return srv.Routes()
}

func doJSON(t *testing.T, h http.Handler, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func registerTestAgent(t *testing.T, h http.Handler) (domain.Agent, ed25519.PrivateKey) {
	pub, priv, err := signer.Generate()
	require.NoError(t, err)

	rr := doJSON(t, h, http.MethodPost, "/api/agents", registerAgentBody{
		PublicKey: hex.EncodeToString(pub), Name: "agent-alpha",
	}, map[string]string{"X-Service-Key": serviceKey})
	require.Equal(t, http.StatusCreated, rr.Code)

	var ag domain.Agent
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &ag))
	return ag, priv
}

func signedEventHeaders(t *testing.T, ag domain.Agent, priv ed25519.PrivateKey, method, path string, body []byte) map[string]string {
	ts := time.Now().Unix()
	payload, err := authn.SignaturePayload(method, path, body, ts)
	require.NoError(t, err)
	sig, err := signer.Sign(payload, priv)
	require.NoError(t, err)
	return map[string]string{
		"X-Agent-Id":  ag.AgentID,
		"X-Timestamp": strconv.FormatInt(ts, 10),
		"X-Signature": hex.EncodeToString(sig),
	}
}

func appendTestEvent(t *testing.T, h http.Handler, ag domain.Agent, priv ed25519.PrivateKey, prevHash *string, eventType domain.EventType, payload map[string]interface{}) appendEventBody {
	ts := time.Now()
	unsigned := domain.UnsignedEvent{
		AgentID: ag.AgentID, EventType: eventType, Timestamp: ts, PrevHash: prevHash, Payload: payload,
	}
	canonicalBytes, err := unsigned.CanonicalBytes()
	require.NoError(t, err)
	hash := signer.SHA256Hex(canonicalBytes)
	sig, err := signer.Sign(canonicalBytes, priv)
	require.NoError(t, err)

	body := appendEventBody{
		AgentID: ag.AgentID, EventType: eventType, Timestamp: &ts, PrevHash: prevHash,
		Payload: payload, Hash: hash, Signature: hex.EncodeToString(sig),
	}
	data, err := json.Marshal(body)
	require.NoError(t, err)

	headers := signedEventHeaders(t, ag, priv, http.MethodPost, "/api/events", data)
	req := httptest.NewRequest(http.MethodPost, "/api/events", bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var persisted appendEventBody
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &persisted))
	return persisted
}

func TestRegisterAgentRequiresServiceKey(t *testing.T) {
	h := setupTestServer(t)
	pub, _, err := signer.Generate()
	require.NoError(t, err)

	rr := doJSON(t, h, http.MethodPost, "/api/agents", registerAgentBody{
		PublicKey: hex.EncodeToString(pub), Name: "agent-alpha",
	}, nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestRegisterAndGetAgent(t *testing.T) {
	h := setupTestServer(t)
	ag, _ := registerTestAgent(t, h)
	assert.Equal(t, domain.AgentActive, ag.Status)

	rr := doJSON(t, h, http.MethodGet, "/api/agents/"+ag.AgentID, nil, nil)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestRevokeAgentRequiresServiceKey(t *testing.T) {
	h := setupTestServer(t)
	ag, _ := registerTestAgent(t, h)

	rr := doJSON(t, h, http.MethodPost, "/api/agents/"+ag.AgentID+"/revoke", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = doJSON(t, h, http.MethodPost, "/api/agents/"+ag.AgentID+"/revoke", revokeAgentBody{Reason: "bad actor"},
		map[string]string{"X-Service-Key": serviceKey})
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestAppendEventHappyChain(t *testing.T) {
	h := setupTestServer(t)
	ag, priv := registerTestAgent(t, h)

	first := appendTestEvent(t, h, ag, priv, nil, domain.EventInputReceived, map[string]interface{}{"i": float64(1)})
	second := appendTestEvent(t, h, ag, priv, &first.Hash, domain.EventDecisionMade, map[string]interface{}{"i": float64(2)})
	third := appendTestEvent(t, h, ag, priv, &second.Hash, domain.EventResponseEmitted, map[string]interface{}{"i": float64(3)})

	rr := doJSON(t, h, http.MethodGet, "/api/events/last-hash/"+ag.AgentID, nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var lastHash map[string]interface{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &lastHash))
	assert.Equal(t, third.Hash, lastHash["lastHash"])

	rr = doJSON(t, h, http.MethodPost, "/api/events/verify-chain", verifyChainBody{AgentID: ag.AgentID}, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var verify map[string]interface{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &verify))
	assert.Equal(t, true, verify["valid"])
	assert.Equal(t, float64(3), verify["totalEvents"])
}

func TestAppendEventRejectsStalePrevHash(t *testing.T) {
	h := setupTestServer(t)
	ag, priv := registerTestAgent(t, h)
	appendTestEvent(t, h, ag, priv, nil, domain.EventInputReceived, map[string]interface{}{"i": float64(1)})

	stale := "0000000000000000000000000000000000000000000000000000000000000000"
	rr := appendEventAttempt(t, h, ag, priv, &stale, domain.EventDecisionMade, map[string]interface{}{"i": float64(2)})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "CHAIN_BROKEN", body["kind"])
	details, ok := body["details"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, stale, details["submitted_prev_hash"])
	assert.NotNil(t, details["server_prev_hash"])
}

func TestAppendEventRejectsWrongKeySignature(t *testing.T) {
	h := setupTestServer(t)
	agA, _ := registerTestAgent(t, h)
	_, privB := registerTestAgent(t, h)

	rr := appendEventAttempt(t, h, agA, privB, nil, domain.EventInputReceived, map[string]interface{}{"i": float64(1)})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func appendEventAttempt(t *testing.T, h http.Handler, ag domain.Agent, priv ed25519.PrivateKey, prevHash *string, eventType domain.EventType, payload map[string]interface{}) *httptest.ResponseRecorder {
	ts := time.Now()
	unsigned := domain.UnsignedEvent{AgentID: ag.AgentID, EventType: eventType, Timestamp: ts, PrevHash: prevHash, Payload: payload}
	canonicalBytes, err := unsigned.CanonicalBytes()
	require.NoError(t, err)
	hash := signer.SHA256Hex(canonicalBytes)
	sig, err := signer.Sign(canonicalBytes, priv)
	require.NoError(t, err)

	body := appendEventBody{
		AgentID: ag.AgentID, EventType: eventType, Timestamp: &ts, PrevHash: prevHash,
		Payload: payload, Hash: hash, Signature: hex.EncodeToString(sig),
	}
	data, err := json.Marshal(body)
	require.NoError(t, err)

	headers := signedEventHeaders(t, ag, priv, http.MethodPost, "/api/events", data)
	req := httptest.NewRequest(http.MethodPost, "/api/events", bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestCapabilityMintValidateCheckRevoke(t *testing.T) {
	h := setupTestServer(t)
	ag, _ := registerTestAgent(t, h)

	rr := doJSON(t, h, http.MethodPost, "/api/capabilities", mintCapabilityBody{
		AgentID: ag.AgentID,
		Scope:   map[string]interface{}{"tool:web.read": true, "tool:wallet.send": map[string]interface{}{"max_value": 100}},
		ExpiresAt: time.Now().Add(time.Hour),
	}, map[string]string{"X-Service-Key": serviceKey})
	require.Equal(t, http.StatusCreated, rr.Code)

	var minted map[string]interface{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &minted))
	token, ok := minted["token"].(string)
	require.True(t, ok)
	capObj := minted["capability"].(map[string]interface{})
	capID := capObj["id"].(string)

	rr = doJSON(t, h, http.MethodPost, "/api/capabilities/validate", validateCapabilityBody{Token: token}, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var validated map[string]interface{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &validated))
	assert.Equal(t, true, validated["valid"])

	rr = doJSON(t, h, http.MethodPost, "/api/capabilities/check-permission", checkPermissionBody{
		AgentID: ag.AgentID, Action: "tool:wallet.send",
	}, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var checked map[string]interface{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &checked))
	assert.Equal(t, true, checked["granted"])

	rr = doJSON(t, h, http.MethodPost, "/api/capabilities/"+capID+"/revoke", nil, map[string]string{"X-Service-Key": serviceKey})
	require.Equal(t, http.StatusOK, rr.Code)

	rr = doJSON(t, h, http.MethodPost, "/api/capabilities/check-permission", checkPermissionBody{
		AgentID: ag.AgentID, Action: "tool:wallet.send",
	}, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &checked))
	assert.Equal(t, false, checked["granted"])
}

func TestReputationUpdateViaOutcomes(t *testing.T) {
	h := setupTestServer(t)
	ag, _ := registerTestAgent(t, h)

	rr := doJSON(t, h, http.MethodGet, "/api/reputation/"+ag.AgentID, nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var rep map[string]interface{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &rep))
	assert.Equal(t, float64(50), rep["overall_score"])

	rr = doJSON(t, h, http.MethodPost, "/api/outcomes", recordOutcomeBody{
		AgentID: ag.AgentID, OutcomeType: domain.OutcomeSuccess,
	}, map[string]string{"X-Service-Key": serviceKey})
	require.Equal(t, http.StatusCreated, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &rep))
	assert.Equal(t, 50.5, rep["overall_score"])
}

func TestHealthEndpoint(t *testing.T) {
	h := setupTestServer(t)
	rr := doJSON(t, h, http.MethodGet, "/api/health", nil, nil)
	assert.Equal(t, http.StatusOK, rr.Code)
}
