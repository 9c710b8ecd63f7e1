package authn

import (
	"bytes"
	"context"
	"encoding/hex"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenttrust/trustcore/internal/domain"
	"github.com/agenttrust/trustcore/internal/errs"
	"github.com/agenttrust/trustcore/internal/logger"
	"github.com/agenttrust/trustcore/internal/registry"
	"github.com/agenttrust/trustcore/internal/store/memory"
	"github.com/agenttrust/trustcore/pkg/signer"
)

func TestCheckServiceKey(t *testing.T) {
	a := New("super-secret", 0, nil)
	assert.True(t, a.CheckServiceKey("super-secret"))
	assert.False(t, a.CheckServiceKey("wrong"))
	assert.False(t, a.CheckServiceKey(""))
}

func setupAuthenticator(t *testing.T) (*Authenticator, *domain.Agent, []byte /* priv */) {
	st := memory.New()
	reg := registry.New(st, logger.New(&bytes.Buffer{}, logger.ErrorLevel))

	pub, priv, err := signer.Generate()
	require.NoError(t, err)
	ag, err := reg.Register(context.Background(), registry.RegisterRequest{
		PublicKeyHex: hex.EncodeToString(pub), Name: "agent-alpha",
	})
	require.NoError(t, err)

	return New("", 0, reg), ag, priv
}

func TestVerifyAgentSignatureSucceeds(t *testing.T) {
	a, ag, priv := setupAuthenticator(t)
	ts := time.Now().Unix()
	payload, err := SignaturePayload("POST", "/v1/events", []byte(`{"a":1}`), ts)
	require.NoError(t, err)
	sig, err := signer.Sign(payload, priv)
	require.NoError(t, err)

	got, err := a.VerifyAgentSignature(context.Background(), AgentSignatureRequest{
		AgentID: ag.AgentID, TimestampUnix: ts, SignatureHex: hex.EncodeToString(sig),
		Method: "POST", Path: "/v1/events", BodyJSON: []byte(`{"a":1}`),
	})
	require.NoError(t, err)
	assert.Equal(t, ag.AgentID, got.AgentID)
}

func TestVerifyAgentSignatureRejectsStaleTimestamp(t *testing.T) {
	a, ag, priv := setupAuthenticator(t)
	ts := time.Now().Add(-10 * time.Minute).Unix()
	payload, err := SignaturePayload("POST", "/v1/events", nil, ts)
	require.NoError(t, err)
	sig, err := signer.Sign(payload, priv)
	require.NoError(t, err)

	_, err = a.VerifyAgentSignature(context.Background(), AgentSignatureRequest{
		AgentID: ag.AgentID, TimestampUnix: ts, SignatureHex: hex.EncodeToString(sig),
		Method: "POST", Path: "/v1/events",
	})
	assert.Equal(t, errs.Unauthorized, errs.KindOf(err))
}

func TestVerifyAgentSignatureRejectsTamperedBody(t *testing.T) {
	a, ag, priv := setupAuthenticator(t)
	ts := time.Now().Unix()
	payload, err := SignaturePayload("POST", "/v1/events", []byte(`{"a":1}`), ts)
	require.NoError(t, err)
	sig, err := signer.Sign(payload, priv)
	require.NoError(t, err)

	_, err = a.VerifyAgentSignature(context.Background(), AgentSignatureRequest{
		AgentID: ag.AgentID, TimestampUnix: ts, SignatureHex: hex.EncodeToString(sig),
		Method: "POST", Path: "/v1/events", BodyJSON: []byte(`{"a":2}`),
	})
	assert.Equal(t, errs.Unauthorized, errs.KindOf(err))
}

func TestSignaturePayloadCanonicalizesBody(t *testing.T) {
	a, b := `{"a":1,"b":2}`, `{"b":2,"a":1}`
	pa, err := SignaturePayload("POST", "/v1/events", []byte(a), 100)
	require.NoError(t, err)
	pb, err := SignaturePayload("POST", "/v1/events", []byte(b), 100)
	require.NoError(t, err)
	assert.Equal(t, pa, pb)
}

func TestSignaturePayloadRejectsMalformedBody(t *testing.T) {
	_, err := SignaturePayload("POST", "/v1/events", []byte("{not json"), 100)
	assert.Error(t, err)
}

func TestVerifyAgentSignatureRejectsRevokedAgent(t *testing.T) {
	a, ag, priv := setupAuthenticator(t)
	_, err := a.registry.Revoke(context.Background(), ag.AgentID, "bad actor")
	require.NoError(t, err)

	ts := time.Now().Unix()
	payload, err := SignaturePayload("POST", "/v1/events", nil, ts)
	require.NoError(t, err)
	sig, err := signer.Sign(payload, priv)
	require.NoError(t, err)

	_, err = a.VerifyAgentSignature(context.Background(), AgentSignatureRequest{
		AgentID: ag.AgentID, TimestampUnix: ts, SignatureHex: hex.EncodeToString(sig),
		Method: "POST", Path: "/v1/events",
	})
	assert.Equal(t, errs.Unauthorized, errs.KindOf(err))
}
