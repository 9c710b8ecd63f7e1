package registry

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenttrust/trustcore/internal/domain"
	"github.com/agenttrust/trustcore/internal/errs"
	"github.com/agenttrust/trustcore/internal/logger"
	"github.com/agenttrust/trustcore/internal/store/memory"
)

func newTestRegistry() *Registry {
	return New(memory.New(), logger.New(&bytes.Buffer{}, logger.ErrorLevel))
}

func genPubKeyHex(t *testing.T) string {
	pub, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	return hex.EncodeToString(pub)
}

func TestRegisterSucceeds(t *testing.T) {
	r := newTestRegistry()
	ctx := context.Background()

	ag, err := r.Register(ctx, RegisterRequest{
		PublicKeyHex: genPubKeyHex(t),
		Name:         "agent-alpha",
		Owner:        "team-foo",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, ag.AgentID)
	assert.Equal(t, domain.AgentActive, ag.Status)
}

func TestRegisterRejectsMissingFields(t *testing.T) {
	r := newTestRegistry()
	ctx := context.Background()

	_, err := r.Register(ctx, RegisterRequest{Name: "agent-alpha"})
	require.Error(t, err)
	assert.Equal(t, errs.Validation, errs.KindOf(err))

	_, err = r.Register(ctx, RegisterRequest{PublicKeyHex: genPubKeyHex(t)})
	require.Error(t, err)
	assert.Equal(t, errs.Validation, errs.KindOf(err))
}

func TestRegisterRejectsDuplicatePublicKey(t *testing.T) {
	r := newTestRegistry()
	ctx := context.Background()
	pub := genPubKeyHex(t)

	_, err := r.Register(ctx, RegisterRequest{PublicKeyHex: pub, Name: "agent-alpha"})
	require.NoError(t, err)

	_, err = r.Register(ctx, RegisterRequest{PublicKeyHex: pub, Name: "agent-beta"})
	require.Error(t, err)
	assert.Equal(t, errs.Conflict, errs.KindOf(err))
}

func TestGetByPublicKeyNotFound(t *testing.T) {
	r := newTestRegistry()
	_, err := r.GetByPublicKey(context.Background(), genPubKeyHex(t))
	require.Error(t, err)
	assert.Equal(t, errs.NotFound, errs.KindOf(err))
}

func TestRevokeLifecycle(t *testing.T) {
	r := newTestRegistry()
	ctx := context.Background()

	ag, err := r.Register(ctx, RegisterRequest{PublicKeyHex: genPubKeyHex(t), Name: "agent-alpha"})
	require.NoError(t, err)

	revoked, err := r.Revoke(ctx, ag.AgentID, "compromised key")
	require.NoError(t, err)
	assert.Equal(t, domain.AgentRevoked, revoked.Status)
	assert.Equal(t, errs.Forbidden, errs.KindOf(EnsureActive(revoked)))

	_, err = r.Revoke(ctx, ag.AgentID, "again")
	assert.Equal(t, errs.Conflict, errs.KindOf(err))

	_, err = r.Revoke(ctx, "does-not-exist", "")
	assert.Equal(t, errs.NotFound, errs.KindOf(err))
}
