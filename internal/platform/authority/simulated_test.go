package authority

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hrpayroll/internal/domain/epayroll"
	"hrpayroll/internal/domain/epayroll/epayrolltest"
)

func TestSimulatedAcceptsSignedDocuments(t *testing.T) {
	reply, err := NewSimulated().Submit(context.Background(), submission())
	require.NoError(t, err)
	assert.True(t, reply.Accepted())
	assert.Equal(t, CodeAccepted, reply.Code)
	assert.Contains(t, reply.Message, "receipt")
}

func TestSimulatedRejectsUnsigned(t *testing.T) {
	sub := submission()
	sub.Signature = ""
	reply, err := NewSimulated().Submit(context.Background(), sub)
	require.NoError(t, err)
	assert.False(t, reply.Accepted())
	assert.Equal(t, CodeMissingSignature, reply.Code)
}

func TestSimulatedVerifiesWithPublicKey(t *testing.T) {
	key, pemKey := epayrolltest.ECDSAKey(t)
	content := "<Invoice><cbc:ID>NE1</cbc:ID></Invoice>"
	sig, _, err := epayroll.SignContent(content, epayroll.KeyMaterial{PrivateKey: pemKey})
	require.NoError(t, err)

	sim := &Simulated{PublicKey: &key.PublicKey}
	sub := submission()
	sub.Content = content
	sub.Signature = sig

	reply, err := sim.Submit(context.Background(), sub)
	require.NoError(t, err)
	assert.True(t, reply.Accepted())

	sub.Content = "<Invoice><cbc:ID>NE2</cbc:ID></Invoice>"
	reply, err = sim.Submit(context.Background(), sub)
	require.NoError(t, err)
	assert.Equal(t, CodeBadSignature, reply.Code)
}
