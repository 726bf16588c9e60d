package credential

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbd888/starledger/internal/api"
	"github.com/mbd888/starledger/internal/apierror"
	"github.com/mbd888/starledger/internal/query"
)

type transportFunc func(ctx context.Context, p api.Payload) ([]byte, error)

func (f transportFunc) Issue(ctx context.Context, p api.Payload) ([]byte, error) { return f(ctx, p) }

func newVerifier(t *testing.T, body string, calls *atomic.Int32) *RemoteVerifier {
	t.Helper()
	r := query.NewRunner(transportFunc(func(_ context.Context, p api.Payload) ([]byte, error) {
		calls.Add(1)
		assert.Equal(t, "account.getPassword", p.Method)
		return []byte(body), nil
	}))
	t.Cleanup(r.Close)
	return NewRemoteVerifier(r, WithIterations(10))
}

func TestVerify_EmptyPasswordIssuesNoRequest(t *testing.T) {
	var calls atomic.Int32
	v := newVerifier(t, `{}`, &calls)

	_, err := v.Verify(context.Background(), "").Wait(context.Background())
	assert.ErrorIs(t, err, apierror.New(400, "PASSWORD_HASH_INVALID"))
	assert.Zero(t, calls.Load())
}

func TestVerify_NoPasswordSet(t *testing.T) {
	var calls atomic.Int32
	v := newVerifier(t, `{"has_password":false}`, &calls)

	_, err := v.Verify(context.Background(), "hunter2").Wait(context.Background())
	assert.ErrorIs(t, err, ErrPasswordMissing)
	assert.Equal(t, int32(1), calls.Load())
}

func TestVerify_ProducesProof(t *testing.T) {
	var calls atomic.Int32
	v := newVerifier(t, `{"has_password":true,"srp_id":77,"salt":"c2FsdA==","iterations":5}`, &calls)

	got, err := v.Verify(context.Background(), "hunter2").Wait(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(77), got.SRPID)
	require.Len(t, got.A, nonceLen)
	want := Proof("hunter2", []byte("salt"), 5, 77, got.A)
	assert.Equal(t, want.M1, got.M1)
}

func TestProof_DependsOnEveryInput(t *testing.T) {
	nonce := make([]byte, nonceLen)
	base := Proof("pw", []byte("salt"), 3, 1, nonce)

	assert.Len(t, base.M1, sha512Size)
	assert.Equal(t, base, Proof("pw", []byte("salt"), 3, 1, nonce))
	assert.NotEqual(t, base.M1, Proof("pw2", []byte("salt"), 3, 1, nonce).M1)
	assert.NotEqual(t, base.M1, Proof("pw", []byte("pepper"), 3, 1, nonce).M1)
	assert.NotEqual(t, base.M1, Proof("pw", []byte("salt"), 4, 1, nonce).M1)
	assert.NotEqual(t, base.M1, Proof("pw", []byte("salt"), 3, 2, nonce).M1)
}

const sha512Size = 64
