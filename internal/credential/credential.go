// Package credential turns the account password into the proof the ledger
// asks for before privileged calls such as revenue withdrawal.
package credential

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha512"
	"encoding/binary"
	"encoding/json"

	"golang.org/x/crypto/pbkdf2"

	"github.com/mbd888/starledger/internal/api"
	"github.com/mbd888/starledger/internal/apierror"
	"github.com/mbd888/starledger/internal/logging"
	"github.com/mbd888/starledger/internal/query"
)

const (
	// DefaultIterations is used when the server does not announce a count.
	DefaultIterations = 100_000

	keyLen   = 64
	nonceLen = 32
)

var (
	ErrPasswordHashInvalid = apierror.New(400, "PASSWORD_HASH_INVALID")
	ErrPasswordMissing     = apierror.New(400, "PASSWORD_MISSING")
)

// Verifier produces a password proof. The returned future fails with a
// typed error; an empty password fails without contacting the server.
type Verifier interface {
	Verify(ctx context.Context, password string) *query.Future[api.InputCheckPassword]
}

// RemoteVerifier fetches the password parameters of the account and derives
// the proof locally.
type RemoteVerifier struct {
	runner     *query.Runner
	iterations int
}

// Option configures a RemoteVerifier.
type Option func(*RemoteVerifier)

// WithIterations sets the fallback PBKDF2 iteration count.
func WithIterations(n int) Option {
	return func(v *RemoteVerifier) {
		if n > 0 {
			v.iterations = n
		}
	}
}

// NewRemoteVerifier creates a verifier sending through runner.
func NewRemoteVerifier(runner *query.Runner, opts ...Option) *RemoteVerifier {
	v := &RemoteVerifier{runner: runner, iterations: DefaultIterations}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

var _ Verifier = (*RemoteVerifier)(nil)

func (v *RemoteVerifier) Verify(ctx context.Context, password string) *query.Future[api.InputCheckPassword] {
	if password == "" {
		return query.Failed[api.InputCheckPassword](ErrPasswordHashInvalid)
	}
	params := query.Send(ctx, v.runner, query.Call[api.Password]{
		Req: api.GetPassword{},
		DecodeF: func(_ context.Context, raw []byte) (query.Outcome[api.Password], error) {
			var p api.Password
			if err := json.Unmarshal(raw, &p); err != nil {
				return query.Outcome[api.Password]{}, err
			}
			return query.Outcome[api.Password]{Value: p}, nil
		},
	})
	return query.Then(ctx, params, func(ctx context.Context, p api.Password) *query.Future[api.InputCheckPassword] {
		if !p.HasPassword {
			return query.Failed[api.InputCheckPassword](ErrPasswordMissing)
		}
		proof, err := v.prove(p, password)
		if err != nil {
			logging.L(ctx).Error("password proof failed", "error", err)
			return query.Failed[api.InputCheckPassword](apierror.New(500, err.Error()))
		}
		return query.Resolved(proof)
	})
}

func (v *RemoteVerifier) prove(p api.Password, password string) (api.InputCheckPassword, error) {
	nonce := make([]byte, nonceLen)
	if _, err := rand.Read(nonce); err != nil {
		return api.InputCheckPassword{}, err
	}
	iterations := p.Iterations
	if iterations <= 0 {
		iterations = v.iterations
	}
	return Proof(password, p.Salt, iterations, p.SRPID, nonce), nil
}

// Proof derives a PBKDF2-SHA512 key from the password and signs the client
// nonce and the password parameter id with it.
func Proof(password string, salt []byte, iterations int, srpID int64, nonce []byte) api.InputCheckPassword {
	key := pbkdf2.Key([]byte(password), salt, iterations, keyLen, sha512.New)
	mac := hmac.New(sha512.New, key)
	mac.Write(nonce)
	_ = binary.Write(mac, binary.BigEndian, srpID)
	return api.InputCheckPassword{SRPID: srpID, A: nonce, M1: mac.Sum(nil)}
}
