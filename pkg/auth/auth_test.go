package auth

import (
	"context"
	"errors"
	"testing"

	fbauth "firebase.google.com/go/v4/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umputun/commentscope/pkg/config"
	"github.com/umputun/commentscope/pkg/domain"
)

type fakeTokenVerifier struct {
	tokens map[string]*fbauth.Token
}

func (f *fakeTokenVerifier) VerifyIDToken(_ context.Context, idToken string) (*fbauth.Token, error) {
	tok, ok := f.tokens[idToken]
	if !ok {
		return nil, errors.New("ID token has invalid signature")
	}
	return tok, nil
}

func TestFirebase_Verify(t *testing.T) {
	f := &Firebase{client: &fakeTokenVerifier{tokens: map[string]*fbauth.Token{
		"good":     {UID: "uid-1", Claims: map[string]interface{}{"email": "alice@example.com"}},
		"no-email": {UID: "uid-2", Claims: map[string]interface{}{}},
	}}}

	caller, err := f.Verify(context.Background(), "good")
	require.NoError(t, err)
	assert.Equal(t, domain.Caller{ID: "uid-1", Email: "alice@example.com"}, caller)

	caller, err = f.Verify(context.Background(), "no-email")
	require.NoError(t, err)
	assert.Equal(t, domain.Caller{ID: "uid-2"}, caller)

	_, err = f.Verify(context.Background(), "forged")
	require.ErrorIs(t, err, ErrUnauthorized)
	assert.Contains(t, err.Error(), "invalid signature")

	_, err = f.Verify(context.Background(), "")
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestStatic_Verify(t *testing.T) {
	s := NewStatic(map[string]string{"t1": "user-1:one@example.com", "t2": "user-2"})

	caller, err := s.Verify(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, domain.Caller{ID: "user-1", Email: "one@example.com"}, caller)

	caller, err = s.Verify(context.Background(), "t2")
	require.NoError(t, err)
	assert.Equal(t, domain.Caller{ID: "user-2"}, caller)

	_, err = s.Verify(context.Background(), "t3")
	require.ErrorIs(t, err, ErrUnauthorized)
	_, err = s.Verify(context.Background(), "")
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestNew(t *testing.T) {
	v, err := New(context.Background(), config.AuthConfig{Provider: config.AuthStatic,
		StaticTokens: map[string]string{"t": "u"}}, config.FirebaseConfig{}, nil)
	require.NoError(t, err)
	assert.IsType(t, &Static{}, v)

	_, err = New(context.Background(), config.AuthConfig{Provider: "ldap"}, config.FirebaseConfig{}, nil)
	require.Error(t, err)
}
