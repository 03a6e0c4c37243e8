// Package auth resolves bearer tokens of incoming requests to callers
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	firebase "firebase.google.com/go/v4"
	fbauth "firebase.google.com/go/v4/auth"
	"github.com/go-pkgz/lgr"
	"google.golang.org/api/option"

	"github.com/umputun/commentscope/pkg/config"
	"github.com/umputun/commentscope/pkg/domain"
)

// ErrUnauthorized is returned for missing, unknown or invalid tokens
var ErrUnauthorized = errors.New("unauthorized")

// Verifier resolves a bearer token to the caller it was issued to
type Verifier interface {
	Verify(ctx context.Context, token string) (domain.Caller, error)
}

// New makes a verifier for the configured provider
func New(ctx context.Context, cfg config.AuthConfig, fb config.FirebaseConfig, credentialsJSON []byte) (Verifier, error) {
	switch cfg.Provider {
	case config.AuthStatic:
		return NewStatic(cfg.StaticTokens), nil
	case config.AuthFirebase, "":
		return NewFirebase(ctx, fb.ProjectID, fb.CredentialsFile, credentialsJSON)
	default:
		return nil, fmt.Errorf("unsupported auth provider %q", cfg.Provider)
	}
}

// idTokenVerifier is the part of firebase auth client used for verification
type idTokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*fbauth.Token, error)
}

// Firebase verifies Firebase ID tokens
type Firebase struct {
	client idTokenVerifier
}

// NewFirebase makes firebase app with service account credentials. credentialsJSON takes
// precedence over credentialsFile, with neither set application default credentials are used.
func NewFirebase(ctx context.Context, projectID, credentialsFile string, credentialsJSON []byte) (*Firebase, error) {
	var opts []option.ClientOption
	switch {
	case len(credentialsJSON) > 0:
		opts = append(opts, option.WithCredentialsJSON(credentialsJSON))
	case credentialsFile != "":
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: projectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("make firebase app: %w", err)
	}
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("make firebase auth client: %w", err)
	}
	return &Firebase{client: client}, nil
}

// Verify checks signature, expiry and audience of the ID token
func (f *Firebase) Verify(ctx context.Context, token string) (domain.Caller, error) {
	if token == "" {
		return domain.Caller{}, ErrUnauthorized
	}
	tok, err := f.client.VerifyIDToken(ctx, token)
	if err != nil {
		lgr.Printf("[DEBUG] firebase token rejected: %v", err)
		return domain.Caller{}, fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}
	caller := domain.Caller{ID: tok.UID}
	if email, ok := tok.Claims["email"].(string); ok {
		caller.Email = email
	}
	return caller, nil
}

// Static verifies tokens against a fixed table, for local runs and tests
type Static struct {
	callers map[string]domain.Caller
}

// NewStatic makes a verifier from token to "caller_id[:email]" map
func NewStatic(tokens map[string]string) *Static {
	res := &Static{callers: make(map[string]domain.Caller, len(tokens))}
	for token, v := range tokens {
		id, email, _ := strings.Cut(v, ":")
		res.callers[token] = domain.Caller{ID: id, Email: email}
	}
	return res
}

// Verify looks the token up
func (s *Static) Verify(_ context.Context, token string) (domain.Caller, error) {
	caller, ok := s.callers[token]
	if !ok || token == "" {
		return domain.Caller{}, ErrUnauthorized
	}
	return caller, nil
}
