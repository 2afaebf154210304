package bridge

import (
	"context"
	"encoding/json"
	"strings"
)

// Provider is the platform side of the bridge: whatever actually talks to
// the credential manager. Implementations report failures as
// *PlatformError so the Manager can map them onto client codes.
type Provider interface {
	IsAvailable() bool
	CreateCredential(ctx context.Context, requestType string, requestJSON string) (RawCredential, error)
	GetCredential(ctx context.Context, opts GetCredentialOptions) (RawCredential, error)
	ClearCredentialState(ctx context.Context) error
}

// Request type strings passed to Provider.CreateCredential.
const (
	CreatePublicKeyRequest = "publicKey"
	CreatePasswordRequest  = "password"
)

// Defaults carries resource-configured fallbacks applied when an options
// object leaves a field unset.
type Defaults struct {
	ServerClientID string
	HostedDomain   string
}

// Manager validates options, invokes the Provider and normalizes results
// and errors. All failures returned to callers are *Error.
type Manager struct {
	provider Provider
	defaults Defaults
}

func NewManager(provider Provider, defaults Defaults) *Manager {
	return &Manager{provider: provider, defaults: defaults}
}

// IsAvailable reports whether the platform credential manager can be used.
func (m *Manager) IsAvailable() bool {
	return m.provider != nil && m.provider.IsAvailable()
}

func (m *Manager) checkAvailable() *Error {
	if !m.IsAvailable() {
		return newError(CodeUnsupportedPlatform, "credential manager is not available on this platform")
	}
	return nil
}

// CreatePasskey registers a new passkey from WebAuthn creation options and
// returns the attestation response JSON for server verification.
func (m *Manager) CreatePasskey(ctx context.Context, requestJSON string) (string, *Error) {
	if err := m.checkAvailable(); err != nil {
		return "", err
	}
	if strings.TrimSpace(requestJSON) == "" {
		return "", newError(CodeInvalidInput, "requestJson must not be blank")
	}

	raw, err := m.provider.CreateCredential(ctx, CreatePublicKeyRequest, requestJSON)
	if err != nil {
		return "", mapPlatformError(err, CodeCreateCredentialFailure)
	}
	if raw.Type != platformTypePublicKey {
		return "", newError(CodeUnexpectedResponse,
			"provider returned %q instead of a public key registration", raw.Type)
	}

	var pk PublicKeyCredential
	if derr := json.Unmarshal(raw.Data, &pk); derr != nil || pk.AuthenticationResponseJSON == "" {
		return "", newError(CodeUnexpectedResponse, "malformed registration response payload")
	}
	return pk.AuthenticationResponseJSON, nil
}

// CreatePassword saves a username/password pair with the platform.
func (m *Manager) CreatePassword(ctx context.Context, username, password string) *Error {
	if err := m.checkAvailable(); err != nil {
		return err
	}
	if strings.TrimSpace(username) == "" || password == "" {
		return newError(CodeInvalidInput, "username and password must not be blank")
	}

	payload, _ := json.Marshal(PasswordCredential{Username: username, Password: password})
	if _, err := m.provider.CreateCredential(ctx, CreatePasswordRequest, string(payload)); err != nil {
		return mapPlatformError(err, CodeCreateCredentialFailure)
	}
	return nil
}

// GetCredential prompts for a stored credential matching the options and
// returns the typed result.
func (m *Manager) GetCredential(ctx context.Context, opts GetCredentialOptions) (*Credential, *Error) {
	if err := m.checkAvailable(); err != nil {
		return nil, err
	}

	validated, verr := validateGetOptions(opts, m.defaults)
	if verr != nil {
		return nil, verr
	}

	raw, err := m.provider.GetCredential(ctx, *validated)
	if err != nil {
		return nil, mapPlatformError(err, CodeGetCredentialFailure)
	}
	return decodeCredential(raw, *validated)
}

// SignInWithGoogle runs the dedicated sign-in-with-Google flow and returns
// the Google identity credential.
func (m *Manager) SignInWithGoogle(ctx context.Context, opts SignInWithGoogleOptions) (*GoogleIDCredential, *Error) {
	if err := m.checkAvailable(); err != nil {
		return nil, err
	}

	validated, verr := validateSignInWithGoogleOptions(opts, m.defaults)
	if verr != nil {
		return nil, verr
	}

	raw, err := m.provider.GetCredential(ctx, GetCredentialOptions{
		GoogleID: &GoogleIDOption{
			ServerClientID:     validated.ServerClientID,
			Nonce:              validated.Nonce,
			HostedDomainFilter: validated.HostedDomainFilter,
		},
	})
	if err != nil {
		return nil, mapPlatformError(err, CodeGetCredentialFailure)
	}
	return decodeGoogleCredential(raw)
}

// ClearCredentialState clears cached credential-selection state, typically
// on sign-out.
func (m *Manager) ClearCredentialState(ctx context.Context) *Error {
	if err := m.checkAvailable(); err != nil {
		return err
	}
	if err := m.provider.ClearCredentialState(ctx); err != nil {
		return mapPlatformError(err, CodeClearCredentialStateFailure)
	}
	return nil
}
