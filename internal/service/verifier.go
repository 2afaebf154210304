package service

import (
	"bytes"
	"fmt"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"

	"github.com/WarrenAdams8/expo-credential-manager/pkg/config"
)

// VerifierUser identifies the account a ceremony runs for.
type VerifierUser struct {
	ID          []byte
	Name        string
	DisplayName string
}

// RegistrationResult is the verified output of an attestation response.
type RegistrationResult struct {
	CredentialID []byte
	PublicKey    []byte
	Counter      uint32
	Transports   []string
}

// AuthenticatorState is everything the verifier needs about a stored
// credential to check an assertion against it.
type AuthenticatorState struct {
	User         VerifierUser
	CredentialID []byte
	PublicKey    []byte
	Counter      uint32
}

// AssertionResult is the verified output of an assertion response.
type AssertionResult struct {
	NewCounter   uint32
	CloneWarning bool
}

// Verifier checks raw WebAuthn client responses against an expected
// challenge. It is pure computation over its inputs: no storage access,
// so ceremony orchestration stays testable without real authenticators.
type Verifier interface {
	VerifyRegistration(responseJSON []byte, expectedChallenge string, user VerifierUser) (*RegistrationResult, error)
	VerifyAssertion(responseJSON []byte, expectedChallenge string, state AuthenticatorState) (*AssertionResult, error)
}

// webauthnVerifier implements Verifier on top of go-webauthn
type webauthnVerifier struct {
	webauthn *webauthn.WebAuthn
}

// NewWebAuthnVerifier creates a Verifier for the configured relying party
func NewWebAuthnVerifier(cfg *config.Config) (Verifier, error) {
	wconfig := &webauthn.Config{
		RPDisplayName: cfg.Server.RPName,
		RPID:          cfg.Server.RPID,
		RPOrigins:     []string{cfg.Server.RPOrigin},
	}

	wa, err := webauthn.New(wconfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create webauthn: %w", err)
	}

	return &webauthnVerifier{webauthn: wa}, nil
}

// ceremonyUser implements webauthn.User for a single ceremony. For
// assertions it carries exactly the one credential the response named,
// loaded by the caller.
type ceremonyUser struct {
	id          []byte
	name        string
	displayName string
	credentials []webauthn.Credential
}

func (u *ceremonyUser) WebAuthnID() []byte { return u.id }

func (u *ceremonyUser) WebAuthnName() string {
	if u.name != "" {
		return u.name
	}
	return string(u.id)
}

func (u *ceremonyUser) WebAuthnDisplayName() string {
	if u.displayName != "" {
		return u.displayName
	}
	return u.WebAuthnName()
}

func (u *ceremonyUser) WebAuthnCredentials() []webauthn.Credential { return u.credentials }

// WebAuthnIcon satisfies the deprecated icon accessor still present in
// webauthn.User for the pinned library version.
func (u *ceremonyUser) WebAuthnIcon() string { return "" }

func (v *webauthnVerifier) VerifyRegistration(responseJSON []byte, expectedChallenge string, user VerifierUser) (*RegistrationResult, error) {
	parsed, err := protocol.ParseCredentialCreationResponseBody(bytes.NewReader(responseJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to parse attestation response: %w", err)
	}

	waUser := &ceremonyUser{
		id:          user.ID,
		name:        user.Name,
		displayName: user.DisplayName,
	}

	session := webauthn.SessionData{
		Challenge:        expectedChallenge,
		UserID:           user.ID,
		UserVerification: protocol.VerificationPreferred,
	}

	credential, err := v.webauthn.CreateCredential(waUser, session, parsed)
	if err != nil {
		return nil, fmt.Errorf("attestation verification failed: %w", err)
	}

	transports := make([]string, 0, len(credential.Transport))
	for _, t := range credential.Transport {
		transports = append(transports, string(t))
	}

	return &RegistrationResult{
		CredentialID: credential.ID,
		PublicKey:    credential.PublicKey,
		Counter:      credential.Authenticator.SignCount,
		Transports:   transports,
	}, nil
}

func (v *webauthnVerifier) VerifyAssertion(responseJSON []byte, expectedChallenge string, state AuthenticatorState) (*AssertionResult, error) {
	parsed, err := protocol.ParseCredentialRequestResponseBody(bytes.NewReader(responseJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to parse assertion response: %w", err)
	}

	waUser := &ceremonyUser{
		id:          state.User.ID,
		name:        state.User.Name,
		displayName: state.User.DisplayName,
		credentials: []webauthn.Credential{
			{
				ID:        state.CredentialID,
				PublicKey: state.PublicKey,
				Authenticator: webauthn.Authenticator{
					SignCount: state.Counter,
				},
			},
		},
	}

	session := webauthn.SessionData{
		Challenge:        expectedChallenge,
		UserID:           state.User.ID,
		UserVerification: protocol.VerificationPreferred,
	}

	credential, err := v.webauthn.ValidateLogin(waUser, session, parsed)
	if err != nil {
		return nil, fmt.Errorf("assertion verification failed: %w", err)
	}

	return &AssertionResult{
		NewCounter:   credential.Authenticator.SignCount,
		CloneWarning: credential.Authenticator.CloneWarning,
	}, nil
}
