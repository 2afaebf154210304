package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/WarrenAdams8/expo-credential-manager/internal/domain"
	"github.com/WarrenAdams8/expo-credential-manager/internal/storage"
	"github.com/WarrenAdams8/expo-credential-manager/pkg/config"
)

var (
	ErrNoChallenge          = errors.New("no pending challenge")
	ErrUnknownCredential    = errors.New("unknown credential")
	ErrRegistrationFailed   = errors.New("registration verification failed")
	ErrAuthenticationFailed = errors.New("authentication verification failed")
)

// WebAuthnService orchestrates passkey ceremonies: it issues single-use
// challenges, hands raw client responses to the Verifier, and persists
// the outcome. Both Finish operations mint a session token on success.
type WebAuthnService struct {
	store    storage.Store
	cfg      *config.Config
	logger   *zap.Logger
	verifier Verifier
	tokens   *TokenService
}

// NewWebAuthnService creates a new WebAuthnService
func NewWebAuthnService(store storage.Store, cfg *config.Config, tokens *TokenService, verifier Verifier, logger *zap.Logger) *WebAuthnService {
	return &WebAuthnService{
		store:    store,
		cfg:      cfg,
		logger:   logger.Named("webauthn-service"),
		verifier: verifier,
		tokens:   tokens,
	}
}

// Client-facing option shapes. These mirror the W3C PublicKeyCredential
// options dictionaries with binary fields as base64url strings, which is
// what credential-manager clients feed straight into the platform API.

// PublicKeyCredentialRpEntity describes the relying party
type PublicKeyCredentialRpEntity struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// PublicKeyCredentialUserEntity describes the registering user, with the
// user handle base64url encoded
type PublicKeyCredentialUserEntity struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
}

// PublicKeyCredentialParameters names an accepted COSE algorithm
type PublicKeyCredentialParameters struct {
	Type string `json:"type"`
	Alg  int64  `json:"alg"`
}

// PublicKeyCredentialDescriptor references an existing credential
type PublicKeyCredentialDescriptor struct {
	Type       string   `json:"type"`
	ID         string   `json:"id"`
	Transports []string `json:"transports,omitempty"`
}

// AuthenticatorSelectionCriteria narrows acceptable authenticators
type AuthenticatorSelectionCriteria struct {
	ResidentKey      string `json:"residentKey"`
	UserVerification string `json:"userVerification"`
}

// RegistrationOptions is the credential creation options document
type RegistrationOptions struct {
	RP                     PublicKeyCredentialRpEntity     `json:"rp"`
	User                   PublicKeyCredentialUserEntity   `json:"user"`
	Challenge              string                          `json:"challenge"`
	PubKeyCredParams       []PublicKeyCredentialParameters `json:"pubKeyCredParams"`
	Timeout                int64                           `json:"timeout"`
	ExcludeCredentials     []PublicKeyCredentialDescriptor `json:"excludeCredentials"`
	AuthenticatorSelection AuthenticatorSelectionCriteria  `json:"authenticatorSelection"`
	Attestation            string                          `json:"attestation"`
}

// AuthenticationOptions is the credential request options document
type AuthenticationOptions struct {
	Challenge        string                          `json:"challenge"`
	Timeout          int64                           `json:"timeout"`
	RPID             string                          `json:"rpId"`
	AllowCredentials []PublicKeyCredentialDescriptor `json:"allowCredentials"`
	UserVerification string                          `json:"userVerification"`
}

// BeginRegistration issues a registration challenge for the given email,
// creating the account if this is the first time the email is seen. Any
// previous registration challenge for the user is superseded but left to
// expire; Consume prefers the newest.
func (s *WebAuthnService) BeginRegistration(ctx context.Context, email string) (*RegistrationOptions, error) {
	user, err := s.upsertUserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}

	challengeValue := generateChallenge()
	challenge := &domain.Challenge{
		ID:        generateChallengeID(),
		UserID:    user.UUID,
		Kind:      domain.ChallengeRegistration,
		Value:     challengeValue,
		ExpiresAt: time.Now().Add(time.Duration(s.cfg.Challenge.TTLSeconds) * time.Second),
	}

	if err := s.store.Challenges().Create(ctx, challenge); err != nil {
		s.logger.Error("Failed to store challenge", zap.Error(err))
		return nil, fmt.Errorf("failed to store challenge: %w", err)
	}

	// Existing passkeys are excluded so the authenticator doesn't
	// silently overwrite one
	passkeys, err := s.store.Passkeys().GetAllByUser(ctx, user.UUID)
	if err != nil {
		return nil, fmt.Errorf("failed to list passkeys: %w", err)
	}

	exclude := make([]PublicKeyCredentialDescriptor, 0, len(passkeys))
	for _, pk := range passkeys {
		exclude = append(exclude, PublicKeyCredentialDescriptor{
			Type:       "public-key",
			ID:         pk.CredentialID,
			Transports: pk.Transports,
		})
	}

	s.logger.Info("Started registration", zap.String("user_id", user.UUID.String()))

	return &RegistrationOptions{
		RP: PublicKeyCredentialRpEntity{
			ID:   s.cfg.Server.RPID,
			Name: s.cfg.Server.RPName,
		},
		User: PublicKeyCredentialUserEntity{
			ID:          base64.RawURLEncoding.EncodeToString(user.UUID.AsUserHandle()),
			Name:        email,
			DisplayName: email,
		},
		Challenge: challengeValue,
		PubKeyCredParams: []PublicKeyCredentialParameters{
			{Type: "public-key", Alg: -7},   // ES256
			{Type: "public-key", Alg: -8},   // EdDSA
			{Type: "public-key", Alg: -257}, // RS256
		},
		Timeout:            int64(s.cfg.Challenge.TTLSeconds) * 1000,
		ExcludeCredentials: exclude,
		AuthenticatorSelection: AuthenticatorSelectionCriteria{
			ResidentKey:      "preferred",
			UserVerification: "preferred",
		},
		Attestation: "none",
	}, nil
}

// FinishRegistration consumes the pending registration challenge for the
// email's account and verifies the attestation response against it. On
// success the credential record is upserted and a session token minted.
func (s *WebAuthnService) FinishRegistration(ctx context.Context, email string, responseJSON []byte) (*domain.AuthResponse, error) {
	user, err := s.upsertUserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}

	challenge, err := s.store.Challenges().Consume(ctx, user.UUID, domain.ChallengeRegistration)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNoChallenge
		}
		return nil, fmt.Errorf("failed to consume challenge: %w", err)
	}

	result, err := s.verifier.VerifyRegistration(responseJSON, challenge.Value, VerifierUser{
		ID:          user.UUID.AsUserHandle(),
		Name:        email,
		DisplayName: email,
	})
	if err != nil {
		s.logger.Warn("Registration verification failed",
			zap.String("user_id", user.UUID.String()),
			zap.Error(err),
		)
		return nil, ErrRegistrationFailed
	}

	passkey := &domain.Passkey{
		CredentialID: base64.RawURLEncoding.EncodeToString(result.CredentialID),
		UserID:       user.UUID,
		PublicKey:    base64.RawURLEncoding.EncodeToString(result.PublicKey),
		Counter:      result.Counter,
		Transports:   result.Transports,
		RPID:         s.cfg.Server.RPID,
	}

	if err := s.store.Passkeys().Upsert(ctx, passkey); err != nil {
		s.logger.Error("Failed to store passkey", zap.Error(err))
		return nil, fmt.Errorf("failed to store passkey: %w", err)
	}

	token, err := s.tokens.Mint(user.UUID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to mint token: %w", err)
	}

	s.logger.Info("Passkey registered",
		zap.String("user_id", user.UUID.String()),
		zap.String("credential_id", passkey.CredentialID),
	)

	return &domain.AuthResponse{Token: token, UserID: user.UUID.String()}, nil
}

// BeginAuthentication issues an anonymous authentication challenge. The
// account is only known once the assertion names a credential, so the
// challenge is stored without a user binding and allowCredentials is
// left empty for a discoverable-credential prompt.
func (s *WebAuthnService) BeginAuthentication(ctx context.Context) (*AuthenticationOptions, error) {
	challengeValue := generateChallenge()
	challenge := &domain.Challenge{
		ID:        generateChallengeID(),
		Kind:      domain.ChallengeAuthentication,
		Value:     challengeValue,
		ExpiresAt: time.Now().Add(time.Duration(s.cfg.Challenge.TTLSeconds) * time.Second),
	}

	if err := s.store.Challenges().Create(ctx, challenge); err != nil {
		s.logger.Error("Failed to store challenge", zap.Error(err))
		return nil, fmt.Errorf("failed to store challenge: %w", err)
	}

	s.logger.Info("Started authentication")

	return &AuthenticationOptions{
		Challenge:        challengeValue,
		Timeout:          int64(s.cfg.Challenge.TTLSeconds) * 1000,
		RPID:             s.cfg.Server.RPID,
		AllowCredentials: []PublicKeyCredentialDescriptor{},
		UserVerification: "preferred",
	}, nil
}

// FinishAuthentication consumes the pending anonymous challenge, looks up
// the credential the assertion names, and verifies the signature against
// its stored public key. The signature counter must strictly advance; an
// equal or lower counter is treated as a cloned authenticator and fails
// the ceremony.
func (s *WebAuthnService) FinishAuthentication(ctx context.Context, responseJSON []byte) (*domain.AuthResponse, error) {
	challenge, err := s.store.Challenges().Consume(ctx, domain.UserID{}, domain.ChallengeAuthentication)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNoChallenge
		}
		return nil, fmt.Errorf("failed to consume challenge: %w", err)
	}

	credentialID, err := credentialIDFromResponse(responseJSON)
	if err != nil {
		s.logger.Warn("Malformed assertion response", zap.Error(err))
		return nil, ErrAuthenticationFailed
	}

	passkey, err := s.store.Passkeys().GetByCredentialID(ctx, credentialID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrUnknownCredential
		}
		return nil, fmt.Errorf("failed to get passkey: %w", err)
	}

	user, err := s.store.Users().GetByID(ctx, passkey.UserID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrUnknownCredential
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	rawCredentialID, err := base64.RawURLEncoding.DecodeString(passkey.CredentialID)
	if err != nil {
		return nil, fmt.Errorf("failed to decode credential id: %w", err)
	}
	publicKey, err := base64.RawURLEncoding.DecodeString(passkey.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("failed to decode public key: %w", err)
	}

	result, err := s.verifier.VerifyAssertion(responseJSON, challenge.Value, AuthenticatorState{
		User: VerifierUser{
			ID:          user.UUID.AsUserHandle(),
			Name:        user.EmailOrID(),
			DisplayName: user.EmailOrID(),
		},
		CredentialID: rawCredentialID,
		PublicKey:    publicKey,
		Counter:      passkey.Counter,
	})
	if err != nil {
		s.logger.Warn("Assertion verification failed",
			zap.String("credential_id", credentialID),
			zap.Error(err),
		)
		return nil, ErrAuthenticationFailed
	}

	if result.CloneWarning || result.NewCounter <= passkey.Counter {
		s.logger.Warn("Signature counter did not advance, possible cloned authenticator",
			zap.String("credential_id", credentialID),
			zap.Uint32("stored", passkey.Counter),
			zap.Uint32("reported", result.NewCounter),
		)
		return nil, ErrAuthenticationFailed
	}

	if err := s.store.Passkeys().UpdateCounter(ctx, credentialID, result.NewCounter); err != nil {
		if errors.Is(err, storage.ErrCounterRegression) {
			return nil, ErrAuthenticationFailed
		}
		return nil, fmt.Errorf("failed to update counter: %w", err)
	}

	token, err := s.tokens.Mint(user.UUID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to mint token: %w", err)
	}

	s.logger.Info("Passkey authentication succeeded",
		zap.String("user_id", user.UUID.String()),
		zap.String("credential_id", credentialID),
	)

	return &domain.AuthResponse{Token: token, UserID: user.UUID.String()}, nil
}

// upsertUserByEmail resolves the account for an email, creating it on
// first contact. A create race against a concurrent request falls back
// to the winner's record.
func (s *WebAuthnService) upsertUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	user, err := s.store.Users().GetByEmail(ctx, email)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	user = &domain.User{
		UUID:  domain.NewUserID(),
		Email: &email,
	}
	if err := s.store.Users().Create(ctx, user); err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			return s.store.Users().GetByEmail(ctx, email)
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.logger.Info("Created user", zap.String("user_id", user.UUID.String()))
	return user, nil
}

// credentialIDFromResponse pulls the credential ID out of an assertion
// response without fully parsing it; the verifier does the real parse.
func credentialIDFromResponse(responseJSON []byte) (string, error) {
	var envelope struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(responseJSON, &envelope); err != nil {
		return "", fmt.Errorf("failed to parse assertion envelope: %w", err)
	}
	if envelope.ID == "" {
		return "", errors.New("assertion response has no credential id")
	}
	return envelope.ID, nil
}

// generateChallenge returns 32 bytes of randomness, base64url encoded,
// the same form the client echoes back inside clientDataJSON.
func generateChallenge() string {
	b := make([]byte, 32)
	_, _ = rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}

func generateChallengeID() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}
