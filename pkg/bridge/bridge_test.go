package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
)

type fakeProvider struct {
	available bool

	createErr    error
	createResult RawCredential
	createType   string
	createJSON   string

	getErr    error
	getResult RawCredential
	getOpts   *GetCredentialOptions

	clearErr    error
	clearCalled bool
}

func (p *fakeProvider) IsAvailable() bool { return p.available }

func (p *fakeProvider) CreateCredential(_ context.Context, requestType, requestJSON string) (RawCredential, error) {
	p.createType = requestType
	p.createJSON = requestJSON
	if p.createErr != nil {
		return RawCredential{}, p.createErr
	}
	return p.createResult, nil
}

func (p *fakeProvider) GetCredential(_ context.Context, opts GetCredentialOptions) (RawCredential, error) {
	p.getOpts = &opts
	if p.getErr != nil {
		return RawCredential{}, p.getErr
	}
	return p.getResult, nil
}

func (p *fakeProvider) ClearCredentialState(_ context.Context) error {
	p.clearCalled = true
	return p.clearErr
}

func boolPtr(b bool) *bool { return &b }

func TestManagerUnavailable(t *testing.T) {
	m := NewManager(&fakeProvider{available: false}, Defaults{})

	if m.IsAvailable() {
		t.Error("Expected IsAvailable to be false")
	}

	if _, err := m.CreatePasskey(context.Background(), `{"challenge":"abc"}`); err == nil || err.Code != CodeUnsupportedPlatform {
		t.Errorf("Expected %s, got %v", CodeUnsupportedPlatform, err)
	}
	if err := m.ClearCredentialState(context.Background()); err == nil || err.Code != CodeUnsupportedPlatform {
		t.Errorf("Expected %s, got %v", CodeUnsupportedPlatform, err)
	}
}

func TestCreatePasskey(t *testing.T) {
	t.Run("BlankRequest", func(t *testing.T) {
		m := NewManager(&fakeProvider{available: true}, Defaults{})
		if _, err := m.CreatePasskey(context.Background(), "   "); err == nil || err.Code != CodeInvalidInput {
			t.Errorf("Expected %s, got %v", CodeInvalidInput, err)
		}
	})

	t.Run("Success", func(t *testing.T) {
		provider := &fakeProvider{
			available: true,
			createResult: RawCredential{
				Type: platformTypePublicKey,
				Data: json.RawMessage(`{"authenticationResponseJson":"{\"id\":\"cred-1\"}"}`),
			},
		}
		m := NewManager(provider, Defaults{})

		resp, err := m.CreatePasskey(context.Background(), `{"challenge":"abc"}`)
		if err != nil {
			t.Fatalf("CreatePasskey failed: %v", err)
		}
		if resp != `{"id":"cred-1"}` {
			t.Errorf("Unexpected response JSON: %s", resp)
		}
		if provider.createType != CreatePublicKeyRequest {
			t.Errorf("Expected request type %s, got %s", CreatePublicKeyRequest, provider.createType)
		}
	})

	t.Run("WrongResponseType", func(t *testing.T) {
		provider := &fakeProvider{
			available:    true,
			createResult: RawCredential{Type: platformTypePassword, Data: json.RawMessage(`{}`)},
		}
		m := NewManager(provider, Defaults{})
		if _, err := m.CreatePasskey(context.Background(), `{"challenge":"abc"}`); err == nil || err.Code != CodeUnexpectedResponse {
			t.Errorf("Expected %s, got %v", CodeUnexpectedResponse, err)
		}
	})

	t.Run("Cancelled", func(t *testing.T) {
		provider := &fakeProvider{
			available: true,
			createErr: &PlatformError{Kind: FailureCancelled, Message: "user dismissed the sheet"},
		}
		m := NewManager(provider, Defaults{})
		if _, err := m.CreatePasskey(context.Background(), `{"challenge":"abc"}`); err == nil || err.Code != CodeCancelled {
			t.Errorf("Expected %s, got %v", CodeCancelled, err)
		}
	})

	t.Run("UnknownPlatformError", func(t *testing.T) {
		provider := &fakeProvider{available: true, createErr: errors.New("boom")}
		m := NewManager(provider, Defaults{})
		if _, err := m.CreatePasskey(context.Background(), `{"challenge":"abc"}`); err == nil || err.Code != CodeCreateCredentialFailure {
			t.Errorf("Expected fallback %s, got %v", CodeCreateCredentialFailure, err)
		}
	})
}

func TestCreatePassword(t *testing.T) {
	t.Run("BlankInput", func(t *testing.T) {
		m := NewManager(&fakeProvider{available: true}, Defaults{})
		if err := m.CreatePassword(context.Background(), "", "secret"); err == nil || err.Code != CodeInvalidInput {
			t.Errorf("Expected %s, got %v", CodeInvalidInput, err)
		}
		if err := m.CreatePassword(context.Background(), "alice", ""); err == nil || err.Code != CodeInvalidInput {
			t.Errorf("Expected %s, got %v", CodeInvalidInput, err)
		}
	})

	t.Run("Success", func(t *testing.T) {
		provider := &fakeProvider{available: true}
		m := NewManager(provider, Defaults{})
		if err := m.CreatePassword(context.Background(), "alice", "secret"); err != nil {
			t.Fatalf("CreatePassword failed: %v", err)
		}
		if provider.createType != CreatePasswordRequest {
			t.Errorf("Expected request type %s, got %s", CreatePasswordRequest, provider.createType)
		}

		var pw PasswordCredential
		if uerr := json.Unmarshal([]byte(provider.createJSON), &pw); uerr != nil {
			t.Fatalf("Failed to decode request payload: %v", uerr)
		}
		if pw.Username != "alice" || pw.Password != "secret" {
			t.Errorf("Unexpected payload: %+v", pw)
		}
	})
}

func TestGetCredentialOptionValidation(t *testing.T) {
	ctx := context.Background()

	newManager := func() (*Manager, *fakeProvider) {
		provider := &fakeProvider{
			available: true,
			getResult: RawCredential{
				Type: platformTypePassword,
				Data: json.RawMessage(`{"username":"alice","password":"secret"}`),
			},
		}
		return NewManager(provider, Defaults{}), provider
	}

	t.Run("NoSurfaceRequested", func(t *testing.T) {
		m, _ := newManager()
		if _, err := m.GetCredential(ctx, GetCredentialOptions{}); err == nil || err.Code != CodeInvalidOptions {
			t.Errorf("Expected %s, got %v", CodeInvalidOptions, err)
		}
	})

	t.Run("BlankPublicKeyRequestDoesNotCount", func(t *testing.T) {
		m, _ := newManager()
		if _, err := m.GetCredential(ctx, GetCredentialOptions{PublicKeyRequestJSON: "   "}); err == nil || err.Code != CodeInvalidOptions {
			t.Errorf("Expected %s, got %v", CodeInvalidOptions, err)
		}
	})

	t.Run("ServerClientIDRequired", func(t *testing.T) {
		m, _ := newManager()
		opts := GetCredentialOptions{GoogleID: &GoogleIDOption{}}
		if _, err := m.GetCredential(ctx, opts); err == nil || err.Code != CodeGoogleServerClientIDRequired {
			t.Errorf("Expected %s, got %v", CodeGoogleServerClientIDRequired, err)
		}
	})

	t.Run("ServerClientIDDefaulted", func(t *testing.T) {
		provider := &fakeProvider{
			available: true,
			getResult: RawCredential{
				Type: platformTypeGoogleID,
				Data: json.RawMessage(`{"idToken":"tok","id":"alice@example.com"}`),
			},
		}
		m := NewManager(provider, Defaults{ServerClientID: "default-client-id"})

		cred, err := m.GetCredential(ctx, GetCredentialOptions{GoogleID: &GoogleIDOption{}})
		if err != nil {
			t.Fatalf("GetCredential failed: %v", err)
		}
		if cred.Type != CredentialGoogleID {
			t.Errorf("Expected googleId credential, got %s", cred.Type)
		}
		if provider.getOpts.GoogleID.ServerClientID != "default-client-id" {
			t.Errorf("Expected defaulted server client id, got %q", provider.getOpts.GoogleID.ServerClientID)
		}
	})

	t.Run("DepositionScopesRequireLinkedService", func(t *testing.T) {
		m, _ := newManager()
		opts := GetCredentialOptions{GoogleID: &GoogleIDOption{
			ServerClientID:          "client-id",
			IDTokenDepositionScopes: []string{"email"},
		}}
		if _, err := m.GetCredential(ctx, opts); err == nil || err.Code != CodeGoogleLinkedServiceRequired {
			t.Errorf("Expected %s, got %v", CodeGoogleLinkedServiceRequired, err)
		}
	})

	t.Run("VerifiedPhoneWithDefaultFilter", func(t *testing.T) {
		m, _ := newManager()
		opts := GetCredentialOptions{GoogleID: &GoogleIDOption{
			ServerClientID:             "client-id",
			RequestVerifiedPhoneNumber: true,
		}}
		if _, err := m.GetCredential(ctx, opts); err == nil || err.Code != CodeGooglePhoneRequiresSignUp {
			t.Errorf("Expected %s, got %v", CodeGooglePhoneRequiresSignUp, err)
		}
	})

	t.Run("VerifiedPhoneWithExplicitFilterTrue", func(t *testing.T) {
		m, _ := newManager()
		opts := GetCredentialOptions{GoogleID: &GoogleIDOption{
			ServerClientID:             "client-id",
			FilterByAuthorizedAccounts: boolPtr(true),
			RequestVerifiedPhoneNumber: true,
		}}
		if _, err := m.GetCredential(ctx, opts); err == nil || err.Code != CodeGooglePhoneRequiresSignUp {
			t.Errorf("Expected %s, got %v", CodeGooglePhoneRequiresSignUp, err)
		}
	})

	t.Run("VerifiedPhoneWithSignUpFlow", func(t *testing.T) {
		provider := &fakeProvider{
			available: true,
			getResult: RawCredential{
				Type: platformTypeGoogleID,
				Data: json.RawMessage(`{"idToken":"tok","id":"alice@example.com"}`),
			},
		}
		m := NewManager(provider, Defaults{})
		opts := GetCredentialOptions{GoogleID: &GoogleIDOption{
			ServerClientID:             "client-id",
			FilterByAuthorizedAccounts: boolPtr(false),
			RequestVerifiedPhoneNumber: true,
		}}
		if _, err := m.GetCredential(ctx, opts); err != nil {
			t.Errorf("Expected sign-up flow to pass validation, got %v", err)
		}
	})
}

func TestGetCredentialDecoding(t *testing.T) {
	ctx := context.Background()
	allSurfaces := GetCredentialOptions{
		PublicKeyRequestJSON: `{"challenge":"abc"}`,
		Password:             true,
		GoogleID:             &GoogleIDOption{ServerClientID: "client-id"},
	}

	t.Run("PublicKey", func(t *testing.T) {
		provider := &fakeProvider{
			available: true,
			getResult: RawCredential{
				Type: platformTypePublicKey,
				Data: json.RawMessage(`{"authenticationResponseJson":"{\"id\":\"cred-1\"}"}`),
			},
		}
		m := NewManager(provider, Defaults{})

		cred, err := m.GetCredential(ctx, allSurfaces)
		if err != nil {
			t.Fatalf("GetCredential failed: %v", err)
		}
		if cred.Type != CredentialPublicKey || cred.PublicKey == nil {
			t.Fatalf("Expected publicKey credential, got %+v", cred)
		}
		if cred.PublicKey.AuthenticationResponseJSON != `{"id":"cred-1"}` {
			t.Errorf("Unexpected assertion JSON: %s", cred.PublicKey.AuthenticationResponseJSON)
		}
	})

	t.Run("Password", func(t *testing.T) {
		provider := &fakeProvider{
			available: true,
			getResult: RawCredential{
				Type: platformTypePassword,
				Data: json.RawMessage(`{"username":"alice","password":"secret"}`),
			},
		}
		m := NewManager(provider, Defaults{})

		cred, err := m.GetCredential(ctx, allSurfaces)
		if err != nil {
			t.Fatalf("GetCredential failed: %v", err)
		}
		if cred.Type != CredentialPassword || cred.Password == nil || cred.Password.Username != "alice" {
			t.Fatalf("Expected password credential, got %+v", cred)
		}
	})

	t.Run("UnrequestedType", func(t *testing.T) {
		provider := &fakeProvider{
			available: true,
			getResult: RawCredential{
				Type: platformTypePassword,
				Data: json.RawMessage(`{"username":"alice","password":"secret"}`),
			},
		}
		m := NewManager(provider, Defaults{})

		opts := GetCredentialOptions{PublicKeyRequestJSON: `{"challenge":"abc"}`}
		if _, err := m.GetCredential(ctx, opts); err == nil || err.Code != CodeUnexpectedCredentialType {
			t.Errorf("Expected %s, got %v", CodeUnexpectedCredentialType, err)
		}
	})

	t.Run("GoogleParseFailure", func(t *testing.T) {
		provider := &fakeProvider{
			available: true,
			getResult: RawCredential{Type: platformTypeGoogleID, Data: json.RawMessage(`{"id":"no token"}`)},
		}
		m := NewManager(provider, Defaults{})

		opts := GetCredentialOptions{GoogleID: &GoogleIDOption{ServerClientID: "client-id"}}
		if _, err := m.GetCredential(ctx, opts); err == nil || err.Code != CodeGoogleIDTokenParseFailure {
			t.Errorf("Expected %s, got %v", CodeGoogleIDTokenParseFailure, err)
		}
	})

	t.Run("GoogleSIWGVariant", func(t *testing.T) {
		provider := &fakeProvider{
			available: true,
			getResult: RawCredential{
				Type: platformTypeGoogleIDSIWG,
				Data: json.RawMessage(`{"idToken":"tok","id":"alice@example.com"}`),
			},
		}
		m := NewManager(provider, Defaults{})

		cred, err := m.GetCredential(ctx, allSurfaces)
		if err != nil {
			t.Fatalf("GetCredential failed: %v", err)
		}
		if cred.Type != CredentialGoogleID || cred.GoogleID == nil || cred.GoogleID.IDToken != "tok" {
			t.Fatalf("Expected googleId credential for the SIWG type, got %+v", cred)
		}
	})

	t.Run("UnknownTypeUnsupported", func(t *testing.T) {
		provider := &fakeProvider{
			available: true,
			getResult: RawCredential{Type: "com.example.TYPE_WEIRD", Data: json.RawMessage(`{"k":"v"}`)},
		}
		m := NewManager(provider, Defaults{})

		if _, err := m.GetCredential(ctx, allSurfaces); err == nil || err.Code != CodeUnsupportedCredential {
			t.Errorf("Expected %s, got %v", CodeUnsupportedCredential, err)
		}
	})

	t.Run("MissingType", func(t *testing.T) {
		provider := &fakeProvider{
			available: true,
			getResult: RawCredential{Type: "", Data: json.RawMessage(`{}`)},
		}
		m := NewManager(provider, Defaults{})
		if _, err := m.GetCredential(ctx, allSurfaces); err == nil || err.Code != CodeUnexpectedResponse {
			t.Errorf("Expected %s, got %v", CodeUnexpectedResponse, err)
		}
	})
}

func TestSignInWithGoogle(t *testing.T) {
	ctx := context.Background()

	t.Run("RequiresServerClientID", func(t *testing.T) {
		m := NewManager(&fakeProvider{available: true}, Defaults{})
		if _, err := m.SignInWithGoogle(ctx, SignInWithGoogleOptions{}); err == nil || err.Code != CodeGoogleServerClientIDRequired {
			t.Errorf("Expected %s, got %v", CodeGoogleServerClientIDRequired, err)
		}
	})

	t.Run("Success", func(t *testing.T) {
		provider := &fakeProvider{
			available: true,
			getResult: RawCredential{
				Type: platformTypeGoogleID,
				Data: json.RawMessage(`{"idToken":"tok","id":"alice@example.com","displayName":"Alice"}`),
			},
		}
		m := NewManager(provider, Defaults{ServerClientID: "default-client-id", HostedDomain: "example.com"})

		cred, err := m.SignInWithGoogle(ctx, SignInWithGoogleOptions{})
		if err != nil {
			t.Fatalf("SignInWithGoogle failed: %v", err)
		}
		if cred.IDToken != "tok" || cred.DisplayName != "Alice" {
			t.Errorf("Unexpected credential: %+v", cred)
		}
		if provider.getOpts.GoogleID == nil || provider.getOpts.GoogleID.HostedDomainFilter != "example.com" {
			t.Errorf("Expected hosted domain default to propagate, got %+v", provider.getOpts.GoogleID)
		}
	})

	t.Run("SIWGVariant", func(t *testing.T) {
		provider := &fakeProvider{
			available: true,
			getResult: RawCredential{
				Type: platformTypeGoogleIDSIWG,
				Data: json.RawMessage(`{"idToken":"siwg-tok","id":"alice@example.com"}`),
			},
		}
		m := NewManager(provider, Defaults{ServerClientID: "default-client-id"})

		cred, err := m.SignInWithGoogle(ctx, SignInWithGoogleOptions{})
		if err != nil {
			t.Fatalf("SignInWithGoogle failed: %v", err)
		}
		if cred.IDToken != "siwg-tok" {
			t.Errorf("Unexpected credential: %+v", cred)
		}
	})

	t.Run("WrongCredentialType", func(t *testing.T) {
		provider := &fakeProvider{
			available: true,
			getResult: RawCredential{Type: platformTypePassword, Data: json.RawMessage(`{"username":"a","password":"b"}`)},
		}
		m := NewManager(provider, Defaults{ServerClientID: "default-client-id"})
		if _, err := m.SignInWithGoogle(ctx, SignInWithGoogleOptions{}); err == nil || err.Code != CodeUnexpectedCredentialType {
			t.Errorf("Expected %s, got %v", CodeUnexpectedCredentialType, err)
		}
	})
}

func TestClearCredentialState(t *testing.T) {
	provider := &fakeProvider{available: true}
	m := NewManager(provider, Defaults{})

	if err := m.ClearCredentialState(context.Background()); err != nil {
		t.Fatalf("ClearCredentialState failed: %v", err)
	}
	if !provider.clearCalled {
		t.Error("Expected provider to be invoked")
	}

	provider.clearErr = &PlatformError{Kind: FailureUnknown, Message: "boom"}
	if err := m.ClearCredentialState(context.Background()); err == nil || err.Code != CodeUnknown {
		t.Errorf("Expected %s, got %v", CodeUnknown, err)
	}

	provider.clearErr = errors.New("opaque")
	if err := m.ClearCredentialState(context.Background()); err == nil || err.Code != CodeClearCredentialStateFailure {
		t.Errorf("Expected fallback %s, got %v", CodeClearCredentialStateFailure, err)
	}
}

func TestFailureCodeMappingIsExhaustive(t *testing.T) {
	kinds := []FailureKind{
		FailureCancelled,
		FailureInterrupted,
		FailureProviderConfiguration,
		FailureNoCreateOption,
		FailureNoCredential,
		FailureNoActivity,
		FailureCustom,
		FailureUnknown,
	}
	for _, kind := range kinds {
		if _, ok := failureCodes[kind]; !ok {
			t.Errorf("Failure kind %s has no code mapping", kind)
		}
	}
	if len(failureCodes) != len(kinds) {
		t.Errorf("Expected %d mappings, got %d", len(kinds), len(failureCodes))
	}
}

func TestCredentialMarshalJSON(t *testing.T) {
	cred := Credential{
		Type:     CredentialPassword,
		Password: &PasswordCredential{Username: "alice", Password: "secret"},
	}

	data, err := json.Marshal(cred)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if decoded["type"] != "password" {
		t.Errorf("Expected type tag password, got %v", decoded["type"])
	}
	if decoded["username"] != "alice" {
		t.Errorf("Expected flattened username, got %v", decoded["username"])
	}
}
