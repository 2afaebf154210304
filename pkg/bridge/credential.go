package bridge

import (
	"encoding/json"
	"strings"
)

// CredentialType discriminates the credential union returned by a get
// request. The wire form carries it in a "type" field.
type CredentialType string

const (
	CredentialPublicKey CredentialType = "publicKey"
	CredentialPassword  CredentialType = "password"
	CredentialGoogleID  CredentialType = "googleId"
)

// PublicKeyCredential is an assertion produced by a passkey get request.
// The response JSON is passed through verbatim for server verification.
type PublicKeyCredential struct {
	AuthenticationResponseJSON string `json:"authenticationResponseJson"`
}

// PasswordCredential is a stored username/password pair.
type PasswordCredential struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// GoogleIDCredential is a Google identity assertion. Only IDToken is
// guaranteed; profile fields depend on the account and request scopes.
type GoogleIDCredential struct {
	IDToken           string `json:"idToken"`
	ID                string `json:"id"`
	DisplayName       string `json:"displayName,omitempty"`
	FamilyName        string `json:"familyName,omitempty"`
	GivenName         string `json:"givenName,omitempty"`
	ProfilePictureURI string `json:"profilePictureUri,omitempty"`
	PhoneNumber       string `json:"phoneNumber,omitempty"`
}

// Credential is the tagged union of everything a get request can return.
// Exactly one of the pointer fields matching Type is non-nil.
type Credential struct {
	Type      CredentialType       `json:"type"`
	PublicKey *PublicKeyCredential `json:"-"`
	Password  *PasswordCredential  `json:"-"`
	GoogleID  *GoogleIDCredential  `json:"-"`
}

// MarshalJSON flattens the active variant alongside the type tag.
func (c Credential) MarshalJSON() ([]byte, error) {
	switch c.Type {
	case CredentialPublicKey:
		return tagged(c.Type, c.PublicKey)
	case CredentialPassword:
		return tagged(c.Type, c.Password)
	case CredentialGoogleID:
		return tagged(c.Type, c.GoogleID)
	default:
		return json.Marshal(struct {
			Type CredentialType `json:"type"`
		}{c.Type})
	}
}

func tagged(t CredentialType, v interface{}) ([]byte, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	tag, err := json.Marshal(struct {
		Type CredentialType `json:"type"`
	}{t})
	if err != nil {
		return nil, err
	}
	if string(payload) == "{}" || string(payload) == "null" {
		return tag, nil
	}
	// splice {"type":...} and the variant body into one object
	return append(append(tag[:len(tag)-1], ','), payload[1:]...), nil
}

// RawCredential is what a Provider hands back: the platform type string
// and the credential data as loose JSON.
type RawCredential struct {
	Type string
	Data json.RawMessage
}

// Well-known platform credential type strings. Google credentials come
// in two flavors depending on whether the account was picked from the
// bottom sheet or the dedicated sign-in-with-Google button.
const (
	platformTypePublicKey    = "androidx.credentials.TYPE_PUBLIC_KEY_CREDENTIAL"
	platformTypePassword     = "android.credentials.TYPE_PASSWORD_CREDENTIAL"
	platformTypeGoogleID     = "com.google.android.libraries.identity.googleid.TYPE_GOOGLE_ID_TOKEN_CREDENTIAL"
	platformTypeGoogleIDSIWG = "com.google.android.libraries.identity.googleid.TYPE_GOOGLE_ID_TOKEN_SIWG_CREDENTIAL"
)

func isGooglePlatformType(t string) bool {
	return t == platformTypeGoogleID || t == platformTypeGoogleIDSIWG
}

// decodeCredential converts a provider result into the typed union,
// checking it against what the options actually requested.
func decodeCredential(raw RawCredential, opts GetCredentialOptions) (*Credential, *Error) {
	switch raw.Type {
	case platformTypePublicKey:
		if strings.TrimSpace(opts.PublicKeyRequestJSON) == "" {
			return nil, newError(CodeUnexpectedCredentialType,
				"provider returned a public key credential that was not requested")
		}
		var pk PublicKeyCredential
		if err := json.Unmarshal(raw.Data, &pk); err != nil || pk.AuthenticationResponseJSON == "" {
			return nil, newError(CodeUnexpectedResponse, "malformed public key credential payload")
		}
		return &Credential{Type: CredentialPublicKey, PublicKey: &pk}, nil

	case platformTypePassword:
		if !opts.Password {
			return nil, newError(CodeUnexpectedCredentialType,
				"provider returned a password credential that was not requested")
		}
		var pw PasswordCredential
		if err := json.Unmarshal(raw.Data, &pw); err != nil || pw.Username == "" {
			return nil, newError(CodeUnexpectedResponse, "malformed password credential payload")
		}
		return &Credential{Type: CredentialPassword, Password: &pw}, nil

	case platformTypeGoogleID, platformTypeGoogleIDSIWG:
		if opts.GoogleID == nil {
			return nil, newError(CodeUnexpectedCredentialType,
				"provider returned a Google credential that was not requested")
		}
		var g GoogleIDCredential
		if err := json.Unmarshal(raw.Data, &g); err != nil || g.IDToken == "" {
			return nil, newError(CodeGoogleIDTokenParseFailure,
				"could not parse Google id token credential")
		}
		return &Credential{Type: CredentialGoogleID, GoogleID: &g}, nil

	default:
		if raw.Type == "" {
			return nil, newError(CodeUnexpectedResponse, "provider returned a credential with no type")
		}
		return nil, newError(CodeUnsupportedCredential,
			"provider returned unsupported credential type %q", raw.Type)
	}
}

// decodeGoogleCredential handles the dedicated sign-in-with-Google flow,
// where only a Google credential is acceptable.
func decodeGoogleCredential(raw RawCredential) (*GoogleIDCredential, *Error) {
	if !isGooglePlatformType(raw.Type) {
		return nil, newError(CodeUnexpectedCredentialType,
			"provider returned %q instead of a Google id token credential", raw.Type)
	}
	var g GoogleIDCredential
	if err := json.Unmarshal(raw.Data, &g); err != nil || g.IDToken == "" {
		return nil, newError(CodeGoogleIDTokenParseFailure, "could not parse Google id token credential")
	}
	return &g, nil
}
