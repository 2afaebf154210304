// Package bridge abstracts a platform credential manager (the Android
// CredentialManager surface) behind plain data types and a flat set of
// string error codes. Option validation happens before any provider call;
// provider failures arrive as a closed set of failure kinds and are mapped
// onto codes through a single table.
package bridge

import "fmt"

// Code is a stable, flat error code surfaced to bridge clients. The
// namespace is non-hierarchical on purpose: clients switch on the string.
type Code string

const (
	CodeUnsupportedPlatform          Code = "unsupported-platform"
	CodeInvalidOptions               Code = "invalid-options"
	CodeInvalidInput                 Code = "invalid-input"
	CodeNoActivity                   Code = "no-activity"
	CodeUnexpectedResponse           Code = "unexpected-response"
	CodeUnexpectedCredentialType     Code = "unexpected-credential-type"
	CodeUnsupportedCredential        Code = "unsupported-credential"
	CodeGoogleServerClientIDRequired Code = "google-server-client-id-required"
	CodeGoogleLinkedServiceRequired  Code = "google-linked-service-id-required"
	CodeGooglePhoneRequiresSignUp    Code = "google-phone-requires-sign-up"
	CodeGoogleIDTokenParseFailure    Code = "google-id-token-parse-failure"
	CodeCancelled                    Code = "cancelled"
	CodeInterrupted                  Code = "interrupted"
	CodeNoCredential                 Code = "no-credential"
	CodeNoCreateOption               Code = "no-create-option"
	CodeProviderConfiguration        Code = "provider-configuration"
	CodeCustom                       Code = "custom"
	CodeUnknown                      Code = "unknown"
	CodeCreateCredentialFailure      Code = "create-credential-failure"
	CodeGetCredentialFailure         Code = "get-credential-failure"
	CodeClearCredentialStateFailure  Code = "clear-credential-state-failure"
)

// Error is a bridge failure: a stable code plus a human-readable message.
type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func newError(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// FailureKind is the closed set of failure classes a Provider can report.
// It mirrors the platform's exception hierarchy flattened into an enum so
// the code mapping is a table lookup instead of a chain of type tests.
type FailureKind string

const (
	FailureCancelled             FailureKind = "cancelled"
	FailureInterrupted           FailureKind = "interrupted"
	FailureProviderConfiguration FailureKind = "provider-configuration"
	FailureNoCreateOption        FailureKind = "no-create-option"
	FailureNoCredential          FailureKind = "no-credential"
	FailureNoActivity            FailureKind = "no-activity"
	FailureCustom                FailureKind = "custom"
	FailureUnknown               FailureKind = "unknown"
)

// failureCodes maps every FailureKind onto its client-facing code.
// Exhaustive: a kind missing here falls back to the per-operation code.
var failureCodes = map[FailureKind]Code{
	FailureCancelled:             CodeCancelled,
	FailureInterrupted:           CodeInterrupted,
	FailureProviderConfiguration: CodeProviderConfiguration,
	FailureNoCreateOption:        CodeNoCreateOption,
	FailureNoCredential:          CodeNoCredential,
	FailureNoActivity:            CodeNoActivity,
	FailureCustom:                CodeCustom,
	FailureUnknown:               CodeUnknown,
}

// PlatformError is how a Provider reports a failure.
type PlatformError struct {
	Kind    FailureKind
	Message string
}

func (e *PlatformError) Error() string {
	return fmt.Sprintf("platform failure %s: %s", e.Kind, e.Message)
}

// mapPlatformError translates a provider error into a bridge Error,
// using fallback for errors outside the known failure kinds.
func mapPlatformError(err error, fallback Code) *Error {
	if perr, ok := err.(*PlatformError); ok {
		if code, known := failureCodes[perr.Kind]; known {
			return &Error{Code: code, Message: perr.Message}
		}
		return &Error{Code: fallback, Message: perr.Message}
	}
	return &Error{Code: fallback, Message: err.Error()}
}
