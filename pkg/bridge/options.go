package bridge

import "strings"

// GoogleIDOption configures a Google identity request. Zero-value
// semantics follow the platform defaults: FilterByAuthorizedAccounts is
// treated as true unless explicitly set false.
type GoogleIDOption struct {
	ServerClientID             string   `json:"serverClientId,omitempty"`
	Nonce                      string   `json:"nonce,omitempty"`
	FilterByAuthorizedAccounts *bool    `json:"filterByAuthorizedAccounts,omitempty"`
	AutoSelectEnabled          bool     `json:"autoSelectEnabled,omitempty"`
	LinkedServiceID            string   `json:"linkedServiceId,omitempty"`
	IDTokenDepositionScopes    []string `json:"idTokenDepositionScopes,omitempty"`
	RequestVerifiedPhoneNumber bool     `json:"requestVerifiedPhoneNumber,omitempty"`
	HostedDomainFilter         string   `json:"hostedDomainFilter,omitempty"`
}

func (o *GoogleIDOption) filterByAuthorizedAccounts() bool {
	if o.FilterByAuthorizedAccounts == nil {
		return true
	}
	return *o.FilterByAuthorizedAccounts
}

// GetCredentialOptions selects which credential types a get request may
// return. At least one of the three surfaces must be requested.
type GetCredentialOptions struct {
	PublicKeyRequestJSON string          `json:"publicKeyRequestJson,omitempty"`
	Password             bool            `json:"password,omitempty"`
	GoogleID             *GoogleIDOption `json:"googleId,omitempty"`
	PreferImmediately    bool            `json:"preferImmediatelyAvailableCredentials,omitempty"`
}

// SignInWithGoogleOptions configures the dedicated sign-in-with-Google
// flow (the "button" variant, always a sign-up capable prompt).
type SignInWithGoogleOptions struct {
	ServerClientID     string `json:"serverClientId,omitempty"`
	Nonce              string `json:"nonce,omitempty"`
	HostedDomainFilter string `json:"hostedDomainFilter,omitempty"`
}

// validateGetOptions checks mutually-exclusive and required option
// combinations before anything touches the platform. defaults supplies
// resource-configured fallbacks for the Google fields.
func validateGetOptions(opts GetCredentialOptions, defaults Defaults) (*GetCredentialOptions, *Error) {
	hasPublicKey := strings.TrimSpace(opts.PublicKeyRequestJSON) != ""
	if !hasPublicKey && !opts.Password && opts.GoogleID == nil {
		return nil, newError(CodeInvalidOptions,
			"at least one of publicKeyRequestJson, password or googleId must be set")
	}

	if opts.GoogleID != nil {
		google, err := validateGoogleIDOption(*opts.GoogleID, defaults)
		if err != nil {
			return nil, err
		}
		opts.GoogleID = google
	}

	return &opts, nil
}

func validateGoogleIDOption(opt GoogleIDOption, defaults Defaults) (*GoogleIDOption, *Error) {
	if opt.ServerClientID == "" {
		opt.ServerClientID = defaults.ServerClientID
	}
	if opt.ServerClientID == "" {
		return nil, newError(CodeGoogleServerClientIDRequired,
			"googleId.serverClientId is required and no default is configured")
	}

	if len(opt.IDTokenDepositionScopes) > 0 && opt.LinkedServiceID == "" {
		return nil, newError(CodeGoogleLinkedServiceRequired,
			"googleId.linkedServiceId is required when idTokenDepositionScopes is set")
	}

	// A verified phone number can only be requested during sign-up, and
	// filtering by authorized accounts restricts the prompt to returning
	// users.
	if opt.RequestVerifiedPhoneNumber && opt.filterByAuthorizedAccounts() {
		return nil, newError(CodeGooglePhoneRequiresSignUp,
			"requestVerifiedPhoneNumber requires filterByAuthorizedAccounts=false")
	}

	if opt.HostedDomainFilter == "" {
		opt.HostedDomainFilter = defaults.HostedDomain
	}

	return &opt, nil
}

func validateSignInWithGoogleOptions(opts SignInWithGoogleOptions, defaults Defaults) (*SignInWithGoogleOptions, *Error) {
	if opts.ServerClientID == "" {
		opts.ServerClientID = defaults.ServerClientID
	}
	if opts.ServerClientID == "" {
		return nil, newError(CodeGoogleServerClientIDRequired,
			"serverClientId is required and no default is configured")
	}
	if opts.HostedDomainFilter == "" {
		opts.HostedDomainFilter = defaults.HostedDomain
	}
	return &opts, nil
}
