package oidc

import "slices"

// Configuration is the part of the provider metadata the client reads beyond
// what the go-oidc provider exposes.
// See https://openid.net/specs/openid-connect-discovery-1_0.html#ProviderMetadata
type Configuration struct {
	Issuer                           string   `json:"issuer,omitempty"`
	AuthorizationEndpoint            string   `json:"authorization_endpoint,omitempty"`
	TokenEndpoint                    string   `json:"token_endpoint,omitempty"`
	UserinfoEndpoint                 string   `json:"userinfo_endpoint,omitempty"`
	JwksURI                          string   `json:"jwks_uri,omitempty"`
	RevocationEndpoint               string   `json:"revocation_endpoint,omitempty"`
	EndSessionEndpoint               string   `json:"end_session_endpoint,omitempty"`
	CodeChallengeMethodsSupported    []string `json:"code_challenge_methods_supported,omitempty"`
	IDTokenSigningAlgValuesSupported []string `json:"id_token_signing_alg_values_supported,omitempty"`
}

// SupportsChallengeMethod reports whether the provider advertises method.
// Providers that do not advertise any method are assumed to support it.
func (c Configuration) SupportsChallengeMethod(method string) bool {
	return len(c.CodeChallengeMethodsSupported) == 0 || slices.Contains(c.CodeChallengeMethodsSupported, method)
}
