// Package config defines the necessary types to configure the application.
// An example config file config.yaml is provided in the repository.
package config

import (
	"time"

	"github.com/openkcm/common-sdk/pkg/commoncfg"
)

const (
	StorageMemory = "memory"
	StorageSQLite = "sqlite"
	StorageValKey = "valkey"
)

type Config struct {
	commoncfg.BaseConfig `mapstructure:",squash" yaml:",inline"`

	Provider Provider `yaml:"provider"`
	Storage  Storage  `yaml:"storage"`
	ValKey   ValKey   `yaml:"valkey"`
	Session  Session  `yaml:"session"`
	Callback Callback `yaml:"callback"`
}

// Provider configures the OpenID Connect client.
type Provider struct {
	IssuerURL    string              `yaml:"issuerURL"`
	ClientID     commoncfg.SourceRef `yaml:"clientID"`
	ClientSecret commoncfg.SourceRef `yaml:"clientSecret"`
	RedirectURI  string              `yaml:"redirectURI" default:"http://127.0.0.1:8400/callback"`
	Scopes       []string            `yaml:"scopes"`

	AdditionalQueryParametersAuthorize map[string]string `yaml:"additionalQueryParametersAuthorize"`

	ManagesRefreshInternally bool          `yaml:"managesRefreshInternally"`
	UseUserInfo              bool          `yaml:"useUserInfo"`
	StateTTL                 time.Duration `yaml:"stateTTL" default:"10m"`
	DiscoveryCacheTTL        time.Duration `yaml:"discoveryCacheTTL" default:"1h"`
	Timeout                  time.Duration `yaml:"timeout" default:"30s"`

	// SecretRef enables mTLS towards the provider.
	SecretRef commoncfg.SecretRef `yaml:"secretRef"`
}

// Storage selects where the token set is kept.
type Storage struct {
	Type       string `yaml:"type" default:"sqlite"`
	Namespace  string `yaml:"namespace" default:"oidc"`
	SQLitePath string `yaml:"sqlitePath" default:"session.db"`
}

type ValKey struct {
	Host      commoncfg.SourceRef `yaml:"host"`
	User      commoncfg.SourceRef `yaml:"user"`
	Password  commoncfg.SourceRef `yaml:"password"`
	Prefix    string              `yaml:"prefix" default:"session-client"`
	SecretRef commoncfg.SecretRef `yaml:"secretRef"`
}

// Session configures the locations the session navigates to.
type Session struct {
	LandingLocation         string        `yaml:"landingLocation" default:"/welcome"`
	SignedOutLocation       string        `yaml:"signedOutLocation" default:"/"`
	CallbackFailureLocation string        `yaml:"callbackFailureLocation" default:"/home"`
	RefreshCheckInterval    time.Duration `yaml:"refreshCheckInterval" default:"5m"`
}

// Callback configures the loopback listener receiving the authorization callback.
type Callback struct {
	Timeout         time.Duration `yaml:"timeout" default:"5m"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout" default:"5s"`
}
