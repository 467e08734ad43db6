package business

import (
	"context"
	"fmt"
	"net/http"

	"github.com/openkcm/common-sdk/pkg/commoncfg"
	"github.com/valkey-io/valkey-go"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/session-client/internal/config"
	"github.com/openkcm/session-client/internal/oidc"
	"github.com/openkcm/session-client/internal/serviceerr"
	"github.com/openkcm/session-client/pkg/session"
	"github.com/openkcm/session-client/pkg/tokenstore"
	"github.com/openkcm/session-client/pkg/tokenstore/memory"
	"github.com/openkcm/session-client/pkg/tokenstore/sqlite"
	valkeystore "github.com/openkcm/session-client/pkg/tokenstore/valkey"
)

func initSessionManager(ctx context.Context, cfg *config.Config, navigator session.Navigator) (_ *session.Manager, closeFn func(), _ error) {
	storage, closeFn, err := initStorage(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("initialising the token storage: %w", err)
	}

	provider, err := initProvider(cfg, storage)
	if err != nil {
		closeFn()
		return nil, nil, fmt.Errorf("initialising the identity provider client: %w", err)
	}

	store := tokenstore.New(storage, tokenstore.WithNamespace(cfg.Storage.Namespace))

	manager := session.NewManager(session.Config{
		LandingLocation:                  cfg.Session.LandingLocation,
		SignedOutLocation:                cfg.Session.SignedOutLocation,
		CallbackFailureLocation:          cfg.Session.CallbackFailureLocation,
		RefreshCheckInterval:             cfg.Session.RefreshCheckInterval,
		ProviderManagesRefreshInternally: cfg.Provider.ManagesRefreshInternally,
	}, store, provider, navigator)

	manager.Initialize(ctx)

	return manager, closeFn, nil
}

func initStorage(ctx context.Context, cfg *config.Config) (_ tokenstore.Storage, closeFn func(), _ error) {
	switch cfg.Storage.Type {
	case config.StorageMemory:
		slogctx.Warn(ctx, "Using in-memory token storage, the session ends with the process")
		return memory.NewStorage(), func() {}, nil
	case config.StorageSQLite:
		storage, err := sqlite.Open(ctx, cfg.Storage.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("opening sqlite storage: %w", err)
		}

		return storage, func() {
			if err := storage.Close(); err != nil {
				slogctx.Error(ctx, "Failed to close the sqlite storage", "error", err)
			}
		}, nil
	case config.StorageValKey:
		valkeyOpts, err := config.MakeValkeyOptions(cfg.ValKey)
		if err != nil {
			return nil, nil, fmt.Errorf("making valkey options from config: %w", err)
		}

		valkeyClient, err := valkey.NewClient(valkeyOpts)
		if err != nil {
			return nil, nil, fmt.Errorf("creating a new valkey client: %w", err)
		}

		return valkeystore.NewStorage(valkeyClient, cfg.ValKey.Prefix), valkeyClient.Close, nil
	default:
		return nil, nil, fmt.Errorf("%w: %q", serviceerr.ErrUnknownStorage, cfg.Storage.Type)
	}
}

func initProvider(cfg *config.Config, storage tokenstore.Storage) (*oidc.Client, error) {
	clientID, err := commoncfg.LoadValueFromSourceRef(cfg.Provider.ClientID)
	if err != nil {
		return nil, fmt.Errorf("loading client id: %w", err)
	}

	// public clients have no secret
	var clientSecret []byte
	if cfg.Provider.ClientSecret.Source != "" {
		clientSecret, err = commoncfg.LoadValueFromSourceRef(cfg.Provider.ClientSecret)
		if err != nil {
			return nil, fmt.Errorf("loading client secret: %w", err)
		}
	}

	httpClient, err := loadHTTPClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("loading http client: %w", err)
	}

	return oidc.NewClient(oidc.Config{
		IssuerURL:                cfg.Provider.IssuerURL,
		ClientID:                 string(clientID),
		ClientSecret:             string(clientSecret),
		RedirectURL:              cfg.Provider.RedirectURI,
		Scopes:                   cfg.Provider.Scopes,
		AuthParams:               cfg.Provider.AdditionalQueryParametersAuthorize,
		StateTTL:                 cfg.Provider.StateTTL,
		DiscoveryCacheTTL:        cfg.Provider.DiscoveryCacheTTL,
		ManagesRefreshInternally: cfg.Provider.ManagesRefreshInternally,
		UseUserInfo:              cfg.Provider.UseUserInfo,
		Namespace:                cfg.Storage.Namespace,
	}, storage, oidc.WithHTTPClient(httpClient)), nil
}

// loadHTTPClient returns the client used towards the identity provider,
// authenticating with mTLS when a secret ref is configured.
func loadHTTPClient(cfg *config.Config) (*http.Client, error) {
	if cfg.Provider.SecretRef.Type != commoncfg.MTLSSecretType {
		return &http.Client{Timeout: cfg.Provider.Timeout}, nil
	}

	tlsConfig, err := commoncfg.LoadMTLSConfig(&cfg.Provider.SecretRef.MTLS)
	if err != nil {
		return nil, fmt.Errorf("failed to load mTLS config: %w", err)
	}

	return &http.Client{
		Timeout: cfg.Provider.Timeout,
		Transport: &http.Transport{
			TLSClientConfig: tlsConfig,
		},
	}, nil
}
