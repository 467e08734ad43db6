package session_test

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openkcm/session-client/pkg/session"
	sessionmock "github.com/openkcm/session-client/pkg/session/mock"
	"github.com/openkcm/session-client/pkg/tokenstore"
	"github.com/openkcm/session-client/pkg/tokenstore/memory"
)

const authURL = "https://idp.example.com/oauth2/authorize?state=xyz"

func validTokens(access string) tokenstore.TokenSet {
	return tokenstore.TokenSet{
		AccessToken:  access,
		IDToken:      "id-" + access,
		RefreshToken: "refresh-" + access,
		ExpiresAt:    time.Now().Add(time.Hour).UnixMilli(),
	}
}

func expiringTokens(access string) tokenstore.TokenSet {
	tokens := validTokens(access)
	tokens.ExpiresAt = time.Now().Add(time.Minute).UnixMilli()

	return tokens
}

type fixture struct {
	manager   *session.Manager
	store     *tokenstore.Store
	provider  *sessionmock.Provider
	navigator *sessionmock.Navigator
}

func newFixture(t *testing.T, cfg session.Config, stored *tokenstore.TokenSet, opts ...sessionmock.ProviderOption) fixture {
	t.Helper()

	store := tokenstore.New(memory.NewStorage())
	if stored != nil {
		require.NoError(t, store.Write(t.Context(), *stored))
	}

	opts = append([]sessionmock.ProviderOption{
		sessionmock.WithAuthURL(authURL),
		sessionmock.WithClaims(session.Claims{Subject: "user-1", Email: "jane@example.com", Name: "Jane"}),
	}, opts...)
	provider := sessionmock.NewProvider(opts...)
	navigator := sessionmock.NewNavigator(nil)

	return fixture{
		manager:   session.NewManager(cfg, store, provider, navigator),
		store:     store,
		provider:  provider,
		navigator: navigator,
	}
}

func ptr[T any](v T) *T { return &v }

func TestManager_Login(t *testing.T) {
	tests := []struct {
		name          string
		stored        *tokenstore.TokenSet
		opts          []sessionmock.ProviderOption
		wantLocations []string
		wantBegin     int
		wantState     session.State
		assertErr     assert.ErrorAssertionFunc
	}{
		{
			name:          "Redirects to the identity provider",
			wantLocations: []string{authURL},
			wantBegin:     1,
			wantState:     session.PendingCallback,
			assertErr:     assert.NoError,
		},
		{
			name:          "Already authenticated navigates to the landing view",
			stored:        ptr(validTokens("a1")),
			wantLocations: []string{session.DefaultLandingLocation},
			wantBegin:     0,
			wantState:     session.Authenticated,
			assertErr:     assert.NoError,
		},
		{
			name:          "Expired session starts a new flow",
			stored:        ptr(expiringTokens("a1")),
			wantLocations: []string{authURL},
			wantBegin:     1,
			wantState:     session.Expired,
			assertErr:     assert.NoError,
		},
		{
			name:      "Redirect cannot be prepared",
			opts:      []sessionmock.ProviderOption{sessionmock.WithBeginError(session.ErrProviderUnavailable)},
			wantBegin: 1,
			wantState: session.Unauthenticated,
			assertErr: assert.Error,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, session.Config{}, tt.stored, tt.opts...)

			err := f.manager.Login(t.Context())
			tt.assertErr(t, err, fmt.Sprintf("Login() error %v", err))

			assert.Equal(t, tt.wantLocations, f.navigator.Locations())
			assert.Equal(t, tt.wantBegin, f.provider.Calls().Begin)
			assert.Equal(t, tt.wantState, f.manager.State(t.Context()))
		})
	}

	t.Run("Repeated login while authenticated never starts a flow", func(t *testing.T) {
		f := newFixture(t, session.Config{LandingLocation: "/dashboard"}, ptr(validTokens("a1")))

		for range 3 {
			require.NoError(t, f.manager.Login(t.Context()))
		}

		assert.Equal(t, 0, f.provider.Calls().Begin)
		assert.Equal(t, []string{"/dashboard", "/dashboard", "/dashboard"}, f.navigator.Locations())
	})
}

func TestIsAuthCallback(t *testing.T) {
	tests := []struct {
		name     string
		location string
		want     bool
	}{
		{name: "Code and state", location: "http://localhost:4200/?code=c1&state=s1", want: true},
		{name: "Code only", location: "http://localhost:4200/?code=c1", want: false},
		{name: "State only", location: "http://localhost:4200/?state=s1", want: false},
		{name: "Neither", location: "http://localhost:4200/", want: false},
		{name: "Empty values", location: "http://localhost:4200/?code=&state=", want: false},
		{name: "Extra parameters", location: "http://localhost:4200/cb?foo=bar&state=s1&code=c1", want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := url.Parse(tt.location)
			require.NoError(t, err)

			assert.Equal(t, tt.want, session.IsAuthCallback(u))
			assert.Equal(t, tt.want, session.IsAuthCallback(u), "predicate must be repeatable")
		})
	}

	assert.False(t, session.IsAuthCallback(nil))
}

func TestManager_HandleAuthCallback(t *testing.T) {
	callback, err := url.Parse("http://localhost:4200/?code=c1&state=s1")
	require.NoError(t, err)

	tests := []struct {
		name          string
		location      *url.URL
		opts          []sessionmock.ProviderOption
		wantStored    bool
		wantUser      *session.User
		wantLocations []string
		assertErr     assert.ErrorAssertionFunc
	}{
		{
			name:          "Stores tokens, publishes the user and navigates",
			location:      callback,
			opts:          []sessionmock.ProviderOption{sessionmock.WithTokens(validTokens("a1"))},
			wantStored:    true,
			wantUser:      &session.User{ID: "user-1", Email: "jane@example.com", Name: "Jane"},
			wantLocations: []string{session.DefaultLandingLocation},
			assertErr:     assert.NoError,
		},
		{
			name:     "Provider returned no tokens",
			location: callback,
			assertErr: func(t assert.TestingT, err error, i ...any) bool {
				return assert.ErrorIs(t, err, session.ErrNoTokensInSession, i...)
			},
		},
		{
			name:     "Provider returned an access token only",
			location: callback,
			opts:     []sessionmock.ProviderOption{sessionmock.WithTokens(tokenstore.TokenSet{AccessToken: "a1"})},
			assertErr: func(t assert.TestingT, err error, i ...any) bool {
				return assert.ErrorIs(t, err, session.ErrNoTokensInSession, i...)
			},
		},
		{
			name:      "Consumed code is rejected by the provider",
			location:  callback,
			opts:      []sessionmock.ProviderOption{sessionmock.WithCompleteError(&session.ProviderError{Code: "invalid_grant"})},
			assertErr: assert.Error,
		},
		{
			name:     "Provider redirected with an error",
			location: &url.URL{RawQuery: "error=access_denied&error_description=denied&state=s1"},
			assertErr: func(t assert.TestingT, err error, i ...any) bool {
				var providerErr *session.ProviderError
				return assert.ErrorAs(t, err, &providerErr, i...) && assert.Equal(t, "access_denied", providerErr.Code)
			},
		},
		{
			name:     "Not a callback",
			location: &url.URL{RawQuery: "code=c1"},
			assertErr: func(t assert.TestingT, err error, i ...any) bool {
				return assert.ErrorIs(t, err, session.ErrNotCallback, i...)
			},
		},
		{
			name:     "Identity cannot be loaded",
			location: callback,
			opts: []sessionmock.ProviderOption{
				sessionmock.WithTokens(validTokens("a1")),
				sessionmock.WithIdentityError(errors.New("jwks unavailable")),
			},
			wantStored: true,
			assertErr:  assert.Error,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, session.Config{}, nil, tt.opts...)

			var published []*session.User
			f.manager.Subscribe(func(u *session.User) {
				published = append(published, u)
			})

			err := f.manager.HandleAuthCallback(t.Context(), tt.location)
			tt.assertErr(t, err, fmt.Sprintf("HandleAuthCallback() error %v", err))

			_, stored := f.store.Read(t.Context())
			assert.Equal(t, tt.wantStored, stored)
			assert.Equal(t, tt.wantLocations, f.navigator.Locations())

			if tt.wantUser == nil {
				assert.Equal(t, []*session.User{nil}, published)
				return
			}

			require.Len(t, published, 2)
			assert.Equal(t, tt.wantUser.ID, published[1].ID)
			assert.Equal(t, tt.wantUser.Email, published[1].Email)
			assert.Equal(t, tt.wantUser.Name, published[1].Name)
		})
	}
}

func TestManager_RecoverFromCallbackFailure(t *testing.T) {
	f := newFixture(t, session.Config{}, nil)

	f.manager.RecoverFromCallbackFailure(t.Context(), errors.New("invalid_grant"))

	assert.Equal(t, []string{session.DefaultCallbackFailureLocation}, f.navigator.Locations())
}

func TestManager_CurrentUser(t *testing.T) {
	tests := []struct {
		name      string
		stored    *tokenstore.TokenSet
		claims    session.Claims
		wantUser  session.User
		assertErr assert.ErrorAssertionFunc
	}{
		{
			name:     "Name claim",
			stored:   ptr(validTokens("a1")),
			claims:   session.Claims{Subject: "u1", Email: "a@example.com", Name: "Ann", GivenName: "A", PreferredUsername: "ann"},
			wantUser: session.User{ID: "u1", Email: "a@example.com", Name: "Ann"},
		},
		{
			name:     "Falls back to given name",
			stored:   ptr(validTokens("a1")),
			claims:   session.Claims{Subject: "u1", Email: "a@example.com", GivenName: "A", PreferredUsername: "ann"},
			wantUser: session.User{ID: "u1", Email: "a@example.com", Name: "A"},
		},
		{
			name:     "Falls back to preferred username",
			stored:   ptr(validTokens("a1")),
			claims:   session.Claims{Subject: "u1", Email: "a@example.com", PreferredUsername: "ann"},
			wantUser: session.User{ID: "u1", Email: "a@example.com", Name: "ann"},
		},
		{
			name:     "Missing claims use the unknown sentinel",
			stored:   ptr(validTokens("a1")),
			claims:   session.Claims{},
			wantUser: session.User{ID: "unknown", Email: "unknown"},
		},
		{
			name: "No session",
			assertErr: func(t assert.TestingT, err error, i ...any) bool {
				return assert.ErrorIs(t, err, session.ErrNoIdentity, i...)
			},
		},
		{
			name:   "Expired session",
			stored: ptr(expiringTokens("a1")),
			assertErr: func(t assert.TestingT, err error, i ...any) bool {
				return assert.ErrorIs(t, err, session.ErrNoIdentity, i...)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.assertErr == nil {
				tt.assertErr = assert.NoError
			}

			f := newFixture(t, session.Config{}, tt.stored, sessionmock.WithClaims(tt.claims))

			user, err := f.manager.CurrentUser(t.Context())
			if !tt.assertErr(t, err, fmt.Sprintf("CurrentUser() error %v", err)) || err != nil {
				return
			}

			assert.Equal(t, tt.wantUser.ID, user.ID)
			assert.Equal(t, tt.wantUser.Email, user.Email)
			assert.Equal(t, tt.wantUser.Name, user.Name)
			assert.Equal(t, tt.stored.Expiry(), user.TokenExpiry)
		})
	}
}

func TestManager_RefreshTokens(t *testing.T) {
	isRefreshFailed := func(target error) assert.ErrorAssertionFunc {
		return func(t assert.TestingT, err error, i ...any) bool {
			return assert.ErrorIs(t, err, session.ErrRefreshFailed, i...) &&
				(target == nil || assert.ErrorIs(t, err, target, i...))
		}
	}

	tests := []struct {
		name           string
		cfg            session.Config
		stored         *tokenstore.TokenSet
		opts           []sessionmock.ProviderOption
		wantAccess     string
		wantRefresh    int
		wantEndSession int
		assertErr      assert.ErrorAssertionFunc
	}{
		{
			name:        "Overwrites the store",
			stored:      ptr(expiringTokens("a1")),
			opts:        []sessionmock.ProviderOption{sessionmock.WithRefreshedTokens(validTokens("a2"))},
			wantAccess:  "a2",
			wantRefresh: 1,
			assertErr:   assert.NoError,
		},
		{
			name:           "Provider failure logs out",
			stored:         ptr(expiringTokens("a1")),
			opts:           []sessionmock.ProviderOption{sessionmock.WithRefreshError(session.ErrProviderUnavailable)},
			wantRefresh:    1,
			wantEndSession: 1,
			assertErr:      isRefreshFailed(session.ErrProviderUnavailable),
		},
		{
			name:           "Empty refresh response logs out",
			stored:         ptr(expiringTokens("a1")),
			wantRefresh:    1,
			wantEndSession: 1,
			assertErr:      isRefreshFailed(session.ErrNoTokensInSession),
		},
		{
			name:      "No session is not sent to the provider",
			assertErr: isRefreshFailed(session.ErrNoSession),
		},
		{
			name: "Missing refresh token is fatal",
			stored: &tokenstore.TokenSet{
				AccessToken: "a1",
				IDToken:     "i1",
				ExpiresAt:   time.Now().Add(time.Minute).UnixMilli(),
			},
			opts:           []sessionmock.ProviderOption{sessionmock.WithRefreshedTokens(validTokens("a2"))},
			wantEndSession: 1,
			assertErr:      isRefreshFailed(session.ErrNoRefreshToken),
		},
		{
			name: "Provider managed refresh does not need a refresh token",
			cfg:  session.Config{ProviderManagesRefreshInternally: true},
			stored: &tokenstore.TokenSet{
				AccessToken: "a1",
				IDToken:     "i1",
				ExpiresAt:   time.Now().Add(time.Minute).UnixMilli(),
			},
			opts:        []sessionmock.ProviderOption{sessionmock.WithRefreshedTokens(validTokens("a2"))},
			wantAccess:  "a2",
			wantRefresh: 1,
			assertErr:   assert.NoError,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.cfg, tt.stored, tt.opts...)

			err := f.manager.RefreshTokens(t.Context())
			tt.assertErr(t, err, fmt.Sprintf("RefreshTokens() error %v", err))

			assert.Equal(t, tt.wantRefresh, f.provider.Calls().Refresh)
			assert.Equal(t, tt.wantEndSession, f.provider.Calls().EndSession)

			tokens, ok := f.store.Read(t.Context())
			if tt.wantAccess == "" {
				assert.False(t, ok)
				return
			}

			require.True(t, ok)
			assert.Equal(t, tt.wantAccess, tokens.AccessToken)
			assert.NotNil(t, f.manager.Current())
		})
	}

	t.Run("Failure signs out and publishes", func(t *testing.T) {
		f := newFixture(t, session.Config{}, ptr(expiringTokens("a1")),
			sessionmock.WithRefreshError(errors.New("invalid_grant")))

		var published []*session.User
		f.manager.Subscribe(func(u *session.User) {
			published = append(published, u)
		})

		require.Error(t, f.manager.RefreshTokens(t.Context()))

		assert.False(t, f.manager.IsAuthenticated(t.Context()))
		assert.Equal(t, []*session.User{nil, nil}, published)
		assert.Equal(t, []string{session.DefaultSignedOutLocation}, f.navigator.Locations())
	})
}

func TestManager_RefreshTokensIsSingleFlight(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})

	f := newFixture(t, session.Config{}, ptr(expiringTokens("a1")),
		sessionmock.WithRefreshedTokens(validTokens("a2")),
		sessionmock.WithRefreshHook(func(tokenstore.TokenSet) {
			close(entered)
			<-release
		}),
	)

	const callers = 8
	errs := make(chan error, callers)

	go func() { errs <- f.manager.RefreshTokens(t.Context()) }()
	<-entered

	for range callers - 1 {
		go func() { errs <- f.manager.RefreshTokens(t.Context()) }()
	}

	time.Sleep(50 * time.Millisecond)
	close(release)

	for range callers {
		assert.NoError(t, <-errs)
	}

	assert.Equal(t, 1, f.provider.Calls().Refresh)
	assert.True(t, f.manager.IsAuthenticated(t.Context()))
}

func TestManager_Logout(t *testing.T) {
	tests := []struct {
		name   string
		stored *tokenstore.TokenSet
		opts   []sessionmock.ProviderOption
	}{
		{name: "Signed in", stored: ptr(validTokens("a1"))},
		{name: "Already signed out"},
		{
			name:   "Provider sign out fails",
			stored: ptr(validTokens("a1")),
			opts:   []sessionmock.ProviderOption{sessionmock.WithEndSessionError(session.ErrProviderUnavailable)},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, session.Config{SignedOutLocation: "/bye"}, tt.stored, tt.opts...)

			for range 3 {
				f.manager.Logout(t.Context())

				assert.False(t, f.manager.IsAuthenticated(t.Context()))
				_, ok := f.store.Read(t.Context())
				assert.False(t, ok)
				assert.Nil(t, f.manager.Current())
			}

			assert.Equal(t, []string{"/bye", "/bye", "/bye"}, f.navigator.Locations())
			assert.Equal(t, session.Unauthenticated, f.manager.State(t.Context()))
		})
	}
}

func TestManager_SubscribersAreNotifiedInOrderAfterTheWrite(t *testing.T) {
	f := newFixture(t, session.Config{}, nil, sessionmock.WithTokens(validTokens("a1")))

	var events []string
	for _, name := range []string{"first", "second", "third"} {
		f.manager.Subscribe(func(u *session.User) {
			if u == nil {
				return
			}

			events = append(events, fmt.Sprintf("%s:%t", name, f.manager.IsAuthenticated(t.Context())))
		})
	}

	unsubscribe := f.manager.Subscribe(func(u *session.User) {
		if u != nil {
			events = append(events, "removed")
		}
	})
	unsubscribe()
	unsubscribe()

	callback, err := url.Parse("http://localhost:4200/?code=c1&state=s1")
	require.NoError(t, err)
	require.NoError(t, f.manager.HandleAuthCallback(t.Context(), callback))

	assert.Equal(t, []string{"first:true", "second:true", "third:true"}, events)
}

func TestManager_SubscribeReplaysCurrentValue(t *testing.T) {
	f := newFixture(t, session.Config{}, ptr(validTokens("a1")))
	f.manager.Initialize(t.Context())

	var got *session.User
	f.manager.Subscribe(func(u *session.User) { got = u })

	require.NotNil(t, got)
	assert.Equal(t, "user-1", got.ID)
}

func TestManager_Initialize(t *testing.T) {
	tests := []struct {
		name     string
		stored   *tokenstore.TokenSet
		opts     []sessionmock.ProviderOption
		wantUser bool
	}{
		{name: "Restores the signed in user", stored: ptr(validTokens("a1")), wantUser: true},
		{name: "No session"},
		{name: "Expired session", stored: ptr(expiringTokens("a1"))},
		{
			name:   "Identity failure",
			stored: ptr(validTokens("a1")),
			opts:   []sessionmock.ProviderOption{sessionmock.WithIdentityError(errors.New("boom"))},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, session.Config{}, tt.stored, tt.opts...)

			f.manager.Initialize(t.Context())

			assert.Equal(t, tt.wantUser, f.manager.Current() != nil)
		})
	}
}

func TestManager_AccessToken(t *testing.T) {
	tests := []struct {
		name        string
		stored      *tokenstore.TokenSet
		opts        []sessionmock.ProviderOption
		wantToken     string
		wantRefresh   int
		wantRefreshed bool
		wantAuth      bool
	}{
		{
			name:      "Valid token",
			stored:    ptr(validTokens("a1")),
			wantToken: "a1",
			wantAuth:  true,
		},
		{
			name:          "Expiring token is refreshed first",
			stored:        ptr(expiringTokens("a1")),
			opts:          []sessionmock.ProviderOption{sessionmock.WithRefreshedTokens(validTokens("a2"))},
			wantToken:     "a2",
			wantRefresh:   1,
			wantRefreshed: true,
			wantAuth:      true,
		},
		{
			name: "No session",
		},
		{
			name:          "Refresh failure yields no token",
			stored:        ptr(expiringTokens("a1")),
			opts:          []sessionmock.ProviderOption{sessionmock.WithRefreshError(errors.New("invalid_grant"))},
			wantRefresh:   1,
			wantRefreshed: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, session.Config{}, tt.stored, tt.opts...)

			token, refreshed, err := f.manager.FetchAccessToken(t.Context())
			require.NoError(t, err)

			assert.Equal(t, tt.wantToken, token)
			assert.Equal(t, tt.wantRefreshed, refreshed)
			assert.Equal(t, tt.wantRefresh, f.provider.Calls().Refresh)
			assert.Equal(t, tt.wantAuth, f.manager.IsAuthenticated(t.Context()))
		})
	}
}

func TestManager_ShouldRefreshTokens(t *testing.T) {
	assert.True(t, newFixture(t, session.Config{}, nil).manager.ShouldRefreshTokens(t.Context()))
	assert.True(t, newFixture(t, session.Config{}, ptr(expiringTokens("a1"))).manager.ShouldRefreshTokens(t.Context()))
	assert.False(t, newFixture(t, session.Config{}, ptr(validTokens("a1"))).manager.ShouldRefreshTokens(t.Context()))
}

func TestManager_HandleAuthError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantLogout bool
	}{
		{name: "Nil error"},
		{name: "Transient error", err: errors.New("timeout")},
		{name: "Forbidden", err: &session.StatusError{StatusCode: 403}},
		{name: "Unauthorized", err: &session.StatusError{StatusCode: 401}, wantLogout: true},
		{name: "Refresh failed", err: fmt.Errorf("%w: boom", session.ErrRefreshFailed), wantLogout: true},
		{name: "Invalid grant", err: &session.ProviderError{Code: "invalid_grant"}, wantLogout: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, session.Config{}, ptr(validTokens("a1")))

			f.manager.HandleAuthError(t.Context(), tt.err)

			assert.Equal(t, !tt.wantLogout, f.manager.IsAuthenticated(t.Context()))
		})
	}
}

func TestManager_PeriodicRefreshCheck(t *testing.T) {
	t.Run("Refreshes an expiring session", func(t *testing.T) {
		f := newFixture(t, session.Config{RefreshCheckInterval: 10 * time.Millisecond}, ptr(expiringTokens("a1")),
			sessionmock.WithRefreshedTokens(validTokens("a2")))

		stop := f.manager.StartPeriodicRefreshCheck(t.Context())
		defer stop()

		assert.Eventually(t, func() bool {
			return f.manager.IsAuthenticated(t.Context())
		}, time.Second, 5*time.Millisecond)

		// the refreshed session is valid for an hour, so later ticks do nothing
		time.Sleep(50 * time.Millisecond)
		assert.Equal(t, 1, f.provider.Calls().Refresh)
	})

	t.Run("Never refreshes an absent session", func(t *testing.T) {
		f := newFixture(t, session.Config{RefreshCheckInterval: 5 * time.Millisecond}, nil)

		stop := f.manager.StartPeriodicRefreshCheck(t.Context())
		time.Sleep(50 * time.Millisecond)
		stop()
		stop()

		assert.Equal(t, 0, f.provider.Calls().Refresh)
		assert.Equal(t, 0, f.provider.Calls().EndSession)
	})

	t.Run("Failures are logged and the session is cleared", func(t *testing.T) {
		f := newFixture(t, session.Config{RefreshCheckInterval: 5 * time.Millisecond}, ptr(expiringTokens("a1")),
			sessionmock.WithRefreshError(errors.New("invalid_grant")))

		stop := f.manager.StartPeriodicRefreshCheck(t.Context())

		assert.Eventually(t, func() bool {
			return f.provider.Calls().EndSession == 1
		}, time.Second, 5*time.Millisecond)

		time.Sleep(30 * time.Millisecond)
		stop()

		assert.Equal(t, 1, f.provider.Calls().Refresh)
	})

	t.Run("Stopped check does not fire", func(t *testing.T) {
		f := newFixture(t, session.Config{RefreshCheckInterval: 5 * time.Millisecond}, ptr(expiringTokens("a1")),
			sessionmock.WithRefreshedTokens(validTokens("a2")))

		f.manager.StartPeriodicRefreshCheck(t.Context())
		f.manager.StopPeriodicRefreshCheck()
		f.manager.StopPeriodicRefreshCheck()

		time.Sleep(30 * time.Millisecond)
		assert.Equal(t, 0, f.provider.Calls().Refresh)
	})
}

func TestManager_LoginWithNavigatorFunc(t *testing.T) {
	errBlocked := errors.New("navigation blocked")

	var locations []string
	navigator := session.NavigatorFunc(func(_ context.Context, location string) error {
		locations = append(locations, location)
		return errBlocked
	})

	store := tokenstore.New(memory.NewStorage())
	manager := session.NewManager(session.Config{}, store, sessionmock.NewProvider(sessionmock.WithAuthURL(authURL)), navigator)

	err := manager.Login(t.Context())
	assert.ErrorIs(t, err, errBlocked)
	assert.Equal(t, []string{authURL}, locations)
	assert.Equal(t, session.PendingCallback, manager.State(t.Context()))
}
