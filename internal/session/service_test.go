package session

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/welovename555/smsdesk/internal/provider"
	"github.com/welovename555/smsdesk/internal/types/catalog"
)

type mockProvider struct {
	balanceFn     func(apiKey string) (float64, error)
	countriesFn   func(apiKey string) ([]catalog.Country, error)
	servicesFn    func(apiKey, country string) ([]catalog.Service, error)
	priceFn       func(apiKey, service, country string) (*catalog.PriceInfo, error)
	balanceCalls  int
	countryCalls  int
	servicesCalls int
}

func (m *mockProvider) GetBalance(ctx context.Context, apiKey string) (float64, error) {
	m.balanceCalls++
	return m.balanceFn(apiKey)
}

func (m *mockProvider) GetCountries(ctx context.Context, apiKey string) ([]catalog.Country, error) {
	m.countryCalls++
	return m.countriesFn(apiKey)
}

func (m *mockProvider) GetServices(ctx context.Context, apiKey, country string) ([]catalog.Service, error) {
	m.servicesCalls++
	return m.servicesFn(apiKey, country)
}

func (m *mockProvider) GetPrice(ctx context.Context, apiKey, service, country string) (*catalog.PriceInfo, error) {
	return m.priceFn(apiKey, service, country)
}

type mockCreds struct {
	saved map[string]string
}

func newMockCreds() *mockCreds {
	return &mockCreds{saved: make(map[string]string)}
}

func (m *mockCreds) SaveCredential(ctx context.Context, scope, apiKey string) error {
	m.saved[scope] = apiKey
	return nil
}

func (m *mockCreds) LoadCredential(ctx context.Context, scope string) (string, error) {
	key, ok := m.saved[scope]
	if !ok {
		return "", sql.ErrNoRows
	}
	return key, nil
}

var secret = []byte("testsecret")

func goodBalance(apiKey string) (float64, error) {
	if apiKey != "good-key" {
		return 0, provider.ErrBadKey
	}
	return 12.50, nil
}

func TestConnectSuccess(t *testing.T) {
	p := &mockProvider{balanceFn: goodBalance}
	creds := newMockCreds()
	svc := NewService(p, creds, secret, time.Hour)

	token, balance, err := svc.Connect(context.Background(), "good-key")
	require.NoError(t, err)
	assert.Equal(t, 12.50, balance)
	assert.True(t, svc.Connected())
	assert.Equal(t, "good-key", creds.saved[credentialScope])

	key, err := svc.APIKey()
	require.NoError(t, err)
	assert.Equal(t, "good-key", key)

	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return secret, nil
	})
	require.NoError(t, err)
	assert.True(t, parsed.Valid)
	assert.True(t, svc.ValidSession(claims.Subject))
}

func TestConnectBadKey(t *testing.T) {
	p := &mockProvider{balanceFn: goodBalance}
	svc := NewService(p, newMockCreds(), secret, time.Hour)

	_, _, err := svc.Connect(context.Background(), "wrong")
	assert.ErrorIs(t, err, provider.ErrBadKey)
	assert.False(t, svc.Connected())

	_, err = svc.APIKey()
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestDisconnectInvalidatesSessionAndCaches(t *testing.T) {
	p := &mockProvider{
		balanceFn: goodBalance,
		countriesFn: func(apiKey string) ([]catalog.Country, error) {
			return []catalog.Country{{ID: 52, Name: "Thailand"}}, nil
		},
	}
	svc := NewService(p, newMockCreds(), secret, time.Hour)

	token, _, err := svc.Connect(context.Background(), "good-key")
	require.NoError(t, err)

	_, err = svc.Countries(context.Background())
	require.NoError(t, err)

	claims := &jwt.RegisteredClaims{}
	_, err = jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) { return secret, nil })
	require.NoError(t, err)

	svc.Disconnect()

	assert.False(t, svc.Connected())
	assert.False(t, svc.ValidSession(claims.Subject))
	_, err = svc.Countries(context.Background())
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestHydrateReconnects(t *testing.T) {
	p := &mockProvider{balanceFn: goodBalance}
	creds := newMockCreds()
	creds.saved[credentialScope] = "good-key"
	svc := NewService(p, creds, secret, time.Hour)

	require.NoError(t, svc.Hydrate(context.Background()))
	assert.True(t, svc.Connected())
	assert.Equal(t, 12.50, svc.CachedBalance())
}

func TestHydrateWithoutStoredKeyIsNoop(t *testing.T) {
	p := &mockProvider{balanceFn: goodBalance}
	svc := NewService(p, newMockCreds(), secret, time.Hour)

	require.NoError(t, svc.Hydrate(context.Background()))
	assert.False(t, svc.Connected())
	assert.Zero(t, p.balanceCalls)
}

func TestCatalogCaching(t *testing.T) {
	p := &mockProvider{
		balanceFn: goodBalance,
		countriesFn: func(apiKey string) ([]catalog.Country, error) {
			return []catalog.Country{{ID: 52, Name: "Thailand"}}, nil
		},
		servicesFn: func(apiKey, country string) ([]catalog.Service, error) {
			return []catalog.Service{{Code: "ka", Name: "Kakaotalk"}}, nil
		},
	}
	svc := NewService(p, newMockCreds(), secret, time.Hour)
	_, _, err := svc.Connect(context.Background(), "good-key")
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		countries, err := svc.Countries(context.Background())
		require.NoError(t, err)
		assert.Len(t, countries, 1)

		services, err := svc.Services(context.Background(), "52")
		require.NoError(t, err)
		assert.Len(t, services, 1)
	}
	assert.Equal(t, 1, p.countryCalls)
	assert.Equal(t, 1, p.servicesCalls)
}

func TestRefreshBalanceUpdatesCache(t *testing.T) {
	next := 12.50
	p := &mockProvider{balanceFn: func(apiKey string) (float64, error) { return next, nil }}
	svc := NewService(p, newMockCreds(), secret, time.Hour)

	_, _, err := svc.Connect(context.Background(), "any")
	require.NoError(t, err)

	next = 12.00
	svc.RefreshBalance()
	assert.Equal(t, 12.00, svc.CachedBalance())
}

func TestBalancePropagatesProviderError(t *testing.T) {
	p := &mockProvider{balanceFn: goodBalance}
	svc := NewService(p, newMockCreds(), secret, time.Hour)
	_, _, err := svc.Connect(context.Background(), "good-key")
	require.NoError(t, err)

	p.balanceFn = func(apiKey string) (float64, error) { return 0, errors.New("timeout") }
	_, err = svc.Balance(context.Background())
	assert.Error(t, err)
	// кэш не затёрт ошибкой
	assert.Equal(t, 12.50, svc.CachedBalance())
}
