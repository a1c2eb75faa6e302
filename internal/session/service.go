// Package session держит состояние подключения к провайдеру: ключ API,
// идентификатор сессии, баланс и кэш каталога. Никаких глобалов — всё
// явно собирается при старте и сбрасывается на disconnect.
package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/welovename555/smsdesk/internal/logger"
	"github.com/welovename555/smsdesk/internal/storage"
	"github.com/welovename555/smsdesk/internal/types/catalog"
)

var ErrNotConnected = errors.New("not connected")

// credentialScope — фиксированный ключ хранения: сессия в приложении одна.
const credentialScope = "default"

// ProviderClient — каталожно-балансовая часть API провайдера.
type ProviderClient interface {
	GetBalance(ctx context.Context, apiKey string) (float64, error)
	GetCountries(ctx context.Context, apiKey string) ([]catalog.Country, error)
	GetServices(ctx context.Context, apiKey, country string) ([]catalog.Service, error)
	GetPrice(ctx context.Context, apiKey, service, country string) (*catalog.PriceInfo, error)
}

type Service struct {
	client    ProviderClient
	creds     storage.CredentialRepository
	jwtSecret []byte
	jwtTTL    time.Duration

	mu        sync.RWMutex
	apiKey    string
	sessionID string
	balance   float64
	countries []catalog.Country
	services  map[string][]catalog.Service
	prices    map[string]*catalog.PriceInfo
}

func NewService(client ProviderClient, creds storage.CredentialRepository, jwtSecret []byte, jwtTTL time.Duration) *Service {
	return &Service{
		client:    client,
		creds:     creds,
		jwtSecret: jwtSecret,
		jwtTTL:    jwtTTL,
	}
}

// Connect проверяет ключ запросом баланса, сохраняет его в хранилище и
// выпускает токен сессии. Неверный ключ отдаёт provider.ErrBadKey как есть.
func (s *Service) Connect(ctx context.Context, apiKey string) (string, float64, error) {
	balance, err := s.client.GetBalance(ctx, apiKey)
	if err != nil {
		return "", 0, err
	}

	s.mu.Lock()
	s.apiKey = apiKey
	s.sessionID = uuid.NewString()
	s.balance = balance
	s.countries = nil
	s.services = nil
	s.prices = nil
	sid := s.sessionID
	s.mu.Unlock()

	if err := s.creds.SaveCredential(ctx, credentialScope, apiKey); err != nil {
		// сессия уже поднята, потеря персистентности не фатальна
		logger.Log.Warn("save credential", zap.Error(err))
	}

	now := time.Now().UTC()
	claims := jwt.RegisteredClaims{
		Subject:   sid,
		ExpiresAt: jwt.NewNumericDate(now.Add(s.jwtTTL)),
		IssuedAt:  jwt.NewNumericDate(now),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.jwtSecret)
	if err != nil {
		return "", 0, fmt.Errorf("sign token: %w", err)
	}
	return token, balance, nil
}

// Hydrate поднимает сессию из сохранённого ключа при старте процесса.
// Отсутствие ключа — не ошибка.
func (s *Service) Hydrate(ctx context.Context) error {
	key, err := s.creds.LoadCredential(ctx, credentialScope)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load credential: %w", err)
	}
	if _, _, err := s.Connect(ctx, key); err != nil {
		return fmt.Errorf("reconnect: %w", err)
	}
	return nil
}

// Disconnect сбрасывает сессию и все производные кэши. Сохранённый ключ и
// журнал истории переживают disconnect.
func (s *Service) Disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.apiKey = ""
	s.sessionID = ""
	s.balance = 0
	s.countries = nil
	s.services = nil
	s.prices = nil
}

func (s *Service) Connected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.apiKey != ""
}

// ValidSession проверяет subject токена против живой сессии; после
// disconnect старые токены перестают приниматься.
func (s *Service) ValidSession(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return id != "" && id == s.sessionID
}

// APIKey реализует источник ключа для менеджера заказов.
func (s *Service) APIKey() (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.apiKey == "" {
		return "", ErrNotConnected
	}
	return s.apiKey, nil
}

// Balance ходит к провайдеру и обновляет кэшированное значение.
func (s *Service) Balance(ctx context.Context) (float64, error) {
	key, err := s.APIKey()
	if err != nil {
		return 0, err
	}
	balance, err := s.client.GetBalance(ctx, key)
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	s.balance = balance
	s.mu.Unlock()
	return balance, nil
}

// RefreshBalance — асинхронный хук менеджера: списание и возврат видны на
// стороне провайдера с неизвестной задержкой, локальное значение догоняет.
func (s *Service) RefreshBalance() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := s.Balance(ctx); err != nil && !errors.Is(err, ErrNotConnected) {
		logger.Log.Warn("refresh balance", zap.Error(err))
	}
}

func (s *Service) CachedBalance() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.balance
}

func (s *Service) Countries(ctx context.Context) ([]catalog.Country, error) {
	s.mu.RLock()
	cached := s.countries
	s.mu.RUnlock()
	if cached != nil {
		return cached, nil
	}

	key, err := s.APIKey()
	if err != nil {
		return nil, err
	}
	countries, err := s.client.GetCountries(ctx, key)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.countries = countries
	s.mu.Unlock()
	return countries, nil
}

func (s *Service) Services(ctx context.Context, country string) ([]catalog.Service, error) {
	s.mu.RLock()
	cached, ok := s.services[country]
	s.mu.RUnlock()
	if ok {
		return cached, nil
	}

	key, err := s.APIKey()
	if err != nil {
		return nil, err
	}
	services, err := s.client.GetServices(ctx, key, country)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	if s.services == nil {
		s.services = make(map[string][]catalog.Service)
	}
	s.services[country] = services
	s.mu.Unlock()
	return services, nil
}

func (s *Service) Price(ctx context.Context, service, country string) (*catalog.PriceInfo, error) {
	cacheKey := service + ":" + country

	s.mu.RLock()
	cached, ok := s.prices[cacheKey]
	s.mu.RUnlock()
	if ok {
		return cached, nil
	}

	key, err := s.APIKey()
	if err != nil {
		return nil, err
	}
	price, err := s.client.GetPrice(ctx, key, service, country)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	if s.prices == nil {
		s.prices = make(map[string]*catalog.PriceInfo)
	}
	s.prices[cacheKey] = price
	s.mu.Unlock()
	return price, nil
}
