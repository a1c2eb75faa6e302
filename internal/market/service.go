package market

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/welovename555/smsdesk/internal/logger"
	"github.com/welovename555/smsdesk/internal/metrics"
	"github.com/welovename555/smsdesk/internal/storage"
	"github.com/welovename555/smsdesk/internal/types/market"
)

var ErrNotConnected = errors.New("market not connected")

// Ключ маркетплейса хранится отдельно от ключа провайдера номеров.
const credentialScope = "market"

type Client interface {
	GetCatalog(ctx context.Context, apiKey string) ([]market.Category, error)
	GetProfile(ctx context.Context, apiKey string) (*market.Profile, error)
	Buy(ctx context.Context, apiKey, productID string, amount int) (*BuyResult, error)
}

type Service struct {
	client Client
	repo   storage.MarketOrderRepository
	creds  storage.CredentialRepository
	ttl    time.Duration

	mu     sync.RWMutex
	apiKey string
}

func NewService(client Client, repo storage.MarketOrderRepository, creds storage.CredentialRepository, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Service{client: client, repo: repo, creds: creds, ttl: ttl}
}

// Connect проверяет ключ запросом профиля и сохраняет его.
func (s *Service) Connect(ctx context.Context, apiKey string) (*market.Profile, error) {
	profile, err := s.client.GetProfile(ctx, apiKey)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.apiKey = apiKey
	s.mu.Unlock()

	if err := s.creds.SaveCredential(ctx, credentialScope, apiKey); err != nil {
		logger.Log.Warn("save market credential", zap.Error(err))
	}
	return profile, nil
}

func (s *Service) Hydrate(ctx context.Context) error {
	key, err := s.creds.LoadCredential(ctx, credentialScope)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load market credential: %w", err)
	}
	s.mu.Lock()
	s.apiKey = key
	s.mu.Unlock()
	return nil
}

func (s *Service) key() (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.apiKey == "" {
		return "", ErrNotConnected
	}
	return s.apiKey, nil
}

func (s *Service) Catalog(ctx context.Context) ([]market.Category, error) {
	key, err := s.key()
	if err != nil {
		return nil, err
	}
	return s.client.GetCatalog(ctx, key)
}

func (s *Service) Profile(ctx context.Context) (*market.Profile, error) {
	key, err := s.key()
	if err != nil {
		return nil, err
	}
	return s.client.GetProfile(ctx, key)
}

// Buy покупает и сразу фиксирует заказ в журнале: доставленный список
// учёток существует только здесь, терять его нельзя.
func (s *Service) Buy(ctx context.Context, productID, productName string, qty int, price string) (*market.Order, error) {
	key, err := s.key()
	if err != nil {
		return nil, err
	}

	res, err := s.client.Buy(ctx, key, productID, qty)
	if err != nil {
		return nil, err
	}

	unitPrice, _ := strconv.ParseFloat(price, 64)
	now := time.Now().UTC()
	orderID := res.TransID
	if orderID == "" {
		orderID = strconv.FormatInt(now.UnixMilli(), 10)
	}
	o := &market.Order{
		OrderID:     orderID,
		ProductName: productName,
		Qty:         qty,
		Credentials: ParseCredentials(res.Lines),
		TotalCost:   unitPrice * float64(qty),
		CreatedAt:   now,
	}
	if err := s.repo.CreateMarketOrder(ctx, o); err != nil {
		return nil, fmt.Errorf("record market order: %w", err)
	}
	metrics.MarketPurchasesTotal.Inc()
	return o, nil
}

func (s *Service) Orders(ctx context.Context) ([]market.Order, error) {
	// лениво выметаем протухшие записи прямо перед чтением
	if _, err := s.repo.PruneMarketOrders(ctx, time.Now().UTC().Add(-s.ttl)); err != nil {
		logger.Log.Warn("prune market orders", zap.Error(err))
	}
	return s.repo.ListMarketOrders(ctx)
}

// RunPruner выметает записи старше ttl раз в минуту, пока жив контекст.
func (s *Service) RunPruner(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.repo.PruneMarketOrders(ctx, time.Now().UTC().Add(-s.ttl))
			if err != nil {
				logger.Log.Warn("prune market orders", zap.Error(err))
				continue
			}
			if n > 0 {
				logger.Log.Info("pruned market orders", zap.Int64("count", n))
			}
		}
	}
}
