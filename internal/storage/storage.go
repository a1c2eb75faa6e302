package storage

import (
	"context"
	"time"

	"github.com/welovename555/smsdesk/internal/types/market"
	"github.com/welovename555/smsdesk/internal/types/order"
)

// CredentialRepository хранит API-ключ провайдера между перезапусками.
// LoadCredential отдаёт sql.ErrNoRows, если ключ ещё не сохраняли.
type CredentialRepository interface {
	SaveCredential(ctx context.Context, scope, apiKey string) error
	LoadCredential(ctx context.Context, scope string) (string, error)
}

// HistoryRepository — упорядоченный журнал заказов: новые записи сверху,
// патчи применяются к самой свежей записи с совпадающим activation id.
type HistoryRepository interface {
	AppendHistory(ctx context.Context, e *order.HistoryEntry) error
	PatchHistory(ctx context.Context, activationID string, patch order.HistoryPatch) error
	ListHistory(ctx context.Context) ([]order.HistoryEntry, error)
	ClearHistory(ctx context.Context) error
}

// MarketOrderRepository отвечает за покупки на вторичном маркетплейсе.
type MarketOrderRepository interface {
	CreateMarketOrder(ctx context.Context, o *market.Order) error
	ListMarketOrders(ctx context.Context) ([]market.Order, error)
	PruneMarketOrders(ctx context.Context, olderThan time.Time) (int64, error)
}

// Storage объединяет все репозитории.
type Storage interface {
	CredentialRepository
	HistoryRepository
	MarketOrderRepository

	// Для управления соединением
	Ping(ctx context.Context) error
	Close() error
}
