package order

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/welovename555/smsdesk/internal/logger"
	"github.com/welovename555/smsdesk/internal/metrics"
	"github.com/welovename555/smsdesk/internal/provider"
	"github.com/welovename555/smsdesk/internal/storage"
	"github.com/welovename555/smsdesk/internal/types/order"
)

var (
	ErrOrderActive       = errors.New("another order is already active")
	ErrNoActiveOrder     = errors.New("no active order")
	ErrInvalidTransition = errors.New("invalid status transition")
)

// ProviderClient — та часть API провайдера, которая нужна менеджеру.
type ProviderClient interface {
	GetNumber(ctx context.Context, apiKey, service, country string) (*provider.Number, error)
	GetStatus(ctx context.Context, apiKey, id string) (*provider.StatusResult, error)
	SetStatus(ctx context.Context, apiKey, id string, status int) error
}

// KeySource отдаёт ключ текущей сессии или ошибку, если сессии нет.
type KeySource interface {
	APIKey() (string, error)
}

// BalanceRefresher дёргается после покупки и отмены: списание и возврат
// происходят на стороне провайдера, локальный баланс догоняет асинхронно.
type BalanceRefresher interface {
	RefreshBalance()
}

type ManagerConfig struct {
	Client  ProviderClient
	History storage.HistoryRepository
	Keys    KeySource
	Balance BalanceRefresher
	Events  *Broadcaster

	PollInterval time.Duration
	OrderTTL     time.Duration
}

// Manager владеет единственным активным заказом: ведёт его по машине
// состояний, крутит цикл опроса, взводит таймер истечения и зеркалит
// каждый переход в журнал истории.
//
// Все мутации сериализованы одним мьютексом. Каждый асинхронный колбэк
// (применение результата опроса, срабатывание таймера) захватывает номер
// поколения в момент взведения и молча выходит, если поколение уже не то:
// ответ, пришедший после терминального перехода, не имеет эффекта.
type Manager struct {
	client  ProviderClient
	history storage.HistoryRepository
	keys    KeySource
	balance BalanceRefresher
	events  *Broadcaster

	pollInterval time.Duration
	ttl          time.Duration

	mu       sync.Mutex
	active   *order.ActiveOrder
	gen      uint64
	stopPoll context.CancelFunc
	expiry   *time.Timer
}

func NewManager(cfg ManagerConfig) *Manager {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.OrderTTL <= 0 {
		cfg.OrderTTL = 15 * time.Minute
	}
	if cfg.Events == nil {
		cfg.Events = NewBroadcaster()
	}
	return &Manager{
		client:       cfg.Client,
		history:      cfg.History,
		keys:         cfg.Keys,
		balance:      cfg.Balance,
		events:       cfg.Events,
		pollInterval: cfg.PollInterval,
		ttl:          cfg.OrderTTL,
	}
}

func (m *Manager) Events() *Broadcaster {
	return m.events
}

// Purchase покупает номер и создаёт активный заказ вместе с парной записью
// истории. Повторная покупка при живом заказе запрещена; неудачная покупка
// не оставляет никакого состояния. Покупка никогда не ретраится — повторный
// запрос может списать деньги второй раз.
func (m *Manager) Purchase(ctx context.Context, service, country, serviceName, countryName string) (*order.ActiveOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active != nil {
		return nil, ErrOrderActive
	}
	key, err := m.keys.APIKey()
	if err != nil {
		return nil, err
	}

	n, err := m.client.GetNumber(ctx, key, service, country)
	if err != nil {
		metrics.PurchaseFailuresTotal.Inc()
		return nil, err
	}

	now := time.Now().UTC()
	entry := &order.HistoryEntry{
		ActivationID: n.ActivationID,
		PhoneNumber:  n.PhoneNumber,
		Service:      service,
		ServiceName:  serviceName,
		Country:      country,
		CountryName:  countryName,
		Cost:         n.Cost,
		Operator:     n.Operator,
		Status:       order.StatusWaiting,
		Timestamp:    now,
	}
	if err := m.history.AppendHistory(ctx, entry); err != nil {
		// заказ и запись истории существуют только парой; активацию
		// возвращаем провайдеру, раз журнал её не принял
		if cancelErr := m.client.SetStatus(ctx, key, n.ActivationID, provider.SetStatusCancel); cancelErr != nil {
			logger.Log.Error("cancel after history failure",
				zap.String("activation_id", n.ActivationID), zap.Error(cancelErr))
		}
		metrics.PurchaseFailuresTotal.Inc()
		return nil, fmt.Errorf("append history: %w", err)
	}

	m.active = &order.ActiveOrder{
		ActivationID: n.ActivationID,
		PhoneNumber:  n.PhoneNumber,
		Cost:         n.Cost,
		Operator:     n.Operator,
		Status:       order.StatusWaiting,
		CreatedAt:    now,
	}
	m.startLocked()

	metrics.PurchasesTotal.Inc()
	if m.balance != nil {
		go m.balance.RefreshBalance()
	}

	copied := *m.active
	return &copied, nil
}

// Active возвращает копию активного заказа или nil.
func (m *Manager) Active() *order.ActiveOrder {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return nil
	}
	copied := *m.active
	return &copied
}

func (m *Manager) Cancel(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.setStatusLocked(ctx, id, order.StatusCancelled, false)
}

// Ready просит провайдера перепослать СМС (push-статус 1). Локальное
// состояние не меняется: заказ остаётся waiting, опрос и таймер живут.
func (m *Manager) Ready(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active == nil || m.active.ActivationID != id {
		return ErrNoActiveOrder
	}
	if m.active.Status != order.StatusWaiting {
		return ErrInvalidTransition
	}
	key, err := m.keys.APIKey()
	if err != nil {
		return err
	}
	if err := m.client.SetStatus(ctx, key, id, provider.SetStatusReady); err != nil {
		return fmt.Errorf("push status: %w", err)
	}
	return nil
}

func (m *Manager) Complete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.setStatusLocked(ctx, id, order.StatusCompleted, false)
}

// Disconnect — жёсткий сброс: слот освобождается, опрос и таймер гаснут.
// Запись истории брошенного заказа намеренно не трогается и остаётся в
// статусе waiting (так ведёт себя и провайдер: его собственный таймер
// докрутит активацию независимо от нас).
func (m *Manager) Disconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.teardownLocked()
}

func (m *Manager) History(ctx context.Context) ([]order.HistoryEntry, error) {
	return m.history.ListHistory(ctx)
}

func (m *Manager) ClearHistory(ctx context.Context) error {
	return m.history.ClearHistory(ctx)
}

// startLocked взводит цикл опроса и таймер истечения под уже взятым мьютексом.
func (m *Manager) startLocked() {
	m.gen++
	gen := m.gen

	ctx, cancel := context.WithCancel(context.Background())
	m.stopPoll = cancel
	go m.pollLoop(ctx, gen, m.active.ActivationID)

	// окно меряется от момента покупки, не от последнего опроса; если оно
	// уже вышло (слот поднят из лежалого состояния) — отмена стреляет сразу
	remaining := time.Until(m.active.CreatedAt.Add(m.ttl))
	if remaining < 0 {
		remaining = 0
	}
	m.expiry = time.AfterFunc(remaining, func() { m.expire(gen) })
}

// teardownLocked останавливает опрос и таймер и освобождает слот.
// Идемпотентна; инкремент поколения гарантирует, что уже летящие колбэки
// не применятся.
func (m *Manager) teardownLocked() {
	if m.stopPoll != nil {
		m.stopPoll()
		m.stopPoll = nil
	}
	if m.expiry != nil {
		m.expiry.Stop()
		m.expiry = nil
	}
	m.active = nil
	m.gen++
}

func (m *Manager) pollLoop(ctx context.Context, gen uint64, id string) {
	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()

	// первый опрос сразу, дальше по тикеру
	for {
		m.pollOnce(ctx, gen, id)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (m *Manager) pollOnce(ctx context.Context, gen uint64, id string) {
	key, err := m.keys.APIKey()
	if err != nil {
		return
	}

	res, err := m.client.GetStatus(ctx, key, id)
	if err != nil {
		// транзиентные сетевые и парсинговые ошибки считаются "кода ещё нет"
		if ctx.Err() == nil {
			metrics.PollFailuresTotal.Inc()
			logger.Log.Warn("poll failed", zap.String("activation_id", id), zap.Error(err))
		}
		return
	}
	metrics.PollsTotal.Inc()

	m.mu.Lock()
	defer m.mu.Unlock()
	// ревалидация после сетевого вызова: ответ мог прийти, когда заказ уже
	// отменён или завершён
	if m.gen != gen || m.active == nil || m.active.ActivationID != id || m.active.Status != order.StatusWaiting {
		return
	}

	switch res.Status {
	case order.StatusReceived:
		if res.Code == "" {
			return
		}
		m.active.Status = order.StatusReceived
		m.active.Code = res.Code
		st := order.StatusReceived
		m.patchHistory(id, order.HistoryPatch{Status: &st, Code: &res.Code})
		// код доставлен: опрос и таймер больше не нужны, заказ остаётся в
		// слоте до явного complete или cancel
		if m.stopPoll != nil {
			m.stopPoll()
			m.stopPoll = nil
		}
		if m.expiry != nil {
			m.expiry.Stop()
			m.expiry = nil
		}
		metrics.CodesReceivedTotal.Inc()
		m.events.Publish(Event{Type: EventCodeReceived, ActivationID: id, Status: order.StatusReceived, Code: res.Code})

	case order.StatusCancelled:
		// провайдер отменил активацию сам; setStatus наверх не шлём
		st := order.StatusCancelled
		m.patchHistory(id, order.HistoryPatch{Status: &st})
		m.teardownLocked()
		metrics.OrdersCancelledTotal.Inc()
		m.events.Publish(Event{Type: EventCancelled, ActivationID: id, Status: order.StatusCancelled})
	}
}

// setStatusLocked проводит терминальный переход: сначала провайдер, потом
// локальное состояние. Если апстрим отказал, локально ничего не меняется,
// чтобы история не разошлась с книгой провайдера. Патч истории применяется
// и для давно неактивного id.
func (m *Manager) setStatusLocked(ctx context.Context, id string, target order.OrderStatus, expired bool) error {
	key, err := m.keys.APIKey()
	if err != nil {
		return err
	}

	code := provider.SetStatusCancel
	if target == order.StatusCompleted {
		code = provider.SetStatusComplete
	}

	if m.active != nil && m.active.ActivationID == id {
		if target == order.StatusCompleted && m.active.Status != order.StatusReceived {
			return ErrInvalidTransition
		}
	}

	if err := m.client.SetStatus(ctx, key, id, code); err != nil {
		return fmt.Errorf("push status: %w", err)
	}

	m.patchHistory(id, order.HistoryPatch{Status: &target})
	if m.active != nil && m.active.ActivationID == id {
		m.active.Status = target
		m.teardownLocked()
	}

	eventType := EventCompleted
	switch {
	case expired:
		eventType = EventExpired
		metrics.OrdersExpiredTotal.Inc()
	case target == order.StatusCancelled:
		eventType = EventCancelled
		metrics.OrdersCancelledTotal.Inc()
	default:
		metrics.OrdersCompletedTotal.Inc()
	}
	m.events.Publish(Event{Type: eventType, ActivationID: id, Status: target})

	if target == order.StatusCancelled && m.balance != nil {
		// провайдер мог вернуть деньги
		go m.balance.RefreshBalance()
	}
	return nil
}

// expire — колбэк таймера. Срабатывает не больше одного раза на поколение;
// если апстрим не принял отмену, таймер перевзводится и попытка повторяется.
func (m *Manager) expire(gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.gen != gen || m.active == nil || m.active.Status != order.StatusWaiting {
		return
	}
	id := m.active.ActivationID

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := m.setStatusLocked(ctx, id, order.StatusCancelled, true); err != nil {
		logger.Log.Warn("expiry cancel failed, rearming",
			zap.String("activation_id", id), zap.Error(err))
		m.expiry = time.AfterFunc(m.pollInterval, func() { m.expire(gen) })
	}
}

// patchHistory пишет под собственным фоновым контекстом: переход уже
// состоялся, и обрыв вызвавшего контекста не должен потерять запись.
func (m *Manager) patchHistory(id string, patch order.HistoryPatch) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.history.PatchHistory(ctx, id, patch); err != nil {
		logger.Log.Error("patch history", zap.String("activation_id", id), zap.Error(err))
	}
}
