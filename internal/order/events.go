package order

import (
	"slices"
	"sync"

	"github.com/welovename555/smsdesk/internal/types/order"
)

type EventType string

const (
	EventCodeReceived EventType = "code_received"
	EventCancelled    EventType = "cancelled"
	EventCompleted    EventType = "completed"
	EventExpired      EventType = "expired"
)

// Event — уведомление о переходе заказа, которое фасад отдаёт наружу
// (в частности различает "отменено пользователем" и "истёк срок").
type Event struct {
	Type         EventType         `json:"type"`
	ActivationID string            `json:"activationId"`
	Status       order.OrderStatus `json:"status"`
	Code         string            `json:"code,omitempty"`
}

// Broadcaster раздаёт события всем подписчикам. Медленный подписчик
// события теряет, но никогда не блокирует менеджер.
type Broadcaster struct {
	mutex    sync.Mutex
	channels []chan Event
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{}
}

func (b *Broadcaster) Subscribe() chan Event {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	ch := make(chan Event, 8)
	b.channels = append(b.channels, ch)
	return ch
}

func (b *Broadcaster) Unsubscribe(ch chan Event) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	index := slices.Index(b.channels, ch)
	if index >= 0 {
		b.channels = slices.Delete(b.channels, index, index+1)
		close(ch)
	}
}

func (b *Broadcaster) Publish(event Event) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	for _, ch := range b.channels {
		select {
		case ch <- event:
		default:
		}
	}
}
