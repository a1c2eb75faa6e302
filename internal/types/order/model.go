package order

import "time"

type OrderStatus string

const (
	StatusWaiting   OrderStatus = "waiting"
	StatusReceived  OrderStatus = "received"
	StatusCancelled OrderStatus = "cancelled"
	StatusCompleted OrderStatus = "completed"
)

// Terminal сообщает, допускает ли статус дальнейшие переходы.
func (s OrderStatus) Terminal() bool {
	return s == StatusCancelled || s == StatusCompleted
}

// ActiveOrder — активная активация, за которой следит менеджер заказов.
// Cost хранится строкой как пришла от провайдера и не пересчитывается.
type ActiveOrder struct {
	ActivationID string      `json:"activationId"`
	PhoneNumber  string      `json:"phoneNumber"`
	Cost         string      `json:"activationCost"`
	Operator     string      `json:"activationOperator,omitempty"`
	Code         string      `json:"otp,omitempty"`
	Status       OrderStatus `json:"status"`
	CreatedAt    time.Time   `json:"createdAt"`
}

// HistoryEntry — долговременная копия заказа с денормализованными
// названиями сервиса и страны, зафиксированными в момент покупки.
type HistoryEntry struct {
	ID           int64       `db:"id" json:"-"`
	ActivationID string      `db:"activation_id" json:"activationId"`
	PhoneNumber  string      `db:"phone_number" json:"phoneNumber"`
	Service      string      `db:"service" json:"service"`
	ServiceName  string      `db:"service_name" json:"serviceName"`
	Country      string      `db:"country" json:"country"`
	CountryName  string      `db:"country_name" json:"countryName"`
	Cost         string      `db:"cost" json:"cost"`
	Operator     string      `db:"operator" json:"operator,omitempty"`
	Code         string      `db:"code" json:"otp,omitempty"`
	Status       OrderStatus `db:"status" json:"status"`
	Timestamp    time.Time   `db:"created_at" json:"timestamp"`
}

// HistoryPatch — частичное обновление записи истории, nil-поля не трогаются.
type HistoryPatch struct {
	Status *OrderStatus
	Code   *string
}
