package market

import "time"

type Product struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Price       string `json:"price"`
	Amount      int    `json:"amount"`
	Description string `json:"description,omitempty"`
}

type Category struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Products []Product `json:"products"`
}

type Profile struct {
	Username string `json:"username"`
	Balance  string `json:"balance"`
	Email    string `json:"email,omitempty"`
}

// Credential — одна позиция из купленного списка вида email|password.
type Credential struct {
	Email    string `json:"email"`
	Password string `json:"password,omitempty"`
}

// Order — запись о покупке на вторичном маркетплейсе. Таймлайфа у неё нет,
// запись живёт в истории до истечения срока хранения.
type Order struct {
	ID          int64        `db:"id" json:"-"`
	OrderID     string       `db:"order_id" json:"orderId"`
	ProductName string       `db:"product_name" json:"productName"`
	Qty         int          `db:"qty" json:"qty"`
	Credentials []Credential `db:"credentials" json:"emails"`
	TotalCost   float64      `db:"total_cost" json:"totalCost"`
	CreatedAt   time.Time    `db:"created_at" json:"timestamp"`
}
