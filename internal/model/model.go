// Package model содержит доменные сущности сервиса приёма заказов и брифов.
package model

import "time"

// OrderStatus описывает этап выполнения заказа.
type OrderStatus string

const (
	OrderStatusPendingPayment OrderStatus = "pending_payment"
	OrderStatusPaid           OrderStatus = "paid"
	OrderStatusInProgress     OrderStatus = "in_progress"
	OrderStatusReview         OrderStatus = "review"
	OrderStatusCompleted      OrderStatus = "completed"
)

// orderStatusFlow задаёт линейный порядок статусов заказа.
var orderStatusFlow = []OrderStatus{
	OrderStatusPendingPayment,
	OrderStatusPaid,
	OrderStatusInProgress,
	OrderStatusReview,
	OrderStatusCompleted,
}

// Stage возвращает позицию статуса в цепочке или -1 для неизвестного статуса.
func (s OrderStatus) Stage() int {
	for i, st := range orderStatusFlow {
		if st == s {
			return i
		}
	}
	return -1
}

// Valid сообщает, относится ли статус к известной цепочке.
func (s OrderStatus) Valid() bool {
	return s.Stage() >= 0
}

// CanMoveTo разрешает переход только вперёд по цепочке (пропуск этапов допустим).
func (s OrderStatus) CanMoveTo(next OrderStatus) bool {
	from, to := s.Stage(), next.Stage()
	if to < 0 {
		return false
	}
	return to >= from
}

// PayMethod описывает канал оплаты.
type PayMethod string

const (
	PayMethodNequi       PayMethod = "nequi"
	PayMethodBancolombia PayMethod = "bancolombia"
	PayMethodDaviplata   PayMethod = "daviplata"
	PayMethodCard        PayMethod = "card"
)

// BriefStatusSubmitted выставляется каждому сохранённому брифу.
const BriefStatusSubmitted = "submitted"

// Order описывает заказ клиента на один тарифный план.
type Order struct {
	OrderID       string      `json:"order_id"`
	PlanID        string      `json:"plan_id"`
	PlanName      string      `json:"plan_name"`
	CustomerName  string      `json:"customer_name"`
	Email         string      `json:"email"`
	Phone         string      `json:"phone"`
	City          string      `json:"city,omitempty"`
	PayMethod     PayMethod   `json:"pay_method"`
	PayType       string      `json:"pay_type,omitempty"`
	Amount        float64     `json:"amount"`
	PaymentStatus string      `json:"payment_status,omitempty"`
	ProofURL      string      `json:"proof_url,omitempty"`
	Status        OrderStatus `json:"status"`
	Notes         string      `json:"notes,omitempty"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     *time.Time  `json:"updated_at,omitempty"`
}

// Brief описывает анкету проекта, привязанную к заказу.
type Brief struct {
	OrderID        string    `json:"order_id"`
	PlanID         string    `json:"plan_id,omitempty"`
	PlanName       string    `json:"plan_name,omitempty"`
	BusinessName   string    `json:"business_name"`
	BusinessType   string    `json:"business_type"`
	TargetAudience string    `json:"target_audience"`
	Competitors    string    `json:"competitors,omitempty"`
	Colors         string    `json:"colors"`
	Style          string    `json:"style"`
	Pages          []string  `json:"pages"`
	Market         string    `json:"market,omitempty"`
	Features       []string  `json:"features"`
	ContentReady   string    `json:"content_ready,omitempty"`
	Notes          string    `json:"notes,omitempty"`
	Status         string    `json:"status"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}
