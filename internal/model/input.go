package model

// OrderInput — данные для создания заказа.
type OrderInput struct {
	PlanID       string  `json:"plan_id" validate:"required"`
	PlanName     string  `json:"plan_name" validate:"required"`
	CustomerName string  `json:"customer_name" validate:"required"`
	Email        string  `json:"email" validate:"required,email"`
	Phone        string  `json:"phone" validate:"required"`
	City         string  `json:"city"`
	PayMethod    string  `json:"pay_method" validate:"required,oneof=nequi bancolombia daviplata card"`
	PayType      string  `json:"pay_type"`
	Amount       float64 `json:"amount" validate:"gt=0"`
	Notes        string  `json:"notes" validate:"max=2000"`
}

// OrderFilter ограничивает выборку заказов.
// Без OrderID и Email выборка разрешена только при AllowUnscoped.
type OrderFilter struct {
	OrderID       string
	Email         string
	AllowUnscoped bool
}

// BriefInput — ответы анкеты проекта.
type BriefInput struct {
	OrderID        string
	BusinessName   string
	BusinessType   string
	TargetAudience string
	Competitors    string
	Colors         string
	Style          string
	Pages          []string
	Market         string
	Features       []string
	ContentReady   string
	Notes          string
}

// BriefReceipt подтверждает сохранение брифа и повторяет ключевые поля.
type BriefReceipt struct {
	OrderID      string   `json:"order_id"`
	PlanID       string   `json:"plan_id"`
	PlanName     string   `json:"plan_name"`
	Updated      bool     `json:"updated"`
	BusinessName string   `json:"business_name"`
	Style        string   `json:"style"`
	Pages        []string `json:"pages"`
	Market       string   `json:"market,omitempty"`
	Status       string   `json:"status"`
}
