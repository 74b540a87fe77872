package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/mmeshcher/impulsaweb/internal/metrics"
	"github.com/mmeshcher/impulsaweb/internal/model"
	"github.com/mmeshcher/impulsaweb/internal/notify"
	"github.com/mmeshcher/impulsaweb/internal/orderid"
	"github.com/mmeshcher/impulsaweb/internal/plans"
	"github.com/mmeshcher/impulsaweb/internal/rowstore"
	"github.com/mmeshcher/impulsaweb/internal/validation"
)

const defaultPayType = "total"

// CreateOrder проверяет данные, выпускает идентификатор и добавляет строку заказа.
func (s *Service) CreateOrder(ctx context.Context, in model.OrderInput) (string, error) {
	in = trimOrderInput(in)

	if err := s.validateOrder(in); err != nil {
		if errors.Is(err, model.ErrValidation) {
			s.metrics.Order(metrics.OutcomeInvalid)
		}
		return "", err
	}
	rule, _ := plans.Lookup(in.PlanID)

	id, err := s.ids.Generate()
	if err != nil {
		s.metrics.Order(metrics.OutcomeError)
		return "", fmt.Errorf("generate order id: %w", err)
	}

	payType := in.PayType
	if payType == "" {
		payType = defaultPayType
	}

	fields := map[string]string{
		model.ColCreatedAt:     rowstore.FormatTime(s.now()),
		model.ColOrderID:       id,
		model.ColPlanID:        rule.Key,
		model.ColPlanName:      in.PlanName,
		model.ColCustomerName:  in.CustomerName,
		model.ColPhone:         in.Phone,
		model.ColEmail:         in.Email,
		model.ColCity:          in.City,
		model.ColPayMethod:     in.PayMethod,
		model.ColPayType:       payType,
		model.ColAmount:        strconv.FormatFloat(in.Amount, 'f', -1, 64),
		model.ColPaymentStatus: "",
		model.ColStatus:        string(model.OrderStatusPendingPayment),
		model.ColNotes:         in.Notes,
	}

	dropped, err := s.store.AppendRecord(ctx, s.ordersTable, fields)
	if err != nil {
		s.metrics.Order(metrics.OutcomeError)
		return "", fmt.Errorf("append order: %w", err)
	}
	s.warnDropped(s.ordersTable, id, dropped)
	s.metrics.Order(metrics.OutcomeCreated)

	s.logger.Info("order created",
		zap.String("order_id", id),
		zap.String("plan_id", rule.Key),
		zap.String("pay_method", in.PayMethod),
	)

	s.publish(ctx, notify.Event{
		Type:       notify.EventOrderCreated,
		OrderID:    id,
		OccurredAt: s.now().UTC(),
		Data: map[string]string{
			model.ColPlanID:       rule.Key,
			model.ColCustomerName: in.CustomerName,
			model.ColEmail:        in.Email,
			model.ColAmount:       fields[model.ColAmount],
			model.ColPayMethod:    in.PayMethod,
		},
	})

	return id, nil
}

func (s *Service) validateOrder(in model.OrderInput) error {
	var problems []model.FieldError

	if err := validation.Struct(in); err != nil {
		var ve *model.ValidationError
		if !errors.As(err, &ve) {
			return err
		}
		problems = append(problems, ve.Fields...)
	}

	if math.IsInf(in.Amount, 1) {
		problems = append(problems, model.FieldError{Field: model.ColAmount, Reason: "must be a finite number"})
	}

	if in.PlanID != "" {
		if _, ok := plans.Lookup(in.PlanID); !ok {
			problems = append(problems, model.FieldError{Field: model.ColPlanID, Reason: "unknown plan"})
		}
	}

	if len(problems) > 0 {
		return model.NewValidationError(problems...)
	}
	return nil
}

func trimOrderInput(in model.OrderInput) model.OrderInput {
	in.PlanID = strings.TrimSpace(in.PlanID)
	in.PlanName = strings.TrimSpace(in.PlanName)
	in.CustomerName = strings.TrimSpace(in.CustomerName)
	in.Email = strings.TrimSpace(in.Email)
	in.Phone = strings.TrimSpace(in.Phone)
	in.City = strings.TrimSpace(in.City)
	in.PayMethod = strings.ToLower(strings.TrimSpace(in.PayMethod))
	in.PayType = strings.TrimSpace(in.PayType)
	in.Notes = strings.TrimSpace(in.Notes)
	return in
}

// QueryOrders возвращает заказы по идентификатору и/или email, новые первыми.
func (s *Service) QueryOrders(ctx context.Context, filter model.OrderFilter) ([]model.Order, error) {
	rawID := strings.TrimSpace(filter.OrderID)
	email := strings.TrimSpace(filter.Email)

	if rawID == "" && email == "" && !filter.AllowUnscoped {
		return nil, ErrUnscopedQuery
	}

	table, err := s.store.ReadAll(ctx, s.ordersTable)
	if err != nil {
		return nil, fmt.Errorf("read orders: %w", err)
	}

	var wantKey string
	if rawID != "" {
		wantKey = orderid.Key(orderid.Normalize(rawID))
	}

	orders := make([]model.Order, 0)
	for i := range table.Records {
		o := orderFromRecord(&table.Records[i])
		if wantKey != "" && orderid.Key(o.OrderID) != wantKey {
			continue
		}
		if email != "" && !strings.EqualFold(strings.TrimSpace(o.Email), email) {
			continue
		}
		orders = append(orders, o)
	}

	sort.SliceStable(orders, func(i, j int) bool {
		return orders[i].CreatedAt.After(orders[j].CreatedAt)
	})

	return orders, nil
}

// UpdateOrderStatus переводит заказ на следующий этап. Движение назад запрещено,
// повторная установка текущего статуса ничего не меняет.
func (s *Service) UpdateOrderStatus(ctx context.Context, rawID, status string) (*model.Order, error) {
	target := model.OrderStatus(strings.ToLower(strings.TrimSpace(status)))
	if !target.Valid() {
		return nil, model.NewValidationError(model.FieldError{
			Field:  model.ColStatus,
			Reason: "unknown status " + strconv.Quote(string(target)),
		})
	}

	rec, err := s.findOrder(ctx, rawID)
	if err != nil {
		return nil, err
	}

	current := orderFromRecord(rec)
	if current.Status == target {
		return &current, nil
	}
	if !current.Status.CanMoveTo(target) {
		return nil, model.NewValidationError(model.FieldError{
			Field:  model.ColStatus,
			Reason: fmt.Sprintf("cannot move from %s to %s", current.Status, target),
		})
	}

	updated, err := s.store.UpdateByKey(ctx, s.ordersTable, model.ColOrderID, rec.Get(model.ColOrderID), map[string]string{
		model.ColStatus:    string(target),
		model.ColUpdatedAt: rowstore.FormatTime(s.now()),
	})
	if err != nil {
		if errors.Is(err, rowstore.ErrRowNotFound) {
			return nil, fmt.Errorf("order %s: %w", current.OrderID, model.ErrNotFound)
		}
		return nil, fmt.Errorf("update order status: %w", err)
	}

	order := orderFromRecord(updated)
	s.metrics.StatusChanged(string(target))
	s.logger.Info("order status changed",
		zap.String("order_id", order.OrderID),
		zap.String("from", string(current.Status)),
		zap.String("to", string(target)),
	)

	s.publish(ctx, notify.Event{
		Type:       notify.EventStatusChanged,
		OrderID:    order.OrderID,
		OccurredAt: s.now().UTC(),
		Data: map[string]string{
			"from": string(current.Status),
			"to":   string(target),
		},
	})

	return &order, nil
}

// findOrder ищет заказ по нормализованному идентификатору, затем по исходному значению.
func (s *Service) findOrder(ctx context.Context, rawID string) (*rowstore.Record, error) {
	raw := strings.TrimSpace(rawID)
	id := orderid.Normalize(raw)
	if id == "" {
		return nil, model.Missing(model.ColOrderID)
	}

	rec, err := s.store.FindByColumn(ctx, s.ordersTable, model.ColOrderID, id)
	if err != nil {
		return nil, fmt.Errorf("find order: %w", err)
	}
	if rec == nil && raw != id {
		rec, err = s.store.FindByColumn(ctx, s.ordersTable, model.ColOrderID, raw)
		if err != nil {
			return nil, fmt.Errorf("find order: %w", err)
		}
	}
	if rec == nil {
		return nil, fmt.Errorf("order %s: %w", id, model.ErrNotFound)
	}
	return rec, nil
}

func orderFromRecord(rec *rowstore.Record) model.Order {
	o := model.Order{
		OrderID:       strings.TrimSpace(rec.Get(model.ColOrderID)),
		PlanID:        rec.Get(model.ColPlanID),
		PlanName:      rec.Get(model.ColPlanName),
		CustomerName:  rec.Get(model.ColCustomerName),
		Email:         rec.Get(model.ColEmail),
		Phone:         rec.Get(model.ColPhone),
		City:          rec.Get(model.ColCity),
		PayMethod:     model.PayMethod(rec.Get(model.ColPayMethod)),
		PayType:       rec.Get(model.ColPayType),
		PaymentStatus: rec.Get(model.ColPaymentStatus),
		ProofURL:      rec.Get(model.ColProofURL),
		Notes:         rec.Get(model.ColNotes),
		Status:        effectiveStatus(rec.Get(model.ColStatus), rec.Get(model.ColPaymentStatus)),
	}

	if amount, ok := parseAmount(rec.Get(model.ColAmount)); ok {
		o.Amount = amount
	}
	if t, ok := rowstore.ParseTime(rec.Get(model.ColCreatedAt)); ok {
		o.CreatedAt = t
	}
	if t, ok := rowstore.ParseTime(rec.Get(model.ColUpdatedAt)); ok {
		o.UpdatedAt = &t
	}
	return o
}

// parseAmount читает сумму из ячейки; бесконечности и NaN считаются пустым значением.
func parseAmount(cell string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(cell), 64)
	if err != nil || math.IsInf(v, 0) || math.IsNaN(v) {
		return 0, false
	}
	return v, true
}

// effectiveStatus берёт status, а для старых строк без него выводит статус из payment_status.
func effectiveStatus(status, paymentStatus string) model.OrderStatus {
	if st := strings.ToLower(strings.TrimSpace(status)); st != "" {
		return model.OrderStatus(st)
	}
	switch strings.ToLower(strings.TrimSpace(paymentStatus)) {
	case "paid":
		return model.OrderStatusPaid
	case "completed":
		return model.OrderStatusCompleted
	default:
		return model.OrderStatusPendingPayment
	}
}
