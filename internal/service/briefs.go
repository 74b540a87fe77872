package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/mmeshcher/impulsaweb/internal/metrics"
	"github.com/mmeshcher/impulsaweb/internal/model"
	"github.com/mmeshcher/impulsaweb/internal/notify"
	"github.com/mmeshcher/impulsaweb/internal/orderid"
	"github.com/mmeshcher/impulsaweb/internal/plans"
	"github.com/mmeshcher/impulsaweb/internal/rowstore"
)

const listSeparator = ","

// SubmitBrief проверяет анкету по тарифу заказа и сохраняет её. Повторная отправка
// перезаписывает строку брифа этого заказа.
func (s *Service) SubmitBrief(ctx context.Context, in model.BriefInput) (*model.BriefReceipt, error) {
	receipt, err := s.submitBrief(ctx, in)
	switch {
	case err == nil:
		if receipt.Updated {
			s.metrics.Brief(metrics.OutcomeUpdated)
		} else {
			s.metrics.Brief(metrics.OutcomeCreated)
		}
	case errors.Is(err, model.ErrValidation):
		s.metrics.Brief(metrics.OutcomeInvalid)
	case errors.Is(err, model.ErrNotFound):
		s.metrics.Brief(metrics.OutcomeNotFound)
	default:
		s.metrics.Brief(metrics.OutcomeError)
	}
	return receipt, err
}

func (s *Service) submitBrief(ctx context.Context, in model.BriefInput) (*model.BriefReceipt, error) {
	if orderid.Normalize(in.OrderID) == "" {
		return nil, model.Missing(model.ColOrderID)
	}

	order, err := s.findOrder(ctx, in.OrderID)
	if err != nil {
		return nil, err
	}

	orderID := strings.TrimSpace(order.Get(model.ColOrderID))
	planID := strings.TrimSpace(order.Get(model.ColPlanID))
	planName := strings.TrimSpace(order.Get(model.ColPlanName))

	in = trimBriefInput(in)

	var problems []model.FieldError
	for _, f := range []struct {
		name  string
		value string
	}{
		{model.ColBusinessName, in.BusinessName},
		{model.ColBusinessType, in.BusinessType},
		{model.ColTargetAudience, in.TargetAudience},
		{model.ColColors, in.Colors},
		{model.ColStyle, in.Style},
	} {
		if f.value == "" {
			problems = append(problems, model.FieldError{Field: f.name, Reason: "required"})
		}
	}

	pages := normalizeList(in.Pages, true)
	features := normalizeList(in.Features, false)
	style, market := in.Style, in.Market

	rule, ok := plans.Lookup(planID)
	if !ok {
		problems = append(problems, model.FieldError{
			Field:  model.ColPlanID,
			Reason: fmt.Sprintf("order has unknown plan %q", planID),
		})
	} else {
		problems = append(problems, rule.Check(pages, style, market)...)
		style, _ = rule.CanonicalStyle(style)
		if market != "" {
			market, _ = rule.CanonicalMarket(market)
		}
		if planName == "" {
			planName = rule.Label
		}
	}

	if len(problems) > 0 {
		return nil, model.NewValidationError(problems...)
	}

	now := rowstore.FormatTime(s.now())
	fields := map[string]string{
		model.ColCreatedAt:      now,
		model.ColUpdatedAt:      now,
		model.ColOrderID:        orderID,
		model.ColPlanID:         rule.Key,
		model.ColPlanName:       planName,
		model.ColBusinessName:   in.BusinessName,
		model.ColBusinessType:   in.BusinessType,
		model.ColTargetAudience: in.TargetAudience,
		model.ColColors:         in.Colors,
		model.ColPages:          strings.Join(pages, listSeparator),
		model.ColMarket:         market,
		model.ColFeatures:       strings.Join(features, listSeparator),
		model.ColCompetitors:    in.Competitors,
		model.ColStyle:          style,
		model.ColContentReady:   in.ContentReady,
		model.ColNotes:          in.Notes,
		model.ColStatus:         model.BriefStatusSubmitted,
	}

	res, err := s.store.UpsertByKey(ctx, s.briefsTable, model.ColOrderID, orderID, fields)
	if err != nil {
		return nil, fmt.Errorf("save brief: %w", err)
	}
	s.warnDropped(s.briefsTable, orderID, res.Dropped)

	s.logger.Info("brief saved",
		zap.String("order_id", orderID),
		zap.String("plan_id", rule.Key),
		zap.Bool("updated", res.Updated),
		zap.Int("row", res.RowNumber),
	)

	s.publish(ctx, notify.Event{
		Type:       notify.EventBriefSubmitted,
		OrderID:    orderID,
		OccurredAt: s.now().UTC(),
		Data: map[string]string{
			model.ColPlanID:       rule.Key,
			model.ColBusinessName: in.BusinessName,
			"updated":             fmt.Sprint(res.Updated),
		},
	})

	if pages == nil {
		pages = []string{}
	}
	return &model.BriefReceipt{
		OrderID:      orderID,
		PlanID:       rule.Key,
		PlanName:     planName,
		Updated:      res.Updated,
		BusinessName: in.BusinessName,
		Style:        style,
		Pages:        pages,
		Market:       market,
		Status:       model.BriefStatusSubmitted,
	}, nil
}

// GetBrief возвращает бриф заказа или nil, nil, если анкета ещё не заполнена.
func (s *Service) GetBrief(ctx context.Context, rawID string) (*model.Brief, error) {
	raw := strings.TrimSpace(rawID)
	id := orderid.Normalize(raw)
	if id == "" {
		return nil, model.Missing(model.ColOrderID)
	}

	rec, err := s.store.FindByColumn(ctx, s.briefsTable, model.ColOrderID, id)
	if err != nil {
		return nil, fmt.Errorf("find brief: %w", err)
	}
	if rec == nil && raw != id {
		rec, err = s.store.FindByColumn(ctx, s.briefsTable, model.ColOrderID, raw)
		if err != nil {
			return nil, fmt.Errorf("find brief: %w", err)
		}
	}
	if rec == nil {
		return nil, nil
	}

	return briefFromRecord(rec), nil
}

func briefFromRecord(rec *rowstore.Record) *model.Brief {
	b := &model.Brief{
		OrderID:        strings.TrimSpace(rec.Get(model.ColOrderID)),
		PlanID:         rec.Get(model.ColPlanID),
		PlanName:       rec.Get(model.ColPlanName),
		BusinessName:   rec.Get(model.ColBusinessName),
		BusinessType:   rec.Get(model.ColBusinessType),
		TargetAudience: rec.Get(model.ColTargetAudience),
		Competitors:    rec.Get(model.ColCompetitors),
		Colors:         rec.Get(model.ColColors),
		Style:          rec.Get(model.ColStyle),
		Pages:          splitList(rec.Get(model.ColPages)),
		Market:         rec.Get(model.ColMarket),
		Features:       splitList(rec.Get(model.ColFeatures)),
		ContentReady:   rec.Get(model.ColContentReady),
		Notes:          rec.Get(model.ColNotes),
		Status:         rec.Get(model.ColStatus),
	}
	if t, ok := rowstore.ParseTime(rec.Get(model.ColCreatedAt)); ok {
		b.CreatedAt = t
	}
	if t, ok := rowstore.ParseTime(rec.Get(model.ColUpdatedAt)); ok {
		b.UpdatedAt = t
	}
	return b
}

func trimBriefInput(in model.BriefInput) model.BriefInput {
	in.BusinessName = strings.TrimSpace(in.BusinessName)
	in.BusinessType = strings.TrimSpace(in.BusinessType)
	in.TargetAudience = strings.TrimSpace(in.TargetAudience)
	in.Competitors = strings.TrimSpace(in.Competitors)
	in.Colors = strings.TrimSpace(in.Colors)
	in.Style = strings.TrimSpace(in.Style)
	in.Market = strings.TrimSpace(in.Market)
	in.ContentReady = strings.TrimSpace(in.ContentReady)
	in.Notes = strings.TrimSpace(in.Notes)
	return in
}

// normalizeList разбивает элементы по запятым, убирает пустые и повторы с сохранением порядка.
func normalizeList(items []string, lower bool) []string {
	var out []string
	seen := make(map[string]struct{})

	for _, item := range items {
		for _, token := range strings.Split(item, listSeparator) {
			token = strings.TrimSpace(token)
			if token == "" {
				continue
			}
			if lower {
				token = strings.ToLower(token)
			}
			key := strings.ToLower(token)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, token)
		}
	}
	return out
}

func splitList(cell string) []string {
	out := normalizeList([]string{cell}, false)
	if out == nil {
		return []string{}
	}
	return out
}
