// Package service реализует сценарии приёма заказов и брифов.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/impulsaweb/internal/metrics"
	"github.com/mmeshcher/impulsaweb/internal/model"
	"github.com/mmeshcher/impulsaweb/internal/notify"
	"github.com/mmeshcher/impulsaweb/internal/orderid"
	"github.com/mmeshcher/impulsaweb/internal/rowstore"
)

// Имена листов по умолчанию.
const (
	DefaultOrdersTable = "orders"
	DefaultBriefsTable = "briefs"
)

const notifyTimeout = 5 * time.Second

// ErrUnscopedQuery возвращается при запросе заказов без фильтра без прав администратора.
var ErrUnscopedQuery = errors.New("order query requires order_id or email")

// RowStore описывает контракт табличного хранилища, используемый сервисом.
type RowStore interface {
	ReadAll(ctx context.Context, table string) (*rowstore.Table, error)
	AppendRecord(ctx context.Context, table string, fields map[string]string) ([]string, error)
	FindByColumn(ctx context.Context, table, column, value string) (*rowstore.Record, error)
	UpsertByKey(ctx context.Context, table, keyColumn, keyValue string, fields map[string]string) (*rowstore.UpsertResult, error)
	UpdateByKey(ctx context.Context, table, keyColumn, keyValue string, patch map[string]string) (*rowstore.Record, error)
	EnsureSchema(ctx context.Context, schema model.Schema) ([]string, error)
}

// IDGenerator выпускает идентификаторы заказов.
type IDGenerator interface {
	Generate() (string, error)
}

// Notifier доставляет события во внешнюю систему.
type Notifier interface {
	Notify(ctx context.Context, ev notify.Event) error
}

// Service содержит бизнес-логику заказов и брифов.
type Service struct {
	store       RowStore
	ids         IDGenerator
	notifier    Notifier
	metrics     *metrics.Metrics
	logger      *zap.Logger
	now         func() time.Time
	ordersTable string
	briefsTable string
}

// Option настраивает Service.
type Option func(*Service)

// WithClock подменяет источник текущего времени.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithIDGenerator задаёт генератор идентификаторов заказов.
func WithIDGenerator(g IDGenerator) Option {
	return func(s *Service) {
		s.ids = g
	}
}

// WithNotifier включает отправку уведомлений.
func WithNotifier(n Notifier) Option {
	return func(s *Service) {
		s.notifier = n
	}
}

// WithMetrics включает учёт доменных метрик.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithLogger задаёт логгер.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithTables задаёт имена листов заказов и брифов.
func WithTables(orders, briefs string) Option {
	return func(s *Service) {
		if orders != "" {
			s.ordersTable = orders
		}
		if briefs != "" {
			s.briefsTable = briefs
		}
	}
}

// NewService создаёт сервис поверх табличного хранилища.
func NewService(store RowStore, opts ...Option) *Service {
	s := &Service{
		store:       store,
		logger:      zap.NewNop(),
		now:         time.Now,
		ordersTable: DefaultOrdersTable,
		briefsTable: DefaultBriefsTable,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.ids == nil {
		s.ids = orderid.NewGenerator(orderid.DefaultPrefix, orderid.WithClock(s.now))
	}
	return s
}

// EnsureSchema создаёт или дополняет заголовки листов заказов и брифов.
func (s *Service) EnsureSchema(ctx context.Context) error {
	for _, schema := range []model.Schema{
		model.OrdersSchema(s.ordersTable),
		model.BriefsSchema(s.briefsTable),
	} {
		added, err := s.store.EnsureSchema(ctx, schema)
		if err != nil {
			return fmt.Errorf("ensure schema of %s: %w", schema.Table, err)
		}
		if len(added) > 0 {
			s.logger.Info("table header extended",
				zap.String("table", schema.Table),
				zap.Int("schema_version", schema.Version),
				zap.Strings("columns", added),
			)
		}
	}
	return nil
}

func (s *Service) warnDropped(table, orderID string, dropped []string) {
	if len(dropped) == 0 {
		return
	}
	s.metrics.FieldsDropped(table, len(dropped))
	s.logger.Warn("fields missing from table header were not saved",
		zap.String("table", table),
		zap.String("order_id", orderID),
		zap.Strings("fields", dropped),
	)
}

// publish отправляет событие синхронно; ошибка доставки только логируется.
func (s *Service) publish(ctx context.Context, ev notify.Event) {
	if s.notifier == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()

	if err := s.notifier.Notify(ctx, ev); err != nil {
		s.metrics.NotifyFailed()
		s.logger.Warn("notification failed",
			zap.String("event", ev.Type),
			zap.String("order_id", ev.OrderID),
			zap.Error(err),
		)
	}
}
