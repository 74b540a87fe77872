package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/impulsaweb/internal/model"
	"github.com/mmeshcher/impulsaweb/internal/notify"
	"github.com/mmeshcher/impulsaweb/internal/rowstore"
)

var fixedNow = time.Date(2025, time.June, 14, 10, 0, 0, 0, time.UTC)

type recordingNotifier struct {
	mu     sync.Mutex
	events []notify.Event
	err    error
}

func (n *recordingNotifier) Notify(_ context.Context, ev notify.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
	return n.err
}

func (n *recordingNotifier) types() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.events))
	for _, ev := range n.events {
		out = append(out, ev.Type)
	}
	return out
}

type failingBackend struct{}

func (failingBackend) Values(context.Context, string) ([][]string, error) {
	return nil, errors.New("sheets quota exceeded")
}

func (failingBackend) AppendRow(context.Context, string, []string) error {
	return errors.New("sheets quota exceeded")
}

func (failingBackend) WriteRow(context.Context, string, int, []string) error {
	return errors.New("sheets quota exceeded")
}

type testEnv struct {
	svc      *Service
	mem      *rowstore.Memory
	notifier *recordingNotifier
	now      time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	env := &testEnv{
		mem:      rowstore.NewMemory(),
		notifier: &recordingNotifier{},
		now:      fixedNow,
	}
	env.svc = NewService(rowstore.New(env.mem),
		WithClock(func() time.Time { return env.now }),
		WithNotifier(env.notifier),
	)
	require.NoError(t, env.svc.EnsureSchema(context.Background()))
	return env
}

func (e *testEnv) rows(t *testing.T, table string) [][]string {
	t.Helper()
	rows, err := e.mem.Values(context.Background(), table)
	require.NoError(t, err)
	return rows
}

func validOrder(planID string) model.OrderInput {
	return model.OrderInput{
		PlanID:       planID,
		PlanName:     "Landing Page",
		CustomerName: "Ana Gómez",
		Email:        "a@b.com",
		Phone:        "+57 300 000 0000",
		City:         "Medellín",
		PayMethod:    "nequi",
		Amount:       299000,
	}
}

func validBrief(orderID string) model.BriefInput {
	return model.BriefInput{
		OrderID:        orderID,
		BusinessName:   "Café Luna",
		BusinessType:   "cafetería",
		TargetAudience: "jóvenes profesionales",
		Colors:         "azul, blanco",
		Style:          "moderno",
	}
}

func (e *testEnv) createOrder(t *testing.T, planID string) string {
	t.Helper()
	id, err := e.svc.CreateOrder(context.Background(), validOrder(planID))
	require.NoError(t, err)
	return id
}

func fieldNames(t *testing.T, err error) []string {
	t.Helper()
	var ve *model.ValidationError
	require.True(t, errors.As(err, &ve), "expected ValidationError, got %v", err)
	names := make([]string, 0, len(ve.Fields))
	for _, f := range ve.Fields {
		names = append(names, f.Field)
	}
	return names
}

func TestCreateOrderAndQuery(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	id := env.createOrder(t, "landing")
	assert.Regexp(t, regexp.MustCompile(`^IW-2506-[A-Z0-9]{4}$`), id)

	orders, err := env.svc.QueryOrders(ctx, model.OrderFilter{OrderID: id})
	require.NoError(t, err)
	require.Len(t, orders, 1)
	o := orders[0]
	assert.Equal(t, id, o.OrderID)
	assert.Equal(t, model.OrderStatusPendingPayment, o.Status)
	assert.Equal(t, "landing", o.PlanID)
	assert.Equal(t, 299000.0, o.Amount)
	assert.Equal(t, "total", o.PayType)
	assert.True(t, fixedNow.Equal(o.CreatedAt))
	assert.Nil(t, o.UpdatedAt)

	orders, err = env.svc.QueryOrders(ctx, model.OrderFilter{Email: " A@B.com "})
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, id, orders[0].OrderID)

	brief, err := env.svc.GetBrief(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, brief)

	assert.Equal(t, []string{notify.EventOrderCreated}, env.notifier.types())
}

func TestQueryOrdersTolerantID(t *testing.T) {
	env := newTestEnv(t)
	id := env.createOrder(t, "web")

	variants := []string{
		id,
		"  " + id + " ",
		"https://impulsaweb.co/pedido?order_id=" + id,
		regexp.MustCompile(`-`).ReplaceAllString(id, ""),
	}
	for _, v := range variants {
		orders, err := env.svc.QueryOrders(context.Background(), model.OrderFilter{OrderID: v})
		require.NoError(t, err, v)
		assert.Len(t, orders, 1, v)
	}
}

func TestQueryOrdersFilterCombination(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id := env.createOrder(t, "landing")

	orders, err := env.svc.QueryOrders(ctx, model.OrderFilter{OrderID: id, Email: "other@b.com"})
	require.NoError(t, err)
	assert.Empty(t, orders)
	assert.NotNil(t, orders)
}

func TestCreateOrderValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.CreateOrder(ctx, model.OrderInput{PlanID: "landing", PayMethod: "cash", Email: "nope"})
	require.ErrorIs(t, err, model.ErrValidation)
	assert.ElementsMatch(t,
		[]string{"plan_name", "customer_name", "email", "phone", "pay_method", "amount"},
		fieldNames(t, err),
	)

	in := validOrder("enterprise")
	_, err = env.svc.CreateOrder(ctx, in)
	require.ErrorIs(t, err, model.ErrValidation)
	assert.Equal(t, []string{"plan_id"}, fieldNames(t, err))

	in = validOrder("landing")
	in.Amount = 0
	_, err = env.svc.CreateOrder(ctx, in)
	require.ErrorIs(t, err, model.ErrValidation)

	for _, amount := range []float64{math.Inf(1), math.Inf(-1), math.NaN()} {
		in = validOrder("landing")
		in.Amount = amount
		_, err = env.svc.CreateOrder(ctx, in)
		require.ErrorIs(t, err, model.ErrValidation, "amount %v", amount)
		assert.Contains(t, fieldNames(t, err), "amount")
	}

	assert.Len(t, env.rows(t, DefaultOrdersTable), 1, "invalid orders must not be appended")
	assert.Empty(t, env.notifier.types())
}

func TestCreateOrderLeavesPaymentStatusBlank(t *testing.T) {
	env := newTestEnv(t)
	env.createOrder(t, "landing")

	table, err := rowstore.New(env.mem).ReadAll(context.Background(), DefaultOrdersTable)
	require.NoError(t, err)
	require.Len(t, table.Records, 1)

	rec := table.Records[0]
	assert.Empty(t, rec.Get("payment_status"))
	assert.Equal(t, "pending_payment", rec.Get("status"))
}

func TestQueryOrdersIgnoresNonFiniteAmounts(t *testing.T) {
	mem := rowstore.NewMemory()
	mem.Seed(DefaultOrdersTable,
		[]string{"created_at", "order_id", "email", "status", "amount"},
		[]string{"2025-06-01T00:00:00Z", "IW-2506-INF1", "x@y.com", "pending_payment", "+Inf"},
		[]string{"2025-06-02T00:00:00Z", "IW-2506-NAN1", "x@y.com", "pending_payment", "NaN"},
	)
	svc := NewService(rowstore.New(mem))

	orders, err := svc.QueryOrders(context.Background(), model.OrderFilter{Email: "x@y.com"})
	require.NoError(t, err)
	require.Len(t, orders, 2)
	for _, o := range orders {
		assert.Zero(t, o.Amount, o.OrderID)
	}

	_, err = json.Marshal(orders)
	require.NoError(t, err, "orders must stay JSON-encodable")
}

func TestCreateOrderStoreFailure(t *testing.T) {
	svc := NewService(rowstore.New(failingBackend{}))
	_, err := svc.CreateOrder(context.Background(), validOrder("landing"))
	assert.ErrorIs(t, err, rowstore.ErrIO)
}

func TestCreateOrderMissingHeader(t *testing.T) {
	svc := NewService(rowstore.New(rowstore.NewMemory()))
	_, err := svc.CreateOrder(context.Background(), validOrder("landing"))
	assert.ErrorIs(t, err, rowstore.ErrSchema)
}

func TestQueryOrdersUnscoped(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first := env.createOrder(t, "landing")
	env.now = fixedNow.Add(time.Hour)
	second := env.createOrder(t, "web")

	_, err := env.svc.QueryOrders(ctx, model.OrderFilter{})
	assert.ErrorIs(t, err, ErrUnscopedQuery)

	orders, err := env.svc.QueryOrders(ctx, model.OrderFilter{AllowUnscoped: true})
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, second, orders[0].OrderID, "newest first")
	assert.Equal(t, first, orders[1].OrderID)
}

func TestQueryOrdersLegacyRows(t *testing.T) {
	mem := rowstore.NewMemory()
	mem.Seed(DefaultOrdersTable,
		[]string{"created_at", "order_id", "email", "payment_status", "amount"},
		[]string{"45822.5", "IW2506-OLD1", "legacy@b.com", "paid", "150000"},
		[]string{"2025-06-01T00:00:00Z", "IW-2506-OLD2", "legacy@b.com", "", "abc"},
	)
	svc := NewService(rowstore.New(mem))

	orders, err := svc.QueryOrders(context.Background(), model.OrderFilter{Email: "LEGACY@b.com"})
	require.NoError(t, err)
	require.Len(t, orders, 2)

	assert.Equal(t, "IW2506-OLD1", orders[0].OrderID)
	assert.Equal(t, model.OrderStatusPaid, orders[0].Status)
	assert.Equal(t, 150000.0, orders[0].Amount)
	assert.True(t, time.Date(2025, 6, 14, 12, 0, 0, 0, time.UTC).Equal(orders[0].CreatedAt))

	assert.Equal(t, model.OrderStatusPendingPayment, orders[1].Status)
	assert.Zero(t, orders[1].Amount)
}

func TestSubmitBriefPageRules(t *testing.T) {
	tests := []struct {
		name    string
		planID  string
		pages   []string
		market  string
		wantErr bool
	}{
		{name: "multi five pages", planID: "web", pages: []string{"inicio", "nosotros", "servicios", "blog", "contacto"}},
		{name: "multi six pages", planID: "web", pages: []string{"inicio", "nosotros", "servicios", "blog", "contacto", "faq"}, wantErr: true},
		{name: "multi zero pages", planID: "web", wantErr: true},
		{name: "single one page", planID: "landing", pages: []string{"inicio"}},
		{name: "single zero pages", planID: "landing", wantErr: true},
		{name: "single two pages", planID: "landing", pages: []string{"inicio", "faq"}, wantErr: true},
		{name: "none with market", planID: "tienda", market: "b2c"},
		{name: "none without market", planID: "tienda", wantErr: true},
		{name: "store alias", planID: "store", market: "Internacional"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			id := env.createOrder(t, tt.planID)

			in := validBrief(id)
			in.Pages = tt.pages
			in.Market = tt.market

			receipt, err := env.svc.SubmitBrief(context.Background(), in)
			if tt.wantErr {
				require.ErrorIs(t, err, model.ErrValidation)
				assert.Len(t, env.rows(t, DefaultBriefsTable), 1, "failed submission must not write")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, id, receipt.OrderID)
			assert.False(t, receipt.Updated)
			assert.Equal(t, model.BriefStatusSubmitted, receipt.Status)
		})
	}
}

func TestSubmitBriefRequiredFields(t *testing.T) {
	env := newTestEnv(t)
	id := env.createOrder(t, "landing")

	_, err := env.svc.SubmitBrief(context.Background(), model.BriefInput{
		OrderID:      id,
		BusinessName: "  ",
		Pages:        []string{"inicio"},
	})
	require.ErrorIs(t, err, model.ErrValidation)
	assert.Equal(t,
		[]string{"business_name", "business_type", "target_audience", "colors", "style"},
		fieldNames(t, err),
	)
	assert.Contains(t, err.Error(), "missing required fields: business_name")
}

func TestSubmitBriefEmptyOrderID(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.svc.SubmitBrief(context.Background(), validBrief(` "" `))
	require.ErrorIs(t, err, model.ErrValidation)
	assert.Equal(t, []string{"order_id"}, fieldNames(t, err))
}

func TestSubmitBriefNotFound(t *testing.T) {
	env := newTestEnv(t)
	env.createOrder(t, "landing")

	in := validBrief("IW-2506-ZZZZ")
	in.Pages = []string{"inicio"}
	_, err := env.svc.SubmitBrief(context.Background(), in)
	require.ErrorIs(t, err, model.ErrNotFound)
	assert.Len(t, env.rows(t, DefaultBriefsTable), 1, "no brief row must be created")
}

func TestSubmitBriefResubmissionOverwrites(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id := env.createOrder(t, "web")

	in := validBrief(id)
	in.Pages = []string{"inicio, Servicios", "servicios", " ", "blog"}
	in.Features = []string{"whatsapp", "formulario,  whatsapp"}
	first, err := env.svc.SubmitBrief(ctx, in)
	require.NoError(t, err)
	assert.False(t, first.Updated)
	assert.Equal(t, []string{"inicio", "servicios", "blog"}, first.Pages)

	env.now = fixedNow.Add(2 * time.Hour)
	in = validBrief(" " + id + " ")
	in.BusinessName = "Café Sol"
	in.Style = "PREMIUM"
	in.Pages = []string{"contacto"}
	second, err := env.svc.SubmitBrief(ctx, in)
	require.NoError(t, err)
	assert.True(t, second.Updated)
	assert.Equal(t, "premium", second.Style)

	assert.Len(t, env.rows(t, DefaultBriefsTable), 2, "resubmission must update, not append")

	brief, err := env.svc.GetBrief(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, brief)
	assert.Equal(t, "Café Sol", brief.BusinessName)
	assert.Equal(t, []string{"contacto"}, brief.Pages)
	assert.Equal(t, []string{}, brief.Features)
	assert.Equal(t, "web", brief.PlanID)
	assert.Equal(t, model.BriefStatusSubmitted, brief.Status)
	assert.True(t, env.now.Equal(brief.CreatedAt))
	assert.True(t, env.now.Equal(brief.UpdatedAt))

	assert.Equal(t,
		[]string{notify.EventOrderCreated, notify.EventBriefSubmitted, notify.EventBriefSubmitted},
		env.notifier.types(),
	)
}

func TestSubmitBriefStoresLists(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id := env.createOrder(t, "tienda")

	in := validBrief(id)
	in.Market = "nacional (colombia)"
	in.Features = []string{"pasarela de pagos", "envíos", "Envíos"}
	receipt, err := env.svc.SubmitBrief(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, "nacional", receipt.Market)
	assert.Equal(t, []string{}, receipt.Pages)

	brief, err := env.svc.GetBrief(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, brief)
	assert.Equal(t, []string{"pasarela de pagos", "envíos"}, brief.Features)
	assert.Empty(t, brief.Pages)
	assert.Equal(t, "tienda", brief.PlanID)
	assert.Equal(t, receipt.PlanName, brief.PlanName)
}

func TestSubmitBriefLegacyRawFallback(t *testing.T) {
	mem := rowstore.NewMemory()
	svc := NewService(rowstore.New(mem), WithClock(func() time.Time { return fixedNow }))
	require.NoError(t, svc.EnsureSchema(context.Background()))
	mem.Seed(DefaultOrdersTable,
		[]string{"order_id", "plan_id", "plan_name"},
		[]string{"pedido IW-2506-AB12", "landing", "Landing Page"},
	)

	in := validBrief("pedido IW-2506-AB12")
	in.Pages = []string{"inicio"}
	receipt, err := svc.SubmitBrief(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, "pedido IW-2506-AB12", receipt.OrderID)
	assert.Equal(t, "landing", receipt.PlanID)
}

func TestSubmitBriefDropsUnknownColumns(t *testing.T) {
	mem := rowstore.NewMemory()
	svc := NewService(rowstore.New(mem), WithClock(func() time.Time { return fixedNow }))
	mem.Seed(DefaultOrdersTable,
		[]string{"order_id", "plan_id", "plan_name"},
		[]string{"IW-2506-AB12", "landing", "Landing Page"},
	)
	mem.Seed(DefaultBriefsTable, []string{"order_id", "business_name", "status"})

	in := validBrief("IW-2506-AB12")
	in.Pages = []string{"inicio"}
	_, err := svc.SubmitBrief(context.Background(), in)
	require.NoError(t, err)

	rows, err := mem.Values(context.Background(), DefaultBriefsTable)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"IW-2506-AB12", "Café Luna", "submitted"}, rows[1])
}

func TestConcurrentBriefSubmissionsKeepOneRow(t *testing.T) {
	env := newTestEnv(t)
	id := env.createOrder(t, "landing")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			in := validBrief(id)
			in.BusinessName = fmt.Sprintf("Negocio %d", i)
			in.Pages = []string{"inicio"}
			_, err := env.svc.SubmitBrief(context.Background(), in)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	assert.Len(t, env.rows(t, DefaultBriefsTable), 2)
}

func TestUpdateOrderStatus(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id := env.createOrder(t, "web")

	env.now = fixedNow.Add(24 * time.Hour)
	order, err := env.svc.UpdateOrderStatus(ctx, id, "PAID")
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusPaid, order.Status)
	require.NotNil(t, order.UpdatedAt)
	assert.True(t, env.now.Equal(*order.UpdatedAt))

	order, err = env.svc.UpdateOrderStatus(ctx, id, "review")
	require.NoError(t, err, "skipping stages is allowed")
	assert.Equal(t, model.OrderStatusReview, order.Status)

	order, err = env.svc.UpdateOrderStatus(ctx, id, "review")
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusReview, order.Status)

	_, err = env.svc.UpdateOrderStatus(ctx, id, "paid")
	require.ErrorIs(t, err, model.ErrValidation)

	_, err = env.svc.UpdateOrderStatus(ctx, id, "cancelled")
	require.ErrorIs(t, err, model.ErrValidation)

	_, err = env.svc.UpdateOrderStatus(ctx, "IW-2506-NONE", "paid")
	require.ErrorIs(t, err, model.ErrNotFound)

	orders, err := env.svc.QueryOrders(ctx, model.OrderFilter{OrderID: id})
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, model.OrderStatusReview, orders[0].Status)

	assert.Equal(t,
		[]string{notify.EventOrderCreated, notify.EventStatusChanged, notify.EventStatusChanged},
		env.notifier.types(),
	)
}

func TestNotifierFailureDoesNotFailRequest(t *testing.T) {
	env := newTestEnv(t)
	env.notifier.err = errors.New("webhook down")

	_, err := env.svc.CreateOrder(context.Background(), validOrder("landing"))
	assert.NoError(t, err)
}
