package routes

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderflow-backend/internal/cancellation"
	"github.com/angelmondragon/orderflow-backend/internal/cart"
	checkoutsvc "github.com/angelmondragon/orderflow-backend/internal/checkout"
	"github.com/angelmondragon/orderflow-backend/internal/gateway"
	"github.com/angelmondragon/orderflow-backend/internal/notifications"
	"github.com/angelmondragon/orderflow-backend/internal/orders"
	gatewaywebhook "github.com/angelmondragon/orderflow-backend/internal/webhooks/gateway"
	pkgAuth "github.com/angelmondragon/orderflow-backend/pkg/auth"
	"github.com/angelmondragon/orderflow-backend/pkg/config"
	"github.com/angelmondragon/orderflow-backend/pkg/db/models"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
	"github.com/angelmondragon/orderflow-backend/pkg/logger"
)

type stubPinger struct{}

func (stubPinger) Ping(context.Context) error {
	return nil
}

type memoryStore struct {
	mu     sync.Mutex
	values map[string]string
	counts map[string]int64
}

func newMemoryStore() *memoryStore {
	return &memoryStore{values: map[string]string{}, counts: map[string]int64{}}
}

func (m *memoryStore) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.values[key], nil
}

func (m *memoryStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.values[key]; ok {
		return false, nil
	}
	switch v := value.(type) {
	case string:
		m.values[key] = v
	case []byte:
		m.values[key] = string(v)
	default:
		m.values[key] = ""
	}
	return true, nil
}

func (m *memoryStore) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.values, k)
	}
	return nil
}

func (m *memoryStore) IdempotencyKey(scope, id string) string {
	return "idem:" + scope + ":" + id
}

func (m *memoryStore) IncrWithTTL(_ context.Context, key string, _ time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts[key]++
	return m.counts[key], nil
}

func (m *memoryStore) Ping(context.Context) error {
	return nil
}

type stubCart struct{}

func (stubCart) Get(context.Context, uuid.UUID) (*models.Cart, error) {
	return &models.Cart{ID: uuid.New()}, nil
}

func (stubCart) AddItem(context.Context, uuid.UUID, cart.AddItemInput) (*models.Cart, error) {
	return &models.Cart{ID: uuid.New()}, nil
}

func (stubCart) UpdateItem(context.Context, uuid.UUID, uuid.UUID, cart.UpdateItemInput) (*models.Cart, error) {
	return &models.Cart{ID: uuid.New()}, nil
}

func (stubCart) RemoveItem(context.Context, uuid.UUID, uuid.UUID) (*models.Cart, error) {
	return &models.Cart{ID: uuid.New()}, nil
}

func (stubCart) Clear(context.Context, *gorm.DB, uuid.UUID) error {
	return nil
}

type stubCheckout struct{}

func (stubCheckout) Execute(_ context.Context, input checkoutsvc.Input) (*checkoutsvc.Result, error) {
	order := &models.Order{ID: uuid.New(), CustomerID: input.CustomerID, Status: enums.OrderStatusPendingPayment}
	return &checkoutsvc.Result{Order: order, Payment: &models.Payment{ID: uuid.New(), OrderID: order.ID, Attempt: 1}}, nil
}

type stubOrders struct {
	gotOrderID *uuid.UUID
}

func (s stubOrders) List(context.Context, orders.ListParams) (*orders.ListResult, error) {
	return &orders.ListResult{Orders: []models.Order{}}, nil
}

func (s stubOrders) Get(_ context.Context, orderID, _ uuid.UUID, _ bool) (*orders.Detail, error) {
	if s.gotOrderID != nil {
		*s.gotOrderID = orderID
	}
	return &orders.Detail{Order: models.Order{ID: orderID}}, nil
}

func (s stubOrders) UpdateStatus(_ context.Context, input orders.UpdateStatusInput) (*orders.TransitionResult, error) {
	return &orders.TransitionResult{Order: &models.Order{ID: input.OrderID, Status: input.Status}, To: input.Status, Changed: true}, nil
}

type stubPayments struct{}

func (stubPayments) InitiateFinal(_ context.Context, orderID, _ uuid.UUID) (*models.Payment, error) {
	return &models.Payment{ID: uuid.New(), OrderID: orderID}, nil
}

func (stubPayments) Retry(_ context.Context, orderID, _ uuid.UUID) (*models.Payment, error) {
	return &models.Payment{ID: uuid.New(), OrderID: orderID}, nil
}

func (stubPayments) History(context.Context, uuid.UUID, uuid.UUID, bool) ([]models.Payment, error) {
	return []models.Payment{}, nil
}

type stubCancellations struct{}

func (stubCancellations) Eligibility(context.Context, uuid.UUID, uuid.UUID) (*cancellation.Eligibility, error) {
	return &cancellation.Eligibility{Eligible: true}, nil
}

func (stubCancellations) CreateRequest(_ context.Context, input cancellation.CreateRequestInput) (*models.CancellationRequest, error) {
	return &models.CancellationRequest{ID: uuid.New(), OrderID: input.OrderID, Reason: input.Reason}, nil
}

func (stubCancellations) List(context.Context, cancellation.ListFilter) (*cancellation.ListResult, error) {
	return &cancellation.ListResult{}, nil
}

func (stubCancellations) Get(_ context.Context, requestID uuid.UUID) (*models.CancellationRequest, error) {
	return &models.CancellationRequest{ID: requestID}, nil
}

func (stubCancellations) Approve(_ context.Context, input cancellation.ApproveInput) (*cancellation.ApproveResult, error) {
	return &cancellation.ApproveResult{Request: &models.CancellationRequest{ID: input.RequestID}}, nil
}

func (stubCancellations) Reject(_ context.Context, input cancellation.RejectInput) (*models.CancellationRequest, error) {
	return &models.CancellationRequest{ID: input.RequestID}, nil
}

func (stubCancellations) UpdateRefundStatus(_ context.Context, input cancellation.UpdateRefundInput) (*models.CancellationRequest, error) {
	return &models.CancellationRequest{ID: input.RequestID}, nil
}

type stubWebhooks struct{ calls int }

func (s *stubWebhooks) HandleNotification(_ context.Context, n gateway.Notification) (*gatewaywebhook.Outcome, error) {
	s.calls++
	return &gatewaywebhook.Outcome{TransactionID: n.OrderID, Result: gatewaywebhook.ResultApplied}, nil
}

type stubNotifications struct{}

func (stubNotifications) List(context.Context, notifications.ListParams) (*notifications.ListResult, error) {
	return &notifications.ListResult{}, nil
}

func (stubNotifications) MarkRead(context.Context, uuid.UUID, uuid.UUID) error {
	return nil
}

func (stubNotifications) MarkAllRead(context.Context, uuid.UUID) (int64, error) {
	return 2, nil
}

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Env: "test", Port: "0"},
		JWT: config.JWTConfig{Secret: "secret", Issuer: "orderflow-test", ExpirationMinutes: 60},
		RateLimit: config.RateLimitConfig{
			Window:            time.Minute,
			WebhookIPLimit:    2,
			CheckoutUserLimit: 1,
		},
	}
}

func testDependencies() Dependencies {
	return Dependencies{
		DB:            stubPinger{},
		Gatherer:      prometheus.NewRegistry(),
		Cart:          stubCart{},
		Checkout:      stubCheckout{},
		Orders:        stubOrders{},
		Payments:      stubPayments{},
		Cancellations: stubCancellations{},
		Webhooks:      &stubWebhooks{},
		Notifications: stubNotifications{},
	}
}

func newTestRouter(cfg *config.Config, deps Dependencies) http.Handler {
	logg := logger.New(logger.Options{ServiceName: "test-routing", Level: logger.ParseLevel("debug"), Output: io.Discard})
	return NewRouter(cfg, logg, deps)
}

func buildToken(t *testing.T, cfg *config.Config, role enums.Role, userID uuid.UUID) string {
	t.Helper()
	token, err := pkgAuth.MintAccessToken(cfg.JWT, time.Now(), pkgAuth.AccessTokenPayload{UserID: userID, Role: role})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return token
}

func serve(router http.Handler, req *http.Request) *httptest.ResponseRecorder {
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func TestHealthAndMetricsArePublic(t *testing.T) {
	router := newTestRouter(testConfig(), testDependencies())

	if resp := serve(router, httptest.NewRequest(http.MethodGet, "/health/live", nil)); resp.Code != http.StatusOK {
		t.Fatalf("expected live 200 got %d", resp.Code)
	}
	if resp := serve(router, httptest.NewRequest(http.MethodGet, "/health/ready", nil)); resp.Code != http.StatusOK {
		t.Fatalf("expected ready 200 got %d", resp.Code)
	}
	if resp := serve(router, httptest.NewRequest(http.MethodGet, "/metrics", nil)); resp.Code != http.StatusOK {
		t.Fatalf("expected metrics 200 got %d", resp.Code)
	}
}

func TestCustomerRoutesRequireJWT(t *testing.T) {
	router := newTestRouter(testConfig(), testDependencies())
	resp := serve(router, httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil))
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token got %d", resp.Code)
	}
}

func TestCustomerCanListOrders(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(cfg, testDependencies())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil)
	req.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, enums.RoleCustomer, uuid.New()))
	if resp := serve(router, req); resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
}

func TestOrderDetailResolvesPathParam(t *testing.T) {
	cfg := testConfig()
	var got uuid.UUID
	deps := testDependencies()
	deps.Orders = stubOrders{gotOrderID: &got}
	router := newTestRouter(cfg, deps)

	orderID := uuid.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders/"+orderID.String(), nil)
	req.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, enums.RoleCustomer, uuid.New()))
	if resp := serve(router, req); resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if got != orderID {
		t.Fatalf("expected order id %s got %s", orderID, got)
	}
}

func TestAdminRoutesRequireAdminRole(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(cfg, testDependencies())

	customer := httptest.NewRequest(http.MethodGet, "/api/v1/admin/cancellation-requests", nil)
	customer.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, enums.RoleCustomer, uuid.New()))
	if resp := serve(router, customer); resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for customer got %d", resp.Code)
	}

	admin := httptest.NewRequest(http.MethodGet, "/api/v1/admin/cancellation-requests", nil)
	admin.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, enums.RoleAdmin, uuid.New()))
	if resp := serve(router, admin); resp.Code != http.StatusOK {
		t.Fatalf("expected 200 for admin got %d", resp.Code)
	}
}

func TestWebhookIsPublicAndRateLimitedPerIP(t *testing.T) {
	cfg := testConfig()
	deps := testDependencies()
	store := newMemoryStore()
	deps.Redis = store
	webhooks := &stubWebhooks{}
	deps.Webhooks = webhooks
	router := newTestRouter(cfg, deps)

	body := `{"order_id":"ORD-1-1","status_code":"200","gross_amount":"1000.00","signature_key":"x","transaction_status":"settlement"}`
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/payments", strings.NewReader(body))
		req.RemoteAddr = "203.0.113.9:4000"
		if resp := serve(router, req); resp.Code != http.StatusOK {
			t.Fatalf("attempt %d expected 200 got %d", i+1, resp.Code)
		}
	}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/payments", strings.NewReader(body))
	req.RemoteAddr = "203.0.113.9:4000"
	if resp := serve(router, req); resp.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after the limit got %d", resp.Code)
	}
	if webhooks.calls != 2 {
		t.Fatalf("expected two notifications handled got %d", webhooks.calls)
	}
}

func TestCheckoutRequiresIdempotencyKey(t *testing.T) {
	cfg := testConfig()
	deps := testDependencies()
	deps.Redis = newMemoryStore()
	router := newTestRouter(cfg, deps)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", strings.NewReader(`{}`))
	req.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, enums.RoleCustomer, uuid.New()))
	if resp := serve(router, req); resp.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 without Idempotency-Key got %d", resp.Code)
	}
}

func TestCheckoutIsRateLimitedPerUser(t *testing.T) {
	cfg := testConfig()
	deps := testDependencies()
	deps.Redis = newMemoryStore()
	router := newTestRouter(cfg, deps)

	token := buildToken(t, cfg, enums.RoleCustomer, uuid.New())
	body := `{"payment_option":"full","shipping":{"recipient_name":"Sari","phone":"0812","address":"Jl. Sudirman 5","cost":0}}`

	first := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", strings.NewReader(body))
	first.Header.Set("Authorization", "Bearer "+token)
	first.Header.Set("Idempotency-Key", "checkout-1")
	if resp := serve(router, first); resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", resp.Code, resp.Body.String())
	}

	second := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", strings.NewReader(body))
	second.Header.Set("Authorization", "Bearer "+token)
	second.Header.Set("Idempotency-Key", "checkout-2")
	if resp := serve(router, second); resp.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 got %d", resp.Code)
	}
}

func TestNotificationInboxRoutes(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(cfg, testDependencies())
	token := buildToken(t, cfg, enums.RoleCustomer, uuid.New())

	list := httptest.NewRequest(http.MethodGet, "/api/v1/notifications?unread_only=true", nil)
	list.Header.Set("Authorization", "Bearer "+token)
	if resp := serve(router, list); resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}

	read := httptest.NewRequest(http.MethodPost, "/api/v1/notifications/"+uuid.NewString()+"/read", nil)
	read.Header.Set("Authorization", "Bearer "+token)
	if resp := serve(router, read); resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}

	all := httptest.NewRequest(http.MethodPost, "/api/v1/notifications/read-all", nil)
	all.Header.Set("Authorization", "Bearer "+token)
	resp := serve(router, all)
	if resp.Code != http.StatusOK || !strings.Contains(resp.Body.String(), `"updated":2`) {
		t.Fatalf("unexpected read-all response %d: %s", resp.Code, resp.Body.String())
	}
}
