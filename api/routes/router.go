package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/orderflow-backend/api/controllers"
	cartcontrollers "github.com/angelmondragon/orderflow-backend/api/controllers/cart"
	ordercontrollers "github.com/angelmondragon/orderflow-backend/api/controllers/orders"
	webhookcontrollers "github.com/angelmondragon/orderflow-backend/api/controllers/webhooks"
	"github.com/angelmondragon/orderflow-backend/api/middleware"
	"github.com/angelmondragon/orderflow-backend/internal/cart"
	"github.com/angelmondragon/orderflow-backend/internal/notifications"
	"github.com/angelmondragon/orderflow-backend/pkg/config"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
	"github.com/angelmondragon/orderflow-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/orderflow-backend/pkg/redis"
)

// Store is the redis surface the HTTP layer needs for idempotency replay and
// rate limiting.
type Store interface {
	pkgredis.IdempotencyStore
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
	Ping(ctx context.Context) error
}

// Dependencies collects the services mounted on the router.
type Dependencies struct {
	DB       controllers.Pinger
	Redis    Store
	Gatherer prometheus.Gatherer

	Cart          cart.Service
	Checkout      controllers.CheckoutExecutor
	Orders        OrderService
	Payments      PaymentService
	Cancellations CancellationService
	Webhooks      webhookcontrollers.NotificationHandler
	Notifications notifications.Service
}

// OrderService is what the customer and admin order routes need.
type OrderService interface {
	ordercontrollers.OrderReader
	controllers.AdminOrderService
}

type PaymentService interface {
	ordercontrollers.PaymentStarter
	controllers.PaymentHistoryReader
}

type CancellationService interface {
	ordercontrollers.CancellationRequester
	controllers.CancellationReviewer
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	webhookPolicy := middleware.NewRateLimitPolicy("webhook", cfg.RateLimit.Window, cfg.RateLimit.WebhookIPLimit, 0)
	checkoutPolicy := middleware.NewRateLimitPolicy("checkout", cfg.RateLimit.Window, 0, cfg.RateLimit.CheckoutUserLimit)

	readiness := map[string]controllers.Pinger{"db": deps.DB}
	if deps.Redis != nil {
		readiness["redis"] = deps.Redis
	}
	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, readiness))
	})

	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.With(middleware.RateLimit(webhookPolicy, deps.Redis, logg)).
			Post("/payments", webhookcontrollers.PaymentNotification(deps.Webhooks, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(deps.Redis, logg))

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", cartcontrollers.CartFetch(deps.Cart, logg))
			r.Post("/items", cartcontrollers.CartAddItem(deps.Cart, logg))
			r.Patch("/items/{itemId}", cartcontrollers.CartUpdateItem(deps.Cart, logg))
			r.Delete("/items/{itemId}", cartcontrollers.CartRemoveItem(deps.Cart, logg))
		})

		r.With(middleware.RateLimit(checkoutPolicy, deps.Redis, logg)).
			Post("/checkout", controllers.Checkout(deps.Checkout, logg))

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", controllers.ListNotifications(deps.Notifications, logg))
			r.Post("/read-all", controllers.MarkAllNotificationsRead(deps.Notifications, logg))
			r.Post("/{notificationId}/read", controllers.MarkNotificationRead(deps.Notifications, logg))
		})

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", ordercontrollers.List(deps.Orders, logg))
			r.Route("/{orderId}", func(r chi.Router) {
				r.Get("/", ordercontrollers.Detail(deps.Orders, logg))
				r.Get("/cancellation-eligibility", ordercontrollers.CancellationEligibility(deps.Cancellations, logg))
				r.Post("/cancel", ordercontrollers.RequestCancellation(deps.Cancellations, logg))
				r.Get("/payments", ordercontrollers.PaymentHistory(deps.Payments, logg))
				r.Post("/payments/final", ordercontrollers.InitiateFinalPayment(deps.Payments, logg))
				r.Post("/payments/retry", ordercontrollers.RetryPayment(deps.Payments, logg))
			})
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.RequireRole(enums.RoleAdmin, logg))

			r.Route("/orders/{orderId}", func(r chi.Router) {
				r.Get("/", controllers.AdminOrderDetail(deps.Orders, logg))
				r.Get("/payments", controllers.AdminOrderPayments(deps.Payments, logg))
				r.Post("/status", controllers.AdminOrderStatus(deps.Orders, logg))
			})

			r.Route("/cancellation-requests", func(r chi.Router) {
				r.Get("/", controllers.AdminCancellationList(deps.Cancellations, logg))
				r.Route("/{requestId}", func(r chi.Router) {
					r.Get("/", controllers.AdminCancellationDetail(deps.Cancellations, logg))
					r.Post("/approve", controllers.AdminCancellationApprove(deps.Cancellations, logg))
					r.Post("/reject", controllers.AdminCancellationReject(deps.Cancellations, logg))
					r.Post("/refund", controllers.AdminCancellationRefund(deps.Cancellations, logg))
				})
			})
		})
	})

	return r
}
