package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderflow-backend/internal/cart"
	"github.com/angelmondragon/orderflow-backend/internal/checkout/helpers"
	"github.com/angelmondragon/orderflow-backend/internal/orders"
	"github.com/angelmondragon/orderflow-backend/internal/stock"
	"github.com/angelmondragon/orderflow-backend/pkg/db/models"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderflow-backend/pkg/errors"
	"github.com/angelmondragon/orderflow-backend/pkg/logger"
	"github.com/angelmondragon/orderflow-backend/pkg/outbox"
	"github.com/angelmondragon/orderflow-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type stockReserver interface {
	ReserveForOrder(ctx context.Context, tx *gorm.DB, items []stock.Item) stock.BulkResult
}

type paymentInitiator interface {
	Initiate(ctx context.Context, tx *gorm.DB, order *models.Order, option enums.PaymentOption, actor *outbox.ActorRef) (*models.Payment, error)
}

type cartClearer interface {
	Clear(ctx context.Context, tx *gorm.DB, cartID uuid.UUID) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Discounter prices promotions for a cart. Implementations must not write.
type Discounter interface {
	Discount(ctx context.Context, customerID uuid.UUID, subtotal int64) (int64, error)
}

// Service turns a customer's cart into an order with an open payment attempt.
type Service interface {
	Execute(ctx context.Context, input Input) (*Result, error)
}

// Input captures what the customer submits at checkout.
type Input struct {
	CustomerID    uuid.UUID
	PaymentOption enums.PaymentOption
	Shipping      helpers.Shipping
}

// Result is the created order and its first payment attempt.
type Result struct {
	Order   *models.Order
	Payment *models.Payment
}

// ServiceParams wires the checkout orchestrator. Discounter is optional.
type ServiceParams struct {
	DB         txRunner
	CartRepo   cart.Repository
	Cart       cartClearer
	OrdersRepo orders.Repository
	Stock      stockReserver
	Payments   paymentInitiator
	Outbox     outboxPublisher
	Discounter Discounter
	Logger     *logger.Logger
}

type service struct {
	tx         txRunner
	cartRepo   cart.Repository
	cart       cartClearer
	ordersRepo orders.Repository
	stock      stockReserver
	payments   paymentInitiator
	outbox     outboxPublisher
	discounter Discounter
	logg       *logger.Logger
	now        func() time.Time
}

// NewService builds the checkout service.
func NewService(params ServiceParams) (Service, error) {
	if params.DB == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if params.CartRepo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if params.Cart == nil {
		return nil, fmt.Errorf("cart service required")
	}
	if params.OrdersRepo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Stock == nil {
		return nil, fmt.Errorf("stock ledger required")
	}
	if params.Payments == nil {
		return nil, fmt.Errorf("payments service required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		tx:         params.DB,
		cartRepo:   params.CartRepo,
		cart:       params.Cart,
		ordersRepo: params.OrdersRepo,
		stock:      params.Stock,
		payments:   params.Payments,
		outbox:     params.Outbox,
		discounter: params.Discounter,
		logg:       params.Logger,
		now:        time.Now,
	}, nil
}

// Execute runs checkout as one transaction: any failure, including a stock
// shortfall or a gateway error, leaves no order, no reservation and the cart
// untouched.
func (s *service) Execute(ctx context.Context, input Input) (*Result, error) {
	if input.CustomerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer id required")
	}
	if !input.PaymentOption.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment_option must be dp or full")
	}
	shipping, err := helpers.ValidateShipping(input.Shipping)
	if err != nil {
		return nil, err
	}

	var result *Result
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		record, err := s.cartRepo.WithTx(tx).FindByCustomerForUpdate(ctx, input.CustomerID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeEmptyCart, "cart is empty")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
		}
		if len(record.Items) == 0 {
			return pkgerrors.New(pkgerrors.CodeEmptyCart, "cart is empty")
		}

		lines, subtotal, err := helpers.PriceCartItems(record.Items)
		if err != nil {
			return err
		}
		discount, err := s.discount(ctx, input.CustomerID, subtotal)
		if err != nil {
			return err
		}
		total := subtotal - discount + shipping.Cost
		if total <= 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "order total must be positive").
				WithDetails(map[string]any{"subtotal": subtotal, "discount": discount, "shippingCost": shipping.Cost})
		}

		order := buildOrder(input, shipping, lines, subtotal, discount, total, s.now())
		ordersRepo := s.ordersRepo.WithTx(tx)
		if err := ordersRepo.Create(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
		}

		reserved := s.stock.ReserveForOrder(ctx, tx, reservationItems(lines))
		if !reserved.Complete() {
			return reservationError(reserved)
		}
		if reserved.Total > 0 {
			if err := ordersRepo.Update(ctx, order.ID, map[string]any{"stock_deducted": true}); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "flag stock deduction")
			}
			order.StockDeducted = true
		}

		actor := outbox.UserActor(input.CustomerID, enums.RoleCustomer)
		payment, err := s.payments.Initiate(ctx, tx, order, input.PaymentOption, actor)
		if err != nil {
			return err
		}

		if err := s.cart.Clear(ctx, tx, record.ID); err != nil {
			return err
		}

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         actor,
			OccurredAt:    s.now().UTC(),
			Data: payloads.OrderCreatedEvent{
				OrderID:       order.ID,
				OrderNumber:   order.OrderNumber,
				CustomerID:    order.CustomerID,
				TotalAmount:   order.TotalAmount,
				PaymentOption: string(order.PaymentOption),
				ItemCount:     len(order.Items),
			},
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit order created")
		}

		result = &Result{Order: order, Payment: payment}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithFields(s.logg.WithOrderID(ctx, result.Order.ID.String()), map[string]any{
		"order_number": result.Order.OrderNumber,
		"total_amount": result.Order.TotalAmount,
		"payment_type": string(result.Payment.PaymentType),
	})
	s.logg.Info(logCtx, "checkout completed")
	return result, nil
}

func (s *service) discount(ctx context.Context, customerID uuid.UUID, subtotal int64) (int64, error) {
	if s.discounter == nil {
		return 0, nil
	}
	amount, err := s.discounter.Discount(ctx, customerID, subtotal)
	if err != nil {
		return 0, pkgerrors.Passthrough(err, pkgerrors.CodeDependency, "compute discount")
	}
	return helpers.ClampDiscount(amount, subtotal), nil
}

func buildOrder(input Input, shipping helpers.Shipping, lines []helpers.PricedLine, subtotal, discount, total int64, now time.Time) *models.Order {
	items := make([]models.OrderItem, 0, len(lines))
	for _, line := range lines {
		items = append(items, models.OrderItem{
			ProductID:   line.ProductID,
			VariantID:   line.VariantID,
			ProductName: line.ProductName,
			VariantName: line.VariantName,
			Quantity:    line.Quantity,
			UnitPrice:   line.UnitPrice,
			SubTotal:    line.SubTotal,
			Notes:       line.Notes,
		})
	}
	return &models.Order{
		OrderNumber:     orders.NewOrderNumber(now),
		CustomerID:      input.CustomerID,
		Status:          enums.OrderStatusPendingPayment,
		PaymentStatus:   enums.OrderPaymentUnpaid,
		PaymentOption:   input.PaymentOption,
		Subtotal:        subtotal,
		DiscountAmount:  discount,
		ShippingCost:    shipping.Cost,
		TotalAmount:     total,
		RecipientName:   shipping.RecipientName,
		Phone:           shipping.Phone,
		ShippingAddress: shipping.Address,
		Courier:         shipping.Courier,
		CourierService:  shipping.CourierService,
		Notes:           shipping.Notes,
		Items:           items,
	}
}

func reservationItems(lines []helpers.PricedLine) []stock.Item {
	items := make([]stock.Item, 0, len(lines))
	for _, line := range lines {
		items = append(items, stock.Item{VariantID: line.VariantID, Quantity: line.Quantity})
	}
	return items
}

// reservationError surfaces the first stock shortfall so the caller sees
// INSUFFICIENT_STOCK with the offending variant.
func reservationError(result stock.BulkResult) error {
	for _, err := range result.Errors() {
		if pkgerrors.IsCode(err, pkgerrors.CodeInsufficientStock) {
			return err
		}
	}
	return pkgerrors.Passthrough(result.Err, pkgerrors.CodeDependency, "reserve stock")
}
