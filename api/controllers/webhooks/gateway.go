package webhooks

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/angelmondragon/orderflow-backend/api/responses"
	"github.com/angelmondragon/orderflow-backend/internal/gateway"
	gatewaywebhook "github.com/angelmondragon/orderflow-backend/internal/webhooks/gateway"
	pkgerrors "github.com/angelmondragon/orderflow-backend/pkg/errors"
	"github.com/angelmondragon/orderflow-backend/pkg/logger"
)

const maxNotificationBytes = 64 << 10

// NotificationHandler applies a verified gateway notification.
type NotificationHandler interface {
	HandleNotification(ctx context.Context, n gateway.Notification) (*gatewaywebhook.Outcome, error)
}

// PaymentNotification receives gateway status callbacks. A notification that
// cannot be verified is answered with 400; anything that passes verification
// is acknowledged with 200 whatever the internal outcome, so the gateway
// only redelivers on transport failures.
func PaymentNotification(svc NotificationHandler, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}

		var n gateway.Notification
		decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxNotificationBytes))
		if err := decoder.Decode(&n); err != nil {
			if logg != nil {
				logg.Warn(logg.WithField(ctx, "error", err.Error()), "gateway notification body unreadable")
			}
			responses.WriteWebhookError(w, pkgerrors.Wrap(pkgerrors.CodeInvalidSignature, err, "decode notification"))
			return
		}

		if _, err := svc.HandleNotification(ctx, n); err != nil {
			if pkgerrors.IsCode(err, pkgerrors.CodeInvalidSignature) {
				responses.WriteWebhookError(w, err)
				return
			}
			if logg != nil {
				logg.Error(logg.WithField(ctx, "transaction_id", n.OrderID), "gateway notification acknowledged after failure", err)
			}
		}
		responses.WriteWebhookOK(w)
	}
}
