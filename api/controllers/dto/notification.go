package dto

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/orderflow-backend/internal/notifications"
	"github.com/angelmondragon/orderflow-backend/pkg/db/models"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
)

type Notification struct {
	ID        uuid.UUID              `json:"id"`
	OrderID   *uuid.UUID             `json:"order_id,omitempty"`
	Type      enums.NotificationType `json:"type"`
	Title     string                 `json:"title"`
	Message   string                 `json:"message"`
	Link      *string                `json:"link,omitempty"`
	ReadAt    *time.Time             `json:"read_at,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}

type NotificationPage struct {
	Notifications []Notification `json:"notifications"`
	UnreadCount   int64          `json:"unread_count"`
	NextCursor    string         `json:"next_cursor,omitempty"`
}

func FromNotification(n models.Notification) Notification {
	return Notification{
		ID:        n.ID,
		OrderID:   n.OrderID,
		Type:      n.Type,
		Title:     n.Title,
		Message:   n.Message,
		Link:      n.Link,
		ReadAt:    n.ReadAt,
		CreatedAt: n.CreatedAt,
	}
}

func FromNotificationPage(page *notifications.ListResult) NotificationPage {
	out := NotificationPage{Notifications: make([]Notification, 0)}
	if page == nil {
		return out
	}
	for _, n := range page.Items {
		out.Notifications = append(out.Notifications, FromNotification(n))
	}
	out.UnreadCount = page.UnreadCount
	out.NextCursor = page.Cursor
	return out
}
