package notifications

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Channel names for delivery logs.
const (
	ChannelEmail     = "email"
	ChannelSMS       = "sms"
	ChannelWebSocket = "websocket"
)

// Delivery statuses.
const (
	StatusPending = "pending"
	StatusSent    = "sent"
	StatusFailed  = "failed"
)

// StatusNotification records one status-change notification and its overall
// outcome.
type StatusNotification struct {
	ID              uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	ApplicationID   uuid.UUID      `gorm:"type:uuid;index" json:"application_id"`
	ApplicationCode string         `json:"application_code"`
	NewStatus       string         `json:"new_status"`
	RecipientEmail  string         `json:"recipient_email"`
	RecipientPhone  string         `json:"recipient_phone"`
	Subject         string         `json:"subject"`
	Body            string         `json:"body"`
	Payload         datatypes.JSON `json:"payload"`
	Status          string         `json:"status"`
	CreatedAt       time.Time      `json:"created_at"`
}

// DeliveryLog records one delivery attempt on one channel.
type DeliveryLog struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	NotificationID uuid.UUID `gorm:"type:uuid;index" json:"notification_id"`
	Channel        string    `json:"channel"`
	Status         string    `json:"status"`
	ErrorMessage   *string   `json:"error_message,omitempty"`
	AttemptedAt    time.Time `json:"attempted_at"`
}

// StatusEvent is the websocket payload broadcast to connected dashboards.
type StatusEvent struct {
	ApplicationID   uuid.UUID `json:"application_id"`
	ApplicationCode string    `json:"application_code"`
	NewStatus       string    `json:"new_status"`
	OccurredAt      time.Time `json:"occurred_at"`
}
