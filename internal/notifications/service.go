package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"edistrict/certificate-portal/portal-backend/internal/applications"
	"edistrict/certificate-portal/portal-backend/internal/notifications/websocket"
	"edistrict/certificate-portal/portal-backend/pkg/workflows"
)

// Service dispatches status-change notifications. Delivery is best-effort by
// contract: every failure is logged and swallowed, never surfaced to the
// workflow engine.
type Service struct {
	db     *gorm.DB
	email  EmailChannel
	sms    SMSChannel
	ws     *websocket.Manager
	logger *zap.Logger
}

func NewService(db *gorm.DB, email EmailChannel, sms SMSChannel, ws *websocket.Manager, logger *zap.Logger) (*Service, error) {
	if err := db.AutoMigrate(&StatusNotification{}, &DeliveryLog{}); err != nil {
		return nil, fmt.Errorf("failed to migrate notification tables: %w", err)
	}
	return &Service{
		db:     db,
		email:  email,
		sms:    sms,
		ws:     ws,
		logger: logger,
	}, nil
}

// NotifyStatusChange implements applications.Notifier.
func (s *Service) NotifyStatusChange(ctx context.Context, change applications.StatusChange) {
	subject, body := composeMessage(change)

	payload, _ := json.Marshal(change)
	notification := &StatusNotification{
		ID:              uuid.New(),
		ApplicationID:   change.ApplicationID,
		ApplicationCode: change.ApplicationCode,
		NewStatus:       string(change.NewStatus),
		RecipientEmail:  change.RecipientEmail,
		RecipientPhone:  change.RecipientPhone,
		Subject:         subject,
		Body:            body,
		Payload:         payload,
		Status:          StatusPending,
		CreatedAt:       time.Now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(notification).Error; err != nil {
		s.logger.Warn("failed to record notification", zap.Error(err),
			zap.String("application_code", change.ApplicationCode))
	}

	sent := 0
	if s.deliver(ctx, notification.ID, ChannelEmail, func() error {
		return s.email.Send(ctx, change.RecipientEmail, subject, body)
	}) {
		sent++
	}
	if s.deliver(ctx, notification.ID, ChannelSMS, func() error {
		return s.sms.Send(ctx, change.RecipientPhone, body)
	}) {
		sent++
	}

	if s.ws != nil {
		s.ws.Broadcast(StatusEvent{
			ApplicationID:   change.ApplicationID,
			ApplicationCode: change.ApplicationCode,
			NewStatus:       string(change.NewStatus),
			OccurredAt:      time.Now().UTC(),
		})
	}

	status := StatusSent
	if sent == 0 {
		status = StatusFailed
	}
	if err := s.db.WithContext(ctx).Model(notification).Update("status", status).Error; err != nil {
		s.logger.Warn("failed to update notification status", zap.Error(err))
	}
}

// deliver runs one channel attempt and logs the outcome. Returns whether
// delivery succeeded.
func (s *Service) deliver(ctx context.Context, notificationID uuid.UUID, channel string, send func() error) bool {
	logEntry := &DeliveryLog{
		ID:             uuid.New(),
		NotificationID: notificationID,
		Channel:        channel,
		Status:         StatusSent,
		AttemptedAt:    time.Now().UTC(),
	}

	err := send()
	if err != nil {
		msg := err.Error()
		logEntry.Status = StatusFailed
		logEntry.ErrorMessage = &msg
		s.logger.Warn("notification delivery failed",
			zap.String("channel", channel),
			zap.Error(err))
	}

	if dbErr := s.db.WithContext(ctx).Create(logEntry).Error; dbErr != nil {
		s.logger.Warn("failed to record delivery attempt", zap.Error(dbErr))
	}
	return err == nil
}

func composeMessage(change applications.StatusChange) (subject, body string) {
	subject = fmt.Sprintf("Application %s: %s", change.ApplicationCode, statusLabel(change.NewStatus))

	switch change.NewStatus {
	case workflows.StatusApproved:
		body = fmt.Sprintf("Dear %s, your %s certificate application %s has been approved. Your certificate is ready for download.",
			change.FullName, change.CertificateType, change.ApplicationCode)
	case workflows.StatusRejected:
		body = fmt.Sprintf("Dear %s, your application %s has been rejected. Reason: %s",
			change.FullName, change.ApplicationCode, change.Reason)
	case workflows.StatusAdditionalInfoNeeded:
		body = fmt.Sprintf("Dear %s, additional information is needed for application %s: %s",
			change.FullName, change.ApplicationCode, change.Reason)
	default:
		body = fmt.Sprintf("Dear %s, your application %s is now at stage: %s.",
			change.FullName, change.ApplicationCode, statusLabel(change.NewStatus))
	}
	return subject, body
}

func statusLabel(st workflows.Status) string {
	switch st {
	case workflows.StatusPending:
		return "Submitted"
	case workflows.StatusDocumentVerification:
		return "Document Verification"
	case workflows.StatusVerificationLevel1:
		return "Verification (Level 1)"
	case workflows.StatusVerificationLevel2:
		return "Verification (Level 2)"
	case workflows.StatusVerificationLevel3:
		return "Verification (Level 3)"
	case workflows.StatusStaffReview:
		return "Staff Review"
	case workflows.StatusAwaitingSDO:
		return "Awaiting SDO Decision"
	case workflows.StatusApproved:
		return "Approved"
	case workflows.StatusRejected:
		return "Rejected"
	case workflows.StatusAdditionalInfoNeeded:
		return "Additional Information Needed"
	}
	return string(st)
}
