package logchannel

import (
	"context"
	"log/slog"

	"github.com/lorrc/service-desk-notifier/internal/core/domain"
	"github.com/lorrc/service-desk-notifier/internal/core/ports"
)

// Channel is a secondary adapter that logs notifications instead of
// delivering them. It is used for dry runs and in environments without
// connected clients.
type Channel struct {
	logger *slog.Logger
}

var _ ports.NotificationChannel = (*Channel)(nil)

// New creates a new logging channel.
func New(logger *slog.Logger) *Channel {
	return &Channel{
		logger: logger.With("component", "log_channel"),
	}
}

// Send logs the notification. It never fails.
func (c *Channel) Send(ctx context.Context, update domain.NotificationUpdate) error {
	c.logger.InfoContext(ctx, "notification sent",
		"update_type", update.Type,
		"recipient_id", update.OwnerID,
		"parent_id", update.ParentID,
		"building_id", update.BuildingID,
		"message", update.Message,
	)
	return nil
}

// Revoke logs the revocation. It never fails.
func (c *Channel) Revoke(ctx context.Context, entityID string) error {
	c.logger.InfoContext(ctx, "notifications revoked", "entity_id", entityID)
	return nil
}
