package services

import (
	"context"

	"go.uber.org/zap"

	"ballouchi/internal/models"
)

type EventPublisher interface {
	Publish(ctx context.Context, ev models.UserEvent) error
}

type AdminNotifier interface {
	NotifyAdmins(ctx context.Context, text string) error
}

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, models.UserEvent) error { return nil }

type noopNotifier struct{}

func (noopNotifier) NotifyAdmins(context.Context, string) error { return nil }

// publish and notify run after the record is committed. Their failures are
// logged and never undo the operation.
func (b *base) publish(ctx context.Context, typ models.EventType, u *models.User) {
	ev := models.UserEvent{
		Type:        typ,
		Email:       u.Email,
		UID:         u.UID,
		AccountType: u.AccountType,
		OccurredAt:  b.now(),
	}
	cctx, cancel := b.bounded(context.WithoutCancel(ctx))
	defer cancel()
	if err := b.deps.Events.Publish(cctx, ev); err != nil {
		b.log(ctx).Warn("publish event failed", zap.String("type", string(typ)), zap.Error(err))
	}
}

func (b *base) notify(ctx context.Context, text string) {
	cctx, cancel := b.bounded(context.WithoutCancel(ctx))
	defer cancel()
	if err := b.deps.Admins.NotifyAdmins(cctx, text); err != nil {
		b.log(ctx).Warn("admin notification failed", zap.Error(err))
	}
}
