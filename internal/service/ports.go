package service

import (
	"context"
	"time"

	"commerce-service/internal/producer"
)

// Notifier отправка уведомлений клиенту; рендеринг шаблонов на стороне получателя.
type Notifier interface {
	Send(ctx context.Context, key string, msg producer.Notification) error
}

// Locker короткая распределённая блокировка для дедупликации одновременных колбэков.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}
