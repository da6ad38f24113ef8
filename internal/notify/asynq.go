// Package notify is the outbound notification gateway: fire-and-forget
// pushes to users through the chat bot, delivered via a task queue so a
// slow bot never touches signaling latency.
package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog/log"

	"github.com/meetrix/signaling/internal/core"
	"github.com/meetrix/signaling/internal/domain"
)

// TaskNotifyUser is consumed by the bot worker.
const TaskNotifyUser = "notify:user"

// UserNotification is the task payload shape shared with the bot worker.
type UserNotification struct {
	UserID  string              `json:"user_id"`
	Text    string              `json:"text"`
	Buttons []core.NotifyButton `json:"buttons,omitempty"`
}

// Queue implements core.Notifier over asynq.
type Queue struct {
	client *asynq.Client
}

func NewQueue(redisAddr string) *Queue {
	return &Queue{client: asynq.NewClient(asynq.RedisClientOpt{Addr: redisAddr})}
}

func (q *Queue) Close() error { return q.client.Close() }

// NotifyUser enqueues the push. MaxRetry is zero: notification failures
// are logged by the worker, never retried.
func (q *Queue) NotifyUser(ctx context.Context, userID domain.UserID, text string, buttons []core.NotifyButton) error {
	payload, err := json.Marshal(UserNotification{
		UserID:  string(userID),
		Text:    text,
		Buttons: buttons,
	})
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	task := asynq.NewTask(TaskNotifyUser, payload, asynq.MaxRetry(0))
	if _, err := q.client.EnqueueContext(ctx, task); err != nil {
		return fmt.Errorf("enqueue notification: %w", err)
	}
	return nil
}

// Noop is used when no queue is configured; it logs and discards.
type Noop struct{}

func (Noop) NotifyUser(_ context.Context, userID domain.UserID, text string, _ []core.NotifyButton) error {
	log.Debug().Str("module", "notify").Str("user", string(userID)).Str("text", text).Msg("notification discarded (no queue configured)")
	return nil
}
