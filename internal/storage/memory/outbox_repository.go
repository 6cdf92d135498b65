package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/commerce/internal/domain"
)

const (
	outboxStatusPending = "pending"
	outboxStatusSent    = "sent"
	outboxStatusFailed  = "failed"
)

// outboxRecord хранит сообщение и служебные поля для in-memory реализации.
type outboxRecord struct {
	msg        domain.OutboxMessage
	status     string
	attemptCnt int
	createdAt  time.Time
	updatedAt  time.Time
}

// outboxRepository работает внутри области транзакции Store.
type outboxRepository struct {
	*repositories
}

// Enqueue сохраняет событие со статусом `pending` и возвращает его с идентификатором.
func (r *outboxRepository) Enqueue(_ context.Context, msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	if err := r.writable(); err != nil {
		return domain.OutboxMessage{}, err
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	r.st.outbox[msg.ID] = outboxRecord{
		msg:       msg,
		status:    outboxStatusPending,
		createdAt: now,
		updatedAt: now,
	}
	return msg, nil
}

// PullPending возвращает до limit сообщений со статусом `pending`, старые первыми.
func (r *outboxRepository) PullPending(_ context.Context, limit int) ([]domain.OutboxMessage, error) {
	if limit <= 0 {
		limit = 100
	}

	pending := r.pendingRecords()
	if len(pending) > limit {
		pending = pending[:limit]
	}

	result := make([]domain.OutboxMessage, 0, len(pending))
	for _, rec := range pending {
		result = append(result, rec.msg)
	}
	return result, nil
}

// Stats возвращает размер backlog и время самого старого pending-сообщения.
func (r *outboxRepository) Stats(context.Context) (domain.OutboxStats, error) {
	pending := r.pendingRecords()
	stats := domain.OutboxStats{PendingCount: len(pending)}
	if len(pending) > 0 {
		stats.OldestPendingAt = pending[0].createdAt
	}
	return stats, nil
}

// MarkSent обновляет статус события после успешной публикации.
func (r *outboxRepository) MarkSent(_ context.Context, id string) error {
	return r.mark(id, outboxStatusSent)
}

// MarkFailed фиксирует ошибку публикации.
func (r *outboxRepository) MarkFailed(_ context.Context, id string) error {
	return r.mark(id, outboxStatusFailed)
}

func (r *outboxRepository) mark(id, status string) error {
	if err := r.writable(); err != nil {
		return err
	}
	record, ok := r.st.outbox[id]
	if !ok {
		return domain.ErrOutboxPublish
	}
	record.status = status
	record.attemptCnt++
	record.updatedAt = time.Now().UTC()
	r.st.outbox[id] = record
	return nil
}

func (r *outboxRepository) pendingRecords() []outboxRecord {
	result := make([]outboxRecord, 0)
	for _, rec := range r.st.outbox {
		if rec.status == outboxStatusPending {
			result = append(result, rec)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].createdAt.Equal(result[j].createdAt) {
			return result[i].createdAt.Before(result[j].createdAt)
		}
		return result[i].msg.ID < result[j].msg.ID
	})
	return result
}

// lockedOutbox открывает отдельную транзакцию Store на каждый вызов.
type lockedOutbox struct {
	store *Store
}

func (o *lockedOutbox) Enqueue(ctx context.Context, msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	var saved domain.OutboxMessage
	err := o.store.WithinTx(ctx, domain.TxOptions{}, func(ctx context.Context, repos domain.Repositories) error {
		var err error
		saved, err = repos.Outbox().Enqueue(ctx, msg)
		return err
	})
	return saved, err
}

func (o *lockedOutbox) PullPending(ctx context.Context, limit int) ([]domain.OutboxMessage, error) {
	var result []domain.OutboxMessage
	err := o.store.WithinTx(ctx, domain.TxOptions{ReadOnly: true}, func(ctx context.Context, repos domain.Repositories) error {
		var err error
		result, err = repos.Outbox().PullPending(ctx, limit)
		return err
	})
	return result, err
}

func (o *lockedOutbox) Stats(ctx context.Context) (domain.OutboxStats, error) {
	var stats domain.OutboxStats
	err := o.store.WithinTx(ctx, domain.TxOptions{ReadOnly: true}, func(ctx context.Context, repos domain.Repositories) error {
		var err error
		stats, err = repos.Outbox().Stats(ctx)
		return err
	})
	return stats, err
}

func (o *lockedOutbox) MarkSent(ctx context.Context, id string) error {
	return o.store.WithinTx(ctx, domain.TxOptions{}, func(ctx context.Context, repos domain.Repositories) error {
		return repos.Outbox().MarkSent(ctx, id)
	})
}

func (o *lockedOutbox) MarkFailed(ctx context.Context, id string) error {
	return o.store.WithinTx(ctx, domain.TxOptions{}, func(ctx context.Context, repos domain.Repositories) error {
		return repos.Outbox().MarkFailed(ctx, id)
	})
}

var (
	_ domain.OutboxRepository = (*outboxRepository)(nil)
	_ domain.OutboxRepository = (*lockedOutbox)(nil)
)
