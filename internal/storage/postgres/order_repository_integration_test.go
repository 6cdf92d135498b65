package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/commerce/internal/domain"
)

func TestOrderRepository_PostgresCreateGetListAndStatus(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	ctx := context.Background()

	now := time.Now().UTC().Round(time.Microsecond)
	order1 := sampleOrder("order-1", "user-1", now.Add(-2*time.Minute))
	order2 := sampleOrder("order-2", "user-1", now.Add(-time.Minute))

	err := store.WithinTx(ctx, domain.TxOptions{}, func(ctx context.Context, repos domain.Repositories) error {
		if err := repos.Orders().Create(ctx, order1); err != nil {
			return err
		}
		return repos.Orders().Create(ctx, order2)
	})
	if err != nil {
		t.Fatalf("create orders: %v", err)
	}

	err = store.WithinTx(ctx, domain.TxOptions{ReadOnly: true}, func(ctx context.Context, repos domain.Repositories) error {
		got, err := repos.Orders().Get(ctx, order1.ID)
		if err != nil {
			return err
		}
		if got.UserID != order1.UserID || got.Status != domain.OrderStatusPending || got.Quantity != order1.Quantity {
			t.Fatalf("unexpected order payload: %+v", got)
		}

		listed, err := repos.Orders().ListByUser(ctx, "user-1", 1)
		if err != nil {
			return err
		}
		if len(listed) != 1 || listed[0].ID != order2.ID {
			t.Fatalf("unexpected list result with limit: %+v", listed)
		}

		pending, err := repos.Orders().ListPendingBefore(ctx, now, 0)
		if err != nil {
			return err
		}
		if len(pending) != 2 || pending[0].ID != order1.ID {
			t.Fatalf("expected oldest pending first: %+v", pending)
		}

		for product, want := range map[string]bool{"product-1": true, "product-2": false} {
			got, err := repos.Orders().HasPendingForProduct(ctx, product)
			if err != nil {
				return err
			}
			if got != want {
				t.Fatalf("HasPendingForProduct(%s) = %v, want %v", product, got, want)
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("read orders: %v", err)
	}

	err = store.WithinTx(ctx, domain.TxOptions{}, func(ctx context.Context, repos domain.Repositories) error {
		if err := repos.Orders().UpdateStatus(ctx, order1.ID, domain.OrderStatusPending, domain.OrderStatusCompleted, now); err != nil {
			return err
		}
		err := repos.Orders().UpdateStatus(ctx, order1.ID, domain.OrderStatusPending, domain.OrderStatusCancelled, now)
		if !errors.Is(err, domain.ErrInvalidTransition) {
			t.Fatalf("expected ErrInvalidTransition for stale from, got %v", err)
		}
		return repos.Orders().SoftDelete(ctx, order2.ID, now)
	})
	if err != nil {
		t.Fatalf("update orders: %v", err)
	}

	err = store.WithinTx(ctx, domain.TxOptions{ReadOnly: true}, func(ctx context.Context, repos domain.Repositories) error {
		pending, err := repos.Orders().HasPendingForProduct(ctx, "product-1")
		if err != nil {
			return err
		}
		if pending {
			t.Fatalf("completed and deleted orders must not count as pending")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("check pending orders: %v", err)
	}

	err = store.WithinTx(ctx, domain.TxOptions{ReadOnly: true}, func(ctx context.Context, repos domain.Repositories) error {
		if _, err := repos.Orders().Get(ctx, order2.ID); !errors.Is(err, domain.ErrOrderNotFound) {
			t.Fatalf("soft deleted order must be hidden, got %v", err)
		}
		all, err := repos.Orders().List(ctx, 0)
		if err != nil {
			return err
		}
		if len(all) != 1 || all[0].Status != domain.OrderStatusCompleted {
			t.Fatalf("unexpected orders after updates: %+v", all)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("read after update: %v", err)
	}
}

func TestOrderRepository_PostgresErrors(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	ctx := context.Background()
	now := time.Now().UTC().Round(time.Microsecond)
	base := sampleOrder("order-errors", "user-2", now)

	err := store.WithinTx(ctx, domain.TxOptions{}, func(ctx context.Context, repos domain.Repositories) error {
		if _, err := repos.Orders().Get(ctx, "missing-order"); !errors.Is(err, domain.ErrOrderNotFound) {
			t.Fatalf("expected ErrOrderNotFound, got %v", err)
		}
		err := repos.Orders().UpdateStatus(ctx, "missing-order", domain.OrderStatusPending, domain.OrderStatusCompleted, now)
		if !errors.Is(err, domain.ErrOrderNotFound) {
			t.Fatalf("expected ErrOrderNotFound on update missing, got %v", err)
		}
		if err := repos.Orders().SoftDelete(ctx, "missing-order", now); !errors.Is(err, domain.ErrOrderNotFound) {
			t.Fatalf("expected ErrOrderNotFound on delete missing, got %v", err)
		}
		return repos.Orders().Create(ctx, base)
	})
	if err != nil {
		t.Fatalf("create base order: %v", err)
	}

	err = store.WithinTx(ctx, domain.TxOptions{}, func(ctx context.Context, repos domain.Repositories) error {
		return repos.Orders().Create(ctx, base)
	})
	if !errors.Is(err, domain.ErrAlreadyExists) || domain.IsConflict(err) {
		t.Fatalf("expected non-retryable ErrAlreadyExists on duplicate create, got %v", err)
	}

	err = store.WithinTx(ctx, domain.TxOptions{ReadOnly: true}, func(ctx context.Context, repos domain.Repositories) error {
		return repos.Orders().Create(ctx, sampleOrder("order-ro", "user-2", now))
	})
	if !errors.Is(err, domain.ErrReadOnlyTx) {
		t.Fatalf("expected ErrReadOnlyTx, got %v", err)
	}
}

func sampleOrder(id, userID string, createdAt time.Time) domain.Order {
	return domain.Order{
		ID:        id,
		UserID:    userID,
		ProductID: "product-1",
		Quantity:  2,
		Status:    domain.OrderStatusPending,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
}
