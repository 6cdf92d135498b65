package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsConflict(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{
			name: "conflict error",
			err:  ErrConflict,
			want: true,
		},
		{
			name: "wrapped conflict error",
			err:  fmt.Errorf("commit: %w", ErrConflict),
			want: true,
		},
		{
			name: "joined conflict error",
			err:  errors.Join(ErrConflict, errors.New("could not serialize access")),
			want: true,
		},
		{
			name: "other error",
			err:  ErrInsufficientStock,
			want: false,
		},
		{
			name: "nil error",
			err:  nil,
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsConflict(tt.err); got != tt.want {
				t.Errorf("IsConflict() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNotFoundFamily(t *testing.T) {
	for _, err := range []error{ErrProductNotFound, ErrCartNotFound, ErrCartItemNotFound, ErrOrderNotFound} {
		if !IsNotFound(err) {
			t.Errorf("expected %v to be NotFound", err)
		}
		if !errors.Is(fmt.Errorf("load: %w", err), ErrNotFound) {
			t.Errorf("expected wrapped %v to be NotFound", err)
		}
	}

	if IsNotFound(ErrEmptyCart) {
		t.Error("ErrEmptyCart must not be NotFound")
	}
	if errors.Is(ErrOrderNotFound, ErrProductNotFound) {
		t.Error("order and product not found must stay distinguishable")
	}
}
