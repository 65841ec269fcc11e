package service

import (
	"errors"
	"fmt"

	"github.com/neanvt/restro-pos/internal/enum"
)

// ErrInvalidTransition is wrapped by every illegal status-transition error.
var ErrInvalidTransition = errors.New("invalid order status transition")

// orderTransitions is the single source of truth for legal order status
// moves. COMPLETED and CANCELLED are terminal and have no entry.
var orderTransitions = map[string][]string{
	enum.OrderStatusDraft: {
		enum.OrderStatusTicketGenerated,
		enum.OrderStatusHeld,
		enum.OrderStatusCompleted,
		enum.OrderStatusCancelled,
	},
	enum.OrderStatusTicketGenerated: {
		enum.OrderStatusHeld,
		enum.OrderStatusCompleted,
		enum.OrderStatusCancelled,
	},
	enum.OrderStatusHeld: {
		enum.OrderStatusDraft,
		enum.OrderStatusTicketGenerated,
		enum.OrderStatusCancelled,
	},
}

// CanTransition reports whether an order may move from one status to another.
func CanTransition(from, to string) bool {
	for _, s := range orderTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// transitionError builds the caller-facing error naming the violated move.
func transitionError(from, to string) error {
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}
