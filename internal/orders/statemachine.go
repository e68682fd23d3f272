package orders

import (
	"fmt"

	"github.com/rfigueroa/shopworks-backend/pkg/enums"
	pkgerrors "github.com/rfigueroa/shopworks-backend/pkg/errors"
)

// statusEdges is the full order status transition table. Absence means the
// edge is invalid; DELIVERED and CANCELLED have no outgoing edges.
var statusEdges = map[enums.OrderStatus][]enums.OrderStatus{
	enums.OrderStatusPending:   {enums.OrderStatusConfirmed, enums.OrderStatusCancelled},
	enums.OrderStatusConfirmed: {enums.OrderStatusShipped, enums.OrderStatusCancelled},
	enums.OrderStatusShipped:   {enums.OrderStatusDelivered},
	enums.OrderStatusDelivered: {},
	enums.OrderStatusCancelled: {},
}

// paymentEdges is the payment status transition table. The payment axis is
// independent of order status; refunds are only reachable from paid.
var paymentEdges = map[enums.PaymentStatus][]enums.PaymentStatus{
	enums.PaymentStatusPending:  {enums.PaymentStatusPaid, enums.PaymentStatusFailed},
	enums.PaymentStatusPaid:     {enums.PaymentStatusRefunded},
	enums.PaymentStatusFailed:   {},
	enums.PaymentStatusRefunded: {},
}

// CanTransitionStatus reports whether the status edge exists.
func CanTransitionStatus(current, requested enums.OrderStatus) bool {
	for _, allowed := range statusEdges[current] {
		if allowed == requested {
			return true
		}
	}
	return false
}

// CanTransitionPayment reports whether the payment edge exists.
func CanTransitionPayment(current, requested enums.PaymentStatus) bool {
	for _, allowed := range paymentEdges[current] {
		if allowed == requested {
			return true
		}
	}
	return false
}

// checkStatusTransition validates the edge and builds the rejection error
// naming both endpoints.
func checkStatusTransition(current, requested enums.OrderStatus) error {
	if !requested.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown order status %q", requested))
	}
	if !CanTransitionStatus(current, requested) {
		return pkgerrors.New(pkgerrors.CodeInvalidTransition,
			fmt.Sprintf("cannot transition order from %s to %s", current, requested)).
			WithDetails(pkgerrors.TransitionRejection{
				Current:   string(current),
				Requested: string(requested),
			})
	}
	return nil
}

func checkPaymentTransition(current, requested enums.PaymentStatus) error {
	if !requested.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown payment status %q", requested))
	}
	if !CanTransitionPayment(current, requested) {
		return pkgerrors.New(pkgerrors.CodeInvalidTransition,
			fmt.Sprintf("cannot transition payment from %s to %s", current, requested)).
			WithDetails(pkgerrors.TransitionRejection{
				Current:   string(current),
				Requested: string(requested),
			})
	}
	return nil
}
