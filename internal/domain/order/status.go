package order

// Status is the fulfillment state of an order.
type Status string

const (
	StatusPending    Status = "pending"
	StatusConfirmed  Status = "confirmed"
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
)

// fulfillment is the forward sequence; position defines "later".
var fulfillment = []Status{
	StatusPending,
	StatusConfirmed,
	StatusProcessing,
	StatusShipped,
	StatusDelivered,
}

func (s Status) rank() int {
	for i, st := range fulfillment {
		if st == s {
			return i
		}
	}
	return -1
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return s == StatusCancelled || s.rank() >= 0
}

// Terminal reports whether no transition may leave s.
func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// CanTransition reports whether moving from s to next is legal: any strictly
// later fulfillment state, or cancelled from any non-terminal state.
func (s Status) CanTransition(next Status) bool {
	if s.Terminal() || !next.Valid() {
		return false
	}
	if next == StatusCancelled {
		return true
	}
	return next.rank() > s.rank()
}
