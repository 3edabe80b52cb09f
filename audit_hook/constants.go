package audithook

// Action constants for audit events.
const (
	// Account actions
	ActionUserRegistered = "user.registered"
	ActionFundsAdded     = "funds.added"
	ActionFundsWithdrawn = "funds.withdrawn"

	// Inventory actions
	ActionStoreCreated = "store.created"
	ActionBookAdded    = "book.added"

	// Order actions
	ActionOrderCreated   = "order.created"
	ActionOrderPaid      = "order.paid"
	ActionOrderShipped   = "order.shipped"
	ActionOrderDelivered = "order.delivered"
	ActionOrderCancelled = "order.cancelled"
	ActionOrderTimedOut  = "order.timed_out"
	ActionOrdersExpired  = "orders.expired"

	// Consistency actions
	ActionCompensation  = "consistency.compensation"
	ActionInconsistency = "consistency.gap"
)

// Resource constants for audit events.
const (
	ResourceUser  = "user"
	ResourceStore = "store"
	ResourceBook  = "book"
	ResourceOrder = "order"
)

// Category constants for audit events.
const (
	CategoryAccount     = "account"
	CategoryInventory   = "inventory"
	CategoryOrder       = "order"
	CategoryPayment     = "payment"
	CategoryConsistency = "consistency"
)

// Severity levels for audit events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Outcome values for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomePartial = "partial"
)
