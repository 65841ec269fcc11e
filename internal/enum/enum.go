package enum

// ── Group A: State machines (CHECK constrained in DB) ──

const (
	OrderStatusDraft           = "DRAFT"
	OrderStatusTicketGenerated = "TICKET_GENERATED"
	OrderStatusHeld            = "HELD"
	OrderStatusCompleted       = "COMPLETED"
	OrderStatusCancelled       = "CANCELLED"
)

const (
	TicketStatusPending    = "PENDING"
	TicketStatusInProgress = "IN_PROGRESS"
	TicketStatusCompleted  = "COMPLETED"
)

const (
	TicketItemStatusPending   = "PENDING"
	TicketItemStatusPreparing = "PREPARING"
	TicketItemStatusReady     = "READY"
)

const (
	PaymentStatusPaid = "PAID"
)

// ── Group C: Borderline (CHECK constrained in DB) ──

const (
	UserRoleOwner   = "OWNER"
	UserRoleManager = "MANAGER"
	UserRoleCashier = "CASHIER"
	UserRoleKitchen = "KITCHEN"
)

const (
	PaymentMethodCash = "CASH"
	PaymentMethodCard = "CARD"
	PaymentMethodUPI  = "UPI"
)

const (
	DiscountTypePercentage = "percentage"
	DiscountTypeFixed      = "fixed"
)
