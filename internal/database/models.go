package database

import (
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

type Outlet struct {
	ID        uuid.UUID
	Name      string
	FyLabel   string
	Timezone  string
	UpiVpa    pgtype.Text
	CreatedAt time.Time
}

type User struct {
	ID             uuid.UUID
	OutletID       uuid.UUID
	FullName       string
	Email          string
	HashedPassword string
	Pin            pgtype.Text
	Role           string
	CreatedAt      time.Time
}

type MenuItem struct {
	ID            uuid.UUID
	OutletID      uuid.UUID
	Name          string
	Price         pgtype.Numeric
	TaxRate       pgtype.Numeric
	TaxApplicable bool
	IsActive      bool
	CreatedAt     time.Time
}

type Order struct {
	ID            uuid.UUID
	OutletID      uuid.UUID
	OrderNumber   int32
	OrderDate     pgtype.Date
	Status        string
	TableLabel    pgtype.Text
	CustomerName  pgtype.Text
	CustomerPhone pgtype.Text
	Notes         pgtype.Text
	Subtotal      pgtype.Numeric
	TaxTotal      pgtype.Numeric
	TotalAmount   pgtype.Numeric
	TicketID      pgtype.UUID
	CreatedBy     uuid.UUID
	CreatedAt     time.Time
	UpdatedAt     time.Time
	CompletedAt   pgtype.Timestamptz
}

type OrderItem struct {
	ID            uuid.UUID
	OrderID       uuid.UUID
	MenuItemID    uuid.UUID
	Name          string
	UnitPrice     pgtype.Numeric
	Quantity      int32
	TaxRate       pgtype.Numeric
	TaxApplicable bool
	Subtotal      pgtype.Numeric
	TaxAmount     pgtype.Numeric
	TotalAmount   pgtype.Numeric
	Notes         pgtype.Text
}

type Ticket struct {
	ID           uuid.UUID
	OutletID     uuid.UUID
	OrderID      uuid.UUID
	TicketNumber int32
	TicketDate   pgtype.Date
	Status       string
	CreatedBy    uuid.UUID
	CreatedAt    time.Time
	CompletedAt  pgtype.Timestamptz
}

type TicketItem struct {
	ID         uuid.UUID
	TicketID   uuid.UUID
	MenuItemID uuid.UUID
	Name       string
	Quantity   int32
	Note       pgtype.Text
	Status     string
}

type Invoice struct {
	ID             uuid.UUID
	OutletID       uuid.UUID
	OrderID        uuid.UUID
	InvoiceNumber  int32
	FyLabel        string
	Subtotal       pgtype.Numeric
	TaxTotal       pgtype.Numeric
	DiscountType   pgtype.Text
	DiscountValue  pgtype.Numeric
	DiscountAmount pgtype.Numeric
	TotalAmount    pgtype.Numeric
	PaymentMethod  string
	PaymentStatus  string
	PaidAmount     pgtype.Numeric
	PaidAt         pgtype.Timestamptz
	CreatedBy      uuid.UUID
	CreatedAt      time.Time
}

type InvoiceItem struct {
	ID            uuid.UUID
	InvoiceID     uuid.UUID
	MenuItemID    uuid.UUID
	Name          string
	UnitPrice     pgtype.Numeric
	Quantity      int32
	TaxRate       pgtype.Numeric
	TaxApplicable bool
	TotalAmount   pgtype.Numeric
}

type SequenceCounter struct {
	Key       string
	Value     int64
	Anchor    pgtype.Date
	UpdatedAt time.Time
}

type ActivityLog struct {
	ID         uuid.UUID
	OutletID   uuid.UUID
	UserID     uuid.UUID
	Action     string
	EntityType string
	EntityID   pgtype.UUID
	Detail     pgtype.Text
	CreatedAt  time.Time
}
