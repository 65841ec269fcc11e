package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const userColumns = `id, outlet_id, full_name, email, hashed_password, pin, role, created_at`

func scanUser(row interface{ Scan(dest ...any) error }) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.OutletID, &u.FullName, &u.Email,
		&u.HashedPassword, &u.Pin, &u.Role, &u.CreatedAt)
	return u, err
}

const getUserByEmail = `SELECT ` + userColumns + ` FROM users WHERE email = $1`

func (q *Queries) GetUserByEmail(ctx context.Context, email string) (User, error) {
	return scanUser(q.db.QueryRow(ctx, getUserByEmail, email))
}

type GetUserByOutletAndPinParams struct {
	OutletID uuid.UUID
	Pin      pgtype.Text
}

const getUserByOutletAndPin = `SELECT ` + userColumns + ` FROM users WHERE outlet_id = $1 AND pin = $2`

func (q *Queries) GetUserByOutletAndPin(ctx context.Context, arg GetUserByOutletAndPinParams) (User, error) {
	return scanUser(q.db.QueryRow(ctx, getUserByOutletAndPin, arg.OutletID, arg.Pin))
}

const getUserByID = `SELECT ` + userColumns + ` FROM users WHERE id = $1`

func (q *Queries) GetUserByID(ctx context.Context, id uuid.UUID) (User, error) {
	return scanUser(q.db.QueryRow(ctx, getUserByID, id))
}
