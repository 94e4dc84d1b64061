package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrCustomerNotFound is returned when an authenticated user has no customer profile.
var ErrCustomerNotFound = fmt.Errorf("customer profile not found")

// ErrUserNotFound is returned when no user has the given id.
var ErrUserNotFound = fmt.Errorf("user not found")

// Customer is the bidding identity of a user.
type Customer struct {
	ID          uuid.UUID
	UserID      uuid.UUID
	DisplayName string
}

// Contact is where notifications for a user go.
type Contact struct {
	UserID   uuid.UUID
	Email    string
	FullName string
}

// PostgresUserRepository resolves users to customer profiles and contacts
type PostgresUserRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresUserRepository(pool *pgxpool.Pool) *PostgresUserRepository {
	return &PostgresUserRepository{pool: pool}
}

func (r *PostgresUserRepository) GetCustomerByUserID(ctx context.Context, userID uuid.UUID) (*Customer, error) {
	var c Customer
	err := r.pool.QueryRow(ctx, `
		SELECT id, user_id, display_name
		FROM customers
		WHERE user_id = $1
	`, userID).Scan(&c.ID, &c.UserID, &c.DisplayName)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCustomerNotFound
		}
		return nil, fmt.Errorf("failed to get customer: %w", err)
	}
	return &c, nil
}

func (r *PostgresUserRepository) GetContact(ctx context.Context, userID uuid.UUID) (*Contact, error) {
	var c Contact
	err := r.pool.QueryRow(ctx, `SELECT id, email, full_name FROM users WHERE id = $1`, userID).
		Scan(&c.UserID, &c.Email, &c.FullName)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user contact: %w", err)
	}
	return &c, nil
}
