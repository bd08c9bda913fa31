package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"checkout-service/internal/models"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

type Store struct {
	db *sqlx.DB
}

// NewStore creates a new database store
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// GetDB returns the underlying database connection
func (s *Store) GetDB() *sqlx.DB {
	return s.db
}

// GetProducts retrieves all products
func (s *Store) GetProducts(ctx context.Context) ([]models.Product, error) {
	var products []models.Product
	err := s.db.SelectContext(ctx, &products, "SELECT * FROM products ORDER BY id")
	return products, err
}

// GetProductByID retrieves a product by ID
func (s *Store) GetProductByID(ctx context.Context, id int64) (*models.Product, error) {
	var product models.Product
	err := s.db.GetContext(ctx, &product, "SELECT * FROM products WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("product not found: %d", id)
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// GetAddressesByUserID retrieves all addresses for a user
func (s *Store) GetAddressesByUserID(ctx context.Context, userID int64) ([]models.Address, error) {
	var addresses []models.Address
	err := s.db.SelectContext(ctx, &addresses,
		"SELECT * FROM addresses WHERE user_id = $1 ORDER BY id", userID)
	return addresses, err
}

// GetAddressByID retrieves an address by ID
func (s *Store) GetAddressByID(ctx context.Context, id int64) (*models.Address, error) {
	var address models.Address
	err := s.db.GetContext(ctx, &address, "SELECT * FROM addresses WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("address not found: %d", id)
	}
	if err != nil {
		return nil, err
	}
	return &address, nil
}

// CreateAddress creates a new address
func (s *Store) CreateAddress(ctx context.Context, address *models.Address) error {
	query := `
		INSERT INTO addresses (user_id, recipient, line1, city, postal_code, phone)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`

	return s.db.GetContext(ctx, address, query,
		address.UserID, address.Recipient, address.Line1,
		address.City, address.PostalCode, address.Phone)
}

// DeleteAddress deletes an address owned by the user
func (s *Store) DeleteAddress(ctx context.Context, id, userID int64) error {
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM addresses WHERE id = $1 AND user_id = $2", id, userID)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("address not found: %d", id)
	}
	return nil
}
