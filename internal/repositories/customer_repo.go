package repositories

import (
	"context"

	"billdesk/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type CustomerRepository interface {
	Create(ctx context.Context, customer *models.Customer) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Customer, error)
	GetByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*models.Customer, error)
	GetByEmail(ctx context.Context, email string) (*models.Customer, error)
}

type customerRepo struct {
	db Database
}

func NewCustomerRepo(db Database) CustomerRepository {
	return &customerRepo{db: db}
}

const customerColumns = `id, name, email, phone, address, role, created_by, created_at, updated_at`

func scanCustomer(row pgx.Row) (*models.Customer, error) {
	c := &models.Customer{}
	var role string
	err := row.Scan(&c.ID, &c.Name, &c.Email, &c.Phone, &c.Address, &role, &c.CreatedBy, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	c.Role = models.Role(role)
	return c, nil
}

// Create inserts the customer. A second customer with the same email,
// compared case-insensitively, yields ErrDuplicateEmail.
func (r *customerRepo) Create(ctx context.Context, customer *models.Customer) error {
	query := `
		INSERT INTO customers (id, name, email, phone, address, role, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
		RETURNING created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query, customer.ID, customer.Name, models.NormalizeEmail(customer.Email), customer.Phone, customer.Address, string(customer.Role), customer.CreatedBy).
		Scan(&customer.CreatedAt, &customer.UpdatedAt)
	if isUniqueViolation(err, "") {
		return ErrDuplicateEmail
	}
	return err
}

func (r *customerRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Customer, error) {
	query := `SELECT ` + customerColumns + ` FROM customers WHERE id = $1`
	customer, err := scanCustomer(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, notFound(err)
	}
	return customer, nil
}

func (r *customerRepo) GetByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*models.Customer, error) {
	query := `SELECT ` + customerColumns + ` FROM customers WHERE id = ANY($1)`
	rows, err := r.db.Query(ctx, query, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	customers := make(map[uuid.UUID]*models.Customer, len(ids))
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, err
		}
		customers[c.ID] = c
	}
	return customers, rows.Err()
}

func (r *customerRepo) GetByEmail(ctx context.Context, email string) (*models.Customer, error) {
	query := `SELECT ` + customerColumns + ` FROM customers WHERE LOWER(email) = $1`
	customer, err := scanCustomer(r.db.QueryRow(ctx, query, models.NormalizeEmail(email)))
	if err != nil {
		return nil, notFound(err)
	}
	return customer, nil
}
