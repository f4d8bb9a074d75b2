package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"polimarket/internal/models"

	"github.com/jmoiron/sqlx"
)

const personColumns = `id, kind, identification, first_name, last_name, email, phone, address,
	active, authorized, authorized_at, client_code, created_at, updated_at`

// GetPerson retrieves a vendor or client. A person of another kind is reported as not found.
func (q *queries) GetPerson(ctx context.Context, id int64, kind string) (*models.Person, error) {
	var person models.Person
	err := sqlx.GetContext(ctx, q.db, &person,
		"SELECT "+personColumns+" FROM persons WHERE id = $1 AND kind = $2", id, kind)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s %d", ErrNotFound, strings.ToLower(kind), id)
	}
	if err != nil {
		return nil, err
	}
	return &person, nil
}

func (q *queries) ListPersons(ctx context.Context, filter PersonFilter) ([]models.Person, error) {
	query := "SELECT " + personColumns + " FROM persons WHERE kind = $1"
	if filter.ActiveOnly {
		query += " AND active"
	}
	query += " ORDER BY last_name, first_name, id"

	persons := []models.Person{}
	err := sqlx.SelectContext(ctx, q.db, &persons, query, filter.Kind)
	return persons, err
}

func (q *queries) CreatePerson(ctx context.Context, person *models.Person) error {
	query := `
		INSERT INTO persons (kind, identification, first_name, last_name, email, phone, address,
		                     active, authorized, authorized_at, client_code)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, created_at, updated_at`

	err := sqlx.GetContext(ctx, q.db, person, query,
		person.Kind, person.Identification, person.FirstName, person.LastName,
		person.Email, person.Phone, person.Address, person.Active,
		person.Authorized, person.AuthorizedAt, person.ClientCode)
	return translate(err)
}

func (q *queries) UpdatePerson(ctx context.Context, person *models.Person) error {
	query := `
		UPDATE persons
		SET first_name = $1, last_name = $2, email = $3, phone = $4, address = $5,
		    active = $6, authorized = $7, authorized_at = $8, client_code = $9, updated_at = NOW()
		WHERE id = $10 AND kind = $11
		RETURNING updated_at`

	err := sqlx.GetContext(ctx, q.db, &person.UpdatedAt, query,
		person.FirstName, person.LastName, person.Email, person.Phone, person.Address,
		person.Active, person.Authorized, person.AuthorizedAt, person.ClientCode,
		person.ID, person.Kind)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s %d", ErrNotFound, strings.ToLower(person.Kind), person.ID)
	}
	return err
}

// CreateAuthorization appends a validity record for a vendor
func (q *queries) CreateAuthorization(ctx context.Context, auth *models.Authorization) error {
	query := `
		INSERT INTO authorizations (code, vendor_id, type, valid_from, valid_until)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`

	err := sqlx.GetContext(ctx, q.db, auth, query,
		auth.Code, auth.VendorID, auth.Type, auth.ValidFrom, auth.ValidUntil)
	return translate(err)
}

// ListAuthorizations returns a vendor's records, newest first
func (q *queries) ListAuthorizations(ctx context.Context, filter AuthorizationFilter) ([]models.Authorization, error) {
	query := `
		SELECT id, code, vendor_id, type, valid_from, valid_until, created_at
		FROM authorizations
		WHERE vendor_id = $1`
	args := []interface{}{filter.VendorID}

	if filter.ActiveAt != nil {
		query += " AND valid_from <= $2 AND valid_until > $2"
		args = append(args, *filter.ActiveAt)
	}
	query += " ORDER BY valid_from DESC, id DESC"

	auths := []models.Authorization{}
	err := sqlx.SelectContext(ctx, q.db, &auths, query, args...)
	return auths, err
}
