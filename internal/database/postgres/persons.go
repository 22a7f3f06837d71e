package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kozaktomas/facegate/internal/database"
	"github.com/kozaktomas/facegate/internal/facematch"
)

// PersonRepository provides PostgreSQL-backed person storage.
type PersonRepository struct {
	pool *Pool
}

// NewPersonRepository creates a new PostgreSQL person repository.
func NewPersonRepository(pool *Pool) *PersonRepository {
	return &PersonRepository{pool: pool}
}

const personColumns = `id, display_name, active, created_at`

func scanPerson(scanner interface{ Scan(...any) error }) (database.Person, error) {
	var p database.Person
	if err := scanner.Scan(&p.ID, &p.DisplayName, &p.Active, &p.CreatedAt); err != nil {
		return p, fmt.Errorf("scan person: %w", err)
	}
	return p, nil
}

func scanPersons(rows *sql.Rows) ([]database.Person, error) {
	var persons []database.Person
	for rows.Next() {
		p, err := scanPerson(rows)
		if err != nil {
			return nil, err
		}
		persons = append(persons, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate persons: %w", err)
	}
	return persons, nil
}

// GetPerson returns a person by ID.
func (r *PersonRepository) GetPerson(ctx context.Context, id string) (*database.Person, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+personColumns+` FROM persons WHERE id = $1`, id)
	p, err := scanPerson(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("person %s: %w", id, database.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ListActivePersons returns active persons ordered by ID.
func (r *PersonRepository) ListActivePersons(ctx context.Context) ([]database.Person, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+personColumns+` FROM persons WHERE active ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query persons: %w", err)
	}
	defer rows.Close()
	return scanPersons(rows)
}

// FindPersonsByName matches display names after normalization.
// Names are normalized in Go and mirrored in SQL with unaccent, LOWER and
// whitespace folding so "jana-novakova" matches "Jana Nováková".
func (r *PersonRepository) FindPersonsByName(ctx context.Context, name string) ([]database.Person, error) {
	normalized := facematch.NormalizePersonName(name)

	query := `
		SELECT ` + personColumns + `
		FROM persons
		WHERE BTRIM(REGEXP_REPLACE(LOWER(TRANSLATE(unaccent(display_name), '-_', '  ')), '\s+', ' ', 'g')) = $1
		ORDER BY id
	`
	rows, err := r.pool.Query(ctx, query, normalized)
	if err != nil {
		return nil, fmt.Errorf("query persons by name: %w", err)
	}
	defer rows.Close()
	return scanPersons(rows)
}

// SavePerson inserts or updates a person.
func (r *PersonRepository) SavePerson(ctx context.Context, p database.Person) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO persons (id, display_name, active, created_at)
		VALUES ($1, $2, $3, COALESCE($4, NOW()))
		ON CONFLICT (id) DO UPDATE SET display_name = EXCLUDED.display_name, active = EXCLUDED.active
	`, p.ID, p.DisplayName, p.Active, nullTime(p.CreatedAt))
	if err != nil {
		return fmt.Errorf("save person %s: %w", p.ID, err)
	}
	return nil
}

// DeletePerson removes a person; profiles, records and clearances cascade.
func (r *PersonRepository) DeletePerson(ctx context.Context, id string) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM persons WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete person %s: %w", id, err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("person %s: %w", id, database.ErrNotFound)
	}
	return nil
}
