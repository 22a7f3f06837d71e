package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/kozaktomas/facegate/internal/database"
	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
)

// FaceRepository provides PostgreSQL-backed face profile storage.
type FaceRepository struct {
	pool *Pool
}

// NewFaceRepository creates a new PostgreSQL face repository.
func NewFaceRepository(pool *Pool) *FaceRepository {
	return &FaceRepository{pool: pool}
}

const profileColumns = `f.id, f.person_id, f.encoding, f.quality_score, f.is_primary, f.source_image, f.created_at`

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(x)
	}
	return out
}

// scanProfileRow scans a single row into a FaceProfile.
func scanProfileRow(scanner interface{ Scan(...any) error }) (database.FaceProfile, error) {
	var p database.FaceProfile
	var encoding pq.Float64Array

	if err := scanner.Scan(&p.ID, &p.PersonID, &encoding, &p.QualityScore, &p.IsPrimary, &p.SourceImage, &p.CreatedAt); err != nil {
		return p, fmt.Errorf("scan face profile: %w", err)
	}
	p.Encoding = []float64(encoding)
	return p, nil
}

func scanProfiles(rows *sql.Rows) ([]database.FaceProfile, error) {
	var profiles []database.FaceProfile
	for rows.Next() {
		p, err := scanProfileRow(rows)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate face profiles: %w", err)
	}
	return profiles, nil
}

// GetProfiles retrieves all profiles of a person, primary first.
func (r *FaceRepository) GetProfiles(ctx context.Context, personID string) ([]database.FaceProfile, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+profileColumns+`
		FROM face_profiles f
		WHERE f.person_id = $1
		ORDER BY f.is_primary DESC, f.id
	`, personID)
	if err != nil {
		return nil, fmt.Errorf("query profiles: %w", err)
	}
	defer rows.Close()
	return scanProfiles(rows)
}

// GetActiveProfiles retrieves the profiles of every active person.
func (r *FaceRepository) GetActiveProfiles(ctx context.Context) ([]database.FaceProfile, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+profileColumns+`
		FROM face_profiles f
		JOIN persons p ON p.id = f.person_id
		WHERE p.active
		ORDER BY f.is_primary DESC, f.id
	`)
	if err != nil {
		return nil, fmt.Errorf("query active profiles: %w", err)
	}
	defer rows.Close()
	return scanProfiles(rows)
}

// FindNearestProfiles returns up to limit active profiles ordered by L2 distance using
// the pgvector index. Distances are approximate; the matcher recomputes them exactly.
func (r *FaceRepository) FindNearestProfiles(ctx context.Context, probe []float64, limit int) ([]database.FaceProfile, error) {
	if limit <= 0 {
		limit = database.DefaultCandidateLimit
	}
	vec := pgvector.NewVector(toFloat32(probe))

	rows, err := r.pool.Query(ctx, `
		SELECT `+profileColumns+`
		FROM face_profiles f
		JOIN persons p ON p.id = f.person_id
		WHERE p.active
		ORDER BY f.embedding <-> $1::vector
		LIMIT $2
	`, vec, limit)
	if err != nil {
		return nil, fmt.Errorf("query nearest profiles: %w", err)
	}
	defer rows.Close()
	return scanProfiles(rows)
}

// CountProfiles returns the total number of stored profiles.
func (r *FaceRepository) CountProfiles(ctx context.Context) (int, error) {
	var count int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM face_profiles").Scan(&count); err != nil {
		return 0, fmt.Errorf("count profiles: %w", err)
	}
	return count, nil
}

// SaveProfile inserts a profile. With demotePrimary the person's current primary is
// cleared in the same transaction, so at most one primary exists at any time.
func (r *FaceRepository) SaveProfile(ctx context.Context, profile database.FaceProfile, demotePrimary bool) error {
	tx, err := r.pool.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if demotePrimary {
		if _, err := tx.ExecContext(ctx,
			"UPDATE face_profiles SET is_primary = FALSE WHERE person_id = $1 AND is_primary",
			profile.PersonID,
		); err != nil {
			return fmt.Errorf("demote primary of %s: %w", profile.PersonID, err)
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO face_profiles (id, person_id, encoding, embedding, quality_score, is_primary, source_image, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, COALESCE($8, NOW()))
	`,
		profile.ID,
		profile.PersonID,
		pq.Array(profile.Encoding),
		pgvector.NewVector(toFloat32(profile.Encoding)),
		profile.QualityScore,
		profile.IsPrimary,
		profile.SourceImage,
		nullTime(profile.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert profile %s: %w", profile.ID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit profile %s: %w", profile.ID, err)
	}
	return nil
}

// DeleteProfile removes one profile.
func (r *FaceRepository) DeleteProfile(ctx context.Context, profileID string) error {
	result, err := r.pool.Exec(ctx, "DELETE FROM face_profiles WHERE id = $1", profileID)
	if err != nil {
		return fmt.Errorf("delete profile %s: %w", profileID, err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("profile %s: %w", profileID, database.ErrNotFound)
	}
	return nil
}
