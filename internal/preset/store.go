package preset

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned by Store lookups that find no matching row.
var ErrNotFound = errors.New("not found")

// ErrAlreadyExists is returned by Create when the preset id is taken.
var ErrAlreadyExists = errors.New("already exists")

// Store provides Postgres-backed persistence for presets. Template and
// Resources are stored as JSONB columns rather than normalized tables,
// since presets are read far more often than written and the nested shape
// has no query requirements of its own.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a Store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const presetColumns = `id, name, description, version, template, resources, base_replicas, labels, annotations, created_at, updated_at`

func scanPreset(row pgx.Row) (Preset, error) {
	var p Preset
	var templateJSON, resourcesJSON, labelsJSON, annotationsJSON []byte
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Version, &templateJSON, &resourcesJSON,
		&p.BaseReplicas, &labelsJSON, &annotationsJSON, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return Preset{}, err
	}
	if err := json.Unmarshal(templateJSON, &p.Template); err != nil {
		return Preset{}, fmt.Errorf("decoding template: %w", err)
	}
	if err := json.Unmarshal(resourcesJSON, &p.Resources); err != nil {
		return Preset{}, fmt.Errorf("decoding resources: %w", err)
	}
	if len(labelsJSON) > 0 {
		if err := json.Unmarshal(labelsJSON, &p.Labels); err != nil {
			return Preset{}, fmt.Errorf("decoding labels: %w", err)
		}
	}
	if len(annotationsJSON) > 0 {
		if err := json.Unmarshal(annotationsJSON, &p.Annotations); err != nil {
			return Preset{}, fmt.Errorf("decoding annotations: %w", err)
		}
	}
	return p, nil
}

// Create inserts a new preset. Returns ErrAlreadyExists on a duplicate id.
func (s *Store) Create(ctx context.Context, p Preset) (Preset, error) {
	templateJSON, err := json.Marshal(p.Template)
	if err != nil {
		return Preset{}, fmt.Errorf("encoding template: %w", err)
	}
	resourcesJSON, err := json.Marshal(p.Resources)
	if err != nil {
		return Preset{}, fmt.Errorf("encoding resources: %w", err)
	}
	labelsJSON, err := json.Marshal(p.Labels)
	if err != nil {
		return Preset{}, fmt.Errorf("encoding labels: %w", err)
	}
	annotationsJSON, err := json.Marshal(p.Annotations)
	if err != nil {
		return Preset{}, fmt.Errorf("encoding annotations: %w", err)
	}

	row := s.pool.QueryRow(ctx,
		`INSERT INTO presets (id, name, description, version, template, resources, base_replicas, labels, annotations)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING `+presetColumns,
		p.ID, p.Name, p.Description, p.Version, templateJSON, resourcesJSON, p.BaseReplicas, labelsJSON, annotationsJSON,
	)
	out, err := scanPreset(row)
	if isUniqueViolation(err) {
		return Preset{}, ErrAlreadyExists
	}
	if err != nil {
		return Preset{}, fmt.Errorf("creating preset: %w", err)
	}
	return out, nil
}

func (s *Store) Get(ctx context.Context, id string) (Preset, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+presetColumns+` FROM presets WHERE id = $1`, id)
	p, err := scanPreset(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Preset{}, ErrNotFound
	}
	if err != nil {
		return Preset{}, fmt.Errorf("getting preset: %w", err)
	}
	return p, nil
}

// List returns all presets matching f, ordered by creation time. Filtering
// happens in Go rather than SQL: the preset table is small (bounded by the
// number of distinct templates an operator defines, not by compute count),
// so a full scan plus in-memory filter is simpler than building a dynamic
// WHERE clause over optional JSONB label predicates.
func (s *Store) List(ctx context.Context, f Filters) ([]Preset, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+presetColumns+` FROM presets ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("listing presets: %w", err)
	}
	defer rows.Close()

	var out []Preset
	for rows.Next() {
		p, err := scanPreset(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning preset: %w", err)
		}
		if f.matches(p) {
			out = append(out, p)
		}
	}
	return out, rows.Err()
}

// Delete removes a preset by id. Returns ErrNotFound if it doesn't exist.
func (s *Store) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM presets WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting preset: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// postgres unique_violation
const sqlStateUniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == sqlStateUniqueViolation
}
