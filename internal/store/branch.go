package store

import (
	"context"

	"appointment-booking-api/internal/model"
)

func (s *Store) CreateBranch(ctx context.Context, b *model.Branch) error {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO branches (name, location) VALUES ($1,$2) RETURNING id`,
		b.Name, b.Location,
	).Scan(&b.ID)
	return mapErr(err)
}

func (s *Store) ListBranches(ctx context.Context) ([]model.Branch, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, name, location FROM branches ORDER BY id`)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	out := []model.Branch{}
	for rows.Next() {
		var b model.Branch
		if err := rows.Scan(&b.ID, &b.Name, &b.Location); err != nil {
			return nil, mapErr(err)
		}
		out = append(out, b)
	}
	return out, mapErr(rows.Err())
}

func (s *Store) GetBranch(ctx context.Context, id int64) (*model.Branch, error) {
	b := &model.Branch{}
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, location FROM branches WHERE id = $1`, id,
	).Scan(&b.ID, &b.Name, &b.Location)
	if err != nil {
		return nil, mapErr(err)
	}
	return b, nil
}

func (s *Store) CountBranches(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM branches`).Scan(&n)
	return n, mapErr(err)
}
