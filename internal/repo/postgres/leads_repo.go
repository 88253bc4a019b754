package postgres

import (
	"context"

	"github.com/diagnosis/pillatuvisa-backoffice/internal/domain"
	"github.com/diagnosis/pillatuvisa-backoffice/pkg/database"
)

type LeadsRepo struct{ db database.DBTX }

func NewLeadsRepo(db database.DBTX) *LeadsRepo { return &LeadsRepo{db: db} }

func (r *LeadsRepo) Create(ctx context.Context, l domain.Lead) (*domain.Lead, error) {
	const q = `
INSERT INTO potenciales (nombre, email, telefono, mensaje, ip, user_agent)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id, estado, creado_en, actualizado_en`
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	if err := r.db.QueryRowContext(ctx, q, l.Name, l.Email, l.Phone, l.Message, l.IP, l.UserAgent).
		Scan(&l.ID, &l.Status, &l.CreatedAt, &l.UpdatedAt); err != nil {
		return nil, err
	}
	return &l, nil
}

func (r *LeadsRepo) List(ctx context.Context, limit int) ([]domain.Lead, error) {
	const q = `
SELECT id, nombre, email, telefono, mensaje, ip, user_agent, estado, creado_en, actualizado_en
FROM potenciales
ORDER BY creado_en DESC, id DESC
LIMIT $1`
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	rows, err := r.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.Lead{}
	for rows.Next() {
		var l domain.Lead
		if err := rows.Scan(&l.ID, &l.Name, &l.Email, &l.Phone, &l.Message, &l.IP, &l.UserAgent,
			&l.Status, &l.CreatedAt, &l.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (r *LeadsRepo) UpdateStatus(ctx context.Context, id int64, status domain.LeadStatus) (bool, error) {
	const q = `UPDATE potenciales SET estado = $2, actualizado_en = now() WHERE id = $1`
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	res, err := r.db.ExecContext(ctx, q, id, string(status))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
