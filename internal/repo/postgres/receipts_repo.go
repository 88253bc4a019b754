package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/diagnosis/pillatuvisa-backoffice/internal/domain"
	"github.com/diagnosis/pillatuvisa-backoffice/pkg/database"
)

type ReceiptsRepo struct{ db database.DBTX }

func NewReceiptsRepo(db database.DBTX) *ReceiptsRepo { return &ReceiptsRepo{db: db} }

func (r *ReceiptsRepo) Create(ctx context.Context, in domain.ReceiptInput) (*domain.Receipt, error) {
	const q = `
INSERT INTO recibos (nombre, email, concepto, monto, metodo)
VALUES ($1, $2, $3, $4::numeric, $5)
RETURNING id, monto::text, creado_en`
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	rec := domain.Receipt{
		ClientName:  in.ClientName,
		ClientEmail: in.ClientEmail,
		Concept:     in.Concept,
		Method:      in.Method,
	}
	if err := r.db.QueryRowContext(ctx, q, in.ClientName, in.ClientEmail, in.Concept, string(in.Amount), in.Method).
		Scan(&rec.ID, &rec.Amount, &rec.CreatedAt); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *ReceiptsRepo) Get(ctx context.Context, id int64) (*domain.Receipt, error) {
	const q = `SELECT id, nombre, email, concepto, monto::text, metodo, creado_en FROM recibos WHERE id = $1`
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	var rec domain.Receipt
	err := r.db.QueryRowContext(ctx, q, id).Scan(&rec.ID, &rec.ClientName, &rec.ClientEmail, &rec.Concept,
		&rec.Amount, &rec.Method, &rec.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *ReceiptsRepo) List(ctx context.Context, limit int) ([]domain.Receipt, error) {
	const q = `
SELECT id, nombre, email, concepto, monto::text, metodo, creado_en
FROM recibos
ORDER BY id DESC
LIMIT $1`
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	rows, err := r.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.Receipt{}
	for rows.Next() {
		var rec domain.Receipt
		if err := rows.Scan(&rec.ID, &rec.ClientName, &rec.ClientEmail, &rec.Concept,
			&rec.Amount, &rec.Method, &rec.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *ReceiptsRepo) ListClients(ctx context.Context, limit int) ([]domain.ClientSummary, error) {
	const q = `SELECT id, nombre, email FROM recibos ORDER BY id DESC LIMIT $1`
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	rows, err := r.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.ClientSummary{}
	for rows.Next() {
		var c domain.ClientSummary
		if err := rows.Scan(&c.ID, &c.Name, &c.Email); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *ReceiptsRepo) Delete(ctx context.Context, id int64) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	res, err := r.db.ExecContext(ctx, `DELETE FROM recibos WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
