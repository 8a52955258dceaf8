package store

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"dashroute/internal/model"
)

//go:embed schema.sql
var schema string

type Postgres struct {
	db *sql.DB
}

func NewPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Postgres{db: db}, nil
}

func (p *Postgres) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

func (p *Postgres) Close() error { return p.db.Close() }

// Migrate applies the embedded schema. Statements are idempotent.
func (p *Postgres) Migrate(ctx context.Context) error {
	for _, stmt := range strings.Split(schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := p.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func (p *Postgres) CreatePlan(ctx context.Context, pl model.Plan) error {
	id, err := uuid.Parse(pl.ID)
	if err != nil {
		return fmt.Errorf("plan id: %w", err)
	}
	batches, evaluation, err := planJSON(pl)
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx, `INSERT INTO plans (id, status, created_at, finished_at, deliveries, batches, evaluation, error) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		id, string(pl.Status), pl.CreatedAt, pl.FinishedAt, pl.Deliveries, batches, evaluation, pl.Error)
	return err
}

func (p *Postgres) UpdatePlan(ctx context.Context, pl model.Plan) error {
	id, err := uuid.Parse(pl.ID)
	if err != nil {
		return ErrNotFound
	}
	batches, evaluation, err := planJSON(pl)
	if err != nil {
		return err
	}
	res, err := p.db.ExecContext(ctx, `UPDATE plans SET status=$2, finished_at=$3, deliveries=$4, batches=$5, evaluation=$6, error=$7 WHERE id=$1`,
		id, string(pl.Status), pl.FinishedAt, pl.Deliveries, batches, evaluation, pl.Error)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

const planColumns = `id::text, status, created_at, finished_at, deliveries, batches, evaluation, error`

func (p *Postgres) GetPlan(ctx context.Context, id string) (model.Plan, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return model.Plan{}, ErrNotFound
	}
	pl, err := scanPlan(p.db.QueryRowContext(ctx, `SELECT `+planColumns+` FROM plans WHERE id=$1`, uid))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Plan{}, ErrNotFound
	}
	return pl, err
}

// ListPlans pages through plans in id order; cursor is the last id seen.
func (p *Postgres) ListPlans(ctx context.Context, cursor string, limit int) ([]model.Plan, string, error) {
	limit = clampLimit(limit)
	var rows *sql.Rows
	var err error
	if cursor != "" {
		rows, err = p.db.QueryContext(ctx, `SELECT `+planColumns+` FROM plans WHERE id::text > $1 ORDER BY id::text LIMIT $2`, cursor, limit+1)
	} else {
		rows, err = p.db.QueryContext(ctx, `SELECT `+planColumns+` FROM plans ORDER BY id::text LIMIT $1`, limit+1)
	}
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()
	out := []model.Plan{}
	for rows.Next() {
		pl, err := scanPlan(rows)
		if err != nil {
			return nil, "", err
		}
		out = append(out, pl)
	}
	if err := rows.Err(); err != nil {
		return nil, "", err
	}
	var next string
	if len(out) > limit {
		out = out[:limit]
		next = out[limit-1].ID
	}
	return out, next, nil
}

// SaveRoutePoints replaces the stored rows of a plan.
func (p *Postgres) SaveRoutePoints(ctx context.Context, planID string, rows []model.RoutePoint) error {
	id, err := uuid.Parse(planID)
	if err != nil {
		return ErrNotFound
	}
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var exists bool
	if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM plans WHERE id=$1)`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM plan_route_points WHERE plan_id=$1`, id); err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO plan_route_points (plan_id, seq, route_id, point_index, delivery_id, point_type, point_time) VALUES ($1,$2,$3,$4,$5,$6,$7)`)
	if err != nil {
		return err
	}
	defer func() { _ = stmt.Close() }()
	for i, r := range rows {
		if _, err := stmt.ExecContext(ctx, id, i, r.RouteID, r.PointIndex, r.DeliveryID, string(r.Type), r.Time); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (p *Postgres) ListRoutePoints(ctx context.Context, planID string) ([]model.RoutePoint, error) {
	id, err := uuid.Parse(planID)
	if err != nil {
		return nil, ErrNotFound
	}
	var exists bool
	if err := p.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM plans WHERE id=$1)`, id).Scan(&exists); err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrNotFound
	}
	rows, err := p.db.QueryContext(ctx, `SELECT route_id, point_index, delivery_id, point_type, point_time FROM plan_route_points WHERE plan_id=$1 ORDER BY seq`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.RoutePoint{}
	for rows.Next() {
		var r model.RoutePoint
		var typ string
		if err := rows.Scan(&r.RouteID, &r.PointIndex, &r.DeliveryID, &typ, &r.Time); err != nil {
			return nil, err
		}
		r.Type = model.StopType(typ)
		out = append(out, r)
	}
	return out, rows.Err()
}

type rowScanner interface{ Scan(dest ...any) error }

func scanPlan(s rowScanner) (model.Plan, error) {
	var pl model.Plan
	var status string
	var finished sql.NullTime
	var batches, evaluation []byte
	if err := s.Scan(&pl.ID, &status, &pl.CreatedAt, &finished, &pl.Deliveries, &batches, &evaluation, &pl.Error); err != nil {
		return model.Plan{}, err
	}
	pl.Status = model.PlanStatus(status)
	if finished.Valid {
		t := finished.Time
		pl.FinishedAt = &t
	}
	if err := json.Unmarshal(batches, &pl.Batches); err != nil {
		return model.Plan{}, fmt.Errorf("plan %s batches: %w", pl.ID, err)
	}
	if len(evaluation) > 0 {
		pl.Evaluation = &model.Evaluation{}
		if err := json.Unmarshal(evaluation, pl.Evaluation); err != nil {
			return model.Plan{}, fmt.Errorf("plan %s evaluation: %w", pl.ID, err)
		}
	}
	return pl, nil
}

// planJSON encodes the jsonb columns. A nil evaluation is stored as NULL.
func planJSON(pl model.Plan) (batches string, evaluation any, err error) {
	bs := pl.Batches
	if bs == nil {
		bs = []model.BatchReport{}
	}
	b, err := json.Marshal(bs)
	if err != nil {
		return "", nil, err
	}
	if pl.Evaluation != nil {
		e, err := json.Marshal(pl.Evaluation)
		if err != nil {
			return "", nil, err
		}
		evaluation = string(e)
	}
	return string(b), evaluation, nil
}
