// Package postgres stores drinks in PostgreSQL through the pgx database/sql
// driver. The schema is owned by the goose migrations in
// internal/server/migrations.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/abdelrahman543873/coffeshop/internal/dbx"
	"github.com/abdelrahman543873/coffeshop/internal/server/migrations"
	"github.com/abdelrahman543873/coffeshop/internal/server/models"
	"github.com/abdelrahman543873/coffeshop/internal/server/repository"
)

const uniqueViolation = "23505"

// Seams for testing goose without a live database.
var (
	gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
		return goose.UpContext(ctx, db, dir, opts...)
	}
	gooseResetContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
		return goose.ResetContext(ctx, db, dir, opts...)
	}
)

type Repository struct {
	db *sql.DB
}

// New opens a pgx-backed pool for dsn and brings the schema up to date.
func New(ctx context.Context, dsn string) (*Repository, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	repo := NewRepository(db)
	if err := repo.RunMigrations(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db migrate: %w", err)
	}
	return repo, nil
}

// NewRepository wraps an already opened database handle.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Close() error {
	return r.db.Close()
}

// RunMigrations applies the embedded goose migrations.
func (r *Repository) RunMigrations(ctx context.Context) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return err
	}
	return gooseUpContext(ctx, r.db, ".")
}

// Reset rolls every migration back and applies them again, leaving an empty
// drinks table. With seed set the sample drink is inserted afterwards.
func (r *Repository) Reset(ctx context.Context, seed bool) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return err
	}
	if err := gooseResetContext(ctx, r.db, "."); err != nil {
		return err
	}
	if err := gooseUpContext(ctx, r.db, "."); err != nil {
		return err
	}
	if !seed {
		return nil
	}
	_, err := r.CreateDrink(ctx, repository.SeedDrink())
	return err
}

func (r *Repository) ListDrinks(ctx context.Context) ([]models.Drink, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, title, recipe FROM drinks ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	out := []models.Drink{}
	for rows.Next() {
		var d models.Drink
		if err := rows.Scan(&d.ID, &d.Title, &d.Recipe); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}

func (r *Repository) GetDrink(ctx context.Context, id int64) (models.Drink, error) {
	var d models.Drink
	err := r.db.QueryRowContext(ctx, `SELECT id, title, recipe FROM drinks WHERE id = $1`, id).
		Scan(&d.ID, &d.Title, &d.Recipe)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Drink{}, repository.ErrNotFound
		}
		return models.Drink{}, fmt.Errorf("db error: %w", err)
	}
	return d, nil
}

// CreateDrink inserts d. A caller-chosen id also moves the identity sequence
// past it so later generated ids do not collide.
func (r *Repository) CreateDrink(ctx context.Context, d models.Drink) (models.Drink, error) {
	if d.Recipe == nil {
		d.Recipe = models.Recipe{}
	}
	if d.ID == 0 {
		err := r.db.QueryRowContext(ctx,
			`INSERT INTO drinks (title, recipe) VALUES ($1, $2) RETURNING id`,
			d.Title, d.Recipe).Scan(&d.ID)
		if err != nil {
			return models.Drink{}, classify(err)
		}
		return d, nil
	}

	err := dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO drinks (id, title, recipe) VALUES ($1, $2, $3)`,
			d.ID, d.Title, d.Recipe); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			`SELECT setval(pg_get_serial_sequence('drinks', 'id'), GREATEST((SELECT MAX(id) FROM drinks), 1))`)
		return err
	})
	if err != nil {
		return models.Drink{}, classify(err)
	}
	return d, nil
}

func (r *Repository) UpdateDrink(ctx context.Context, id int64, title string, recipe models.Recipe) (models.Drink, error) {
	if recipe == nil {
		recipe = models.Recipe{}
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE drinks SET title = $1, recipe = $2 WHERE id = $3`,
		title, recipe, id)
	if err != nil {
		return models.Drink{}, classify(err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return models.Drink{}, repository.ErrNotFound
	}
	return models.Drink{ID: id, Title: title, Recipe: recipe}, nil
}

func (r *Repository) DeleteDrink(ctx context.Context, id int64) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM drinks WHERE id = $1`, id)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return 0, repository.ErrNotFound
	}
	return id, nil
}

func classify(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s", repository.ErrConflict, pgErr.ConstraintName)
	}
	return fmt.Errorf("db error: %w", err)
}
