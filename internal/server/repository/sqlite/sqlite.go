package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/abdelrahman543873/coffeshop/internal/server/models"
	"github.com/abdelrahman543873/coffeshop/internal/server/repository"
)

const schema = `
	CREATE TABLE IF NOT EXISTS drinks (
		id INTEGER PRIMARY KEY,
		title VARCHAR(80) UNIQUE NOT NULL,
		recipe TEXT NOT NULL
	);
`

type Repository struct {
	db *sql.DB
}

func New(dsn string) (*Repository, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Repository{db: db}, nil
}

func (r *Repository) Close() error {
	return r.db.Close()
}

// Reset drops the drinks table and recreates it empty, optionally adding the
// sample drink.
func (r *Repository) Reset(ctx context.Context, seed bool) error {
	if _, err := r.db.ExecContext(ctx, `DROP TABLE IF EXISTS drinks`); err != nil {
		return err
	}
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
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
		return nil, err
	}
	defer rows.Close()
	out := []models.Drink{}
	for rows.Next() {
		var d models.Drink
		if err := rows.Scan(&d.ID, &d.Title, &d.Recipe); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (r *Repository) GetDrink(ctx context.Context, id int64) (models.Drink, error) {
	row := r.db.QueryRowContext(ctx, `SELECT id, title, recipe FROM drinks WHERE id = ?`, id)
	var d models.Drink
	if err := row.Scan(&d.ID, &d.Title, &d.Recipe); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Drink{}, repository.ErrNotFound
		}
		return models.Drink{}, err
	}
	return d, nil
}

// CreateDrink inserts d. A zero ID lets SQLite pick the next rowid.
func (r *Repository) CreateDrink(ctx context.Context, d models.Drink) (models.Drink, error) {
	if d.Recipe == nil {
		d.Recipe = models.Recipe{}
	}
	var (
		res sql.Result
		err error
	)
	if d.ID == 0 {
		res, err = r.db.ExecContext(ctx, `INSERT INTO drinks(title, recipe) VALUES(?, ?)`, d.Title, d.Recipe)
	} else {
		res, err = r.db.ExecContext(ctx, `INSERT INTO drinks(id, title, recipe) VALUES(?, ?, ?)`, d.ID, d.Title, d.Recipe)
	}
	if err != nil {
		return models.Drink{}, classify(err)
	}
	if d.ID == 0 {
		if d.ID, err = res.LastInsertId(); err != nil {
			return models.Drink{}, err
		}
	}
	return d, nil
}

func (r *Repository) UpdateDrink(ctx context.Context, id int64, title string, recipe models.Recipe) (models.Drink, error) {
	if recipe == nil {
		recipe = models.Recipe{}
	}
	res, err := r.db.ExecContext(ctx, `UPDATE drinks SET title = ?, recipe = ? WHERE id = ?`, title, recipe, id)
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
	res, err := r.db.ExecContext(ctx, `DELETE FROM drinks WHERE id = ?`, id)
	if err != nil {
		return 0, err
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return 0, repository.ErrNotFound
	}
	return id, nil
}

func classify(err error) error {
	var se *sqlite.Error
	if errors.As(err, &se) && se.Code()&0xff == sqlite3.SQLITE_CONSTRAINT {
		return fmt.Errorf("%w: %v", repository.ErrConflict, err)
	}
	return err
}
