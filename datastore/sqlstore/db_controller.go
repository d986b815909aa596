package sqlstore

import (
	"context"
	"database/sql"
	"errors"

	"github.com/timelock-labs/withdrawal-deployer/pkg/logger"
)

// dbController runs statements on the open transaction if there is one, otherwise on the pool.
type dbController struct {
	lggr logger.Logger
	base *sql.DB
	tx   *sql.Tx
}

func newDBController(db *sql.DB, lggr logger.Logger) *dbController {
	return &dbController{base: db, lggr: lggr}
}

func (d *dbController) QueryContext(ctx context.Context, q string, args ...any) (*sql.Rows, error) {
	d.lggr.Debugw("Executing query", "query", q, "args", args)
	if d.tx != nil {
		return d.tx.QueryContext(ctx, q, args...)
	}

	return d.base.QueryContext(ctx, q, args...)
}

func (d *dbController) ExecContext(ctx context.Context, q string, args ...any) (sql.Result, error) {
	d.lggr.Debugw("Executing statement", "query", q, "args", args)
	if d.tx != nil {
		return d.tx.ExecContext(ctx, q, args...)
	}

	return d.base.ExecContext(ctx, q, args...)
}

func (d *dbController) Begin(ctx context.Context) error {
	if d.tx != nil {
		return errors.New("transaction already started")
	}

	tx, err := d.base.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	d.tx = tx

	return nil
}

func (d *dbController) Commit() error {
	if d.tx == nil {
		return errors.New("no transaction to commit")
	}
	defer func() { d.tx = nil }()

	return d.tx.Commit()
}

func (d *dbController) Rollback() error {
	if d.tx == nil {
		return errors.New("no transaction to roll back")
	}
	defer func() { d.tx = nil }()

	return d.tx.Rollback()
}
