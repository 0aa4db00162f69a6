package repo

import (
	"context"
	"database/sql"

	"github.com/didi/gendry/builder"

	"github.com/xxxsen/aitutor/internal/model"
	"github.com/xxxsen/aitutor/internal/pkg/dbutil"
)

// NamespacePurgeRepo queues namespaces whose vectors could not be deleted
// together with their document.
type NamespacePurgeRepo struct {
	db *sql.DB
}

func NewNamespacePurgeRepo(db *sql.DB) *NamespacePurgeRepo {
	return &NamespacePurgeRepo{db: db}
}

func (r *NamespacePurgeRepo) Add(ctx context.Context, namespace, lastError string, now int64) error {
	const query = `
		INSERT INTO namespace_purges (namespace, attempts, last_error, ctime, mtime)
		VALUES ($1, 0, $2, $3, $3)
		ON CONFLICT (namespace) DO UPDATE SET
			last_error = EXCLUDED.last_error,
			mtime = EXCLUDED.mtime
	`
	_, err := r.db.ExecContext(ctx, query, namespace, lastError, now)
	return err
}

func (r *NamespacePurgeRepo) List(ctx context.Context, limit uint) ([]model.NamespacePurge, error) {
	where := map[string]interface{}{"_orderby": "mtime asc", "_limit": []uint{0, limit}}
	sqlStr, args, err := builder.BuildSelect("namespace_purges", where, []string{"namespace", "attempts", "last_error", "ctime", "mtime"})
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var items []model.NamespacePurge
	for rows.Next() {
		var item model.NamespacePurge
		if err := rows.Scan(&item.Namespace, &item.Attempts, &item.LastError, &item.Ctime, &item.Mtime); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (r *NamespacePurgeRepo) MarkFailed(ctx context.Context, namespace, lastError string, now int64) error {
	const query = `UPDATE namespace_purges SET attempts = attempts + 1, last_error = $2, mtime = $3 WHERE namespace = $1`
	_, err := r.db.ExecContext(ctx, query, namespace, lastError, now)
	return err
}

func (r *NamespacePurgeRepo) Remove(ctx context.Context, namespace string) error {
	sqlStr, args, err := builder.BuildDelete("namespace_purges", map[string]interface{}{"namespace": namespace})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	_, err = r.db.ExecContext(ctx, sqlStr, args...)
	return err
}
