package repo

import (
	"context"
	"database/sql"

	"github.com/didi/gendry/builder"

	"github.com/xxxsen/aitutor/internal/model"
	"github.com/xxxsen/aitutor/internal/pkg/dbutil"
	appErr "github.com/xxxsen/aitutor/internal/pkg/errors"
)

var documentFields = []string{"id", "user_id", "filename", "file_key", "namespace", "chunk_count", "ctime", "mtime"}

type DocumentRepo struct {
	db *sql.DB
}

func NewDocumentRepo(db *sql.DB) *DocumentRepo {
	return &DocumentRepo{db: db}
}

func (r *DocumentRepo) Create(ctx context.Context, doc *model.Document) error {
	data := map[string]interface{}{
		"id":          doc.ID,
		"user_id":     doc.UserID,
		"filename":    doc.Filename,
		"file_key":    doc.FileKey,
		"namespace":   doc.Namespace,
		"chunk_count": doc.ChunkCount,
		"ctime":       doc.Ctime,
		"mtime":       doc.Mtime,
	}
	sqlStr, args, err := builder.BuildInsert("documents", []map[string]interface{}{data})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	if _, err := r.db.ExecContext(ctx, sqlStr, args...); err != nil {
		if dbutil.IsConflict(err) {
			return appErr.ErrConflict
		}
		return err
	}
	return nil
}

func (r *DocumentRepo) GetByID(ctx context.Context, userID, docID string) (*model.Document, error) {
	return r.getOne(ctx, map[string]interface{}{"id": docID, "user_id": userID})
}

func (r *DocumentRepo) GetByFilename(ctx context.Context, userID, filename string) (*model.Document, error) {
	return r.getOne(ctx, map[string]interface{}{"user_id": userID, "filename": filename})
}

func (r *DocumentRepo) ListByUser(ctx context.Context, userID string) ([]model.Document, error) {
	return r.list(ctx, map[string]interface{}{"user_id": userID, "_orderby": "ctime desc"})
}

// ListAll pages through every document regardless of owner.
func (r *DocumentRepo) ListAll(ctx context.Context, limit, offset uint) ([]model.Document, error) {
	return r.list(ctx, map[string]interface{}{"_orderby": "ctime asc, id asc", "_limit": []uint{offset, limit}})
}

func (r *DocumentRepo) UpdateChunkCount(ctx context.Context, docID string, chunkCount int, mtime int64) error {
	where := map[string]interface{}{"id": docID}
	update := map[string]interface{}{"chunk_count": chunkCount, "mtime": mtime}
	sqlStr, args, err := builder.BuildUpdate("documents", where, update)
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	return execAffected(ctx, r.db, sqlStr, args)
}

func (r *DocumentRepo) Delete(ctx context.Context, userID, docID string) error {
	where := map[string]interface{}{"id": docID, "user_id": userID}
	sqlStr, args, err := builder.BuildDelete("documents", where)
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	return execAffected(ctx, r.db, sqlStr, args)
}

func (r *DocumentRepo) getOne(ctx context.Context, where map[string]interface{}) (*model.Document, error) {
	where["_limit"] = []uint{0, 1}
	docs, err := r.list(ctx, where)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, appErr.ErrNotFound
	}
	return &docs[0], nil
}

func (r *DocumentRepo) list(ctx context.Context, where map[string]interface{}) ([]model.Document, error) {
	sqlStr, args, err := builder.BuildSelect("documents", where, documentFields)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var docs []model.Document
	for rows.Next() {
		var doc model.Document
		if err := rows.Scan(&doc.ID, &doc.UserID, &doc.Filename, &doc.FileKey, &doc.Namespace, &doc.ChunkCount, &doc.Ctime, &doc.Mtime); err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}
