package repo

import (
	"context"
	"database/sql"

	"github.com/didi/gendry/builder"

	"github.com/xxxsen/aitutor/internal/model"
	"github.com/xxxsen/aitutor/internal/pkg/dbutil"
	appErr "github.com/xxxsen/aitutor/internal/pkg/errors"
)

var aiResponseFields = []string{"id", "user_id", "quiz_id", "user_question", "topic", "answer_text", "ctime"}

type AIResponseRepo struct {
	db *sql.DB
}

func NewAIResponseRepo(db *sql.DB) *AIResponseRepo {
	return &AIResponseRepo{db: db}
}

func (r *AIResponseRepo) GetByID(ctx context.Context, id string) (*model.AIResponse, error) {
	items, err := r.list(ctx, map[string]interface{}{"id": id})
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, appErr.ErrNotFound
	}
	return &items[0], nil
}

// ListByUser returns the newest responses first.
func (r *AIResponseRepo) ListByUser(ctx context.Context, userID string) ([]model.AIResponse, error) {
	return r.list(ctx, map[string]interface{}{"user_id": userID, "_orderby": "ctime desc"})
}

func (r *AIResponseRepo) list(ctx context.Context, where map[string]interface{}) ([]model.AIResponse, error) {
	sqlStr, args, err := builder.BuildSelect("ai_responses", where, aiResponseFields)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var items []model.AIResponse
	for rows.Next() {
		var item model.AIResponse
		if err := rows.Scan(&item.ID, &item.UserID, &item.QuizID, &item.UserQuestion, &item.Topic, &item.AnswerText, &item.Ctime); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}
