package repo

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"

	"github.com/xxxsen/aitutor/internal/model"
)

type AttemptRepo struct {
	db *sql.DB
	x  *sqlx.DB
}

func NewAttemptRepo(db *sql.DB) *AttemptRepo {
	return &AttemptRepo{db: db, x: sqlx.NewDb(db, "postgres")}
}

func (r *AttemptRepo) CreateBatch(ctx context.Context, attempts []model.QuizAttempt) error {
	if len(attempts) == 0 {
		return nil
	}
	data := make([]map[string]interface{}, 0, len(attempts))
	for _, a := range attempts {
		data = append(data, map[string]interface{}{
			"id":              a.ID,
			"user_id":         a.UserID,
			"quiz_id":         a.QuizID,
			"question_id":     a.QuestionID,
			"selected_option": a.SelectedOption,
			"is_correct":      a.IsCorrect,
			"ctime":           a.Ctime,
		})
	}
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		return insertRows(ctx, tx, "quiz_attempts", data)
	})
}

type attemptHistoryRow struct {
	Topic        string `db:"topic"`
	QuestionText string `db:"question_text"`
	IsCorrect    bool   `db:"is_correct"`
	Ctime        int64  `db:"ctime"`
}

// ListHistory returns the newest attempts of a user with the question text
// and quiz topic.
func (r *AttemptRepo) ListHistory(ctx context.Context, userID string, limit int) ([]model.AttemptHistory, error) {
	const query = `
		SELECT qz.topic, q.question_text, a.is_correct, a.ctime
		FROM quiz_attempts a
		JOIN questions q ON q.id = a.question_id
		JOIN quizzes qz ON qz.id = a.quiz_id
		WHERE a.user_id = ?
		ORDER BY a.ctime DESC, a.id DESC
		LIMIT ?
	`
	var rows []attemptHistoryRow
	if err := r.x.SelectContext(ctx, &rows, r.x.Rebind(query), userID, limit); err != nil {
		return nil, err
	}
	out := make([]model.AttemptHistory, 0, len(rows))
	for _, row := range rows {
		out = append(out, model.AttemptHistory(row))
	}
	return out, nil
}
