package repo

import (
	"context"
	"database/sql"

	"github.com/didi/gendry/builder"

	"github.com/xxxsen/aitutor/internal/model"
	"github.com/xxxsen/aitutor/internal/pkg/dbutil"
	appErr "github.com/xxxsen/aitutor/internal/pkg/errors"
)

var questionFields = []string{"id", "quiz_id", "question_number", "question_text", "option_1", "option_2", "option_3", "option_4", "correct_option", "difficulty", "ctime"}

type QuizRepo struct {
	db *sql.DB
}

func NewQuizRepo(db *sql.DB) *QuizRepo {
	return &QuizRepo{db: db}
}

// SaveTutorResult stores a generated quiz, its questions and the answer that
// produced them in one transaction.
func (r *QuizRepo) SaveTutorResult(ctx context.Context, quiz *model.Quiz, questions []model.Question, resp *model.AIResponse) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		if err := insertRows(ctx, tx, "quizzes", []map[string]interface{}{{
			"id":         quiz.ID,
			"topic":      quiz.Topic,
			"created_by": quiz.CreatedBy,
			"ctime":      quiz.Ctime,
		}}); err != nil {
			return err
		}
		if len(questions) > 0 {
			data := make([]map[string]interface{}, 0, len(questions))
			for _, q := range questions {
				data = append(data, map[string]interface{}{
					"id":              q.ID,
					"quiz_id":         q.QuizID,
					"question_number": q.QuestionNumber,
					"question_text":   q.QuestionText,
					"option_1":        q.Option1,
					"option_2":        q.Option2,
					"option_3":        q.Option3,
					"option_4":        q.Option4,
					"correct_option":  q.CorrectOption,
					"difficulty":      q.Difficulty,
					"ctime":           q.Ctime,
				})
			}
			if err := insertRows(ctx, tx, "questions", data); err != nil {
				return err
			}
		}
		return insertRows(ctx, tx, "ai_responses", []map[string]interface{}{{
			"id":            resp.ID,
			"user_id":       resp.UserID,
			"quiz_id":       resp.QuizID,
			"user_question": resp.UserQuestion,
			"topic":         resp.Topic,
			"answer_text":   resp.AnswerText,
			"ctime":         resp.Ctime,
		}})
	})
}

func (r *QuizRepo) GetQuiz(ctx context.Context, quizID string) (*model.Quiz, error) {
	sqlStr, args, err := builder.BuildSelect("quizzes", map[string]interface{}{"id": quizID}, []string{"id", "topic", "created_by", "ctime"})
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	var quiz model.Quiz
	err = r.db.QueryRowContext(ctx, sqlStr, args...).Scan(&quiz.ID, &quiz.Topic, &quiz.CreatedBy, &quiz.Ctime)
	if err == sql.ErrNoRows {
		return nil, appErr.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &quiz, nil
}

func (r *QuizRepo) ListQuestions(ctx context.Context, quizID string) ([]model.Question, error) {
	return r.listQuestions(ctx, map[string]interface{}{"quiz_id": quizID, "_orderby": "question_number asc"})
}

func (r *QuizRepo) GetQuestion(ctx context.Context, questionID string) (*model.Question, error) {
	items, err := r.listQuestions(ctx, map[string]interface{}{"id": questionID})
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, appErr.ErrNotFound
	}
	return &items[0], nil
}

func (r *QuizRepo) GetQuestionsByIDs(ctx context.Context, ids []string) (map[string]model.Question, error) {
	out := make(map[string]model.Question, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	in := make([]interface{}, 0, len(ids))
	for _, id := range ids {
		in = append(in, id)
	}
	items, err := r.listQuestions(ctx, map[string]interface{}{"id in": in})
	if err != nil {
		return nil, err
	}
	for _, item := range items {
		out[item.ID] = item
	}
	return out, nil
}

func (r *QuizRepo) listQuestions(ctx context.Context, where map[string]interface{}) ([]model.Question, error) {
	sqlStr, args, err := builder.BuildSelect("questions", where, questionFields)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var items []model.Question
	for rows.Next() {
		var q model.Question
		if err := rows.Scan(&q.ID, &q.QuizID, &q.QuestionNumber, &q.QuestionText, &q.Option1, &q.Option2, &q.Option3, &q.Option4,
			&q.CorrectOption, &q.Difficulty, &q.Ctime); err != nil {
			return nil, err
		}
		items = append(items, q)
	}
	return items, rows.Err()
}

func insertRows(ctx context.Context, db execer, table string, data []map[string]interface{}) error {
	sqlStr, args, err := builder.BuildInsert(table, data)
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	_, err = db.ExecContext(ctx, sqlStr, args...)
	if err != nil && dbutil.IsConflict(err) {
		return appErr.ErrConflict
	}
	return err
}
