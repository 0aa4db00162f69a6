package model

type AIResponse struct {
	ID           string `json:"id"`
	UserID       string `json:"user_id"`
	QuizID       string `json:"quiz_id"`
	UserQuestion string `json:"user_question"`
	Topic        string `json:"topic"`
	AnswerText   string `json:"answer_text"`
	Ctime        int64  `json:"ctime"`
}
