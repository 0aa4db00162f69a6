package model

type Quiz struct {
	ID        string `json:"id"`
	Topic     string `json:"topic"`
	CreatedBy string `json:"created_by"`
	Ctime     int64  `json:"ctime"`
}

type Question struct {
	ID             string `json:"id"`
	QuizID         string `json:"quiz_id"`
	QuestionNumber string `json:"question_number"`
	QuestionText   string `json:"question_text"`
	Option1        string `json:"option_1"`
	Option2        string `json:"option_2"`
	Option3        string `json:"option_3"`
	Option4        string `json:"option_4"`
	CorrectOption  int    `json:"correct_option"`
	Difficulty     string `json:"difficulty"`
	Ctime          int64  `json:"ctime"`
}

type QuizAttempt struct {
	ID             string `json:"id"`
	UserID         string `json:"user_id"`
	QuizID         string `json:"quiz_id"`
	QuestionID     string `json:"question_id"`
	SelectedOption int    `json:"selected_option"`
	IsCorrect      bool   `json:"is_correct"`
	Ctime          int64  `json:"ctime"`
}

// AttemptHistory is an attempt joined with its question and quiz topic.
type AttemptHistory struct {
	Topic        string
	QuestionText string
	IsCorrect    bool
	Ctime        int64
}
