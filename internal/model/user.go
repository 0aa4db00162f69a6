package model

type User struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	PasswordHash string `json:"-"`
	PhoneNumber  string `json:"phone_number"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	IsStudent    bool   `json:"is_student"`
	IsTutor      bool   `json:"is_tutor"`
	Ctime        int64  `json:"ctime"`
	Mtime        int64  `json:"mtime"`
}
