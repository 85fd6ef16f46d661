package model

import "time"

type Role string

const (
	RoleTutor   Role = "tutor"
	RoleStudent Role = "student"
	RoleAdmin   Role = "admin"
)

type User struct {
	ID             int64      `json:"id"`
	Role           Role       `json:"role"`
	FirstName      string     `json:"first_name"`
	LastName       string     `json:"last_name"`
	Email          string     `json:"email"`
	TelegramChatID *int64     `json:"telegram_chat_id"` // nil - уведомления в Telegram не отправляются
	IsActive       bool       `json:"is_active"`
	EnrollmentFrom *time.Time `json:"enrollment_from"` // только для студентов
	EnrollmentTo   *time.Time `json:"enrollment_to"`   // nil - обучение без даты окончания
	CreatedAt      time.Time  `json:"created_at"`
}

// FullName возвращает имя для уведомлений
func (u *User) FullName() string {
	if u.LastName == "" {
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}

func (u *User) IsTutor() bool   { return u.Role == RoleTutor }
func (u *User) IsStudent() bool { return u.Role == RoleStudent }

// Actor - кто выполняет операцию. Аутентификация вне этого модуля,
// сюда приходит уже проверенная личность.
type Actor struct {
	UserID int64 `json:"user_id"`
	Role   Role  `json:"role"`
}

func (a Actor) IsAdmin() bool { return a.Role == RoleAdmin }

// Is проверяет, что актор - указанный пользователь
func (a Actor) Is(userID int64) bool { return a.UserID == userID }
