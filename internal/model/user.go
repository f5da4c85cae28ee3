package model

import "time"

type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Nickname     string    `json:"nickname"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// UserPublic is the identity shape exposed to other users
// (room/message decoration, auth responses).
type UserPublic struct {
	ID       string `json:"id"`
	Nickname string `json:"nickname"`
}

func (u *User) ToPublic() UserPublic {
	return UserPublic{ID: u.ID, Nickname: u.Nickname}
}
