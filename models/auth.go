package models

import "time"

type JsonModel struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type GoogleAuthSignIn struct {
	IdToken  string `json:"idToken" validate:"required"`
	Platform string `json:"platform" validate:"required"`
}

type GoogleSignInOut struct {
	Email string `json:"email"`

	Id           uint   `json:"id"`
	New          bool   `json:"new"`
	Avatar       string `json:"avatar"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

type UserMeInfoOut struct {
	Id         uint    `json:"id"`
	Name       string  `json:"name"`
	Email      string  `json:"email"`
	AvatarURL  string  `json:"avatar_url"`
	SubjectSet bool    `json:"subject_set"`
	SubjectURL *string `json:"subject_url"`
}
