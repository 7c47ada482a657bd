package models

import (
	"time"

	"github.com/google/uuid"
)

// Subscriber is one accepted submission as stored in the subscriptions table.
type Subscriber struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	SubscribedAt time.Time `json:"subscribed_at"`
}

// SubscribeForm is the form-encoded body of POST /subscribe. Any non-empty
// value is accepted for either field.
type SubscribeForm struct {
	Name  string `form:"name" binding:"required"`
	Email string `form:"email" binding:"required"`
}

func NewSubscriber(email, name string, subscribedAt time.Time) *Subscriber {
	return &Subscriber{
		ID:           uuid.New(),
		Email:        email,
		Name:         name,
		SubscribedAt: subscribedAt,
	}
}
