package expeditions

import "time"

// CreateGroupRequest creates an expedition group.
type CreateGroupRequest struct {
	Name            string     `json:"name" validate:"required,max=160"`
	Destination     string     `json:"destination" validate:"max=160"`
	Description     string     `json:"description" validate:"max=5000"`
	StartDate       *time.Time `json:"startDate"`
	EndDate         *time.Time `json:"endDate"`
	MaxParticipants int        `json:"maxParticipants" validate:"gte=1,lte=10000"`
}

// UpdateGroupRequest patches a group.
type UpdateGroupRequest struct {
	Name            *string    `json:"name" validate:"omitempty,max=160"`
	Destination     *string    `json:"destination" validate:"omitempty,max=160"`
	Description     *string    `json:"description" validate:"omitempty,max=5000"`
	StartDate       *time.Time `json:"startDate"`
	EndDate         *time.Time `json:"endDate"`
	MaxParticipants *int       `json:"maxParticipants" validate:"omitempty,gte=1,lte=10000"`
	Active          *bool      `json:"active"`
}

// RegisterRequest signs a traveller up. Status is only honoured on the authenticated route.
type RegisterRequest struct {
	Name   string `json:"name" validate:"required,max=160"`
	Email  string `json:"email" validate:"omitempty,email"`
	Phone  string `json:"phone" validate:"omitempty,max=40"`
	Notes  string `json:"notes" validate:"max=2000"`
	Status string `json:"status" validate:"omitempty,oneof=entrou_na_lista em_captacao pendente confirmado"`
}

// UpdateRegistrationRequest patches contact data and status.
type UpdateRegistrationRequest struct {
	Name   *string `json:"name" validate:"omitempty,max=160"`
	Email  *string `json:"email" validate:"omitempty,email"`
	Phone  *string `json:"phone" validate:"omitempty,max=40"`
	Notes  *string `json:"notes" validate:"omitempty,max=2000"`
	Status *string `json:"status" validate:"omitempty,oneof=entrou_na_lista em_captacao pendente confirmado"`
}

// CreateRegistrationRequest is the authenticated registration body.
type CreateRegistrationRequest struct {
	GroupID string `json:"groupId" validate:"required,uuid"`
	RegisterRequest
}
