// Package expeditions manages group trips with a capped number of confirmed travellers
// and a waitlist for everyone past the cap.
package expeditions

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/voyager-crm/voyager/internal/platform/httpx"
)

// Status is the sales status of a registration. It is independent of the waitlist flag.
type Status string

const (
	StatusJoinedList Status = "entrou_na_lista"
	StatusProspect   Status = "em_captacao"
	StatusPending    Status = "pendente"
	StatusConfirmed  Status = "confirmado"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusJoinedList, StatusProspect, StatusPending, StatusConfirmed:
		return true
	}
	return false
}

var (
	ErrGroupNotFound        = fmt.Errorf("expedition group %w", httpx.ErrNotFound)
	ErrRegistrationNotFound = fmt.Errorf("expedition registration %w", httpx.ErrNotFound)
	ErrGroupFull            = fmt.Errorf("expedition group is full: %w", httpx.ErrConflict)
	ErrGroupClosed          = fmt.Errorf("expedition group is not accepting registrations: %w", httpx.ErrConflict)
	ErrNotWaitlisted        = fmt.Errorf("registration is not on the waitlist: %w", httpx.ErrConflict)
	ErrInvalidDates         = fmt.Errorf("%w: endDate must not precede startDate", httpx.ErrValidation)
)

// ShouldWaitlist decides the flag for a new registration given the current confirmed count.
func ShouldWaitlist(confirmed, maxParticipants int) bool {
	return confirmed >= maxParticipants
}

// DefaultStatus is the status a new registration starts with.
func DefaultStatus(waitlisted bool) Status {
	if waitlisted {
		return StatusJoinedList
	}
	return StatusConfirmed
}

// Group is an expedition with limited seats.
type Group struct {
	ID              uuid.UUID  `json:"id"`
	AgencyID        uuid.UUID  `json:"agencyId"`
	Name            string     `json:"name"`
	Destination     string     `json:"destination"`
	Description     string     `json:"description"`
	StartDate       *time.Time `json:"startDate,omitempty"`
	EndDate         *time.Time `json:"endDate,omitempty"`
	MaxParticipants int        `json:"maxParticipants"`
	PublicToken     string     `json:"publicToken"`
	Active          bool       `json:"active"`
	ConfirmedCount  int        `json:"confirmedCount"`
	WaitlistCount   int        `json:"waitlistCount"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

// SeatsLeft never goes below zero even when a group is over capacity.
func (g Group) SeatsLeft() int {
	return max(g.MaxParticipants-g.ConfirmedCount, 0)
}

// Registration is one traveller's sign-up for a group.
type Registration struct {
	ID         uuid.UUID `json:"id"`
	GroupID    uuid.UUID `json:"groupId"`
	Name       string    `json:"name"`
	Email      string    `json:"email"`
	Phone      string    `json:"phone"`
	IsWaitlist bool      `json:"isWaitlist"`
	Status     Status    `json:"status"`
	Notes      string    `json:"notes"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// Roster splits a group's registrations the way the management screen shows them.
type Roster struct {
	Group     Group          `json:"group"`
	Confirmed []Registration `json:"confirmed"`
	Waitlist  []Registration `json:"waitlist"`
}

// PublicGroup is what the unauthenticated registration page sees.
type PublicGroup struct {
	Name        string     `json:"name"`
	Destination string     `json:"destination"`
	Description string     `json:"description"`
	StartDate   *time.Time `json:"startDate,omitempty"`
	EndDate     *time.Time `json:"endDate,omitempty"`
	SeatsLeft   int        `json:"seatsLeft"`
	Waitlisting bool       `json:"waitlisting"`
}
