package shared

import (
	"fmt"

	"github.com/voyager-crm/voyager/internal/platform/httpx"
)

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = httpx.ErrNotFound
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = fmt.Errorf("invalid credentials: %w", httpx.ErrUnauthorized)
	// ErrNoPrincipal occurs when a protected handler runs without an authenticated caller.
	ErrNoPrincipal = fmt.Errorf("authentication required: %w", httpx.ErrUnauthorized)
)
