package ports

import (
	"context"

	"github.com/srbenoit/mathops-sub032/internal/domain/model"
)

// RegistrationSource fetches live registration snapshots from the external
// system of record. Timeouts belong to the implementation.
type RegistrationSource interface {
	FetchRegistrations(ctx context.Context, studentID, termID string) ([]model.ExternalRegistration, error)
	// Ping performs a cheap reachability check used by manual probes.
	Ping(ctx context.Context) error
}
