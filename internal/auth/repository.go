package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/aura-events/backend/internal/models"
)

// ErrOperatorNotFound is returned for an unknown operator email.
var ErrOperatorNotFound = errors.New("operator not found")

// OperatorStore looks operators up by email.
type OperatorStore interface {
	GetByEmail(ctx context.Context, email string) (*models.Operator, error)
}

// StaticOperators is an OperatorStore over operators configured at startup.
type StaticOperators struct {
	byEmail map[string]models.Operator
}

// NewStaticOperators creates the store. Operators without an email or password hash are skipped.
func NewStaticOperators(ops ...models.Operator) *StaticOperators {
	s := &StaticOperators{byEmail: make(map[string]models.Operator, len(ops))}
	for _, op := range ops {
		email := strings.ToLower(strings.TrimSpace(op.Email))
		if email == "" || op.PasswordHash == "" {
			continue
		}
		op.Email = email
		if op.ID == uuid.Nil {
			op.ID = models.OperatorID(email)
		}
		if op.Role == "" {
			op.Role = models.RoleAdmin
		}
		s.byEmail[email] = op
	}
	return s
}

// GetByEmail returns a copy of the operator.
func (s *StaticOperators) GetByEmail(_ context.Context, email string) (*models.Operator, error) {
	op, ok := s.byEmail[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return nil, ErrOperatorNotFound
	}
	return &op, nil
}

// Len returns how many operators can log in.
func (s *StaticOperators) Len() int { return len(s.byEmail) }
