package service

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Domain errors shared by services. Handlers map them to response codes.
var (
	ErrNotFound            = errors.New("not found")
	ErrEmailTaken          = errors.New("email already registered")
	ErrNotExamAuthor       = errors.New("not the author of this exam")
	ErrExamLocked          = errors.New("exam has attempts and can no longer be changed")
	ErrExamNotAvailable    = errors.New("exam is outside its availability window")
	ErrAttemptLimitReached = errors.New("attempt limit reached")
	ErrAlreadySubmitted    = errors.New("exam session already submitted")
	ErrSessionExpired      = errors.New("exam session time is up")
	ErrCannotDeleteSelf    = errors.New("cannot delete your own account")
)

// FieldError reports an invalid input field that binding tags cannot express.
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// notFound maps pgx.ErrNoRows to ErrNotFound and passes other errors through.
func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
