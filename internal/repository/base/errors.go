package base

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/Freeeeeet/tuition_scheduler/internal/errs"
)

// Коды PostgreSQL, которые нужно различать
const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeLockNotAvailable     = "55P03"
	codeUniqueViolation      = "23505"
	codeForeignKeyViolation  = "23503"
	codeCheckViolation       = "23514"
	classDataException       = "22"
)

// Classify приводит ошибку драйвера к типу из errs.
// Ошибки, уже имеющие тип, возвращаются как есть.
func Classify(err error) error {
	if err == nil {
		return nil
	}

	var typed *errs.Error
	if errors.As(err, &typed) {
		return err
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == codeSerializationFailure,
			pgErr.Code == codeDeadlockDetected,
			pgErr.Code == codeLockNotAvailable:
			return errs.Contention("storage lock contention").
				Arg("code", pgErr.Code).
				Wrap(err)
		case pgErr.Code == codeUniqueViolation:
			return errs.Conflict("duplicate record").
				Arg("constraint", pgErr.ConstraintName).
				Wrap(err)
		case pgErr.Code == codeForeignKeyViolation:
			return errs.NotFound("referenced record does not exist").
				Arg("constraint", pgErr.ConstraintName).
				Wrap(err)
		case pgErr.Code == codeCheckViolation, strings.HasPrefix(pgErr.Code, classDataException):
			return errs.Validation("invalid data").
				Arg("constraint", pgErr.ConstraintName).
				Wrap(err)
		}
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errs.Infrastructure("storage operation timed out").Wrap(err)
	}

	return errs.Infrastructure("storage failure").Wrap(err)
}
