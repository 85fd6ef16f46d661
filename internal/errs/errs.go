package errs

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Kind классифицирует ошибку для вызывающей стороны
type Kind string

const (
	KindValidation     Kind = "validation"
	KindNotFound       Kind = "not_found"
	KindConflict       Kind = "conflict"
	KindState          Kind = "state"
	KindContention     Kind = "contention"
	KindInfrastructure Kind = "infrastructure"
)

// Сентинелы для errors.Is: сравнение идёт только по Kind
var (
	ErrValidation     = &Error{kind: KindValidation}
	ErrNotFound       = &Error{kind: KindNotFound}
	ErrConflict       = &Error{kind: KindConflict}
	ErrState          = &Error{kind: KindState}
	ErrContention     = &Error{kind: KindContention}
	ErrInfrastructure = &Error{kind: KindInfrastructure}
)

// Error ошибка с типом, аргументами и обёрнутой причиной
type Error struct {
	kind    Kind
	message string
	args    map[string]any
	wrapped error
}

func newError(kind Kind, message string) *Error {
	return &Error{kind: kind, message: message, args: make(map[string]any)}
}

func Validation(message string) *Error     { return newError(KindValidation, message) }
func NotFound(message string) *Error       { return newError(KindNotFound, message) }
func Conflict(message string) *Error       { return newError(KindConflict, message) }
func State(message string) *Error          { return newError(KindState, message) }
func Contention(message string) *Error     { return newError(KindContention, message) }
func Infrastructure(message string) *Error { return newError(KindInfrastructure, message) }

// Arg добавляет аргумент к ошибке
func (e *Error) Arg(key string, value any) *Error {
	e.args[key] = value
	return e
}

// Wrap оборачивает причину
func (e *Error) Wrap(err error) *Error {
	if err != nil {
		e.wrapped = err
	}
	return e
}

func (e *Error) Unwrap() error {
	return e.wrapped
}

// Is сравнивает по Kind, чтобы работал errors.Is(err, errs.ErrConflict)
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.kind == e.kind && (t.message == "" || t.message == e.message)
}

func (e *Error) Kind() Kind {
	return e.kind
}

func (e *Error) Message() string {
	return e.message
}

// Args возвращает копию аргументов
func (e *Error) Args() map[string]any {
	out := make(map[string]any, len(e.args))
	for k, v := range e.args {
		out[k] = v
	}
	return out
}

func (e *Error) Error() string {
	var b strings.Builder

	b.WriteString(string(e.kind))
	b.WriteString(": ")
	b.WriteString(e.message)

	if len(e.args) > 0 {
		keys := make([]string, 0, len(e.args))
		for k := range e.args {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		b.WriteString(" (")
		for i, k := range keys {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%s=%v", k, e.args[k])
		}
		b.WriteString(")")
	}

	if e.wrapped != nil {
		b.WriteString(": ")
		b.WriteString(e.wrapped.Error())
	}

	return b.String()
}

// KindOf возвращает Kind первой *Error в цепочке; для прочих ошибок infrastructure
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.kind
	}
	return KindInfrastructure
}

// Is проверяет, что ошибка относится к указанному Kind
func Is(err error, kind Kind) bool {
	if err == nil {
		return false
	}
	return KindOf(err) == kind
}
