package errs

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind — класс ошибки для маппинга в HTTP-статусы и политику ретраев.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindCapacityExceeded
	KindExternalFetch
	KindAuditWrite
	KindForbidden
)

type Error struct {
	kind Kind
	msg  string
	// Падения валидации идут с деталями по полям.
	Fields map[string]string
	cause  error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.msg, e.cause)
	}
	return e.msg
}

func (e *Error) Unwrap() error { return e.cause }

func (e *Error) Kind() Kind { return e.kind }

func New(kind Kind, msg string) *Error {
	return &Error{kind: kind, msg: msg}
}

func Wrap(kind Kind, err error, msg string) *Error {
	return &Error{kind: kind, msg: msg, cause: err}
}

func Validation(msg string, fields map[string]string) *Error {
	return &Error{kind: KindValidation, msg: msg, Fields: fields}
}

func NotFound(entity string, id uint64) *Error {
	return &Error{kind: KindNotFound, msg: fmt.Sprintf("%s %d not found", entity, id)}
}

func CapacityExceeded(containerID uint64) *Error {
	return &Error{kind: KindCapacityExceeded, msg: fmt.Sprintf("container %d is at capacity", containerID)}
}

func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.kind
	}
	return KindInternal
}

func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
