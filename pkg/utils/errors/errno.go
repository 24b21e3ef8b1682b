// Package errors defines the numbered error values CyPlan returns over HTTP.
//
// Codes use the layout AABBCCC: a two digit service, a two digit category
// and a three digit sequence. Every value carries an HTTP status, a gRPC
// code and an English plus Chinese message.
//
//	return errors.ErrPlanNotFound.WithMessagef("plan %s not found", id)
//	return errors.ErrIngestFailed.WithCause(err)
package errors

import (
	"fmt"
	"net/http"

	"google.golang.org/grpc/codes"
)

// Errno is a registered error value. Derived copies made through the With*
// methods keep the code so errors.Is still matches the registered value.
type Errno struct {
	Code      int        `json:"code"`
	HTTP      int        `json:"-"`
	GRPCCode  codes.Code `json:"-"`
	MessageEN string     `json:"message"`
	MessageZH string     `json:"message_zh,omitempty"`

	cause error
}

func (e *Errno) Error() string {
	msg := fmt.Sprintf("errno %d: %s", e.Code, e.MessageEN)
	if e.cause == nil {
		return msg
	}
	return msg + ": " + e.cause.Error()
}

func (e *Errno) Unwrap() error { return e.cause }

// Is reports whether target is an Errno with the same code.
func (e *Errno) Is(target error) bool {
	t, ok := target.(*Errno)
	return ok && t.Code == e.Code
}

func (e *Errno) clone() *Errno {
	c := *e
	return &c
}

// WithCause returns a copy wrapping cause.
func (e *Errno) WithCause(cause error) *Errno {
	c := e.clone()
	c.cause = cause
	return c
}

// WithMessage returns a copy with a request specific English message.
func (e *Errno) WithMessage(msg string) *Errno {
	c := e.clone()
	c.MessageEN = msg
	return c
}

func (e *Errno) WithMessagef(format string, args ...any) *Errno {
	return e.WithMessage(fmt.Sprintf(format, args...))
}

// Message picks the Chinese text for zh locales when one is set.
func (e *Errno) Message(lang string) string {
	switch lang {
	case "zh", "zh-CN", "zh_CN":
		if e.MessageZH != "" {
			return e.MessageZH
		}
	}
	return e.MessageEN
}

// HTTPStatus falls back to 500 for values built without a status.
func (e *Errno) HTTPStatus() int {
	if e.HTTP == 0 {
		return http.StatusInternalServerError
	}
	return e.HTTP
}

func (e *Errno) GRPCStatus() codes.Code {
	if e.GRPCCode == codes.OK && e.Code != 0 {
		return codes.Internal
	}
	return e.GRPCCode
}
