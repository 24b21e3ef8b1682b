package errors

import (
	stderrors "errors"
	"fmt"
	"sync"

	"google.golang.org/grpc/codes"
)

var registry sync.Map // int -> *Errno

// Register records e under its code. Codes are package level values, so a
// duplicate is a programming error and panics at init.
func Register(e *Errno) *Errno {
	if e.MessageEN == "" {
		panic(fmt.Sprintf("errno %d: english message is required", e.Code))
	}
	if prev, loaded := registry.LoadOrStore(e.Code, e); loaded {
		panic(fmt.Sprintf("errno %d already registered as %q", e.Code, prev.(*Errno).MessageEN))
	}
	return e
}

// Lookup returns the registered value for code.
func Lookup(code int) (*Errno, bool) {
	v, ok := registry.Load(code)
	if !ok {
		return nil, false
	}
	return v.(*Errno), true
}

// define builds and registers a value, deriving the gRPC code from the category.
func define(service, category, sequence, status int, en, zh string) *Errno {
	if service < 0 || service > 99 || category < 0 || category > 99 || sequence < 0 || sequence > 999 {
		panic(fmt.Sprintf("errno: code part out of range (%d, %d, %d)", service, category, sequence))
	}
	grpc, ok := grpcByCategory[category]
	if !ok {
		grpc = codes.Internal
	}
	return Register(&Errno{
		Code:      MakeCode(service, category, sequence),
		HTTP:      status,
		GRPCCode:  grpc,
		MessageEN: en,
		MessageZH: zh,
	})
}

// FromError returns the Errno in err's chain, or ErrInternal wrapping err.
func FromError(err error) *Errno {
	if err == nil {
		return nil
	}
	var e *Errno
	if stderrors.As(err, &e) {
		return e
	}
	return ErrInternal.WithCause(err)
}
