package errors

import "google.golang.org/grpc/codes"

// Service codes (AA).
const (
	ServiceCommon        = 0
	ServiceCyPlan        = 30
	ServiceThirdPartyLLM = 94
)

// Category codes (BB). Categories 01-06 are client errors, 07-12 server errors.
const (
	CategorySuccess = iota
	CategoryRequest
	CategoryAuth
	CategoryPermission
	CategoryResource
	CategoryConflict
	CategoryRateLimit
	CategoryInternal
	CategoryDatabase
	CategoryCache
	CategoryNetwork
	CategoryTimeout
	CategoryConfig
)

// grpcByCategory is the gRPC code a category maps to unless a value overrides it.
var grpcByCategory = map[int]codes.Code{
	CategorySuccess:    codes.OK,
	CategoryRequest:    codes.InvalidArgument,
	CategoryAuth:       codes.Unauthenticated,
	CategoryPermission: codes.PermissionDenied,
	CategoryResource:   codes.NotFound,
	CategoryConflict:   codes.AlreadyExists,
	CategoryRateLimit:  codes.ResourceExhausted,
	CategoryNetwork:    codes.Unavailable,
	CategoryTimeout:    codes.DeadlineExceeded,
	CategoryConfig:     codes.FailedPrecondition,
}

// MakeCode packs service, category and sequence into AABBCCC.
func MakeCode(service, category, sequence int) int {
	return service*100000 + category*1000 + sequence
}

// ParseCode is the inverse of MakeCode.
func ParseCode(code int) (service, category, sequence int) {
	return code / 100000, code / 1000 % 100, code % 1000
}

func categoryOf(code int) int {
	_, c, _ := ParseCode(code)
	return c
}

func IsClientError(code int) bool {
	c := categoryOf(code)
	return c >= CategoryRequest && c <= CategoryRateLimit
}

func IsServerError(code int) bool {
	c := categoryOf(code)
	return c >= CategoryInternal && c <= CategoryConfig
}
