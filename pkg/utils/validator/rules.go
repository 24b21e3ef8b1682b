package validator

import (
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Custom validation tags
const (
	TagLibrary  = "library"  // library name: letters, digits, '_', '-', '.', 1-64 chars
	TagNotBlank = "notblank" // non-empty after trimming whitespace
	TagThreadID = "threadid" // "thread_" followed by 16 lowercase hex digits
	TagTrimmed  = "trimmed"  // no leading or trailing whitespace
)

var (
	libraryRegex  = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.\-]{0,63}$`)
	threadIDRegex = regexp.MustCompile(`^thread_[0-9a-f]{16}$`)
)

func (v *Validator) registerCustomRules() {
	_ = v.validate.RegisterValidation(TagLibrary, validateLibrary)
	_ = v.validate.RegisterValidation(TagNotBlank, validateNotBlank)
	_ = v.validate.RegisterValidation(TagThreadID, validateThreadID)
	_ = v.validate.RegisterValidation(TagTrimmed, validateTrimmed)
}

// Library names become vector ids and directory names, so ".." is rejected.
func validateLibrary(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	return libraryRegex.MatchString(s) && !strings.Contains(s, "..")
}

func validateNotBlank(fl validator.FieldLevel) bool {
	return strings.TrimSpace(fl.Field().String()) != ""
}

func validateThreadID(fl validator.FieldLevel) bool {
	return threadIDRegex.MatchString(fl.Field().String())
}

func validateTrimmed(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	return s == strings.TrimSpace(s)
}
