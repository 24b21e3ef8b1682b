// Package middleware defines options of the HTTP middleware chain.
package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/kart-io/cyplan/pkg/options"
)

var _ options.IOptions = (*Options)(nil)

// Options groups the options of every middleware in the chain.
type Options struct {
	Recovery  *RecoveryOptions  `json:"recovery" mapstructure:"recovery"`
	RequestID *RequestIDOptions `json:"request-id" mapstructure:"request-id"`
	Logger    *LoggerOptions    `json:"logger" mapstructure:"logger"`
	CORS      *CORSOptions      `json:"cors" mapstructure:"cors"`
	Timeout   *TimeoutOptions   `json:"timeout" mapstructure:"timeout"`
}

// NewOptions creates Options with defaults.
func NewOptions() *Options {
	return &Options{
		Recovery:  NewRecoveryOptions(),
		RequestID: NewRequestIDOptions(),
		Logger:    NewLoggerOptions(),
		CORS:      NewCORSOptions(),
		Timeout:   NewTimeoutOptions(),
	}
}

// AddFlags adds flags of all middleware options.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	o.Recovery.AddFlags(fs, prefixes...)
	o.RequestID.AddFlags(fs, prefixes...)
	o.Logger.AddFlags(fs, prefixes...)
	o.CORS.AddFlags(fs, prefixes...)
	o.Timeout.AddFlags(fs, prefixes...)
}

// Validate validates all middleware options.
func (o *Options) Validate() []error {
	if o == nil {
		return nil
	}
	var errs []error
	errs = append(errs, o.RequestID.Validate()...)
	errs = append(errs, o.CORS.Validate()...)
	errs = append(errs, o.Timeout.Validate()...)
	return errs
}

// Complete completes the options.
func (o *Options) Complete() error {
	if o.Recovery == nil {
		o.Recovery = NewRecoveryOptions()
	}
	if o.RequestID == nil {
		o.RequestID = NewRequestIDOptions()
	}
	if o.Logger == nil {
		o.Logger = NewLoggerOptions()
	}
	if o.CORS == nil {
		o.CORS = NewCORSOptions()
	}
	if o.Timeout == nil {
		o.Timeout = NewTimeoutOptions()
	}
	return nil
}

// RecoveryOptions defines recovery middleware options.
type RecoveryOptions struct {
	EnableStackTrace bool `json:"enable-stack-trace" mapstructure:"enable-stack-trace"`
}

// NewRecoveryOptions creates default recovery options.
func NewRecoveryOptions() *RecoveryOptions {
	return &RecoveryOptions{}
}

// AddFlags adds flags for recovery options.
func (o *RecoveryOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.BoolVar(&o.EnableStackTrace, options.Join(prefixes...)+"middleware.recovery.enable-stack-trace", o.EnableStackTrace, "Include the stack trace in panic responses.")
}

// RequestIDOptions defines request ID middleware options.
type RequestIDOptions struct {
	Header string `json:"header" mapstructure:"header"`
	// GeneratorType is hex (32 chars) or ulid (26 chars, sortable).
	GeneratorType string `json:"generator-type" mapstructure:"generator-type"`
}

// NewRequestIDOptions creates default request ID options.
func NewRequestIDOptions() *RequestIDOptions {
	return &RequestIDOptions{
		Header:        "X-Request-ID",
		GeneratorType: "hex",
	}
}

// AddFlags adds flags for request ID options.
func (o *RequestIDOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.Header, options.Join(prefixes...)+"middleware.request-id.header", o.Header, "Request ID header name.")
	fs.StringVar(&o.GeneratorType, options.Join(prefixes...)+"middleware.request-id.generator", o.GeneratorType, "Request ID generator: hex or ulid.")
}

// Validate validates the request ID options.
func (o *RequestIDOptions) Validate() []error {
	if o == nil {
		return nil
	}
	var errs []error
	if o.Header == "" {
		errs = append(errs, errors.New("request-id: header cannot be empty"))
	}
	switch o.GeneratorType {
	case "", "hex", "random", "ulid":
	default:
		errs = append(errs, fmt.Errorf("request-id: unknown generator %q", o.GeneratorType))
	}
	return errs
}

// LoggerOptions defines access log middleware options.
type LoggerOptions struct {
	SkipPaths []string `json:"skip-paths" mapstructure:"skip-paths"`
}

// NewLoggerOptions creates default logger middleware options.
func NewLoggerOptions() *LoggerOptions {
	return &LoggerOptions{
		SkipPaths: []string{"/health", "/ready", "/metrics"},
	}
}

// AddFlags adds flags for logger middleware options.
func (o *LoggerOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringSliceVar(&o.SkipPaths, options.Join(prefixes...)+"middleware.logger.skip-paths", o.SkipPaths, "Paths excluded from the access log.")
}

// CORSOptions defines CORS middleware options.
type CORSOptions struct {
	AllowOrigins     []string `json:"allow-origins" mapstructure:"allow-origins"`
	AllowMethods     []string `json:"allow-methods" mapstructure:"allow-methods"`
	AllowHeaders     []string `json:"allow-headers" mapstructure:"allow-headers"`
	ExposeHeaders    []string `json:"expose-headers" mapstructure:"expose-headers"`
	AllowCredentials bool     `json:"allow-credentials" mapstructure:"allow-credentials"`
	MaxAge           int      `json:"max-age" mapstructure:"max-age"`
}

// NewCORSOptions creates default CORS options for a local web client.
func NewCORSOptions() *CORSOptions {
	return &CORSOptions{
		AllowOrigins: []string{"http://localhost:3000"},
		AllowMethods: []string{
			http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch,
			http.MethodDelete, http.MethodHead, http.MethodOptions,
		},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID"},
		ExposeHeaders:    []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           86400,
	}
}

// AddFlags adds flags for CORS options.
func (o *CORSOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := options.Join(prefixes...) + "middleware.cors."
	fs.StringSliceVar(&o.AllowOrigins, p+"allow-origins", o.AllowOrigins, "CORS allowed origins.")
	fs.StringSliceVar(&o.AllowMethods, p+"allow-methods", o.AllowMethods, "CORS allowed methods.")
	fs.StringSliceVar(&o.AllowHeaders, p+"allow-headers", o.AllowHeaders, "CORS allowed headers.")
	fs.StringSliceVar(&o.ExposeHeaders, p+"expose-headers", o.ExposeHeaders, "CORS exposed headers.")
	fs.BoolVar(&o.AllowCredentials, p+"allow-credentials", o.AllowCredentials, "CORS allow credentials.")
	fs.IntVar(&o.MaxAge, p+"max-age", o.MaxAge, "CORS preflight max age in seconds.")
}

// Validate rejects an empty origin list, malformed origins and a wildcard
// origin combined with credentials.
func (o *CORSOptions) Validate() []error {
	if o == nil {
		return nil
	}
	if len(o.AllowOrigins) == 0 {
		return []error{errors.New("cors: allow-origins must be explicitly configured")}
	}

	var errs []error
	wildcard := false
	for _, origin := range o.AllowOrigins {
		if origin == "*" {
			wildcard = true
			continue
		}
		if err := validateOrigin(origin); err != nil {
			errs = append(errs, fmt.Errorf("cors: invalid origin %q: %w", origin, err))
		}
	}
	if wildcard && o.AllowCredentials {
		errs = append(errs, errors.New("cors: wildcard origin cannot be used with allow-credentials"))
	}
	return errs
}

// validateOrigin checks the scheme://host[:port] form.
func validateOrigin(origin string) error {
	i := strings.Index(origin, "://")
	if i <= 0 {
		return errors.New("origin must include a scheme")
	}
	if rest := origin[i+3:]; rest == "" || strings.ContainsAny(rest, "/?#") {
		return errors.New("origin must be scheme://host[:port]")
	}
	return nil
}

// TimeoutOptions bounds request handling time. Paths with a skipped prefix,
// such as streaming runs, are not bounded.
type TimeoutOptions struct {
	Timeout      time.Duration `json:"timeout" mapstructure:"timeout"`
	SkipPrefixes []string      `json:"skip-prefixes" mapstructure:"skip-prefixes"`
}

// NewTimeoutOptions creates default timeout options.
func NewTimeoutOptions() *TimeoutOptions {
	return &TimeoutOptions{
		Timeout:      2 * time.Minute,
		SkipPrefixes: []string{"/threads/"},
	}
}

// AddFlags adds flags for timeout options.
func (o *TimeoutOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.DurationVar(&o.Timeout, options.Join(prefixes...)+"middleware.timeout.timeout", o.Timeout, "Request timeout, 0 disables it.")
	fs.StringSliceVar(&o.SkipPrefixes, options.Join(prefixes...)+"middleware.timeout.skip-prefixes", o.SkipPrefixes, "Path prefixes without a request timeout.")
}

// Validate validates the timeout options.
func (o *TimeoutOptions) Validate() []error {
	if o == nil {
		return nil
	}
	if o.Timeout < 0 {
		return []error{errors.New("timeout: must not be negative")}
	}
	return nil
}
