// Package http configures the HTTP listener that serves the agent API.
package http

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/pflag"

	"github.com/kart-io/cyplan/pkg/options"
)

var _ options.IOptions = (*Options)(nil)

type Options struct {
	Addr        string        `json:"addr" mapstructure:"addr"`
	ReadTimeout time.Duration `json:"read-timeout" mapstructure:"read-timeout"`
	// WriteTimeout stays 0 by default: a positive value would cut off
	// long-running server-sent event streams.
	WriteTimeout    time.Duration `json:"write-timeout" mapstructure:"write-timeout"`
	IdleTimeout     time.Duration `json:"idle-timeout" mapstructure:"idle-timeout"`
	ShutdownTimeout time.Duration `json:"shutdown-timeout" mapstructure:"shutdown-timeout"`
	Mode            string        `json:"mode" mapstructure:"mode"`
}

func NewOptions() *Options {
	return &Options{
		Addr:            ":2024",
		ReadTimeout:     30 * time.Second,
		IdleTimeout:     60 * time.Second,
		ShutdownTimeout: 15 * time.Second,
		Mode:            gin.ReleaseMode,
	}
}

func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := options.Join(prefixes...) + "http."
	fs.StringVar(&o.Addr, p+"addr", o.Addr, "Listen address as [host]:port.")
	fs.DurationVar(&o.ReadTimeout, p+"read-timeout", o.ReadTimeout, "Deadline for reading a whole request.")
	fs.DurationVar(&o.WriteTimeout, p+"write-timeout", o.WriteTimeout, "Deadline for writing a response, 0 for none.")
	fs.DurationVar(&o.IdleTimeout, p+"idle-timeout", o.IdleTimeout, "How long an idle keep-alive connection is kept.")
	fs.DurationVar(&o.ShutdownTimeout, p+"shutdown-timeout", o.ShutdownTimeout, "How long shutdown waits for in-flight requests.")
	fs.StringVar(&o.Mode, p+"mode", o.Mode, "Gin mode: debug, release or test.")
}

func (o *Options) Complete() error { return nil }

func (o *Options) Validate() []error {
	if o == nil {
		return nil
	}
	var errs []error
	if _, _, err := net.SplitHostPort(o.Addr); err != nil {
		errs = append(errs, fmt.Errorf("http.addr %q: %w", o.Addr, err))
	}
	if o.ReadTimeout <= 0 || o.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("http.read-timeout and http.shutdown-timeout must be positive"))
	}
	if o.WriteTimeout < 0 || o.IdleTimeout < 0 {
		errs = append(errs, errors.New("http.write-timeout and http.idle-timeout must not be negative"))
	}
	switch o.Mode {
	case gin.DebugMode, gin.ReleaseMode, gin.TestMode:
	default:
		errs = append(errs, fmt.Errorf("http.mode %q is not debug, release or test", o.Mode))
	}
	return errs
}
