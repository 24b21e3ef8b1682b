// Package milvusopts configures the Milvus vector backend.
package milvusopts

import (
	"errors"
	"net"
	"time"

	"github.com/spf13/pflag"

	"github.com/kart-io/cyplan/pkg/options"
)

// DefaultPort is appended to addresses given without one.
const DefaultPort = "19530"

var _ options.IOptions = (*Options)(nil)

type Options struct {
	Address  string `json:"address" mapstructure:"address"`
	Database string `json:"database" mapstructure:"database"`
	Username string `json:"username" mapstructure:"username"`
	Password string `json:"-" mapstructure:"password"`
	// Timeout bounds the initial connection.
	Timeout time.Duration `json:"timeout" mapstructure:"timeout"`
}

func NewOptions() *Options {
	return &Options{
		Address:  net.JoinHostPort("localhost", DefaultPort),
		Database: "default",
		Timeout:  30 * time.Second,
	}
}

func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := options.Join(prefixes...) + "milvus."
	fs.StringVar(&o.Address, p+"address", o.Address, "Milvus address as host[:port].")
	fs.StringVar(&o.Database, p+"database", o.Database, "Milvus database name.")
	fs.StringVar(&o.Username, p+"username", o.Username, "Milvus username, empty for anonymous access.")
	fs.StringVar(&o.Password, p+"password", o.Password, "Milvus password.")
	fs.DurationVar(&o.Timeout, p+"timeout", o.Timeout, "Milvus connect timeout.")
}

// Complete adds the default port to a bare host.
func (o *Options) Complete() error {
	if o.Address == "" {
		return nil
	}
	if _, _, err := net.SplitHostPort(o.Address); err != nil {
		o.Address = net.JoinHostPort(o.Address, DefaultPort)
	}
	return nil
}

func (o *Options) Validate() []error {
	if o == nil {
		return nil
	}
	var errs []error
	if _, _, err := net.SplitHostPort(o.Address); err != nil {
		errs = append(errs, errors.New("milvus.address must be host:port"))
	}
	if o.Password != "" && o.Username == "" {
		errs = append(errs, errors.New("milvus.password set without milvus.username"))
	}
	if o.Timeout <= 0 {
		errs = append(errs, errors.New("milvus.timeout must be positive"))
	}
	return errs
}
