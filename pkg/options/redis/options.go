// Package redis holds the connection settings for the cache redis.
package redis

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/kart-io/cyplan/pkg/options"
	"github.com/kart-io/cyplan/pkg/utils/json"
)

var _ options.IOptions = (*Options)(nil)

const redactedPassword = "[REDACTED]"

// Environment fallbacks read by Complete.
const (
	PasswordEnv = "REDIS_PASSWORD"
	// URLEnv holds redis://[:password@]host[:port][/db]. It only fills
	// fields still at their defaults.
	URLEnv = "REDIS_URL"
)

type Options struct {
	Host         string        `json:"host" mapstructure:"host"`
	Port         int           `json:"port" mapstructure:"port"`
	Password     string        `json:"-" mapstructure:"password"`
	Database     int           `json:"database" mapstructure:"database"`
	MaxRetries   int           `json:"max-retries" mapstructure:"max-retries"`
	PoolSize     int           `json:"pool-size" mapstructure:"pool-size"`
	MinIdleConns int           `json:"min-idle-conns" mapstructure:"min-idle-conns"`
	DialTimeout  time.Duration `json:"dial-timeout" mapstructure:"dial-timeout"`
	ReadTimeout  time.Duration `json:"read-timeout" mapstructure:"read-timeout"`
	WriteTimeout time.Duration `json:"write-timeout" mapstructure:"write-timeout"`
	PoolTimeout  time.Duration `json:"pool-timeout" mapstructure:"pool-timeout"`
}

func NewOptions() *Options {
	return &Options{
		Host:         "127.0.0.1",
		Port:         6379,
		MaxRetries:   3,
		PoolSize:     10,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolTimeout:  4 * time.Second,
	}
}

func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := options.Join(prefixes...) + "redis."
	fs.StringVar(&o.Host, p+"host", o.Host, "Redis host. REDIS_URL fills it when left at the default.")
	fs.IntVar(&o.Port, p+"port", o.Port, "Redis port.")
	fs.StringVar(&o.Password, p+"password", o.Password, "Redis password, prefer REDIS_PASSWORD.")
	fs.IntVar(&o.Database, p+"database", o.Database, "Redis logical database.")
	fs.IntVar(&o.MaxRetries, p+"max-retries", o.MaxRetries, "Retries per command.")
	fs.IntVar(&o.PoolSize, p+"pool-size", o.PoolSize, "Connection pool size.")
	fs.IntVar(&o.MinIdleConns, p+"min-idle-conns", o.MinIdleConns, "Idle connections kept open.")
	fs.DurationVar(&o.DialTimeout, p+"dial-timeout", o.DialTimeout, "Connect timeout.")
	fs.DurationVar(&o.ReadTimeout, p+"read-timeout", o.ReadTimeout, "Per-command read timeout.")
	fs.DurationVar(&o.WriteTimeout, p+"write-timeout", o.WriteTimeout, "Per-command write timeout.")
	fs.DurationVar(&o.PoolTimeout, p+"pool-timeout", o.PoolTimeout, "Wait for a free pool connection.")
}

// Complete applies REDIS_URL and REDIS_PASSWORD.
func (o *Options) Complete() error {
	if raw := os.Getenv(URLEnv); raw != "" {
		if err := o.applyURL(raw); err != nil {
			return fmt.Errorf("%s: %w", URLEnv, err)
		}
	}
	if o.Password == "" {
		o.Password = os.Getenv(PasswordEnv)
	}
	return nil
}

func (o *Options) applyURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "redis" && u.Scheme != "rediss" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}

	def := NewOptions()
	if o.Host == def.Host && o.Port == def.Port {
		o.Host = u.Hostname()
		if port := u.Port(); port != "" {
			n, err := strconv.Atoi(port)
			if err != nil {
				return fmt.Errorf("port %q: %w", port, err)
			}
			o.Port = n
		}
	}
	if pw, ok := u.User.Password(); ok && o.Password == "" {
		o.Password = pw
	}
	if db := strings.Trim(u.Path, "/"); db != "" && o.Database == 0 {
		n, err := strconv.Atoi(db)
		if err != nil {
			return fmt.Errorf("database %q: %w", db, err)
		}
		o.Database = n
	}
	return nil
}

func (o *Options) Validate() []error {
	if o == nil {
		return nil
	}
	var errs []error
	if o.Host == "" {
		errs = append(errs, errors.New("redis: host is required"))
	}
	if o.Port <= 0 || o.Port > 65535 {
		errs = append(errs, fmt.Errorf("redis: port %d out of range", o.Port))
	}
	if o.Database < 0 {
		errs = append(errs, errors.New("redis: database must not be negative"))
	}
	return errs
}

func (o *Options) Addr() string {
	return net.JoinHostPort(o.Host, strconv.Itoa(o.Port))
}

// MarshalJSON encodes the options with the password replaced by a marker.
func (o *Options) MarshalJSON() ([]byte, error) {
	type plain Options
	return json.Marshal(struct {
		*plain
		Password string `json:"password"`
	}{(*plain)(o), o.redacted()})
}

func (o *Options) String() string {
	return fmt.Sprintf("redis://%s/%d (password %q)", o.Addr(), o.Database, o.redacted())
}

func (o *Options) redacted() string {
	if o.Password == "" {
		return ""
	}
	return redactedPassword
}
