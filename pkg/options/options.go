// Package options holds what every option group in its subpackages shares.
package options

import (
	"strings"

	"github.com/spf13/pflag"
)

// IOptions is implemented by each option group.
type IOptions interface {
	// Validate reports every problem rather than stopping at the first.
	Validate() []error
	AddFlags(fs *pflag.FlagSet, prefixes ...string)
}

// Join turns prefixes into a dotted flag prefix ending in ".", so
// Join("agent") + "redis.host" becomes "agent.redis.host". Empty prefixes
// are skipped.
func Join(prefixes ...string) string {
	var b strings.Builder
	for _, p := range prefixes {
		if p == "" {
			continue
		}
		b.WriteString(p)
		b.WriteByte('.')
	}
	return b.String()
}
