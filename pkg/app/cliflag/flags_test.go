package cliflag

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFlagSetKeepsOrder(t *testing.T) {
	var fss NamedFlagSets
	fss.FlagSet("server").String("server.addr", ":8000", "listen address")
	fss.FlagSet("vector").String("vector.backend", "local", "vector backend")
	fss.FlagSet("server").Bool("server.debug", false, "debug mode")

	assert.Equal(t, []string{"server", "vector"}, fss.Order)
	assert.NotNil(t, fss.FlagSets["server"].Lookup("server.debug"))
}

func TestPrintSections(t *testing.T) {
	var fss NamedFlagSets
	fss.FlagSet("agent").Int("agent.max-rounds", 6, "tool rounds per turn")
	fss.FlagSet("empty")

	var buf bytes.Buffer
	PrintSections(&buf, fss, 0)
	assert.Contains(t, buf.String(), "Agent flags:")
	assert.Contains(t, buf.String(), "--agent.max-rounds")
	assert.NotContains(t, buf.String(), "Empty flags:")
}
