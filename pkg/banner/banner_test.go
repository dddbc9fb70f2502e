package banner

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"corehttpd/pkg/config"
)

func TestPrintIncludesEffectiveConfig(t *testing.T) {
	var buf bytes.Buffer
	cfg := config.Default()
	cfg.Workers = 6
	cfg.Addr = ":1234"

	Print(&buf, "test-version", cfg)
	out := buf.String()
	assert.Contains(t, out, "corehttpd test-version")
	assert.Contains(t, out, "workers              6")
	assert.Contains(t, out, ":1234")
}
