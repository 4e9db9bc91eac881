package settlement

import (
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTxnIDFormat(t *testing.T) {
	gen := NewTxnIDGenerator()
	gen.now = func() time.Time {
		return time.Date(2026, 9, 1, 14, 30, 15, 0, time.UTC)
	}

	id := gen.Generate()
	require.Regexp(t, regexp.MustCompile(`^TRX_20260901143015_[0-9A-F]{12}$`), id)
}

func TestTxnIDUniqueness(t *testing.T) {
	gen := NewTxnIDGenerator()

	seen := make(map[string]struct{}, 10000)
	for i := 0; i < 10000; i++ {
		id := gen.Generate()
		_, dup := seen[id]
		assert.False(t, dup, "duplicate txn id %s", id)
		seen[id] = struct{}{}
	}
}
