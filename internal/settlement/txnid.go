package settlement

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TxnIDGenerator mints transaction ids like TRX_20260901143015_9F2C41A87B3D.
// The timestamp prefix keeps ids human-traceable in logs and support
// tickets; the uuid-derived tag is what makes them collision resistant.
type TxnIDGenerator struct {
	now func() time.Time
}

func NewTxnIDGenerator() *TxnIDGenerator {
	return &TxnIDGenerator{now: time.Now}
}

func (g *TxnIDGenerator) Generate() string {
	tag := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))

	return fmt.Sprintf(
		"TRX_%s_%s",
		g.now().UTC().Format("20060102150405"),
		tag[:12],
	)
}
