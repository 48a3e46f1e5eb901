package reference

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"time"
)

// MaxAttempts caps how many times a caller should regenerate after a
// persist-time collision before giving up.
const MaxAttempts = 3

const (
	prefix        = "AMC"
	suffixLen     = 6
	suffixCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// Generator produces payment references and retrieval references (RRRs).
// Uniqueness is optimistic: the combination of a millisecond timestamp and a
// random suffix makes collisions practically impossible, and the unique
// constraint on persist catches the rest.
type Generator struct {
	now func() time.Time
}

func NewGenerator() *Generator {
	return &Generator{now: time.Now}
}

// NewGeneratorWithClock is for tests that need a fixed time source.
func NewGeneratorWithClock(now func() time.Time) *Generator {
	return &Generator{now: now}
}

// PaymentReference returns a caller-visible reference of the form
// AMC-<TYPE>-<unix millis>-<random>. The revenue-type fragment keeps
// references human-decodable on bank statements.
func (g *Generator) PaymentReference(revenueType string) string {
	fragment := strings.ToUpper(revenueType)
	if len(fragment) > 3 {
		fragment = fragment[:3]
	}
	if fragment == "" {
		fragment = "GEN"
	}
	return fmt.Sprintf("%s-%s-%d-%s", prefix, fragment, g.now().UnixMilli(), randomSuffix(suffixLen))
}

// RRR returns a locally pre-generated retrieval reference for flows where
// the gateway does not assign one. Numeric, zero-padded to twelve digits the
// way gateway-issued RRRs are.
func (g *Generator) RRR() string {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		// crypto/rand only fails when the platform entropy source is broken
		n = big.NewInt(g.now().UnixNano() % 1_000_000)
	}
	return fmt.Sprintf("%06d%06d", g.now().UnixMilli()%1_000_000, n.Int64())
}

func randomSuffix(length int) string {
	var b strings.Builder
	b.Grow(length)
	max := big.NewInt(int64(len(suffixCharset)))
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			b.WriteByte(suffixCharset[time.Now().UnixNano()%int64(len(suffixCharset))])
			continue
		}
		b.WriteByte(suffixCharset[n.Int64()])
	}
	return b.String()
}
