// Package id provides centralized ID generation for the expansion engine.
//
// All identifiers are ULIDs:
//   - Uniqueness by construction: indirect-store keys never collide
//   - Prefixed types: type-specific prefixes keep logs readable (exp_*, diag_*)
//   - Thread-safe: one generator may be shared across concurrent expansions
package id

import (
	"crypto/rand"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// ============================================================================
// Type-Safe ID Wrappers
// ============================================================================

// ExpansionID identifies one macro expansion, used to correlate log lines
type ExpansionID string

// DiagnosticID identifies a rendered diagnostic fragment
type DiagnosticID string

const (
	ExpansionPrefix  = "exp"
	DiagnosticPrefix = "diag"
)

// ============================================================================
// ULID Generator
// ============================================================================

// Generator generates ULIDs with optional prefixes
type Generator struct {
	entropy   io.Reader
	entropyMu sync.Mutex
}

var (
	defaultGenerator *Generator
	once             sync.Once
)

// Default returns the singleton generator instance
func Default() *Generator {
	once.Do(func() {
		defaultGenerator = NewGenerator()
	})
	return defaultGenerator
}

// NewGenerator creates a generator backed by crypto/rand, made monotonic so
// keys generated within the same millisecond still sort and never repeat
func NewGenerator() *Generator {
	return NewGeneratorWithEntropy(rand.Reader)
}

// NewGeneratorWithEntropy creates a generator with a custom entropy source.
// Useful for testing with deterministic entropy.
func NewGeneratorWithEntropy(entropy io.Reader) *Generator {
	return &Generator{
		entropy: ulid.Monotonic(entropy, 0),
	}
}

// Generate creates a new ULID
func (g *Generator) Generate() ulid.ULID {
	g.entropyMu.Lock()
	defer g.entropyMu.Unlock()

	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy)
}

// GenerateString creates a new ULID as a string
func (g *Generator) GenerateString() string {
	return g.Generate().String()
}

// GenerateWithPrefix creates a prefixed ULID string ("prefix_ULID")
func (g *Generator) GenerateWithPrefix(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, g.GenerateString())
}

// GenerateToken creates a lower-case ULID joined to prefix without a
// separator. Tokens are safe inside binding paths and attribute values.
func (g *Generator) GenerateToken(prefix string) string {
	return prefix + strings.ToLower(g.GenerateString())
}

// ============================================================================
// Typed ID Generators
// ============================================================================

// NewExpansionID generates a new expansion ID
func NewExpansionID() ExpansionID {
	return ExpansionID(Default().GenerateWithPrefix(ExpansionPrefix))
}

// NewDiagnosticID generates a new diagnostic fragment ID
func NewDiagnosticID() DiagnosticID {
	return DiagnosticID(Default().GenerateWithPrefix(DiagnosticPrefix))
}

func (id ExpansionID) String() string  { return string(id) }
func (id DiagnosticID) String() string { return string(id) }

// ============================================================================
// Validation
// ============================================================================

// IsValid checks if an ID string is a valid ULID
func IsValid(id string) bool {
	_, err := ulid.ParseStrict(strings.ToUpper(id))
	return err == nil
}

// Timestamp extracts the timestamp from a ULID
func Timestamp(id string) (time.Time, error) {
	parsed, err := ulid.ParseStrict(strings.ToUpper(id))
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(parsed.Time()), nil
}
