package otp

import (
	"crypto/rand"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	mathrand "math/rand/v2"
)

const (
	MinLength     = 4
	MaxLength     = 10
	DefaultLength = 6
)

// Generator produces numeric codes of a fixed length.
type Generator struct {
	length  int
	upper   *big.Int
	entropy io.Reader
}

// Option customizes a Generator.
type Option func(*Generator)

// WithEntropy replaces crypto/rand.Reader as the randomness source.
func WithEntropy(r io.Reader) Option {
	return func(g *Generator) { g.entropy = r }
}

// NewGenerator returns a Generator for codes of the given length.
// Lengths outside [MinLength, MaxLength] are clamped; zero means DefaultLength.
func NewGenerator(length int, opts ...Option) *Generator {
	if length == 0 {
		length = DefaultLength
	}
	length = max(MinLength, min(MaxLength, length))

	g := &Generator{
		length:  length,
		upper:   new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(length)), nil),
		entropy: rand.Reader,
	}
	for _, opt := range opts {
		opt(g)
	}

	return g
}

// Length returns the number of digits in every generated code.
func (g *Generator) Length() int {
	return g.length
}

// Generate returns a fresh code. It never fails: when the entropy source
// errors the runtime-seeded ChaCha8 generator from math/rand/v2 is used.
func (g *Generator) Generate() string {
	n, err := rand.Int(g.entropy, g.upper)
	if err != nil {
		slog.Warn("otp entropy source failed, using fallback generator", "error", err)
		n = new(big.Int).SetUint64(mathrand.Uint64N(g.upper.Uint64()))
	}

	return fmt.Sprintf("%0*d", g.length, n)
}
