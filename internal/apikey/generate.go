package apikey

import (
	crand "crypto/rand"
	"math/rand/v2"
	"sync"
)

const (
	// IDLength is the number of characters in a generated key id.
	IDLength = 64

	idCharset = "abcdefghijklmnopqrstuvwxyz0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
)

// IDGenerator produces printable key identifiers from an injected random
// source. It is safe for concurrent use.
type IDGenerator struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewIDGenerator returns a generator drawing from src. Pass a seeded source
// such as rand.NewPCG for reproducible ids in tests.
func NewIDGenerator(src rand.Source) *IDGenerator {
	return &IDGenerator{rng: rand.New(src)}
}

// NewRandomIDGenerator returns a generator backed by a ChaCha8 source seeded
// from the operating system. It panics if the OS cannot provide a seed.
func NewRandomIDGenerator() *IDGenerator {
	var seed [32]byte
	if _, err := crand.Read(seed[:]); err != nil {
		panic("apikey: seed id generator: " + err.Error())
	}
	return NewIDGenerator(rand.NewChaCha8(seed))
}

// Generate returns a new IDLength-character identifier. Uniqueness is not
// checked here; the store rejects duplicates on insert.
func (g *IDGenerator) Generate() string {
	b := make([]byte, IDLength)

	g.mu.Lock()
	for i := range b {
		b[i] = idCharset[g.rng.IntN(len(idCharset))]
	}
	g.mu.Unlock()

	return string(b)
}

// ValidID reports whether s has the shape of a generated key id.
func ValidID(s string) bool {
	if len(s) != IDLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !(c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9') {
			return false
		}
	}
	return true
}
