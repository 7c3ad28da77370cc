package ws

import (
	"encoding/binary"

	"github.com/pion/randutil"
)

// keyGenerator produces the fresh 32-bit masking key every client-originated
// frame must carry (spec §3: "a fresh random key"; §4.1: "drawn from a
// cryptographically-seeded RNG (seed per process; per-frame key)").
//
// Grounded on github.com/pion/randutil (a teacher dependency used elsewhere
// in nats-server's vendor tree for ICE candidate/ufrag generation); wsio
// reuses the same crypto-seeded generator instead of rolling its own
// math/rand wrapper, matching §9's preference for an explicit, injectable
// source over a hidden package-level one.
type keyGenerator struct {
	gen randutil.MathRandomGenerator
}

// newKeyGenerator seeds one generator per process, matching spec §4.1's
// "seed per process; per-frame key": the seed is drawn once from a crypto
// source and every subsequent call produces an independent per-frame key.
func newKeyGenerator() *keyGenerator {
	return &keyGenerator{gen: randutil.NewMathRandomGenerator()}
}

// Next returns a fresh masking key for one outbound client frame.
func (k *keyGenerator) Next() [4]byte {
	var key [4]byte
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], k.gen.Uint64())
	copy(key[:], buf[:4])
	return key
}

// processKeyGen is the single per-process generator, per spec §4.1:
// newEndpoint assigns it to every client Endpoint's keyGen, and
// generateSecWebSocketKey draws handshake keys from it.
var processKeyGen = newKeyGenerator()
