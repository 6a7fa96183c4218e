// Package crypto names the cryptographic collaborators the node depends on
// but does not implement as a fixed algorithm: content hashing, proof-of-work
// hashing, and transaction signing/verification. Swapping the Pufferfish
// variant in at PUFFERFISH_START_BLOCK, or swapping in the chain's native
// secp256k1 signer, means providing a different implementation of these
// interfaces — nothing above this package needs to change.
package crypto

import "github.com/mr-pandabear/pandanode/model"

// Hasher produces the content hash used for transaction/block identity and
// the proof-of-work hash checked against a block's difficulty target.
type Hasher interface {
	ContentHash(data []byte) model.Hash
	PowHash(header []byte) model.Hash
}

// Signer produces a signature over a message under a private key material
// opaque to this module (the key itself lives with wallet tooling, out of
// scope here).
type Signer interface {
	Sign(key []byte, message []byte) ([]byte, error)
}

// Verifier checks a signature, and derives the PublicAddress a signing key
// hashes to.
type Verifier interface {
	Verify(signingKey, message, signature []byte) bool
	AddressOf(signingKey []byte) model.PublicAddress
}
