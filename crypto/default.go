package crypto

import (
	stded25519 "crypto/ed25519"
	"crypto/sha256"

	"github.com/mr-pandabear/pandanode/model"
)

// Default is a standalone-runnable Hasher+Signer+Verifier: SHA-256 for
// content hashing (and, before PUFFERFISH_START_BLOCK, for the
// proof-of-work hash too) and Ed25519 for signatures. It is wired in at the
// composition root so the node runs without an external crypto provider;
// production deployments inject the chain's native Pufferfish/secp256k1
// implementations behind the same interfaces.
type Default struct{}

var _ Hasher = Default{}
var _ Signer = Default{}
var _ Verifier = Default{}

func (Default) ContentHash(data []byte) model.Hash {
	return sha256.Sum256(data)
}

func (Default) PowHash(header []byte) model.Hash {
	first := sha256.Sum256(header)
	return sha256.Sum256(first[:])
}

func (Default) Sign(key, message []byte) ([]byte, error) {
	if len(key) != stded25519.PrivateKeySize {
		return nil, ErrInvalidKeySize
	}
	return stded25519.Sign(stded25519.PrivateKey(key), message), nil
}

func (Default) Verify(signingKey, message, signature []byte) bool {
	if len(signingKey) != stded25519.PublicKeySize {
		return false
	}
	return stded25519.Verify(stded25519.PublicKey(signingKey), message, signature)
}

func (Default) AddressOf(signingKey []byte) model.PublicAddress {
	sum := sha256.Sum256(signingKey)
	var addr model.PublicAddress
	copy(addr[:], sum[:model.AddressSize])
	return addr
}
