package utils

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"hash"
	"sync"
)

// ErrHashMismatch is returned by VerifyHash when the digest does not match.
var ErrHashMismatch = errors.New("payload hash mismatch")

// hasherPool holds HMAC-SHA256 hashers keyed with the process-wide hash key.
// It is empty until InitHasherPool runs.
var hasherPool sync.Pool

// InitHasherPool keys the shared hasher pool. The server and the field
// client call it once at startup when a hash key is configured.
func InitHasherPool(hashKey string) {
	key := []byte(hashKey)
	hasherPool = sync.Pool{
		New: func() any { return hmac.New(sha256.New, key) },
	}
}

// Hash returns the HMAC-SHA256 of data under the pooled key.
func Hash(data []byte) []byte {
	h := hasherPool.Get().(hash.Hash)
	defer hasherPool.Put(h)

	h.Reset()
	h.Write(data)
	return h.Sum(nil)
}

// HashString signs data with an explicit key and hex-encodes the digest.
// It bypasses the pool, which makes it handy for tools and tests.
func HashString(data string, hashKey string) string {
	mac := hmac.New(sha256.New, []byte(hashKey))
	mac.Write([]byte(data))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyHash checks a hex digest of data produced with the pooled key in
// constant time.
func VerifyHash(data []byte, hexDigest string) error {
	want, err := hex.DecodeString(hexDigest)
	if err != nil {
		return errors.Join(ErrHashMismatch, err)
	}
	if !hmac.Equal(Hash(data), want) {
		return ErrHashMismatch
	}
	return nil
}
