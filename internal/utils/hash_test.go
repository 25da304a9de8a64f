// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package utils

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"testing"

	"github.com/bilzee/dms-sync/models"
)

func TestInitHasherPoolAndHash(t *testing.T) {
	key := "secret-key"
	InitHasherPool(key)

	data := []byte("test-data")

	sum1 := Hash(data)
	sum2 := Hash(data)

	if len(sum1) == 0 {
		t.Fatal("hash result is empty")
	}

	if !bytes.Equal(sum1, sum2) {
		t.Fatal("hash must be deterministic for the same input")
	}

	// verify against direct HMAC computation
	h := hmac.New(sha256.New, []byte(key))
	h.Write(data)
	expected := h.Sum(nil)

	if !bytes.Equal(sum1, expected) {
		t.Fatalf("unexpected hash value\nwant: %x\ngot:  %x", expected, sum1)
	}
}

const testHashKey = "test-secret-key"

func testPushBody(t *testing.T, payload string) []byte {
	t.Helper()
	body, err := json.Marshal(models.PushRequest{Changes: []models.Change{{
		EntityType:      models.EntityTypeAssessment,
		Action:          models.ActionUpdate,
		Payload:         json.RawMessage(payload),
		OfflineClientID: "local-1",
		DeclaredVersion: 2,
		EntityUUID:      "a1",
	}}})
	if err != nil {
		t.Fatalf("failed to marshal push body: %v", err)
	}
	return body
}

func TestHash_WithPushBody(t *testing.T) {
	InitHasherPool(testHashKey)
	body := testPushBody(t, `{"status":"open"}`)

	got := hex.EncodeToString(Hash(body))

	mac := hmac.New(sha256.New, []byte(testHashKey))
	mac.Write(body)
	want := hex.EncodeToString(mac.Sum(nil))

	if got != want {
		t.Errorf("Hash mismatch:\n  got:  %s\n  want: %s", got, want)
	}
	if HashString(string(body), testHashKey) != want {
		t.Error("HashString must agree with the pooled hasher")
	}
}

func TestHash_DifferentPayloads(t *testing.T) {
	InitHasherPool(testHashKey)

	hash1 := hex.EncodeToString(Hash(testPushBody(t, `{"status":"open"}`)))
	hash2 := hex.EncodeToString(Hash(testPushBody(t, `{"status":"closed"}`)))

	if hash1 == hash2 {
		t.Error("different payloads must produce different hashes")
	}
}

func TestHash_DifferentKeys(t *testing.T) {
	body := testPushBody(t, `{"households":12}`)

	InitHasherPool("key-one")
	hash1 := hex.EncodeToString(Hash(body))

	InitHasherPool("key-two")
	hash2 := hex.EncodeToString(Hash(body))

	if hash1 == hash2 {
		t.Error("different keys must produce different hashes for the same payload")
	}
}

func TestVerifyHash(t *testing.T) {
	InitHasherPool(testHashKey)
	body := testPushBody(t, `{"status":"open"}`)
	digest := HashString(string(body), testHashKey)

	if err := VerifyHash(body, digest); err != nil {
		t.Fatalf("expected matching digest, got %v", err)
	}

	tampered := bytes.Replace(body, []byte("open"), []byte("shut"), 1)
	if err := VerifyHash(tampered, digest); !errors.Is(err, ErrHashMismatch) {
		t.Errorf("expected ErrHashMismatch for tampered body, got %v", err)
	}

	if err := VerifyHash(body, "not-hex"); !errors.Is(err, ErrHashMismatch) {
		t.Errorf("expected ErrHashMismatch for malformed digest, got %v", err)
	}
}
