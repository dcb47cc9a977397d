// Package protocol implements the KL130 smart bulb wire format: JSON documents
// obfuscated with a single-byte XOR autokey stream.
//
// The stream is not encryption. The seed is fixed and every output byte is
// recoverable from the previous one, so it only keeps payloads from being
// plain text on the wire.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Seed is the initial key of every encrypt and decrypt pass.
const Seed byte = 171

// ErrMalformedPayload is returned when a decrypted datagram is not valid JSON.
var ErrMalformedPayload = errors.New("malformed payload")

// Encrypt obfuscates plain. Each output byte is the running key after XOR-ing
// in the next plaintext byte.
func Encrypt(plain []byte) []byte {
	out := make([]byte, len(plain))
	key := Seed
	for i, b := range plain {
		key ^= b
		out[i] = key
	}
	return out
}

// Decrypt reverses Encrypt. The key advances to the ciphertext byte, not the
// recovered plaintext byte.
func Decrypt(data []byte) []byte {
	out := make([]byte, len(data))
	key := Seed
	for i, c := range data {
		out[i] = key ^ c
		key = c
	}
	return out
}

// Encode serializes v to JSON and encrypts it.
func Encode(v any) ([]byte, error) {
	plain, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal command: %w", err)
	}
	return Encrypt(plain), nil
}

// Decode decrypts data and parses it as a JSON object.
func Decode(data []byte) (Response, error) {
	var resp Response
	if err := json.Unmarshal(Decrypt(data), &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if resp == nil {
		// "null" parses without error but carries nothing
		return nil, fmt.Errorf("%w: empty document", ErrMalformedPayload)
	}
	return resp, nil
}
