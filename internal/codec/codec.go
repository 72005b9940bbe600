// Package codec implements the AES-CBC transform used by the embed/ajax
// protocol, including its non-standard padding.
package codec

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"fmt"
)

// pad appends 16-len%16 copies of the byte len%16. A block-aligned input
// therefore gains a full block of zero bytes; the backend expects exactly this.
func pad(plaintext []byte) []byte {
	rem := len(plaintext) % aes.BlockSize
	n := aes.BlockSize - rem
	out := make([]byte, len(plaintext), len(plaintext)+n)
	copy(out, plaintext)
	for i := 0; i < n; i++ {
		out = append(out, byte(rem))
	}
	return out
}

// strip removes every trailing byte in the range 0x00-0x10.
func strip(data []byte) []byte {
	end := len(data)
	for end > 0 && data[end-1] <= 0x10 {
		end--
	}
	return data[:end]
}

// Encrypt pads plaintext, encrypts it with AES-CBC and returns the
// base64-encoded ciphertext.
func Encrypt(plaintext string, key, iv []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	if len(iv) != aes.BlockSize {
		return nil, fmt.Errorf("invalid iv length %d", len(iv))
	}

	padded := pad([]byte(plaintext))
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)

	out := make([]byte, base64.StdEncoding.EncodedLen(len(ciphertext)))
	base64.StdEncoding.Encode(out, ciphertext)
	return out, nil
}

// Decrypt base64-decodes and AES-CBC decrypts data, then strips the
// trailing padding bytes. A wrong key or iv yields garbage, not an error:
// callers must check the shape of the result.
func Decrypt(ciphertextB64 []byte, key, iv []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	if len(iv) != aes.BlockSize {
		return nil, fmt.Errorf("invalid iv length %d", len(iv))
	}

	ciphertext := make([]byte, base64.StdEncoding.DecodedLen(len(ciphertextB64)))
	n, err := base64.StdEncoding.Decode(ciphertext, ciphertextB64)
	if err != nil {
		return nil, fmt.Errorf("decoding base64: %w", err)
	}
	ciphertext = ciphertext[:n]
	if len(ciphertext)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("ciphertext length %d is not a multiple of the block size", len(ciphertext))
	}

	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plaintext, ciphertext)
	return strip(plaintext), nil
}
