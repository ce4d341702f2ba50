package docstore

import (
    "crypto/aes"
    "crypto/cipher"
    "crypto/rand"
    "crypto/sha256"
    "fmt"
    "io"

    "golang.org/x/crypto/pbkdf2"
)

// Encrypted blob layout: magic(8) + salt(16) + nonce(12) + ciphertext+tag.
const cryptoMagic = "GCM3NCR0"

// encrypt seals data with AES-GCM under a PBKDF2-derived key.
func encrypt(data []byte, password string) ([]byte, error) {
    salt := make([]byte, 16)
    if _, err := io.ReadFull(rand.Reader, salt); err != nil {
        return nil, fmt.Errorf("failed to generate salt: %w", err)
    }

    key := pbkdf2.Key([]byte(password), salt, 100000, 32, sha256.New)
    block, err := aes.NewCipher(key)
    if err != nil {
        return nil, fmt.Errorf("failed to create cipher: %w", err)
    }
    gcm, err := cipher.NewGCM(block)
    if err != nil {
        return nil, fmt.Errorf("failed to create GCM: %w", err)
    }

    nonce := make([]byte, gcm.NonceSize())
    if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
        return nil, fmt.Errorf("failed to generate nonce: %w", err)
    }

    sealed := gcm.Seal(nil, nonce, data, nil)
    out := make([]byte, 0, len(cryptoMagic)+len(salt)+len(nonce)+len(sealed))
    out = append(out, cryptoMagic...)
    out = append(out, salt...)
    out = append(out, nonce...)
    out = append(out, sealed...)
    return out, nil
}

// decrypt opens a blob produced by encrypt.
func decrypt(blob []byte, password string) ([]byte, error) {
    if len(blob) < 8+16+12+16 {
        return nil, fmt.Errorf("encrypted data too short: %d bytes", len(blob))
    }
    if string(blob[:8]) != cryptoMagic {
        return nil, fmt.Errorf("unknown encryption format")
    }

    salt := blob[8:24]
    nonce := blob[24:36]
    sealed := blob[36:]

    key := pbkdf2.Key([]byte(password), salt, 100000, 32, sha256.New)
    block, err := aes.NewCipher(key)
    if err != nil {
        return nil, fmt.Errorf("failed to create cipher: %w", err)
    }
    gcm, err := cipher.NewGCM(block)
    if err != nil {
        return nil, fmt.Errorf("failed to create GCM: %w", err)
    }

    plaintext, err := gcm.Open(nil, nonce, sealed, nil)
    if err != nil {
        return nil, fmt.Errorf("decryption failed: %w", err)
    }
    return plaintext, nil
}
