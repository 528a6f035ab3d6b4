package report

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"filippo.io/age"
)

// Encryption methods recorded in the manifest.
const (
	MethodScrypt = "age-scrypt"
	MethodX25519 = "age-x25519"
)

// errEmptySecret is returned for an empty passphrase or key.
var errEmptySecret = errors.New("passphrase or key is empty")

// scryptWorkFactor is the scrypt cost used for passphrase reports.
var scryptWorkFactor = 18

func encrypt(plaintext []byte, recipient string) ([]byte, string, error) {
	recipient = strings.TrimSpace(recipient)
	if recipient == "" {
		return nil, "", errEmptySecret
	}

	var (
		r      age.Recipient
		method string
	)
	if strings.HasPrefix(recipient, "age1") {
		x, err := age.ParseX25519Recipient(recipient)
		if err != nil {
			return nil, "", fmt.Errorf("parsing age recipient: %w", err)
		}
		r, method = x, MethodX25519
	} else {
		s, err := age.NewScryptRecipient(recipient)
		if err != nil {
			return nil, "", fmt.Errorf("creating scrypt recipient: %w", err)
		}
		s.SetWorkFactor(scryptWorkFactor)
		r, method = s, MethodScrypt
	}

	buf := &bytes.Buffer{}
	w, err := age.Encrypt(buf, r)
	if err != nil {
		return nil, "", fmt.Errorf("initializing encryption: %w", err)
	}
	if _, err := w.Write(plaintext); err != nil {
		return nil, "", fmt.Errorf("writing encrypted data: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("finalizing encryption: %w", err)
	}
	return buf.Bytes(), method, nil
}

func decrypt(ciphertext []byte, secret string) ([]byte, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errEmptySecret
	}

	var id age.Identity
	if strings.HasPrefix(secret, "AGE-SECRET-KEY-") {
		x, err := age.ParseX25519Identity(secret)
		if err != nil {
			return nil, fmt.Errorf("parsing age identity: %w", err)
		}
		id = x
	} else {
		s, err := age.NewScryptIdentity(secret)
		if err != nil {
			return nil, fmt.Errorf("creating scrypt identity: %w", err)
		}
		id = s
	}

	r, err := age.Decrypt(bytes.NewReader(ciphertext), id)
	if err != nil {
		return nil, err
	}
	plaintext, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading decrypted data: %w", err)
	}
	return plaintext, nil
}
