package history

import (
	"bytes"
	"fmt"
	"io"

	"filippo.io/age"
)

// secretStream is the concrete "encrypted-DB primitive" the original
// design assumes is handed to it from outside: something that opens,
// reads and writes streams of typed records under authenticated
// encryption (§1). Master DB and per-object DB files are both whole
// buffers, so encrypt/decrypt operate on []byte rather than exposing a
// streaming io.Writer — there is never more than one object's worth of
// data in flight at a time.
type secretStream struct {
	secret string
}

func newSecretStream(secret string) *secretStream {
	return &secretStream{secret: secret}
}

func (s *secretStream) encrypt(plaintext []byte) ([]byte, error) {
	recipient, err := age.NewScryptRecipient(s.secret)
	if err != nil {
		return nil, fmt.Errorf("derive recipient from db-secret: %w", err)
	}

	var buf bytes.Buffer
	w, err := age.Encrypt(&buf, recipient)
	if err != nil {
		return nil, fmt.Errorf("open encryption envelope: %w", err)
	}
	if _, err := w.Write(plaintext); err != nil {
		return nil, fmt.Errorf("write encryption envelope: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("seal encryption envelope: %w", err)
	}
	return buf.Bytes(), nil
}

func (s *secretStream) decrypt(ciphertext []byte) ([]byte, error) {
	identity, err := age.NewScryptIdentity(s.secret)
	if err != nil {
		return nil, fmt.Errorf("derive identity from db-secret: %w", err)
	}
	r, err := age.Decrypt(bytes.NewReader(ciphertext), identity)
	if err != nil {
		return nil, fmt.Errorf("open decryption envelope: %w", err)
	}
	plaintext, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read decryption envelope: %w", err)
	}
	return plaintext, nil
}
