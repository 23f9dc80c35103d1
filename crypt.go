package toolbox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"strings"
)

// cryptTransformer encrypts string attributes with AES-256-GCM.
// Stored form: "<name>::<nonce-hex>:<base64(nonce|ciphertext)>".
type cryptTransformer struct {
	name string
	key  []byte
}

// NewCrypt returns a Transformer that encrypts string values at rest. The
// key is the SHA-256 of password. Values that do not carry the stored form
// are returned as they are, so plaintext written before encryption was
// enabled still reads.
func NewCrypt(password string) Transformer {
	h := sha256.Sum256([]byte(password))
	return &cryptTransformer{name: "primary", key: h[:]}
}

func (c *cryptTransformer) gcm() (cipher.AEAD, error) {
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

func (c *cryptTransformer) Encode(v any) (any, error) {
	text, ok := v.(string)
	if !ok {
		return nil, NewError(CodeInvalidTransformInput, fmt.Sprintf("Crypt transformer expects a string, got %T.", v))
	}
	if text == "" {
		return text, nil
	}
	gcm, err := c.gcm()
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	sealed := gcm.Seal(nonce, nonce, []byte(text), nil)
	return fmt.Sprintf("%s::%x:%s", c.name, nonce, base64.StdEncoding.EncodeToString(sealed)), nil
}

func (c *cryptTransformer) Decode(v any) (any, error) {
	text, ok := v.(string)
	if !ok {
		return nil, NewError(CodeInvalidTransformInput, fmt.Sprintf("Crypt transformer expects a string, got %T.", v))
	}
	parts := strings.SplitN(text, ":", 4)
	if len(parts) < 4 || parts[0] != c.name {
		return text, nil
	}
	data, err := base64.StdEncoding.DecodeString(parts[3])
	if err != nil {
		return nil, NewError(CodeInvalidTransformInput, "Invalid encrypted value.", WithCause(err))
	}
	gcm, err := c.gcm()
	if err != nil {
		return nil, err
	}
	if len(data) < gcm.NonceSize() {
		return nil, NewError(CodeInvalidTransformInput, "Encrypted value too short.")
	}
	nonce, sealed := data[:gcm.NonceSize()], data[gcm.NonceSize():]
	plain, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, NewError(CodeInvalidTransformInput, "Unable to decrypt value.", WithCause(err))
	}
	return string(plain), nil
}
