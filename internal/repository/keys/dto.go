package keys

import (
	"encoding/json"
	"fmt"

	"github.com/keymeterhq/keymeter/internal/crypto"
	domcred "github.com/keymeterhq/keymeter/internal/domain/credential"
)

// record is the JSON-serializable representation of a stored credential.
// The secret field holds ciphertext when a cipher is configured.
type record struct {
	ID        string `json:"id"`
	Secret    string `json:"secret"`
	CreatedAt int64  `json:"created_at"`
}

// credentialToRecord converts a domain Credential into record bytes for SET.
func credentialToRecord(cred domcred.Credential, cipher *crypto.Cipher) ([]byte, error) {
	secret, err := cipher.Encrypt(cred.Secret())
	if err != nil {
		return nil, fmt.Errorf("encrypt secret: %w", err)
	}

	data, err := json.Marshal(record{
		ID:        cred.ID(),
		Secret:    secret,
		CreatedAt: cred.CreatedAt(),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal credential: %w", err)
	}
	return data, nil
}

// credentialFromRecord hydrates a domain Credential from stored record bytes.
func credentialFromRecord(data []byte, cipher *crypto.Cipher) (domcred.Credential, error) {
	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return domcred.Credential{}, fmt.Errorf("unmarshal credential: %w", err)
	}

	secret, err := cipher.Decrypt(rec.Secret)
	if err != nil {
		return domcred.Credential{}, fmt.Errorf("decrypt secret: %w", err)
	}

	return domcred.Reconstruct(rec.ID, secret, rec.CreatedAt), nil
}
