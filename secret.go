package pasd

import (
	"os"
	"time"
)

// SecretType distinguishes a secret whose value is literal text from
// one whose value is a file's contents.
type SecretType string

const (
	SecretTypeText SecretType = "text"
	SecretTypeFile SecretType = "file"
)

// SecretValue is one group's encrypted copy of a secret's plaintext.
type SecretValue struct {
	Group string `msgpack:"group"`
	Value []byte `msgpack:"value"`
}

// AddSecretArgs carries the caller-supplied fields for creating a
// Secret. For Type=file, Value is a path whose contents become the
// stored secret; for Type=text, Value is the literal plaintext.
type AddSecretArgs struct {
	Type      SecretType `json:"type"`
	Name      string     `json:"name"`
	Value     string     `json:"value"`
	URL       *string    `json:"url,omitempty"`
	Login     *string    `json:"login,omitempty"`
	Passwords Passwords  `json:"passwords"`
}

// SecretInfo is the public projection of a Secret returned by
// ListSecrets: it omits both the plaintext slot and every ciphertext.
type SecretInfo struct {
	Type  SecretType `json:"type"`
	Name  string     `json:"name"`
	URL   *string    `json:"url,omitempty"`
	Login *string    `json:"login,omitempty"`
	Date  int64      `json:"date"`
}

// Secret holds a user datum in exactly one of two mutually exclusive
// forms: Value (plaintext, only while the DB has zero keys) or Values
// (one ciphertext per live key-group).
type Secret struct {
	Type   SecretType    `msgpack:"type"`
	Name   string        `msgpack:"name"`
	URL    *string       `msgpack:"url"`
	Login  *string       `msgpack:"login"`
	Value  []byte        `msgpack:"value"`
	Values []SecretValue `msgpack:"values"`
	Date   int64         `msgpack:"date"`
}

// groupCipher is the minimal surface Secret needs from a derived
// per-group cipher, satisfied by *blockCipher's Encrypt/Decrypt pair
// defined in crypto.go.
type groupCipher interface {
	Encrypt(plaintext []byte) ([]byte, error)
	Decrypt(ciphertext []byte) ([]byte, error)
}

// SecretFromArgs resolves the argument's value (reading the file at
// Value when Type=file) and either stores it plaintext (ciphers ==
// nil, meaning the DB currently has zero keys) or encrypts one copy
// per entry in ciphers.
func SecretFromArgs(args AddSecretArgs, ciphers map[string]groupCipher) (*Secret, error) {
	value, err := resolveSecretValue(args.Type, args.Value)
	if err != nil {
		return nil, err
	}

	secret := &Secret{
		Type:  args.Type,
		Name:  args.Name,
		URL:   args.URL,
		Login: args.Login,
		Date:  time.Now().Unix(),
	}

	if ciphers == nil {
		secret.Value = value
		secret.Values = nil
		return secret, nil
	}

	values, err := encryptToGroups(value, ciphers)
	if err != nil {
		return nil, err
	}
	secret.Values = values
	return secret, nil
}

func resolveSecretValue(t SecretType, value string) ([]byte, error) {
	if t == SecretTypeFile {
		data, err := os.ReadFile(value)
		if err != nil {
			return nil, errIO(err)
		}
		return data, nil
	}
	return []byte(value), nil
}

func encryptToGroups(value []byte, ciphers map[string]groupCipher) ([]SecretValue, error) {
	values := make([]SecretValue, 0, len(ciphers))
	for group, cipher := range ciphers {
		ct, err := cipher.Encrypt(value)
		if err != nil {
			return nil, err
		}
		values = append(values, SecretValue{Group: group, Value: ct})
	}
	return values, nil
}

// Decrypt finds the ciphertext stored for groupName and decrypts it
// with cipher. It signals InvalidKey, not NotFound, when the group is
// absent: an absent group at decrypt time means the caller's group
// set has drifted from the DB's, the same failure mode as a bad key.
func (s *Secret) Decrypt(groupName string, cipher groupCipher) ([]byte, error) {
	for _, v := range s.Values {
		if v.Group == groupName {
			return cipher.Decrypt(v.Value)
		}
	}
	return nil, errInvalidKey("no ciphertext stored for group " + groupName)
}

// Encrypt replaces the secret's stored form entirely: clears any
// plaintext and recomputes one ciphertext per entry in ciphers.
func (s *Secret) Encrypt(value []byte, ciphers map[string]groupCipher) error {
	s.Value = nil
	values, err := encryptToGroups(value, ciphers)
	if err != nil {
		return err
	}
	s.Values = values
	return nil
}

// GetPlain returns the stored plaintext, or NotFound if the secret is
// currently stored in group-encrypted form.
func (s *Secret) GetPlain() ([]byte, error) {
	if s.Value == nil {
		return nil, errNotFound("secret has no plaintext value")
	}
	return s.Value, nil
}

// SetPlain stores value as plaintext and drops every group ciphertext.
func (s *Secret) SetPlain(value []byte) {
	s.Value = value
	s.Values = nil
}

// Info projects a Secret into its public, non-secret representation.
func (s *Secret) Info() SecretInfo {
	return SecretInfo{
		Type:  s.Type,
		Name:  s.Name,
		URL:   s.URL,
		Login: s.Login,
		Date:  s.Date,
	}
}
