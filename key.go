package pasd

import (
	"crypto/sha256"
	"os"
	"time"
)

// KeyType distinguishes a password-backed key from a file-backed one.
type KeyType string

const (
	KeyTypeText KeyType = "text"
	KeyTypeFile KeyType = "file"
)

// Passwords maps a key's name to the text credential a caller is
// currently presenting for it. Supplied fresh on every request; never
// persisted.
type Passwords map[string]string

// AddKeyArgs carries the caller-supplied fields for creating a Key.
type AddKeyArgs struct {
	Type      KeyType   `json:"type"`
	Name      string    `json:"name"`
	Group     *string   `json:"group,omitempty"`
	Value     string    `json:"value"`
	Passwords Passwords `json:"passwords"`
}

// KeyInfo is the public projection of a Key returned by ListKeys: it
// omits the id and the validation hash.
type KeyInfo struct {
	Type  KeyType `json:"type"`
	Name  string  `json:"name"`
	Group string  `json:"group"`
	Addr  *string `json:"addr,omitempty"`
	Date  int64   `json:"date"`
}

// Key is a credential that unlocks the secrets belonging to its
// group. Text keys validate against a caller-supplied password; file
// keys validate by re-reading the file at Addr.
type Key struct {
	Type  KeyType `msgpack:"type"`
	ID    string  `msgpack:"id"`
	Hs    []byte  `msgpack:"hs"`
	Name  string  `msgpack:"name"`
	Group string  `msgpack:"group"`
	Addr  *string `msgpack:"addr"`
	Date  int64   `msgpack:"date"`
}

// KeyFromArgs constructs a Key from AddKeyArgs, computing its
// validation hash per the key's type: a text key hashes its value
// directly, a file key hashes the double-SHA256 of the file contents
// at Value so that Validate never needs to retain the credential
// itself in memory.
func KeyFromArgs(args AddKeyArgs) (*Key, error) {
	var hs []byte
	var addr *string

	switch args.Type {
	case KeyTypeText:
		sum := sha256.Sum256([]byte(args.Value))
		hs = sum[:]
	case KeyTypeFile:
		data, err := os.ReadFile(args.Value)
		if err != nil {
			return nil, errIO(err)
		}
		inner := sha256.Sum256(data)
		outer := sha256.Sum256(inner[:])
		hs = outer[:]
		addr = &args.Value
	default:
		return nil, errIncorrectRequest("unknown key type")
	}

	group := args.Name
	if args.Group != nil && *args.Group != "" {
		group = *args.Group
	}

	return &Key{
		Type:  args.Type,
		ID:    NewUID(),
		Hs:    hs,
		Name:  args.Name,
		Group: group,
		Addr:  addr,
		Date:  time.Now().Unix(),
	}, nil
}

// Validate is a pure read: it never mutates the key. A text key looks
// up its current credential in passwords and compares its SHA256
// against Hs; a file key re-reads Addr and compares the double-SHA256.
// Any lookup miss or I/O error yields false, not an error — callers
// treat "does not validate" uniformly regardless of cause.
func (k *Key) Validate(passwords Passwords) bool {
	switch k.Type {
	case KeyTypeText:
		pw, ok := passwords[k.Name]
		if !ok {
			return false
		}
		sum := sha256.Sum256([]byte(pw))
		return bytesEqual(sum[:], k.Hs)
	case KeyTypeFile:
		if k.Addr == nil {
			return false
		}
		data, err := os.ReadFile(*k.Addr)
		if err != nil {
			return false
		}
		inner := sha256.Sum256(data)
		outer := sha256.Sum256(inner[:])
		return bytesEqual(outer[:], k.Hs)
	default:
		return false
	}
}

// Info projects a Key into its public, non-secret representation.
func (k *Key) Info() KeyInfo {
	return KeyInfo{
		Type:  k.Type,
		Name:  k.Name,
		Group: k.Group,
		Addr:  k.Addr,
		Date:  k.Date,
	}
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
