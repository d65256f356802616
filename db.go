package pasd

import (
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/nullgarden/pasd/internal/pasdlog"
)

// Config is the subset of daemon configuration the DB engine
// consumes; everything else (IPC transport details, CLI flags) is
// ambient to the caller. IPCSocketPath is carried through unused by
// the engine itself, per spec.md §6.
type Config struct {
	DBPath        string
	DBKey         string
	BackupsPath   string
	IPCSocketPath string
}

// DB is the single in-process instance guarding one encrypted
// secret-store file. Every public operation (AddKey, AddSecret, RmKey,
// RmSecret, ListKeys, ListSecrets, GetSecret, SetBackupsPath) acquires
// the instance's exclusive lock for its full duration (load through
// unload) and never runs concurrently with another on the same
// instance. Load, Save and Unload are the lifecycle steps those
// operations run while holding the lock; they take no lock themselves.
//
// If an operation panics mid-critical-section, DB treats itself as
// poisoned: broken latches permanently and every subsequent call
// fails with an internal error until the process restarts. This
// stands in for the lock-poisoning semantics spec.md §5 describes,
// which Go's sync.Mutex has no native equivalent for.
type DB struct {
	mu sync.Mutex

	path        string
	outerKey    string
	backupsPath string
	broken      bool

	Keys    []Key
	Secrets []Secret
}

// NewDB constructs an empty DB bound to conf. No file I/O happens
// until the first operation loads it.
func NewDB(conf Config) *DB {
	return &DB{
		path:        conf.DBPath,
		outerKey:    conf.DBKey,
		backupsPath: conf.BackupsPath,
	}
}

// guard serializes op against every other operation on db, converts a
// panic inside op into a permanent broken state plus an internal
// error rather than letting it escape and crash the caller, and logs
// op's entry, exit and duration under name: debug on success, warn
// carrying the returned error's wire kind on failure.
func (db *DB) guard(name string, op func() error) (err error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.broken {
		return errInternal("db instance is broken after a prior panic; restart required")
	}

	log := pasdlog.WithComponent("db")
	log.Debug().Str("op", name).Msg("operation starting")
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			db.broken = true
			err = errInternal(fmt.Sprintf("recovered panic in db operation: %v", r))
		}
		duration := time.Since(start)
		if err != nil {
			log.Warn().Str("op", name).Dur("duration", duration).Str("kind", string(KindOf(err))).Msg("operation failed")
		} else {
			log.Debug().Str("op", name).Dur("duration", duration).Msg("operation finished")
		}
	}()

	return op()
}

func (db *DB) shouldBeReady() error {
	return validateNonEmptyPath(db.path, "db_path")
}

// outerCipher derives the outer-envelope cipher from the configured
// passphrase. A rejected key/iv pair (wrong length after derivation)
// surfaces as IncorrectOuterKey rather than KeyLen, matching spec.md
// §7's distinction between "this key material is malformed" (key-len)
// and "this configured outer key doesn't work" (incorrect-outer-key).
func (db *DB) outerCipher() (*blockCipher, error) {
	if err := validateNonEmptyPath(db.outerKey, "db_key"); err != nil {
		return nil, err
	}
	key, iv, err := DeriveOuterKey([]byte(db.outerKey))
	if err != nil {
		return nil, err
	}
	bc, err := newBlockCipher(key[:], iv[:])
	if err != nil {
		return nil, errIncorrectOuterKey(err)
	}
	return bc, nil
}

// ensureFile creates the DB file (and its parent directory) if it
// does not exist yet, so a fresh daemon install can load() against a
// path nothing has written to. Supplements spec.md §4.4.4's "ready"
// check, which only requires the path be configured, not present.
func (db *DB) ensureFile() error {
	if _, err := os.Stat(db.path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return errIO(err)
	}

	if dir := filepath.Dir(db.path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errIO(err)
		}
	}
	f, err := os.OpenFile(db.path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return errIO(err)
	}
	if err := f.Close(); err != nil {
		return errIO(err)
	}
	return nil
}

// Load reads and decrypts the on-disk envelope into db.Keys/db.Secrets.
// A missing or zero-length file is a valid empty DB, not an error.
func (db *DB) Load() error {
	if err := db.ensureFile(); err != nil {
		return err
	}

	data, err := os.ReadFile(db.path)
	if err != nil {
		return errIO(err)
	}
	if len(data) == 0 {
		db.Keys = nil
		db.Secrets = nil
		return nil
	}
	if len(data) < 3 {
		return errCrypto("db file is shorter than the envelope signature", nil)
	}

	sig := data[:3]
	if sig[0] != 0x00 || sig[1] != sig[2] {
		return errCrypto("db envelope signature is malformed", nil)
	}
	if sig[1] != dbSignatureVersion {
		return errCrypto("db envelope version is unsupported", nil)
	}

	cipher, err := db.outerCipher()
	if err != nil {
		return err
	}
	plain, err := cipher.Decrypt(data[3:])
	if err != nil {
		return err
	}

	var payload dbPayload
	if err := msgpack.Unmarshal(plain, &payload); err != nil {
		return errMsgpackDecoding(err)
	}
	db.Keys = payload.Keys
	db.Secrets = payload.Secrets
	return nil
}

// Save serializes {keys, secrets} to MessagePack, encrypts it with the
// outer cipher, and truncate-writes it (signature then ciphertext) to
// the primary DB file and, if configured, to backupsPath/pasd_backup.
// There is no atomic rename; a crash mid-write corrupts the primary
// file, per spec.md §4.4.7's accepted trade-off.
func (db *DB) Save() error {
	payload := dbPayload{Keys: db.Keys, Secrets: db.Secrets}
	data, err := msgpack.Marshal(&payload)
	if err != nil {
		return errMsgpackEncoding(err)
	}

	cipher, err := db.outerCipher()
	if err != nil {
		return err
	}
	encrypted, err := cipher.Encrypt(data)
	if err != nil {
		return err
	}

	blob := make([]byte, 0, 3+len(encrypted))
	blob = append(blob, dbSignature()...)
	blob = append(blob, encrypted...)

	if err := writeFileTruncated(db.path, blob); err != nil {
		return err
	}

	if db.backupsPath != "" {
		backupPath := filepath.Join(db.backupsPath, "pasd_backup")
		if err := writeFileTruncated(backupPath, blob); err != nil {
			return err
		}
	}
	return nil
}

func writeFileTruncated(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return errIO(err)
	}
	defer f.Close()
	if _, err := f.Write(data); err != nil {
		return errIO(err)
	}
	return nil
}

// SetBackupsPath updates the directory Save writes its backup copy
// to. Safe to call while the daemon is running: it only takes the
// guard's lock, it does not touch db_path or db_key, which stay fixed
// for the process lifetime once configured.
func (db *DB) SetBackupsPath(path string) {
	_ = db.guard("set-backups-path", func() error {
		db.backupsPath = path
		return nil
	})
}

// Unload clears the in-memory plaintext record. No secure-wipe
// guarantee is made beyond deallocation, per spec.md §4.4.8.
func (db *DB) Unload() {
	db.Keys = nil
	db.Secrets = nil
}

// keyGroup is one entry of the key-group mapping: a group label and
// the ordered list of member key ids, in first-seen order. This order
// is load-bearing — it is the concatenation order used to build the
// group secret in groupCipherFor, and must stay stable across
// load/save cycles or previously encrypted secrets become
// unrecoverable (spec.md §4.4.3).
type keyGroup struct {
	name string
	ids  []string
}

func (db *DB) keyGroups() []keyGroup {
	var groups []keyGroup
	index := make(map[string]int, len(db.Keys))
	for _, k := range db.Keys {
		if i, ok := index[k.Group]; ok {
			groups[i].ids = append(groups[i].ids, k.ID)
			continue
		}
		index[k.Group] = len(groups)
		groups = append(groups, keyGroup{name: k.Group, ids: []string{k.ID}})
	}
	return groups
}

func findKeyByID(keys []Key, id string) *Key {
	for i := range keys {
		if keys[i].ID == id {
			return &keys[i]
		}
	}
	return nil
}

// groupCipherFor builds the AES-CBC cipher for one key-group: walk its
// member ids in order, appending each text key's current password or
// each file key's content digest to a running group secret, then
// derive the inner key/iv from the concatenated buffer.
func groupCipherFor(keys []Key, ids []string, passwords Passwords) (*blockCipher, error) {
	var groupSecret []byte
	for _, id := range ids {
		key := findKeyByID(keys, id)
		if key == nil {
			return nil, errInvalidKey("group references unknown key id " + id)
		}
		switch key.Type {
		case KeyTypeText:
			pw, ok := passwords[key.Name]
			if !ok {
				return nil, errInvalidKey("no password supplied for key " + key.Name)
			}
			groupSecret = append(groupSecret, []byte(pw)...)
		case KeyTypeFile:
			if key.Addr == nil {
				return nil, errInvalidKey("file key " + key.Name + " has no addr")
			}
			data, err := os.ReadFile(*key.Addr)
			if err != nil {
				return nil, errIO(err)
			}
			sum := sha256.Sum256(data)
			groupSecret = append(groupSecret, sum[:]...)
		default:
			return nil, errInvalidKey("unknown key type for " + key.Name)
		}
	}

	key, iv, err := DeriveInnerKeyIV(groupSecret)
	if err != nil {
		return nil, err
	}
	return newBlockCipher(key[:], iv[:])
}

func groupCiphersFor(keys []Key, groups []keyGroup, passwords Passwords) (map[string]groupCipher, error) {
	ciphers := make(map[string]groupCipher, len(groups))
	for _, g := range groups {
		c, err := groupCipherFor(keys, g.ids, passwords)
		if err != nil {
			return nil, err
		}
		ciphers[g.name] = c
	}
	return ciphers, nil
}

// decryptAllSecrets picks one group (if any key exists) and decrypts
// every secret through it, producing one plaintext per secret in
// db.Secrets order. With zero keys it reads each secret's plain slot
// instead. Paired with encryptAllSecrets to form the two-phase
// re-encryption transaction spec.md §4.4.6 requires around any key
// set mutation.
func (db *DB) decryptAllSecrets(passwords Passwords) ([][]byte, error) {
	groups := db.keyGroups()
	values := make([][]byte, len(db.Secrets))

	if len(groups) == 0 {
		for i := range db.Secrets {
			v, err := db.Secrets[i].GetPlain()
			if err != nil {
				return nil, err
			}
			values[i] = v
		}
		return values, nil
	}

	group := groups[0]
	cipher, err := groupCipherFor(db.Keys, group.ids, passwords)
	if err != nil {
		return nil, err
	}
	for i := range db.Secrets {
		v, err := db.Secrets[i].Decrypt(group.name, cipher)
		if err != nil {
			return nil, err
		}
		values[i] = v
	}
	return values, nil
}

// encryptAllSecrets re-stores each secret under every currently
// live group (or as plaintext if there are none), completing the
// transaction decryptAllSecrets begins. values must be in db.Secrets
// order.
func (db *DB) encryptAllSecrets(values [][]byte, passwords Passwords) error {
	groups := db.keyGroups()

	if len(groups) == 0 {
		for i := range db.Secrets {
			db.Secrets[i].SetPlain(values[i])
		}
		return nil
	}

	ciphers, err := groupCiphersFor(db.Keys, groups, passwords)
	if err != nil {
		return err
	}
	for i := range db.Secrets {
		if err := db.Secrets[i].Encrypt(values[i], ciphers); err != nil {
			return err
		}
	}
	return nil
}

func validateAllKeys(keys []Key, passwords Passwords) error {
	for i := range keys {
		if !keys[i].Validate(passwords) {
			return errInvalidKey("key failed validation: " + keys[i].Name)
		}
	}
	return nil
}

// AddKey appends key after validating every existing key against
// passwords, re-encrypting every secret across the post-add group set
// in one decrypt-all/encrypt-all transaction so I2 holds immediately
// after the add completes. The post-add group ciphers are derived from
// passwords, so for a text key passwords must also hold the new key's
// own credential under its name.
func (db *DB) AddKey(key *Key, passwords Passwords) error {
	return db.guard("add-key", func() error {
		if err := db.shouldBeReady(); err != nil {
			return err
		}
		if err := db.Load(); err != nil {
			return err
		}

		for i := range db.Keys {
			if db.Keys[i].Name == key.Name {
				return errDuplicate("key name already exists: " + key.Name)
			}
		}
		if err := validateAllKeys(db.Keys, passwords); err != nil {
			return err
		}

		values, err := db.decryptAllSecrets(passwords)
		if err != nil {
			return err
		}
		db.Keys = append(db.Keys, *key)
		if err := db.encryptAllSecrets(values, passwords); err != nil {
			return err
		}

		if err := db.Save(); err != nil {
			return err
		}
		db.Unload()
		return nil
	})
}

// AddSecret stores a new secret: plaintext if the DB currently has no
// keys, one ciphertext per live group otherwise.
func (db *DB) AddSecret(args AddSecretArgs, passwords Passwords) error {
	return db.guard("add-secret", func() error {
		if err := db.shouldBeReady(); err != nil {
			return err
		}
		if err := db.Load(); err != nil {
			return err
		}

		groups := db.keyGroups()
		var secret *Secret
		if len(groups) == 0 {
			s, err := SecretFromArgs(args, nil)
			if err != nil {
				return err
			}
			secret = s
		} else {
			if err := validateAllKeys(db.Keys, passwords); err != nil {
				return err
			}
			ciphers, err := groupCiphersFor(db.Keys, groups, passwords)
			if err != nil {
				return err
			}
			s, err := SecretFromArgs(args, ciphers)
			if err != nil {
				return err
			}
			secret = s
		}

		db.Secrets = append(db.Secrets, *secret)
		if err := db.Save(); err != nil {
			return err
		}
		db.Unload()
		return nil
	})
}

// RmKey removes the named key, re-encrypting every secret across the
// reduced group set. If the removal empties the key list, secrets
// revert to plaintext storage.
func (db *DB) RmKey(name string, passwords Passwords) error {
	return db.guard("remove-key", func() error {
		if err := db.shouldBeReady(); err != nil {
			return err
		}
		if err := db.Load(); err != nil {
			return err
		}

		idx := -1
		for i := range db.Keys {
			if db.Keys[i].Name == name {
				idx = i
				break
			}
		}
		if idx == -1 {
			return errNotFound("key not found: " + name)
		}
		if err := validateAllKeys(db.Keys, passwords); err != nil {
			return err
		}

		values, err := db.decryptAllSecrets(passwords)
		if err != nil {
			return err
		}
		db.Keys = append(db.Keys[:idx], db.Keys[idx+1:]...)
		if err := db.encryptAllSecrets(values, passwords); err != nil {
			return err
		}

		if err := db.Save(); err != nil {
			return err
		}
		db.Unload()
		return nil
	})
}

// RmSecret removes the first secret named name. Keys are still
// validated even though no crypto work is performed, proving caller
// authorization before the mutation.
func (db *DB) RmSecret(name string, passwords Passwords) error {
	return db.guard("remove-secret", func() error {
		if err := db.shouldBeReady(); err != nil {
			return err
		}
		if err := db.Load(); err != nil {
			return err
		}

		idx := -1
		for i := range db.Secrets {
			if db.Secrets[i].Name == name {
				idx = i
				break
			}
		}
		if idx == -1 {
			return errNotFound("secret not found: " + name)
		}
		if err := validateAllKeys(db.Keys, passwords); err != nil {
			return err
		}

		db.Secrets = append(db.Secrets[:idx], db.Secrets[idx+1:]...)
		if err := db.Save(); err != nil {
			return err
		}
		db.Unload()
		return nil
	})
}

// ListKeys loads, projects every key to its public info record, and
// unloads.
func (db *DB) ListKeys() ([]KeyInfo, error) {
	var infos []KeyInfo
	err := db.guard("list-keys", func() error {
		if err := db.shouldBeReady(); err != nil {
			return err
		}
		if err := db.Load(); err != nil {
			return err
		}
		infos = make([]KeyInfo, len(db.Keys))
		for i := range db.Keys {
			infos[i] = db.Keys[i].Info()
		}
		db.Unload()
		return nil
	})
	return infos, err
}

// ListSecrets loads, projects every secret to its public info record,
// and unloads.
func (db *DB) ListSecrets() ([]SecretInfo, error) {
	var infos []SecretInfo
	err := db.guard("list-secrets", func() error {
		if err := db.shouldBeReady(); err != nil {
			return err
		}
		if err := db.Load(); err != nil {
			return err
		}
		infos = make([]SecretInfo, len(db.Secrets))
		for i := range db.Secrets {
			infos[i] = db.Secrets[i].Info()
		}
		db.Unload()
		return nil
	})
	return infos, err
}

// findSecret returns the first secret whose name, url or login
// contains every term in query (case-insensitive substring match).
func (db *DB) findSecret(query []string) (*Secret, error) {
	for i := range db.Secrets {
		s := &db.Secrets[i]
		if secretMatchesQuery(s, query) {
			return s, nil
		}
	}
	return nil, errNotFound("no secret matches query")
}

func secretMatchesQuery(s *Secret, query []string) bool {
	for _, term := range query {
		needle := strings.ToLower(term)
		if !fieldContains(s.Name, needle) &&
			!(s.URL != nil && fieldContains(*s.URL, needle)) &&
			!(s.Login != nil && fieldContains(*s.Login, needle)) {
			return false
		}
	}
	return true
}

func fieldContains(field, lowerNeedle string) bool {
	return strings.Contains(strings.ToLower(field), lowerNeedle)
}

// GetSecret finds the first secret matching query and returns its
// decrypted value plus its type. With zero keys it returns the
// secret's plain slot directly; otherwise it picks any group whose
// first member key validates against passwords and decrypts through
// that group's cipher.
func (db *DB) GetSecret(query []string, passwords Passwords) ([]byte, SecretType, error) {
	var value []byte
	var secretType SecretType

	err := db.guard("get-secret", func() error {
		if err := db.shouldBeReady(); err != nil {
			return err
		}
		if err := db.Load(); err != nil {
			return err
		}

		secret, err := db.findSecret(query)
		if err != nil {
			return err
		}
		secretType = secret.Type

		if len(db.Keys) == 0 {
			v, err := secret.GetPlain()
			if err != nil {
				return err
			}
			value = v
			db.Unload()
			return nil
		}

		groups := db.keyGroups()
		var validGroup *keyGroup
		for i := range groups {
			candidate := findKeyByID(db.Keys, groups[i].ids[0])
			if candidate != nil && candidate.Validate(passwords) {
				validGroup = &groups[i]
				break
			}
		}
		if validGroup == nil {
			return errInvalidKey("no key group could be validated")
		}

		cipher, err := groupCipherFor(db.Keys, validGroup.ids, passwords)
		if err != nil {
			return err
		}
		v, err := secret.Decrypt(validGroup.name, cipher)
		if err != nil {
			return err
		}
		value = v

		db.Unload()
		return nil
	})

	return value, secretType, err
}
