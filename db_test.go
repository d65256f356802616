package pasd

import (
	"crypto/sha256"
	"os"
	"path/filepath"
	"testing"
)

func newTestDB(t *testing.T) (*DB, string) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "db")
	return NewDB(Config{DBPath: path, DBKey: "outer-passphrase"}), path
}

func mustAddKey(t *testing.T, db *DB, name, value string, passwords Passwords) {
	t.Helper()
	key, err := KeyFromArgs(AddKeyArgs{Type: KeyTypeText, Name: name, Value: value})
	if err != nil {
		t.Fatalf("KeyFromArgs(%s): %v", name, err)
	}
	// The new key's own credential is needed to derive its group cipher.
	all := Passwords{name: value}
	for k, v := range passwords {
		all[k] = v
	}
	if err := db.AddKey(key, all); err != nil {
		t.Fatalf("AddKey(%s): %v", name, err)
	}
}

// TestDB_AddSecretThenAddKey_ReEncrypts reproduces spec.md §8 S5 in full.
func TestDB_AddSecretThenAddKey_ReEncrypts(t *testing.T) {
	db, _ := newTestDB(t)

	if err := db.AddSecret(AddSecretArgs{Type: SecretTypeText, Name: "s", Value: "payload"}, nil); err != nil {
		t.Fatalf("AddSecret (zero keys): %v", err)
	}

	secrets, err := db.ListSecrets()
	if err != nil {
		t.Fatalf("ListSecrets: %v", err)
	}
	if len(secrets) != 1 {
		t.Fatalf("len(secrets) = %d, want 1", len(secrets))
	}

	mustAddKey(t, db, "Uno", "password", nil)

	value, _, err := db.GetSecret([]string{"s"}, Passwords{"Uno": "password"})
	if err != nil {
		t.Fatalf("GetSecret after add_key: %v", err)
	}
	if string(value) != "payload" {
		t.Fatalf("GetSecret = %q, want %q", value, "payload")
	}

	if err := db.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	defer db.Unload()
	if len(db.Secrets[0].Values) != 1 {
		t.Fatalf("len(Values) = %d, want 1 after re-encryption under one group", len(db.Secrets[0].Values))
	}
	if db.Secrets[0].Value != nil {
		t.Fatalf("Value = %v, want nil after re-encryption", db.Secrets[0].Value)
	}
}

// TestDB_WrongPassphraseRejects reproduces spec.md §8 S6.
func TestDB_WrongPassphraseRejects(t *testing.T) {
	db, path := newTestDB(t)
	mustAddKey(t, db, "Uno", "right-password", nil)

	before, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}

	err = db.AddSecret(AddSecretArgs{Type: SecretTypeText, Name: "s", Value: "v"}, Passwords{"Uno": "wrong-password"})
	if err == nil || KindOf(err) != KindInvalidKey {
		t.Fatalf("AddSecret with wrong password: err = %v, want invalid-key", err)
	}

	after, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(before) != string(after) {
		t.Fatalf("db file changed after a rejected operation")
	}
}

func TestDB_AddKey_DuplicateName(t *testing.T) {
	db, _ := newTestDB(t)
	mustAddKey(t, db, "Uno", "password", nil)

	key, err := KeyFromArgs(AddKeyArgs{Type: KeyTypeText, Name: "Uno", Value: "other"})
	if err != nil {
		t.Fatalf("KeyFromArgs: %v", err)
	}
	err = db.AddKey(key, Passwords{"Uno": "password"})
	if err == nil || KindOf(err) != KindDuplicate {
		t.Fatalf("AddKey duplicate: err = %v, want duplicate", err)
	}
}

// TestDB_ReloadReproducesState checks P1 by count: a fresh DB reading
// the same file lists as many keys and secrets as were stored.
func TestDB_ReloadReproducesState(t *testing.T) {
	db, path := newTestDB(t)
	mustAddKey(t, db, "Uno", "pw1", nil)
	mustAddKey(t, db, "Duo", "pw2", Passwords{"Uno": "pw1"})
	if err := db.AddSecret(AddSecretArgs{Type: SecretTypeText, Name: "s1", Value: "v1"},
		Passwords{"Uno": "pw1", "Duo": "pw2"}); err != nil {
		t.Fatalf("AddSecret: %v", err)
	}

	reloaded := NewDB(Config{DBPath: path, DBKey: "outer-passphrase"})
	keys, err := reloaded.ListKeys()
	if err != nil {
		t.Fatalf("ListKeys: %v", err)
	}
	if len(keys) != 2 {
		t.Fatalf("len(keys) = %d, want 2", len(keys))
	}
	secrets, err := reloaded.ListSecrets()
	if err != nil {
		t.Fatalf("ListSecrets: %v", err)
	}
	if len(secrets) != 1 {
		t.Fatalf("len(secrets) = %d, want 1", len(secrets))
	}
}

// TestDB_TwoGroupSecret_RecoverableFromEitherGroup checks invariant I2:
// a secret stored while two distinct groups exist carries one
// ciphertext per group, and is recoverable through either.
func TestDB_TwoGroupSecret_RecoverableFromEitherGroup(t *testing.T) {
	db, _ := newTestDB(t)
	mustAddKey(t, db, "Uno", "pw1", nil)
	mustAddKey(t, db, "Duo", "pw2", Passwords{"Uno": "pw1"})

	if err := db.AddSecret(AddSecretArgs{Type: SecretTypeText, Name: "Ok, secret", Value: "This is value"},
		Passwords{"Uno": "pw1", "Duo": "pw2"}); err != nil {
		t.Fatalf("AddSecret: %v", err)
	}

	v1, _, err := db.GetSecret([]string{"secret"}, Passwords{"Uno": "pw1"})
	if err != nil {
		t.Fatalf("GetSecret via Uno: %v", err)
	}
	if string(v1) != "This is value" {
		t.Fatalf("GetSecret via Uno = %q, want %q", v1, "This is value")
	}

	v2, _, err := db.GetSecret([]string{"secret"}, Passwords{"Duo": "pw2"})
	if err != nil {
		t.Fatalf("GetSecret via Duo: %v", err)
	}
	if string(v2) != "This is value" {
		t.Fatalf("GetSecret via Duo = %q, want %q", v2, "This is value")
	}
}

// TestDB_RmKey_PlaintextWhenEmptied reproduces spec.md §4.4.4's
// rm_key note: removing the last key reverts secrets to plaintext.
func TestDB_RmKey_PlaintextWhenEmptied(t *testing.T) {
	db, _ := newTestDB(t)
	mustAddKey(t, db, "Uno", "pw1", nil)
	if err := db.AddSecret(AddSecretArgs{Type: SecretTypeText, Name: "s", Value: "v"}, Passwords{"Uno": "pw1"}); err != nil {
		t.Fatalf("AddSecret: %v", err)
	}

	if err := db.RmKey("Uno", Passwords{"Uno": "pw1"}); err != nil {
		t.Fatalf("RmKey: %v", err)
	}

	value, _, err := db.GetSecret([]string{"s"}, nil)
	if err != nil {
		t.Fatalf("GetSecret after emptying keys: %v", err)
	}
	if string(value) != "v" {
		t.Fatalf("GetSecret = %q, want %q", value, "v")
	}
}

// TestDB_SecretPlaintextInvariantAcrossReencryption checks P4:
// SHA256(secret_plaintext) is unchanged by add_key/rm_key.
func TestDB_SecretPlaintextInvariantAcrossReencryption(t *testing.T) {
	db, _ := newTestDB(t)
	if err := db.AddSecret(AddSecretArgs{Type: SecretTypeText, Name: "s", Value: "stable payload"}, nil); err != nil {
		t.Fatalf("AddSecret: %v", err)
	}
	want := sha256.Sum256([]byte("stable payload"))

	mustAddKey(t, db, "Uno", "pw1", nil)
	v, _, err := db.GetSecret([]string{"s"}, Passwords{"Uno": "pw1"})
	if err != nil {
		t.Fatalf("GetSecret after add_key: %v", err)
	}
	if got := sha256.Sum256(v); got != want {
		t.Fatalf("digest changed after add_key")
	}

	mustAddKey(t, db, "Duo", "pw2", Passwords{"Uno": "pw1"})
	v, _, err = db.GetSecret([]string{"s"}, Passwords{"Uno": "pw1"})
	if err != nil {
		t.Fatalf("GetSecret after second add_key: %v", err)
	}
	if got := sha256.Sum256(v); got != want {
		t.Fatalf("digest changed after second add_key")
	}

	if err := db.RmKey("Duo", Passwords{"Uno": "pw1", "Duo": "pw2"}); err != nil {
		t.Fatalf("RmKey: %v", err)
	}
	v, _, err = db.GetSecret([]string{"s"}, Passwords{"Uno": "pw1"})
	if err != nil {
		t.Fatalf("GetSecret after rm_key: %v", err)
	}
	if got := sha256.Sum256(v); got != want {
		t.Fatalf("digest changed after rm_key")
	}
}

func TestDB_GetSecret_NotFound(t *testing.T) {
	db, _ := newTestDB(t)
	if _, _, err := db.GetSecret([]string{"nope"}, nil); err == nil || KindOf(err) != KindNotFound {
		t.Fatalf("GetSecret on empty db: err = %v, want not-found", err)
	}
}

func TestDB_RmSecret_NotFound(t *testing.T) {
	db, _ := newTestDB(t)
	if err := db.RmSecret("nope", nil); err == nil || KindOf(err) != KindNotFound {
		t.Fatalf("RmSecret missing: err = %v, want not-found", err)
	}
}

func TestDB_ShouldBeReady(t *testing.T) {
	db := NewDB(Config{})
	if err := db.AddSecret(AddSecretArgs{Type: SecretTypeText, Name: "s", Value: "v"}, nil); err == nil ||
		KindOf(err) != KindIncorrectConfig {
		t.Fatalf("AddSecret with no db_path: err = %v, want incorrect-config", err)
	}
}

func TestDB_BrokenAfterPanic(t *testing.T) {
	db, _ := newTestDB(t)

	err := db.guard("test-panic", func() error {
		panic("simulated poisoning")
	})
	if err == nil || KindOf(err) != KindInternal {
		t.Fatalf("guard(panicking op): err = %v, want internal", err)
	}

	if err := db.AddSecret(AddSecretArgs{Type: SecretTypeText, Name: "s", Value: "v"}, nil); err == nil ||
		KindOf(err) != KindInternal {
		t.Fatalf("operation after panic: err = %v, want internal", err)
	}
}
