// Package pasd implements the cryptographic database engine behind
// the pasd secret-storage daemon: the on-disk envelope format, the
// two-tier key-derivation scheme, the multi-group secret encryption
// protocol, key validation, and the load/mutate/persist/unload
// lifecycle that keeps plaintext off disk and out of memory outside
// the minimum window a mutation needs.
//
// # Overview
//
// A DB holds an ordered list of Keys and Secrets. A Key is a
// credential — a text password or a file's contents — that belongs to
// a named group; presenting every key of a group unlocks every
// secret stored under that group. A Secret is stored either as a
// single plaintext (only while the DB has zero keys) or as one
// ciphertext per live group, so that presenting any one complete
// group recovers the secret.
//
// # Basic Usage
//
//	db := pasd.NewDB(pasd.Config{
//	    DBPath: "/var/lib/pasd/db",
//	    DBKey:  "outer passphrase",
//	})
//
//	key, err := pasd.KeyFromArgs(pasd.AddKeyArgs{
//	    Type:  pasd.KeyTypeText,
//	    Name:  "laptop",
//	    Value: "correct horse battery staple",
//	})
//	if err != nil {
//	    panic(err)
//	}
//	if err := db.AddKey(key, pasd.Passwords{"laptop": "correct horse battery staple"}); err != nil {
//	    panic(err)
//	}
//
// # Cryptography
//
// All confidentiality rests on AES-256 in CBC mode with PKCS#7
// padding, keyed by two independent scrypt derivations: one for the
// outer envelope (keyed by the daemon's configured passphrase) and one
// per key-group (keyed by the concatenated credential material of
// that group's constituent keys). See Kind for the uniform error
// taxonomy every operation reports through.
//
// # On-disk Envelope
//
// A non-empty DB file begins with the three-byte signature
// [0x00, V, V] (V the format version), followed by the outer-cipher
// ciphertext of a MessagePack-encoded {keys, secrets} record. An empty
// file is a valid, not-yet-populated DB.
//
// # Concurrency
//
// A DB instance serializes every operation behind its own internal
// lock, held for the full load-through-unload duration; there is no
// read/write split. If an operation panics mid-critical-section the
// instance is marked broken and every later call fails with an
// internal error until the process is restarted.
package pasd
