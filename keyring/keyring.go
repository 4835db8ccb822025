// Package keyring implements the ED25519 identity store described in
// SPEC_FULL.md §4.3: one keypair per entity (agent or kernel), persisted
// as a small JSON file, used to sign and verify the boot handshake and
// consensus ballots. Grounded on lyra_os/kernel/keyring.py, which keeps
// the same generate-or-load, base64-encoded-raw-bytes scheme against a
// per-entity JSON file on disk.
package keyring

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/lyra-sh/lyra/internal/errs"
)

// keyFile is the on-disk JSON shape for a single entity's keypair.
type keyFile struct {
	Entity     string `json:"entity"`
	PublicKey  string `json:"public_key"`  // base64 raw ed25519.PublicKey
	PrivateKey string `json:"private_key"` // base64 raw ed25519.PrivateKey
}

// Keyring loads, generates and caches ED25519 keypairs under a base
// directory, one JSON file per entity.
type Keyring struct {
	dir string

	mu   sync.Mutex
	keys map[string]keyPair
}

type keyPair struct {
	pub  ed25519.PublicKey
	priv ed25519.PrivateKey
}

// New builds a Keyring rooted at dir. The directory is created lazily on
// first write.
func New(dir string) *Keyring {
	return &Keyring{dir: dir, keys: make(map[string]keyPair)}
}

func (k *Keyring) path(entity string) string {
	return filepath.Join(k.dir, entity+".key.json")
}

// GetOrCreate returns the keypair for entity, loading it from disk if
// present or generating (and persisting) a fresh one otherwise.
func (k *Keyring) GetOrCreate(entity string) (ed25519.PublicKey, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if kp, ok := k.keys[entity]; ok {
		return kp.pub, nil
	}

	kp, err := k.load(entity)
	if err == nil {
		k.keys[entity] = kp
		return kp.pub, nil
	}
	if !os.IsNotExist(errors.UnwrapAll(err)) {
		// Corrupt keystore file: regenerate rather than fail boot,
		// matching the teacher source's best-effort recovery policy.
		kp, genErr := k.generate(entity)
		if genErr != nil {
			return nil, genErr
		}
		k.keys[entity] = kp
		return kp.pub, nil
	}

	kp, err = k.generate(entity)
	if err != nil {
		return nil, err
	}
	k.keys[entity] = kp
	return kp.pub, nil
}

func (k *Keyring) load(entity string) (keyPair, error) {
	raw, err := os.ReadFile(k.path(entity))
	if err != nil {
		return keyPair{}, err
	}
	var kf keyFile
	if err := json.Unmarshal(raw, &kf); err != nil {
		return keyPair{}, errors.Wrapf(err, "decode keystore for %q", entity)
	}
	pub, err := base64.StdEncoding.DecodeString(kf.PublicKey)
	if err != nil {
		return keyPair{}, errors.Wrapf(err, "decode public key for %q", entity)
	}
	priv, err := base64.StdEncoding.DecodeString(kf.PrivateKey)
	if err != nil {
		return keyPair{}, errors.Wrapf(err, "decode private key for %q", entity)
	}
	return keyPair{pub: ed25519.PublicKey(pub), priv: ed25519.PrivateKey(priv)}, nil
}

func (k *Keyring) generate(entity string) (keyPair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return keyPair{}, errors.Wrapf(err, "generate keypair for %q", entity)
	}
	kp := keyPair{pub: pub, priv: priv}
	if err := k.persist(entity, kp); err != nil {
		return keyPair{}, err
	}
	return kp, nil
}

func (k *Keyring) persist(entity string, kp keyPair) error {
	if err := os.MkdirAll(k.dir, 0o700); err != nil {
		return errors.Wrapf(err, "create keyring dir %q", k.dir)
	}
	kf := keyFile{
		Entity:     entity,
		PublicKey:  base64.StdEncoding.EncodeToString(kp.pub),
		PrivateKey: base64.StdEncoding.EncodeToString(kp.priv),
	}
	raw, err := json.MarshalIndent(kf, "", "  ")
	if err != nil {
		return errors.Wrapf(err, "encode keystore for %q", entity)
	}
	if err := os.WriteFile(k.path(entity), raw, 0o600); err != nil {
		return errors.Wrapf(err, "write keystore for %q", entity)
	}
	return nil
}

// PublicKey returns the cached public key for entity, without
// generating one. Callers must call GetOrCreate first.
func (k *Keyring) PublicKey(entity string) (ed25519.PublicKey, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	kp, ok := k.keys[entity]
	if !ok {
		return nil, errors.Wrapf(errs.ErrNoKeypair, "entity %q", entity)
	}
	return kp.pub, nil
}

// Sign signs message with entity's private key. The keypair must already
// be loaded via GetOrCreate.
func (k *Keyring) Sign(entity string, message []byte) ([]byte, error) {
	k.mu.Lock()
	kp, ok := k.keys[entity]
	k.mu.Unlock()
	if !ok {
		return nil, errors.Wrapf(errs.ErrNoKeypair, "entity %q", entity)
	}
	return ed25519.Sign(kp.priv, message), nil
}

// Verify checks sig against message under the given raw public key. It
// does not require the signer's keypair to be loaded locally, since
// verification happens against peers' advertised public keys.
func Verify(pub ed25519.PublicKey, message, sig []byte) bool {
	if len(pub) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(pub, message, sig)
}
