// Package ledger implements the trust-weight store and content-addressed
// consensus record described in SPEC_FULL.md §4.4. Grounded on
// lyra_os/kernel/ledger.py: trust weights are a bounded rolling history
// per entity persisted to trust_weights.json, consensus outcomes are
// content-addressed under a "lyra1" prefix and pinned to data/<cid>.json,
// and a small cid_cache.json maps proposal keys to already-computed CIDs
// so repeat lookups don't recompute the hash.
package ledger

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/lyra-sh/lyra/internal/logging"
)

// cidPrefix is the scheme prefix for every content identifier this
// package produces (SPEC_FULL.md glossary: "lyra1").
const cidPrefix = "lyra1"

// maxTrustHistory bounds the rolling sample window kept per entity.
const maxTrustHistory = 100

// defaultTrustWeight is returned for an entity with no recorded samples
// (SPEC_FULL.md §4.4). This is deliberately distinct from the consensus
// engine's own weight table, which defaults unknown voters to 1.0 — see
// consensus.Engine.SetVoterWeight.
const defaultTrustWeight = 0.5

// Ledger persists trust weights and content-addressed consensus records
// under a base directory.
type Ledger struct {
	dir string
	log logging.Logger

	mu           sync.Mutex
	trustWeights map[string][]float64
	cidCache     map[string]string
}

// New builds a Ledger rooted at dir. Call Load to populate it from any
// existing on-disk state.
func New(dir string, log logging.Logger) *Ledger {
	if log == nil {
		log = logging.NoOp()
	}
	return &Ledger{
		dir:          dir,
		log:          log,
		trustWeights: make(map[string][]float64),
		cidCache:     make(map[string]string),
	}
}

func (l *Ledger) trustWeightsPath() string { return filepath.Join(l.dir, "trust_weights.json") }
func (l *Ledger) cidCachePath() string     { return filepath.Join(l.dir, "cid_cache.json") }
func (l *Ledger) dataPath(cid string) string {
	return filepath.Join(l.dir, "data", cid+".json")
}

// Load populates the ledger from disk. Missing files are treated as an
// empty store; corrupt files are logged and skipped rather than failing
// boot, matching the teacher source's best-effort recovery policy.
func (l *Ledger) Load() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if raw, err := os.ReadFile(l.trustWeightsPath()); err == nil {
		var tw map[string][]float64
		if err := json.Unmarshal(raw, &tw); err != nil {
			l.log.Warn("corrupt trust_weights.json, starting fresh", zap.Error(err))
		} else {
			l.trustWeights = tw
		}
	} else if !os.IsNotExist(err) {
		return errors.Wrapf(err, "read %s", l.trustWeightsPath())
	}

	if raw, err := os.ReadFile(l.cidCachePath()); err == nil {
		var cc map[string]string
		if err := json.Unmarshal(raw, &cc); err != nil {
			l.log.Warn("corrupt cid_cache.json, starting fresh", zap.Error(err))
		} else {
			l.cidCache = cc
		}
	} else if !os.IsNotExist(err) {
		return errors.Wrapf(err, "read %s", l.cidCachePath())
	}

	return nil
}

// RecordTrustSample appends sample to entity's rolling history, keeping
// only the newest maxTrustHistory entries, and persists the result.
func (l *Ledger) RecordTrustSample(entity string, sample float64) error {
	l.mu.Lock()
	hist := append(l.trustWeights[entity], sample)
	if len(hist) > maxTrustHistory {
		hist = hist[len(hist)-maxTrustHistory:]
	}
	l.trustWeights[entity] = hist
	snapshot := cloneTrustWeights(l.trustWeights)
	l.mu.Unlock()

	return l.persistTrustWeights(snapshot)
}

// TrustWeight returns the mean of entity's recorded samples, or
// defaultTrustWeight if none have been recorded.
func (l *Ledger) TrustWeight(entity string) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	hist := l.trustWeights[entity]
	if len(hist) == 0 {
		return defaultTrustWeight
	}
	var sum float64
	for _, s := range hist {
		sum += s
	}
	return sum / float64(len(hist))
}

// ComputeConsensusCID derives a content identifier from the sorted,
// concatenated base64 public keys of a proposal's voters: a stable,
// order-independent fingerprint of who reached consensus.
func ComputeConsensusCID(pubkeys [][]byte) string {
	encoded := make([]string, len(pubkeys))
	for i, pk := range pubkeys {
		encoded[i] = base64.StdEncoding.EncodeToString(pk)
	}
	sort.Strings(encoded)

	h := sha256.New()
	for _, e := range encoded {
		h.Write([]byte(e))
	}
	return cidPrefix + hex.EncodeToString(h.Sum(nil))
}

// CachedCID returns a previously computed CID for key, if any.
func (l *Ledger) CachedCID(key string) (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	cid, ok := l.cidCache[key]
	return cid, ok
}

// CacheCID remembers cid under key and persists the cache.
func (l *Ledger) CacheCID(key, cid string) error {
	l.mu.Lock()
	l.cidCache[key] = cid
	snapshot := make(map[string]string, len(l.cidCache))
	for k, v := range l.cidCache {
		snapshot[k] = v
	}
	l.mu.Unlock()

	return l.persistCIDCache(snapshot)
}

// Pin writes data under data/<cid>.json, overwriting any existing record
// for that CID (consensus records are content-addressed, so a collision
// means identical inputs).
func (l *Ledger) Pin(cid string, data any) error {
	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return errors.Wrapf(err, "encode record for cid %q", cid)
	}
	path := l.dataPath(cid)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrapf(err, "create data dir for cid %q", cid)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return errors.Wrapf(err, "write record for cid %q", cid)
	}
	return nil
}

// Get reads back the raw JSON record pinned under cid.
func (l *Ledger) Get(cid string) (json.RawMessage, error) {
	raw, err := os.ReadFile(l.dataPath(cid))
	if err != nil {
		return nil, errors.Wrapf(err, "read record for cid %q", cid)
	}
	return json.RawMessage(raw), nil
}

func (l *Ledger) persistTrustWeights(tw map[string][]float64) error {
	raw, err := json.MarshalIndent(tw, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode trust_weights.json")
	}
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return errors.Wrapf(err, "create ledger dir %q", l.dir)
	}
	return errors.Wrap(os.WriteFile(l.trustWeightsPath(), raw, 0o644), "write trust_weights.json")
}

func (l *Ledger) persistCIDCache(cc map[string]string) error {
	raw, err := json.MarshalIndent(cc, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode cid_cache.json")
	}
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return errors.Wrapf(err, "create ledger dir %q", l.dir)
	}
	return errors.Wrap(os.WriteFile(l.cidCachePath(), raw, 0o644), "write cid_cache.json")
}

func cloneTrustWeights(tw map[string][]float64) map[string][]float64 {
	out := make(map[string][]float64, len(tw))
	for k, v := range tw {
		cp := make([]float64, len(v))
		copy(cp, v)
		out[k] = cp
	}
	return out
}
