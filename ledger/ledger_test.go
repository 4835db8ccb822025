package ledger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lyra-sh/lyra/internal/logging"
)

func TestRecordTrustSampleAveragesAndPersists(t *testing.T) {
	dir := t.TempDir()
	l := New(dir, logging.NoOp())

	require.NoError(t, l.RecordTrustSample("agent-a", 1.0))
	require.NoError(t, l.RecordTrustSample("agent-a", 0.5))

	require.InDelta(t, 0.75, l.TrustWeight("agent-a"), 1e-9)
	require.FileExists(t, filepath.Join(dir, "trust_weights.json"))
}

func TestTrustWeightDefaultsWhenUnrecorded(t *testing.T) {
	l := New(t.TempDir(), logging.NoOp())
	require.Equal(t, defaultTrustWeight, l.TrustWeight("never-seen"))
}

func TestTrustHistoryIsBounded(t *testing.T) {
	dir := t.TempDir()
	l := New(dir, logging.NoOp())

	for i := 0; i < maxTrustHistory+10; i++ {
		require.NoError(t, l.RecordTrustSample("agent-a", 1.0))
	}
	require.Len(t, l.trustWeights["agent-a"], maxTrustHistory)
}

func TestLoadRecoversPersistedState(t *testing.T) {
	dir := t.TempDir()
	l1 := New(dir, logging.NoOp())
	require.NoError(t, l1.RecordTrustSample("agent-a", 0.9))
	require.NoError(t, l1.CacheCID("proposal-1", "lyra1deadbeef"))

	l2 := New(dir, logging.NoOp())
	require.NoError(t, l2.Load())

	require.InDelta(t, 0.9, l2.TrustWeight("agent-a"), 1e-9)
	cid, ok := l2.CachedCID("proposal-1")
	require.True(t, ok)
	require.Equal(t, "lyra1deadbeef", cid)
}

func TestLoadRecoversFromCorruptFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "trust_weights.json"), []byte("{not json"), 0o644))

	l := New(dir, logging.NoOp())
	require.NoError(t, l.Load())
	require.Equal(t, defaultTrustWeight, l.TrustWeight("agent-a"))
}

func TestComputeConsensusCIDIsOrderIndependent(t *testing.T) {
	a := []byte("pubkey-a")
	b := []byte("pubkey-b")

	cid1 := ComputeConsensusCID([][]byte{a, b})
	cid2 := ComputeConsensusCID([][]byte{b, a})

	require.Equal(t, cid1, cid2)
	require.True(t, strings.HasPrefix(cid1, cidPrefix))
}

func TestComputeConsensusCIDDiffersForDifferentVoters(t *testing.T) {
	cid1 := ComputeConsensusCID([][]byte{[]byte("a")})
	cid2 := ComputeConsensusCID([][]byte{[]byte("b")})
	require.NotEqual(t, cid1, cid2)
}

func TestPinAndGetRoundTrip(t *testing.T) {
	dir := t.TempDir()
	l := New(dir, logging.NoOp())

	type record struct {
		Proposal string `json:"proposal"`
		Approved bool   `json:"approved"`
	}

	cid := ComputeConsensusCID([][]byte{[]byte("a"), []byte("b")})
	require.NoError(t, l.Pin(cid, record{Proposal: "p1", Approved: true}))

	raw, err := l.Get(cid)
	require.NoError(t, err)
	require.Contains(t, string(raw), `"proposal": "p1"`)
}
