package history

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/review-console/internal/logging"
	"github.com/helixir/review-console/internal/protocol"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "history.db"), logging.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func entry(i int) protocol.Entry {
	role := protocol.RoleUser
	if i%2 == 1 {
		role = protocol.RoleAgent
	}
	return protocol.Entry{
		Role: role,
		Text: fmt.Sprintf("message %02d", i),
		At:   time.Date(2026, 1, 1, 0, 0, i, 0, time.UTC),
	}
}

func TestBoundedWindow(t *testing.T) {
	s := openTestStore(t)

	for i := 0; i < 25; i++ {
		require.NoError(t, s.Append("agent-1", entry(i)))
	}

	got := s.Load("agent-1")
	require.Len(t, got, Window)
	assert.Equal(t, "message 05", got[0].Text, "oldest retained entry")
	assert.Equal(t, "message 24", got[len(got)-1].Text)
	for i := 1; i < len(got); i++ {
		assert.True(t, got[i-1].At.Before(got[i].At), "entries come back in original order")
	}
}

func TestLoadUnknownPeerIsEmpty(t *testing.T) {
	s := openTestStore(t)
	assert.Empty(t, s.Load("never-seen"))
}

func TestClear(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Append("agent-1", entry(0), entry(1)))
	require.NoError(t, s.Append("agent-2", entry(2)))

	require.NoError(t, s.Clear("agent-1"))

	assert.Empty(t, s.Load("agent-1"))
	assert.Len(t, s.Load("agent-2"), 1, "clearing one peer leaves the others alone")
}

func TestPeersAreIsolated(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Append("agent-1", protocol.Entry{Role: protocol.RoleUser, Text: "to one"}))
	require.NoError(t, s.Append("agent-2", protocol.Entry{Role: protocol.RoleUser, Text: "to two"}))

	one := s.Load("agent-1")
	require.Len(t, one, 1)
	assert.Equal(t, "to one", one[0].Text)
}

func TestSourcesRoundTrip(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Append("agent-1", protocol.Entry{
		Role: protocol.RoleAgent,
		Text: "see the paper",
		Sources: []protocol.Source{
			{Title: "CRISPR screening", ID: "PMID:123", Year: 2021, Kind: "paper"},
		},
	}))

	got := s.Load("agent-1")
	require.Len(t, got, 1)
	require.Len(t, got[0].Sources, 1)
	assert.Equal(t, "PMID:123", got[0].Sources[0].ID)
	assert.Equal(t, 2021, got[0].Sources[0].Year)
}

func TestCorruptSourcesDegradeToNoEvidence(t *testing.T) {
	s := openTestStore(t)

	_, err := s.db.Exec(
		`INSERT INTO transcripts (peer_id, role, body, sources, created_at) VALUES (?, ?, ?, ?, ?)`,
		"agent-1", protocol.RoleAgent, "answer", `{{{not json`, time.Now().UTC(),
	)
	require.NoError(t, err)

	got := s.Load("agent-1")
	require.Len(t, got, 1, "a corrupt payload is treated as history without evidence, never an error")
	assert.Equal(t, "answer", got[0].Text)
	assert.Nil(t, got[0].Sources)
}
