package journal

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "journal.db")
	s, err := Open(path)
	require.NoError(t, err)
	return s, path
}

func TestJournalLifecycle(t *testing.T) {
	require := require.New(t)

	s, path := openTemp(t)
	start := time.Unix(1700000000, 0).UTC()

	require.NoError(s.Begin("0102030405060708", "compute_bounty", "idle", start))
	require.NoError(s.Transition("0102030405060708", "submitted", "", "", start.Add(time.Second)))
	require.NoError(s.Transition("0102030405060708", "failed", "timeout", "deadline exceeded", start.Add(2*time.Second)))
	require.NoError(s.Close())

	s, err := Open(path)
	require.NoError(err)
	defer s.Close()

	rec, err := s.Get("0102030405060708")
	require.NoError(err)
	require.Equal("failed", rec.State)
	require.Equal("timeout", rec.Reason)
	require.Equal("deadline exceeded", rec.Error)
	require.Equal("compute_bounty", rec.Circuit)
	require.Len(rec.Transitions, 3)
	require.True(rec.StartedAt.Equal(start))
	require.True(rec.UpdatedAt.Equal(start.Add(2 * time.Second)))
}

func TestJournalNotFound(t *testing.T) {
	s, _ := openTemp(t)
	defer s.Close()

	_, err := s.Get("ffffffffffffffff")
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorIs(t, s.Transition("ffffffffffffffff", "failed", "", "", time.Now()), ErrNotFound)
}

func TestJournalListOrder(t *testing.T) {
	require := require.New(t)

	s, _ := openTemp(t)
	defer s.Close()

	base := time.Unix(1700000000, 0)
	for i, id := range []string{"aa", "bb", "cc"} {
		require.NoError(s.Begin(id, "compute_bounty", "idle", base.Add(time.Duration(i)*time.Minute)))
	}

	recs, err := s.List(0)
	require.NoError(err)
	require.Len(recs, 3)
	require.Equal("cc", recs[0].CorrelationID)
	require.Equal("aa", recs[2].CorrelationID)

	recs, err = s.List(2)
	require.NoError(err)
	require.Len(recs, 2)
	require.Equal("bb", recs[1].CorrelationID)
}
