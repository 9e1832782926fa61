package journal_test

import (
	"bytes"
	"testing"

	fatcoreerrors "github.com/dargueta/fatcore/errors"
	"github.com/dargueta/fatcore/fat"
	"github.com/dargueta/fatcore/journal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memChain struct {
	data []byte
}

func (m *memChain) WriteAt(p []byte, off int64) (int, fatcoreerrors.DriverError) {
	end := off + int64(len(p))
	if int64(len(m.data)) < end {
		grown := make([]byte, end)
		copy(grown, m.data)
		m.data = grown
	}
	copy(m.data[off:end], p)
	return len(p), nil
}

type recordingApplier struct {
	applied []journal.Record
}

func (a *recordingApplier) Apply(r journal.Record) fatcoreerrors.DriverError {
	a.applied = append(a.applied, r)
	return nil
}

func TestJournal_AppendCommitThenReplay(t *testing.T) {
	chain := &memChain{}
	j := journal.New(chain, false)

	require.NoError(t, j.Start())
	require.NoError(t, j.Append(journal.Record{
		Kind:            journal.RecordEnterClusChainAlloc,
		FirstNewCluster: fat.ClusterID(10),
		Count:           3,
	}))
	require.NoError(t, j.Commit())
	j.ClearReset()
	assert.Equal(t, journal.Stopped, j.State())

	applier := &recordingApplier{}
	replayed, err := journal.Replay(bytes.NewReader(chain.data), int64(len(chain.data)), applier)
	require.NoError(t, err)
	assert.Equal(t, 1, replayed)
	require.Len(t, applier.applied, 1)
	assert.EqualValues(t, 10, applier.applied[0].FirstNewCluster)
	assert.EqualValues(t, 3, applier.applied[0].Count)
}

func TestJournal_UncommittedTransactionDiscarded(t *testing.T) {
	chain := &memChain{}
	j := journal.New(chain, false)

	require.NoError(t, j.Start())
	require.NoError(t, j.Append(journal.Record{Kind: journal.RecordEnterEntryCreate}))
	// No Commit() call -- simulates a crash mid-transaction.

	applier := &recordingApplier{}
	replayed, err := journal.Replay(bytes.NewReader(chain.data), int64(len(chain.data)), applier)
	require.NoError(t, err)
	assert.Equal(t, 0, replayed)
	assert.Empty(t, applier.applied)
}

func TestJournal_AppendBeforeStartFails(t *testing.T) {
	chain := &memChain{}
	j := journal.New(chain, false)
	err := j.Append(journal.Record{Kind: journal.RecordEnterEntryCreate})
	assert.ErrorIs(t, err, fatcoreerrors.ErrJournalNotStarted)
}

