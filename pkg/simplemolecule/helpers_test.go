package simplemolecule_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-molecule/pkg/simplemolecule"
)

const samplePDB = `HEADER    TEST PROTEIN
ATOM      1  N   ALA A   1      11.104   6.134  -6.504  1.00  0.00           N
ATOM      2  CA  ALA A   1      11.639   6.071  -5.147  1.00  0.00           C
HETATM    3  O   HOH A   2      13.093   6.100  -5.000  1.00  0.00           O
ATOM      4  C   ALA A   1      13.150   6.200  -5.200  1.00  0.00           C
END`

const sampleMOL = `benzene
  handwritten

  6  6  0  0  0  0  0  0  0  0999 V2000
    1.2124    0.7000    0.0000 C   0  0
M  END`

const sampleXYZ = `3
water
O 0.000 0.000 0.000
H 0.757 0.586 0.000
H -0.757 0.586 0.000`

const sampleFASTA = `>sp|P69905|HBA_HUMAN
MVLSPADKTNVKAAWGKVGAHAGEYGAEALERMFLSFPTTKTYFPHF
>sp|P68871|HBB_HUMAN
MVHLTPEEKSAVTALWGKVNVDEVGGEALGRLLVVYPWTQRFFESFGDLST`

// recordingNotifier collects events synchronously.
type recordingNotifier struct {
	mu     sync.Mutex
	events []simplemolecule.Event
}

func (n *recordingNotifier) Notify(ctx context.Context, event simplemolecule.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
}

func (n *recordingNotifier) Events() []simplemolecule.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]simplemolecule.Event, len(n.events))
	copy(out, n.events)
	return out
}

// steppingClock returns a strictly increasing time on every call.
func steppingClock() func() time.Time {
	var mu sync.Mutex
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Second)
		return now
	}
}

func setupStoreTest(t *testing.T, opts ...simplemolecule.StoreOption) *simplemolecule.ContentStore {
	t.Helper()
	opts = append([]simplemolecule.StoreOption{simplemolecule.WithClock(steppingClock())}, opts...)
	store := simplemolecule.NewContentStore(opts...)
	require.NotNil(t, store)
	return store
}

func mustStore(t *testing.T, store *simplemolecule.ContentStore, identifier, filename, content string) *simplemolecule.Record {
	t.Helper()
	rec, err := store.Store(context.Background(), simplemolecule.StoreRequest{
		Identifier: identifier,
		Filename:   filename,
		Content:    content,
	})
	require.NoError(t, err)
	return rec
}
