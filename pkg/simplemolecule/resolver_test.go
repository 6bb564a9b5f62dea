package simplemolecule_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-molecule/pkg/simplemolecule"
	"github.com/tendant/simple-molecule/pkg/simplemolecule/storage/memory"
)

// stalledSource never answers until the test ends.
type stalledSource struct {
	release chan struct{}
}

func (s *stalledSource) Name() string { return "stalled" }

func (s *stalledSource) Read(ctx context.Context, folder, filename, identifier string) (*simplemolecule.SourceObject, error) {
	<-s.release
	return nil, simplemolecule.ErrSourceNotFound
}

func (s *stalledSource) Write(ctx context.Context, folder, filename, identifier, content string) (string, error) {
	return "", nil
}

type panickingSource struct{}

func (panickingSource) Name() string { return "panicking" }

func (panickingSource) Read(context.Context, string, string, string) (*simplemolecule.SourceObject, error) {
	panic("disk on fire")
}

func (panickingSource) Write(context.Context, string, string, string, string) (string, error) {
	panic("disk on fire")
}

func setupResolverTest(t *testing.T, opts ...simplemolecule.ResolverOption) (*simplemolecule.ContentStore, *simplemolecule.Resolver) {
	t.Helper()
	store := setupStoreTest(t)
	resolver, err := simplemolecule.NewResolver(store, opts...)
	require.NoError(t, err)
	return store, resolver
}

func TestNewResolverRequiresStore(t *testing.T) {
	resolver, err := simplemolecule.NewResolver(nil)
	assert.Error(t, err)
	assert.Nil(t, resolver)
}

func TestResolveLiteral(t *testing.T) {
	store, resolver := setupResolverTest(t)

	res := resolver.Resolve(context.Background(), simplemolecule.ResolveRequest{Input: samplePDB, Identifier: "wf_node_1"})
	assert.Equal(t, samplePDB, res.Content)
	assert.True(t, res.Metadata.Success)
	assert.Equal(t, simplemolecule.TierDirect, res.Metadata.Source)
	assert.Equal(t, simplemolecule.InputLiteral, res.Metadata.InputKind)
	assert.Equal(t, simplemolecule.FormatPDB, res.Metadata.Format)
	require.NotNil(t, res.Metadata.Atoms)
	assert.Equal(t, 4, *res.Metadata.Atoms)
	assert.Equal(t, 6, res.Metadata.TotalLines)
	assert.Equal(t, 0, store.Len())

	res = resolver.Resolve(context.Background(), simplemolecule.ResolveRequest{Input: sampleFASTA})
	assert.Equal(t, simplemolecule.FormatFASTA, res.Metadata.Format)
	assert.Nil(t, res.Metadata.Atoms)
	require.NotNil(t, res.Metadata.Sequences)
	assert.Equal(t, 2, *res.Metadata.Sequences)
}

func TestResolveExactHitIsIdempotent(t *testing.T) {
	store, resolver := setupResolverTest(t)
	ctx := context.Background()
	mustStore(t, store, "wf_node_1", "protein.pdb", samplePDB)

	req := simplemolecule.ResolveRequest{Input: "protein.pdb", Identifier: "wf_node_1"}
	first := resolver.Resolve(ctx, req)
	second := resolver.Resolve(ctx, req)

	for _, res := range []*simplemolecule.Resolution{first, second} {
		assert.True(t, res.Metadata.Success)
		assert.Equal(t, simplemolecule.TierCacheExact, res.Metadata.Source)
		assert.Equal(t, samplePDB, res.Content)
		assert.Equal(t, "wf_node_1", res.Metadata.Identifier)
		assert.Equal(t, 4, *res.Metadata.Atoms)
	}

	rec, err := store.Peek(ctx, "wf_node_1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), rec.AccessCount)
}

func TestResolveCrossSessionSelfHeals(t *testing.T) {
	store, resolver := setupResolverTest(t)
	ctx := context.Background()
	mustStore(t, store, "tabA_node_1", "ligand.pdb", samplePDB)

	res := resolver.Resolve(ctx, simplemolecule.ResolveRequest{Input: "ligand.pdb", Identifier: "tabB_node_2"})
	assert.True(t, res.Metadata.Success)
	assert.Equal(t, simplemolecule.TierCrossSession, res.Metadata.Source)
	assert.Equal(t, "tabA_node_1", res.Metadata.SourceIdentifier)
	assert.Equal(t, samplePDB, res.Content)

	copied, err := store.Peek(ctx, "tabB_node_2")
	require.NoError(t, err)
	assert.Equal(t, samplePDB, copied.Content)
	assert.Equal(t, "ligand.pdb", copied.Filename)
	assert.Equal(t, simplemolecule.OriginCrossSession, copied.Origin)

	again := resolver.Resolve(ctx, simplemolecule.ResolveRequest{Input: "ligand.pdb", Identifier: "tabB_node_2"})
	assert.Equal(t, simplemolecule.TierCacheExact, again.Metadata.Source)
	assert.Equal(t, samplePDB, again.Content)
}

func TestResolveCrossSessionPrefersOwnSession(t *testing.T) {
	store, resolver := setupResolverTest(t)
	ctx := context.Background()

	mustStore(t, store, "other_node_1", "shared.xyz", sampleXYZ)
	for i := 0; i < 5; i++ {
		_, err := store.Get(ctx, "other_node_1")
		require.NoError(t, err)
	}
	own := "2\nown session\nH 0 0 0\nH 0 0 0.74"
	mustStore(t, store, "mine_node_2", "shared.xyz", own)

	res := resolver.Resolve(ctx, simplemolecule.ResolveRequest{Input: "shared.xyz", Identifier: "mine_node_9"})
	assert.Equal(t, simplemolecule.TierCrossSession, res.Metadata.Source)
	assert.Equal(t, "mine_node_2", res.Metadata.SourceIdentifier)
	assert.Equal(t, own, res.Content)
	assert.Equal(t, 2, *res.Metadata.Atoms)
}

func TestResolveWithoutIdentifierDoesNotCopy(t *testing.T) {
	store, resolver := setupResolverTest(t)
	mustStore(t, store, "wf_node_1", "ligand.pdb", samplePDB)

	res := resolver.Resolve(context.Background(), simplemolecule.ResolveRequest{Input: "ligand.pdb"})
	assert.True(t, res.Metadata.Success)
	assert.Equal(t, simplemolecule.TierCrossSession, res.Metadata.Source)
	assert.Equal(t, 1, store.Len())
}

func TestResolveFailureNeverPanics(t *testing.T) {
	_, resolver := setupResolverTest(t)

	res := resolver.Resolve(context.Background(), simplemolecule.ResolveRequest{Input: " missing.pdb ", Identifier: "wf_node_1"})
	require.NotNil(t, res)
	assert.False(t, res.Metadata.Success)
	assert.Equal(t, simplemolecule.TierNone, res.Metadata.Source)
	assert.Equal(t, simplemolecule.FailureMessage, res.Metadata.Error)
	assert.Equal(t, " missing.pdb ", res.Content)
	assert.Equal(t, "missing.pdb", res.Metadata.Filename)
	assert.Equal(t, simplemolecule.FormatUnknown, res.Metadata.Format)
	assert.Equal(t, simplemolecule.FormatUnknown.Name(), res.Metadata.FormatName)
	require.NotNil(t, res.Metadata.Atoms)
	assert.Equal(t, 0, *res.Metadata.Atoms)
	assert.Equal(t, []simplemolecule.Tier{simplemolecule.TierCacheExact, simplemolecule.TierCrossSession}, res.Metadata.Attempted)
}

func TestResolveFallback(t *testing.T) {
	ctx := context.Background()

	t.Run("hit writes back", func(t *testing.T) {
		src := memory.New()
		require.NoError(t, src.Put("molecules", "fromdisk.pdb", samplePDB))
		store, resolver := setupResolverTest(t, simplemolecule.WithFallbackSource(src))

		res := resolver.Resolve(ctx, simplemolecule.ResolveRequest{Input: "fromdisk.pdb", Identifier: "wf_node_4"})
		assert.True(t, res.Metadata.Success)
		assert.Equal(t, simplemolecule.TierFilesystem, res.Metadata.Source)
		assert.Equal(t, "molecules/fromdisk.pdb", res.Metadata.SourcePath)
		assert.Equal(t, samplePDB, res.Content)
		assert.Equal(t, 4, *res.Metadata.Atoms)

		rec, err := store.Peek(ctx, "wf_node_4")
		require.NoError(t, err)
		assert.Equal(t, simplemolecule.OriginFilesystem, rec.Origin)

		again := resolver.Resolve(ctx, simplemolecule.ResolveRequest{Input: "fromdisk.pdb", Identifier: "wf_node_4"})
		assert.Equal(t, simplemolecule.TierCacheExact, again.Metadata.Source)
	})

	t.Run("write back disabled", func(t *testing.T) {
		src := memory.New()
		require.NoError(t, src.Put("molecules", "fromdisk.pdb", samplePDB))
		store, resolver := setupResolverTest(t,
			simplemolecule.WithFallbackSource(src),
			simplemolecule.WithFallbackWriteBack(false))

		res := resolver.Resolve(ctx, simplemolecule.ResolveRequest{Input: "fromdisk.pdb", Identifier: "wf_node_4"})
		assert.Equal(t, simplemolecule.TierFilesystem, res.Metadata.Source)
		assert.Equal(t, 0, store.Len())
	})

	t.Run("disambiguated name", func(t *testing.T) {
		src := memory.New()
		_, err := src.Write(ctx, "molecules", "ligand.pdb", "old_node_7", samplePDB)
		require.NoError(t, err)
		_, resolver := setupResolverTest(t, simplemolecule.WithFallbackSource(src))

		res := resolver.Resolve(ctx, simplemolecule.ResolveRequest{Input: "ligand.pdb", Identifier: "new_node_7"})
		assert.Equal(t, simplemolecule.TierFilesystem, res.Metadata.Source)
		assert.Equal(t, "molecules/ligand_node7.pdb", res.Metadata.SourcePath)
	})

	t.Run("custom folder and sniffed format", func(t *testing.T) {
		src := memory.New()
		require.NoError(t, src.Put("proteins", "structure.txt", samplePDB))
		_, resolver := setupResolverTest(t,
			simplemolecule.WithFallbackSource(src),
			simplemolecule.WithFallbackFolder("proteins"))

		res := resolver.Resolve(ctx, simplemolecule.ResolveRequest{Input: "structure.txt", Identifier: "wf_node_1"})
		assert.Equal(t, simplemolecule.TierFilesystem, res.Metadata.Source)
		assert.Equal(t, simplemolecule.FormatPDB, res.Metadata.Format)
		assert.Equal(t, 4, *res.Metadata.Atoms)
	})

	t.Run("skip fallback", func(t *testing.T) {
		src := memory.New()
		require.NoError(t, src.Put("molecules", "fromdisk.pdb", samplePDB))
		_, resolver := setupResolverTest(t, simplemolecule.WithFallbackSource(src))

		res := resolver.Resolve(ctx, simplemolecule.ResolveRequest{Input: "fromdisk.pdb", Identifier: "wf_node_4", SkipFallback: true})
		assert.False(t, res.Metadata.Success)
		assert.NotContains(t, res.Metadata.Attempted, simplemolecule.TierFilesystem)
	})

	t.Run("miss", func(t *testing.T) {
		_, resolver := setupResolverTest(t, simplemolecule.WithFallbackSource(memory.New()))

		res := resolver.Resolve(ctx, simplemolecule.ResolveRequest{Input: "nowhere.pdb", Identifier: "wf_node_4"})
		assert.False(t, res.Metadata.Success)
		assert.Contains(t, res.Metadata.Attempted, simplemolecule.TierFilesystem)
		assert.Empty(t, res.Metadata.FallbackError)
	})
}

func TestResolveFallbackTimeout(t *testing.T) {
	src := &stalledSource{release: make(chan struct{})}
	t.Cleanup(func() { close(src.release) })

	_, resolver := setupResolverTest(t,
		simplemolecule.WithFallbackSource(src),
		simplemolecule.WithFallbackTimeout(20*time.Millisecond))

	start := time.Now()
	res := resolver.Resolve(context.Background(), simplemolecule.ResolveRequest{Input: "slow.pdb", Identifier: "wf_node_1"})
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.False(t, res.Metadata.Success)
	assert.Equal(t, simplemolecule.TierNone, res.Metadata.Source)
	assert.Contains(t, res.Metadata.FallbackError, "timed out")
}

func TestResolvePanicsAreContained(t *testing.T) {
	t.Run("fallback source panics", func(t *testing.T) {
		_, resolver := setupResolverTest(t, simplemolecule.WithFallbackSource(panickingSource{}))

		res := resolver.Resolve(context.Background(), simplemolecule.ResolveRequest{Input: "a.pdb", Identifier: "wf_node_1"})
		assert.False(t, res.Metadata.Success)
		assert.Contains(t, res.Metadata.FallbackError, "panic")
	})

	t.Run("cross-session copy hook panics", func(t *testing.T) {
		var errs []string
		hooks := &simplemolecule.Hooks{
			BeforeStore: []simplemolecule.BeforeStoreHook{
				func(hctx *simplemolecule.HookContext, req *simplemolecule.StoreRequest) error {
					if req.Origin == simplemolecule.OriginCrossSession {
						panic("copy exploded")
					}
					return nil
				},
			},
			OnError: []simplemolecule.ErrorHook{
				func(hctx *simplemolecule.HookContext, operation string, err error) {
					errs = append(errs, operation)
				},
			},
		}
		store := simplemolecule.NewContentStore(simplemolecule.WithHooks(hooks))
		resolver, err := simplemolecule.NewResolver(store, simplemolecule.WithResolverHooks(hooks))
		require.NoError(t, err)
		mustStore(t, store, "a_node_1", "x.pdb", samplePDB)

		res := resolver.Resolve(context.Background(), simplemolecule.ResolveRequest{Input: "x.pdb", Identifier: "b_node_1"})
		assert.True(t, res.Metadata.Success)
		assert.Equal(t, simplemolecule.TierCrossSession, res.Metadata.Source)
		assert.Equal(t, samplePDB, res.Content)
		assert.Equal(t, []string{"store"}, errs)

		_, err = store.Peek(context.Background(), "b_node_1")
		assert.ErrorIs(t, err, simplemolecule.ErrRecordNotFound)
	})
}

func TestResolveHooks(t *testing.T) {
	var sources []simplemolecule.Tier
	hooks := &simplemolecule.Hooks{
		OnResolve: []simplemolecule.ResolveHook{
			func(hctx *simplemolecule.HookContext, content string, md *simplemolecule.Metadata) error {
				sources = append(sources, md.Source)
				return nil
			},
		},
	}
	store, resolver := setupResolverTest(t, simplemolecule.WithResolverHooks(hooks))
	mustStore(t, store, "wf_node_1", "a.pdb", samplePDB)
	ctx := context.Background()

	resolver.Resolve(ctx, simplemolecule.ResolveRequest{Input: samplePDB})
	resolver.Resolve(ctx, simplemolecule.ResolveRequest{Input: "a.pdb", Identifier: "wf_node_1"})
	resolver.Resolve(ctx, simplemolecule.ResolveRequest{Input: "b.pdb", Identifier: "wf_node_1"})

	assert.Equal(t, []simplemolecule.Tier{
		simplemolecule.TierDirect,
		simplemolecule.TierCacheExact,
		simplemolecule.TierCacheExact,
	}, sources)
}

func TestResolveConcurrent(t *testing.T) {
	src := memory.New()
	require.NoError(t, src.Put("molecules", "disk.pdb", samplePDB))
	store := simplemolecule.NewContentStore()
	resolver, err := simplemolecule.NewResolver(store, simplemolecule.WithFallbackSource(src))
	require.NoError(t, err)
	ctx := context.Background()
	mustStore(t, store, "seed_node_0", "shared.pdb", samplePDB)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j, input := range []string{"shared.pdb", "disk.pdb", samplePDB, "missing.pdb"} {
				id := fmt.Sprintf("tab%d_node_%d_%d", i%4, i, j)
				res := resolver.Resolve(ctx, simplemolecule.ResolveRequest{Input: input, Identifier: id})
				if input == "missing.pdb" {
					assert.False(t, res.Metadata.Success)
				} else {
					assert.True(t, res.Metadata.Success)
					assert.Equal(t, samplePDB, res.Content)
				}
			}
		}(i)
	}
	wg.Wait()
}
