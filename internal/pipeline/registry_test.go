package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noop(ctx context.Context, d *Deps, actor string) (any, error) { return nil, nil }

func TestNewRegistryRejectsCycle(t *testing.T) {
	_, err := NewRegistry([]Stage{
		{Kind: "a", After: []string{"b"}, Run: noop},
		{Kind: "b", After: []string{"a"}, Run: noop},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cycle")
}

func TestNewRegistryRejectsUnknownUpstream(t *testing.T) {
	_, err := NewRegistry([]Stage{
		{Kind: "a", After: []string{"ghost"}, Run: noop},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown")
}

func TestNewRegistryRejectsDuplicateKind(t *testing.T) {
	_, err := NewRegistry([]Stage{
		{Kind: "a", Run: noop},
		{Kind: "a", Run: noop},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate")
}

func TestDefaultRegistryOrder(t *testing.T) {
	reg, err := DefaultRegistry()
	require.NoError(t, err)

	order := reg.CriticalOrder()
	pos := make(map[string]int, len(order))
	for i, k := range order {
		pos[k] = i
	}

	// Every stage runs after all of its upstreams.
	for _, k := range order {
		for _, up := range reg.Get(k).After {
			assert.Less(t, pos[up], pos[k], "%s must run before %s", up, k)
		}
	}
	assert.Equal(t, KindFetchProfile, order[0])
	assert.Equal(t, KindEmbedUser, order[len(order)-1])
	assert.Len(t, reg.DeferredKinds(), 4)
}

func TestDownstreamOf(t *testing.T) {
	reg, err := DefaultRegistry()
	require.NoError(t, err)

	kinds, err := reg.DownstreamOf(KindSelectRepos)
	require.NoError(t, err)

	set := make(map[string]bool, len(kinds))
	for _, k := range kinds {
		set[k] = true
	}
	for _, want := range []string{
		KindSelectRepos, KindInferTheme, KindGenerateBlurb,
		KindEmbedRepos, KindEmbedUser,
		KindEnhanceMedia, KindExtractEmph, KindExtractKeyword, KindExtractKind,
	} {
		assert.True(t, set[want], "%s should be downstream of %s", want, KindSelectRepos)
	}
	assert.False(t, set[KindFetchProfile])
	assert.False(t, set[KindFetchRepos])
}

func TestDownstreamOfDeferredIsJustItself(t *testing.T) {
	reg, err := DefaultRegistry()
	require.NoError(t, err)

	kinds, err := reg.DownstreamOf(KindExtractKind)
	require.NoError(t, err)
	assert.Equal(t, []string{KindExtractKind}, kinds)
}

func TestDownstreamOfUnknownKind(t *testing.T) {
	reg, err := DefaultRegistry()
	require.NoError(t, err)

	_, err = reg.DownstreamOf("no_such_stage")
	require.Error(t, err)
}
