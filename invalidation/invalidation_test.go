package invalidation_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/devrev/cachemesh/client"
	mesherrors "github.com/devrev/cachemesh/errors"
	"github.com/devrev/cachemesh/invalidation"
	"github.com/devrev/cachemesh/store"
	"github.com/devrev/cachemesh/transport"
)

func newCluster(t *testing.T) *client.Client {
	t.Helper()

	mem := transport.NewMemory(func() store.Store { return store.NewLRU(1024) })
	mem.AddNode("node-a")
	mem.AddNode("node-b")

	c, err := client.New(client.Config{
		Nodes:             []string{"node-a", "node-b"},
		ReplicationFactor: 1,
		RequestTimeout:    200 * time.Millisecond,
	}, mem, zap.NewNop(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestInvalidator_PropagatesAcrossProcesses(t *testing.T) {
	bus := invalidation.NewMemoryPubSub()
	clusterA := newCluster(t)
	clusterB := newCluster(t)
	ctx := context.Background()

	invA := invalidation.NewInvalidator(clusterA, bus, "", zap.NewNop(), nil)
	invB := invalidation.NewInvalidator(clusterB, bus, "", zap.NewNop(), nil)
	require.NoError(t, invA.Start())
	require.NoError(t, invB.Start())
	defer invA.Close()
	defer invB.Close()

	for _, c := range []*client.Client{clusterA, clusterB} {
		require.NoError(t, c.Set(ctx, "user:1", []byte("alice"), 0))
		require.NoError(t, c.Set(ctx, "user:2", []byte("bob"), 0))
		require.NoError(t, c.Set(ctx, "order:1", []byte("widget"), 0))
	}

	require.NoError(t, invA.PublishInvalidation(ctx, "user:*"))

	for _, c := range []*client.Client{clusterA, clusterB} {
		_, err := c.Get(ctx, "user:1")
		assert.True(t, mesherrors.IsKeyNotFound(err))
		_, err = c.Get(ctx, "user:2")
		assert.True(t, mesherrors.IsKeyNotFound(err))

		v, err := c.Get(ctx, "order:1")
		require.NoError(t, err)
		assert.Equal(t, []byte("widget"), v)
	}
}

func TestInvalidator_MalformedMessageIgnored(t *testing.T) {
	bus := invalidation.NewMemoryPubSub()
	cluster := newCluster(t)
	ctx := context.Background()

	inv := invalidation.NewInvalidator(cluster, bus, "", zap.NewNop(), nil)
	require.NoError(t, inv.Start())
	defer inv.Close()

	require.NoError(t, cluster.Set(ctx, "user:1", []byte("alice"), 0))
	require.NoError(t, bus.Publish(ctx, invalidation.DefaultTopic, []byte("not json")))

	v, err := cluster.Get(ctx, "user:1")
	require.NoError(t, err)
	assert.Equal(t, []byte("alice"), v)
}

func TestInvalidator_CloseStopsDelivery(t *testing.T) {
	bus := invalidation.NewMemoryPubSub()
	cluster := newCluster(t)
	ctx := context.Background()

	inv := invalidation.NewInvalidator(cluster, bus, "", zap.NewNop(), nil)
	require.NoError(t, inv.Start())
	inv.Close()

	require.NoError(t, cluster.Set(ctx, "user:1", []byte("alice"), 0))

	other := invalidation.NewInvalidator(newCluster(t), bus, "", zap.NewNop(), nil)
	require.NoError(t, other.PublishInvalidation(ctx, "user:*"))

	v, err := cluster.Get(ctx, "user:1")
	require.NoError(t, err)
	assert.Equal(t, []byte("alice"), v)
}

func TestTags_InvalidateTagDeletesMembersAndSet(t *testing.T) {
	cluster := newCluster(t)
	tags := invalidation.NewTags(cluster, zap.NewNop(), nil)
	ctx := context.Background()

	require.NoError(t, tags.SetWithTags(ctx, "user:1", []byte("alice"), 0, "session"))
	require.NoError(t, tags.SetWithTags(ctx, "user:2", []byte("bob"), 0, "session"))
	require.NoError(t, tags.SetWithTags(ctx, "order:1", []byte("widget"), 0, "orders"))

	members, err := tags.Members(ctx, "session")
	require.NoError(t, err)
	assert.Equal(t, []string{"user:1", "user:2"}, members)

	deleted, err := tags.InvalidateTag(ctx, "session")
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)

	_, err = cluster.Get(ctx, "user:1")
	assert.True(t, mesherrors.IsKeyNotFound(err))
	_, err = cluster.Get(ctx, "user:2")
	assert.True(t, mesherrors.IsKeyNotFound(err))
	_, err = cluster.Get(ctx, invalidation.TagKey("session"))
	assert.True(t, mesherrors.IsKeyNotFound(err))

	// The other tag is untouched.
	v, err := cluster.Get(ctx, "order:1")
	require.NoError(t, err)
	assert.Equal(t, []byte("widget"), v)
}

func TestTags_MembershipIsDeduplicated(t *testing.T) {
	cluster := newCluster(t)
	tags := invalidation.NewTags(cluster, zap.NewNop(), nil)
	ctx := context.Background()

	require.NoError(t, tags.SetWithTags(ctx, "user:1", []byte("alice"), 0, "session"))
	require.NoError(t, tags.SetWithTags(ctx, "user:1", []byte("alice2"), 0, "session"))

	members, err := tags.Members(ctx, "session")
	require.NoError(t, err)
	assert.Equal(t, []string{"user:1"}, members)
}

func TestTags_KeyInMultipleTags(t *testing.T) {
	cluster := newCluster(t)
	tags := invalidation.NewTags(cluster, zap.NewNop(), nil)
	ctx := context.Background()

	require.NoError(t, tags.SetWithTags(ctx, "user:1", []byte("alice"), 0, "session", "premium"))

	for _, tag := range []string{"session", "premium"} {
		members, err := tags.Members(ctx, tag)
		require.NoError(t, err)
		assert.Equal(t, []string{"user:1"}, members, tag)
	}
}

func TestTags_InvalidateEmptyTag(t *testing.T) {
	cluster := newCluster(t)
	tags := invalidation.NewTags(cluster, zap.NewNop(), nil)

	deleted, err := tags.InvalidateTag(context.Background(), "nothing")
	require.NoError(t, err)
	assert.Zero(t, deleted)
}

func TestVersions_CleanupKeepsCurrent(t *testing.T) {
	cluster := newCluster(t)
	versions := invalidation.NewVersions(cluster, zap.NewNop(), nil)
	ctx := context.Background()

	require.NoError(t, versions.Set(ctx, "article", 1, []byte("draft"), 0))
	require.NoError(t, versions.Set(ctx, "article", 2, []byte("edited"), 0))
	require.NoError(t, versions.Set(ctx, "article", 3, []byte("final"), 0))

	versions.CleanupVersions("article", 3)
	versions.Wait()

	_, err := versions.Get(ctx, "article", 1)
	assert.True(t, mesherrors.IsKeyNotFound(err))
	_, err = versions.Get(ctx, "article", 2)
	assert.True(t, mesherrors.IsKeyNotFound(err))

	v, err := versions.Get(ctx, "article", 3)
	require.NoError(t, err)
	assert.Equal(t, []byte("final"), v)
}

func TestVersionKey(t *testing.T) {
	assert.Equal(t, "article:v7", invalidation.VersionKey("article", 7))
}

func TestMemoryPubSub_Unsubscribe(t *testing.T) {
	bus := invalidation.NewMemoryPubSub()
	ctx := context.Background()

	got := 0
	unsub, err := bus.Subscribe("topic", func([]byte) { got++ })
	require.NoError(t, err)

	require.NoError(t, bus.Publish(ctx, "topic", []byte("a")))
	unsub()
	require.NoError(t, bus.Publish(ctx, "topic", []byte("b")))

	assert.Equal(t, 1, got)
}
