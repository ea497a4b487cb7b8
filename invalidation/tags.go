package invalidation

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	mesherrors "github.com/devrev/cachemesh/errors"
	"github.com/devrev/cachemesh/metrics"
)

const tagKeyPrefix = "tag:"

// TagKey returns the cache key the member set of a tag lives under.
func TagKey(tag string) string {
	return tagKeyPrefix + tag
}

// Tags groups cache keys under named tags so a whole group can be
// invalidated at once. The member set is a JSON string array stored in the
// cache itself under "tag:<name>" with no TTL.
//
// Member-set updates and value writes are separate cache operations. A
// crash between them can leave a tag referencing a missing key or a key
// missing from its tag; InvalidateTag tolerates both.
type Tags struct {
	cluster Cluster
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// NewTags creates the tag layer over a cluster. A nil Metrics leaves
// counters unregistered.
func NewTags(cluster Cluster, logger *zap.Logger, m *metrics.Metrics) *Tags {
	if logger == nil {
		logger = zap.NewNop()
	}
	if m == nil {
		m = metrics.New(nil)
	}
	return &Tags{cluster: cluster, logger: logger, metrics: m}
}

// SetWithTags writes key and adds it to each tag's member set.
func (t *Tags) SetWithTags(ctx context.Context, key string, value []byte, ttl time.Duration, tags ...string) error {
	if err := t.cluster.Set(ctx, key, value, ttl); err != nil {
		return err
	}

	for _, tag := range tags {
		if err := t.addMember(ctx, tag, key); err != nil {
			return fmt.Errorf("tag %s: %w", tag, err)
		}
	}
	return nil
}

// InvalidateTag deletes every member of tag and then the member set.
// Returns the number of members deleted.
func (t *Tags) InvalidateTag(ctx context.Context, tag string) (int, error) {
	members, err := t.Members(ctx, tag)
	if err != nil {
		return 0, err
	}

	deleted := 0
	for _, key := range members {
		if err := t.cluster.Delete(ctx, key); err != nil {
			t.logger.Warn("Tag member delete failed",
				zap.String("tag", tag),
				zap.String("key", key),
				zap.Error(err))
			continue
		}
		deleted++
	}

	if err := t.cluster.Delete(ctx, TagKey(tag)); err != nil {
		return deleted, err
	}
	t.metrics.RecordInvalidation("tag")
	return deleted, nil
}

// Members returns the keys currently tagged with tag, sorted. A tag with
// no members returns an empty slice.
func (t *Tags) Members(ctx context.Context, tag string) ([]string, error) {
	data, err := t.cluster.Get(ctx, TagKey(tag))
	if err != nil {
		if mesherrors.IsKeyNotFound(err) {
			return nil, nil
		}
		return nil, err
	}

	var members []string
	if err := json.Unmarshal(data, &members); err != nil {
		return nil, fmt.Errorf("decode tag set %s: %w", tag, err)
	}
	sort.Strings(members)
	return members, nil
}

func (t *Tags) addMember(ctx context.Context, tag, key string) error {
	members, err := t.Members(ctx, tag)
	if err != nil {
		return err
	}
	for _, m := range members {
		if m == key {
			return nil
		}
	}
	members = append(members, key)

	data, err := json.Marshal(members)
	if err != nil {
		return err
	}
	return t.cluster.Set(ctx, TagKey(tag), data, 0)
}
