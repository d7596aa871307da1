package binquery

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// RedisStore is a Store backed by Redis. Records live as JSON blobs,
// equality and contains filters are served from Redis Sets, range
// filters from Sorted Sets keyed by bin value.
//
// Key layout:
//
//	rec:{ns}:{set}:{pk}              record envelope (JSON)
//	recs:{ns}:{set}                  set of primary keys, for scans
//	idx:{ns}:{set}:{name}:{value}    equality/contains index (Set)
//	idxz:{ns}:{set}:{name}           numeric range index (Sorted Set)
//	sindex:{ns}                      index metadata (Hash, name -> JSON)
//
// Index reads are coarse on purpose: a contains index answers "some
// element matched", not "the whole record matches". The query engine's
// residual predicate removes the false positives.
type RedisStore struct {
	redis      *redis.Client
	ownsClient bool
}

// recordEnvelope is the stored wire form of a Record
type recordEnvelope struct {
	Bins       map[string]interface{} `json:"bins"`
	Generation uint32                 `json:"gen"`
	TTL        int64                  `json:"ttl,omitempty"`
	LastUpdate int64                  `json:"lut"`
}

// NewRedisStore creates a store over an existing Redis client. The
// caller retains ownership of the client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{redis: client}
}

// NewRedisStoreWithOwnedClient creates a store that closes the Redis
// client when Close is called.
func NewRedisStoreWithOwnedClient(client *redis.Client) *RedisStore {
	return &RedisStore{redis: client, ownsClient: true}
}

func recordKey(namespace, set, userKey string) string {
	return fmt.Sprintf("rec:%s:%s:%s", namespace, set, userKey)
}

func setMembersKey(namespace, set string) string {
	return fmt.Sprintf("recs:%s:%s", namespace, set)
}

func equalityIndexKey(namespace, set, name, value string) string {
	return fmt.Sprintf("idx:%s:%s:%s:%s", namespace, set, name, value)
}

func rangeIndexKey(namespace, set, name string) string {
	return fmt.Sprintf("idxz:%s:%s:%s", namespace, set, name)
}

func indexMetaKey(namespace string) string {
	return fmt.Sprintf("sindex:%s", namespace)
}

// Put writes a record and updates every index covering its bins
func (rs *RedisStore) Put(ctx context.Context, namespace, set, userKey string, bins map[string]interface{}, now int64) error {
	recKey := recordKey(namespace, set, userKey)

	var gen uint32 = 1
	if prev, err := rs.loadRecord(ctx, recKey); err == nil && prev != nil {
		gen = prev.Generation + 1
		if err := rs.deindexRecord(ctx, namespace, set, userKey, prev.Bins); err != nil {
			return err
		}
	}

	env := recordEnvelope{Bins: bins, Generation: gen, LastUpdate: now}
	data, err := json.Marshal(env)
	if err != nil {
		return WithContext(ErrInvalidQualifier, map[string]interface{}{
			"operation": "Put",
			"cause":     err.Error(),
		})
	}
	if err := rs.redis.Set(ctx, recKey, data, 0).Err(); err != nil {
		return rs.unavailable("Put", namespace, err)
	}
	if err := rs.redis.SAdd(ctx, setMembersKey(namespace, set), userKey).Err(); err != nil {
		return rs.unavailable("Put", namespace, err)
	}
	return rs.indexRecord(ctx, namespace, set, userKey, bins)
}

// Delete removes a record and its index entries
func (rs *RedisStore) Delete(ctx context.Context, namespace, set, userKey string) error {
	recKey := recordKey(namespace, set, userKey)
	prev, err := rs.loadRecord(ctx, recKey)
	if err != nil {
		return err
	}
	if prev != nil {
		if err := rs.deindexRecord(ctx, namespace, set, userKey, prev.Bins); err != nil {
			return err
		}
	}
	if err := rs.redis.Del(ctx, recKey).Err(); err != nil {
		return rs.unavailable("Delete", namespace, err)
	}
	if err := rs.redis.SRem(ctx, setMembersKey(namespace, set), userKey).Err(); err != nil {
		return rs.unavailable("Delete", namespace, err)
	}
	return nil
}

// Query serves a secondary-index filter from the Redis index keys
func (rs *RedisStore) Query(ctx context.Context, namespace, set string, filter *Filter) (Cursor, error) {
	if filter == nil {
		return rs.Scan(ctx, namespace, set)
	}

	desc, ok := rs.findIndex(ctx, namespace, set, filter)
	if !ok {
		return nil, WithContext(ErrUnsupportedQuery, map[string]interface{}{
			"namespace": namespace,
			"set":       set,
			"filter":    filter.String(),
		})
	}

	var userKeys []string
	var err error
	switch filter.Kind {
	case FilterEqual, FilterContains:
		if n, isNum := asInt(filter.Value); isNum && rangeIndexed(desc) {
			userKeys, err = rs.rangeMembers(ctx, namespace, set, desc.Name, n, n)
		} else {
			value := formatIndexValue(filter.Value)
			userKeys, err = rs.redis.SMembers(ctx, equalityIndexKey(namespace, set, desc.Name, value)).Result()
		}
	case FilterRange:
		if !rangeIndexed(desc) {
			return nil, WithContext(ErrUnsupportedQuery, map[string]interface{}{
				"namespace": namespace,
				"set":       set,
				"filter":    filter.String(),
			})
		}
		userKeys, err = rs.rangeMembers(ctx, namespace, set, desc.Name, filter.Begin, filter.End)
	default:
		return nil, WithContext(ErrUnsupportedQuery, map[string]interface{}{
			"namespace": namespace,
			"set":       set,
			"filter":    filter.String(),
		})
	}
	if err != nil && err != redis.Nil {
		return nil, rs.unavailable("Query", namespace, err)
	}

	entries, err := rs.MultiGet(ctx, namespace, set, userKeys)
	if err != nil {
		return nil, err
	}
	return newSliceCursor(entries), nil
}

// Scan iterates every record in the set
func (rs *RedisStore) Scan(ctx context.Context, namespace, set string) (Cursor, error) {
	userKeys, err := rs.redis.SMembers(ctx, setMembersKey(namespace, set)).Result()
	if err != nil && err != redis.Nil {
		return nil, rs.unavailable("Scan", namespace, err)
	}
	entries, err := rs.MultiGet(ctx, namespace, set, userKeys)
	if err != nil {
		return nil, err
	}
	return newSliceCursor(entries), nil
}

// MultiGet fetches records by primary key; missing keys are skipped
func (rs *RedisStore) MultiGet(ctx context.Context, namespace, set string, userKeys []string) ([]KeyRecord, error) {
	var out []KeyRecord
	for _, userKey := range userKeys {
		env, err := rs.loadRecord(ctx, recordKey(namespace, set, userKey))
		if err != nil {
			return nil, err
		}
		if env == nil {
			continue
		}
		out = append(out, KeyRecord{
			Key: Key{Namespace: namespace, Set: set, UserKey: userKey},
			Record: &Record{
				Bins:       env.Bins,
				Generation: env.Generation,
				TTL:        env.TTL,
				LastUpdate: env.LastUpdate,
			},
		})
	}
	return out, nil
}

// ListIndexes enumerates index metadata for a namespace
func (rs *RedisStore) ListIndexes(ctx context.Context, namespace string) ([]IndexDescriptor, error) {
	raw, err := rs.redis.HGetAll(ctx, indexMetaKey(namespace)).Result()
	if err != nil && err != redis.Nil {
		return nil, rs.unavailable("ListIndexes", namespace, err)
	}
	out := make([]IndexDescriptor, 0, len(raw))
	for name, blob := range raw {
		var desc IndexDescriptor
		if err := json.Unmarshal([]byte(blob), &desc); err != nil {
			return nil, WithContext(ErrStoreUnavailable, map[string]interface{}{
				"operation": "ListIndexes",
				"index":     name,
				"cause":     err.Error(),
			})
		}
		// the context path does not survive JSON round-trips; the
		// refresher rebuilds it from the wire form
		desc.Path = nil
		out = append(out, desc)
	}
	return out, nil
}

// CreateIndex records index metadata and backfills from existing
// records.
func (rs *RedisStore) CreateIndex(ctx context.Context, desc IndexDescriptor) error {
	ns := desc.Field.Namespace
	blob, err := json.Marshal(desc)
	if err != nil {
		return WithContext(ErrInvalidConfig, map[string]interface{}{
			"operation": "CreateIndex",
			"index":     desc.Name,
			"cause":     err.Error(),
		})
	}
	created, err := rs.redis.HSetNX(ctx, indexMetaKey(ns), desc.Name, blob).Result()
	if err != nil {
		return rs.unavailable("CreateIndex", ns, err)
	}
	if !created {
		return WithContext(ErrIndexExists, map[string]interface{}{
			"index":     desc.Name,
			"namespace": ns,
		})
	}

	// backfill from whatever is already stored
	userKeys, err := rs.redis.SMembers(ctx, setMembersKey(ns, desc.Field.Set)).Result()
	if err != nil && err != redis.Nil {
		return rs.unavailable("CreateIndex", ns, err)
	}
	for _, userKey := range userKeys {
		env, err := rs.loadRecord(ctx, recordKey(ns, desc.Field.Set, userKey))
		if err != nil {
			return err
		}
		if env == nil {
			continue
		}
		if err := rs.indexOne(ctx, desc, userKey, env.Bins); err != nil {
			return err
		}
	}
	return nil
}

// DropIndex removes index metadata and its Redis keys
func (rs *RedisStore) DropIndex(ctx context.Context, namespace, set, name string) error {
	blob, err := rs.redis.HGet(ctx, indexMetaKey(namespace), name).Result()
	if err == redis.Nil {
		return WithContext(ErrIndexNotFound, map[string]interface{}{
			"index":     name,
			"namespace": namespace,
			"set":       set,
		})
	}
	if err != nil {
		return rs.unavailable("DropIndex", namespace, err)
	}
	var desc IndexDescriptor
	if err := json.Unmarshal([]byte(blob), &desc); err == nil && desc.Field.Set != set {
		return WithContext(ErrIndexNotFound, map[string]interface{}{
			"index":     name,
			"namespace": namespace,
			"set":       set,
		})
	}

	if err := rs.redis.HDel(ctx, indexMetaKey(namespace), name).Err(); err != nil {
		return rs.unavailable("DropIndex", namespace, err)
	}

	// drop the range index key and every equality index key
	if err := rs.redis.Del(ctx, rangeIndexKey(namespace, set, name)).Err(); err != nil {
		return rs.unavailable("DropIndex", namespace, err)
	}
	pattern := fmt.Sprintf("idx:%s:%s:%s:*", namespace, set, name)
	iter := rs.redis.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		if err := rs.redis.Del(ctx, iter.Val()).Err(); err != nil {
			return rs.unavailable("DropIndex", namespace, err)
		}
	}
	if err := iter.Err(); err != nil {
		return rs.unavailable("DropIndex", namespace, err)
	}
	return nil
}

// Ping verifies connectivity
func (rs *RedisStore) Ping(ctx context.Context) error {
	if err := rs.redis.Ping(ctx).Err(); err != nil {
		return rs.unavailable("Ping", "", err)
	}
	return nil
}

// Close releases the Redis client if this store owns it
func (rs *RedisStore) Close() error {
	if rs.ownsClient && rs.redis != nil {
		return rs.redis.Close()
	}
	return nil
}

func (rs *RedisStore) loadRecord(ctx context.Context, recKey string) (*recordEnvelope, error) {
	data, err := rs.redis.Get(ctx, recKey).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, rs.unavailable("Get", "", err)
	}
	var env recordEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, WithContext(ErrStoreUnavailable, map[string]interface{}{
			"operation": "Get",
			"key":       recKey,
			"cause":     err.Error(),
		})
	}
	return &env, nil
}

// indexRecord adds the record to every index covering one of its bins
func (rs *RedisStore) indexRecord(ctx context.Context, namespace, set, userKey string, bins map[string]interface{}) error {
	descs, err := rs.ListIndexes(ctx, namespace)
	if err != nil {
		return err
	}
	for _, desc := range descs {
		if desc.Field.Set != set {
			continue
		}
		if err := rs.indexOne(ctx, desc, userKey, bins); err != nil {
			return err
		}
	}
	return nil
}

func (rs *RedisStore) deindexRecord(ctx context.Context, namespace, set, userKey string, bins map[string]interface{}) error {
	descs, err := rs.ListIndexes(ctx, namespace)
	if err != nil {
		return err
	}
	for _, desc := range descs {
		if desc.Field.Set != set {
			continue
		}
		ns, st := desc.Field.Namespace, desc.Field.Set
		for _, value := range indexableValues(desc, bins) {
			if rangeIndexed(desc) {
				if err := rs.redis.ZRem(ctx, rangeIndexKey(ns, st, desc.Name), userKey).Err(); err != nil {
					return rs.unavailable("Delete", ns, err)
				}
				continue
			}
			key := equalityIndexKey(ns, st, desc.Name, formatIndexValue(value))
			if err := rs.redis.SRem(ctx, key, userKey).Err(); err != nil {
				return rs.unavailable("Delete", ns, err)
			}
		}
	}
	return nil
}

// rangeIndexed reports whether an index lives in the sorted-set form.
// Only scalar numeric indexes do: a collection bin can contribute
// several values per record, which a zset member cannot hold.
func rangeIndexed(desc IndexDescriptor) bool {
	return desc.Type == IndexNumeric && desc.Collection == CollectionDefault
}

// indexOne writes the index entries one record contributes to one index
func (rs *RedisStore) indexOne(ctx context.Context, desc IndexDescriptor, userKey string, bins map[string]interface{}) error {
	ns, st := desc.Field.Namespace, desc.Field.Set
	for _, value := range indexableValues(desc, bins) {
		if rangeIndexed(desc) {
			// JSON decoding hands back float64; accept any numeric form
			f, ok := asFloat(value)
			if !ok {
				continue
			}
			member := redis.Z{Score: f, Member: userKey}
			if err := rs.redis.ZAdd(ctx, rangeIndexKey(ns, st, desc.Name), member).Err(); err != nil {
				return rs.unavailable("CreateIndex", ns, err)
			}
			continue
		}
		key := equalityIndexKey(ns, st, desc.Name, formatIndexValue(value))
		if err := rs.redis.SAdd(ctx, key, userKey).Err(); err != nil {
			return rs.unavailable("CreateIndex", ns, err)
		}
	}
	return nil
}

// indexableValues extracts the values one record contributes to an
// index: the bin itself for scalar indexes, elements/keys/values for
// collection indexes. Context-scoped indexes index the value at the
// nested path.
func indexableValues(desc IndexDescriptor, bins map[string]interface{}) []interface{} {
	val, ok := bins[desc.Field.Bin]
	if !ok {
		return nil
	}
	if len(desc.Path) > 0 {
		val, ok = navigateContext(val, desc.Path)
		if !ok {
			return nil
		}
	}

	switch desc.Collection {
	case CollectionList:
		list, ok := val.([]interface{})
		if !ok {
			return nil
		}
		return list
	case CollectionMapKeys:
		mp, ok := asMap(val)
		if !ok {
			return nil
		}
		out := make([]interface{}, 0, len(mp))
		for _, k := range sortedMapKeys(mp) {
			out = append(out, k)
		}
		return out
	case CollectionMapValues:
		mp, ok := asMap(val)
		if !ok {
			return nil
		}
		out := make([]interface{}, 0, len(mp))
		for _, k := range sortedMapKeys(mp) {
			out = append(out, mp[k])
		}
		return out
	default:
		return []interface{}{val}
	}
}

func (rs *RedisStore) rangeMembers(ctx context.Context, namespace, set, name string, begin, end int64) ([]string, error) {
	return rs.redis.ZRangeByScore(ctx, rangeIndexKey(namespace, set, name), &redis.ZRangeBy{
		Min: strconv.FormatInt(begin, 10),
		Max: strconv.FormatInt(end, 10),
	}).Result()
}

// findIndex locates a registered index serving the filter's bin and
// collection scope.
func (rs *RedisStore) findIndex(ctx context.Context, namespace, set string, filter *Filter) (IndexDescriptor, bool) {
	descs, err := rs.ListIndexes(ctx, namespace)
	if err != nil {
		return IndexDescriptor{}, false
	}
	for _, d := range descs {
		if d.Field.Set == set && d.Field.Bin == filter.Bin && d.Collection == filter.Collection {
			return d, true
		}
	}
	return IndexDescriptor{}, false
}

// formatIndexValue renders a value into its index key form
func formatIndexValue(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	default:
		if n, ok := asInt(v); ok {
			return strconv.FormatInt(n, 10)
		}
		if f, ok := asFloat(v); ok {
			return strconv.FormatFloat(f, 'g', -1, 64)
		}
		return fmt.Sprintf("%v", v)
	}
}

func (rs *RedisStore) unavailable(operation, namespace string, err error) error {
	ctx := map[string]interface{}{
		"operation": operation,
		"cause":     err.Error(),
	}
	if namespace != "" {
		ctx["namespace"] = namespace
	}
	return WithContext(ErrStoreUnavailable, ctx)
}
