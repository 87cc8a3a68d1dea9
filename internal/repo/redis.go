package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const schemaVersion = 1

// envelope is the stored form of every entity: {"v":1,"data":{...}}.
type envelope[T any] struct {
	Version int `json:"v"`
	Data    T   `json:"data"`
}

func encodeEntity[T any](v T) (string, error) {
	b, err := json.Marshal(envelope[T]{Version: schemaVersion, Data: v})
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeEntity[T any](raw string) (T, error) {
	var env envelope[T]
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return env.Data, err
	}
	if env.Version != schemaVersion {
		return env.Data, fmt.Errorf("unsupported schema version %d", env.Version)
	}
	return env.Data, nil
}

// RedisStorage is the key-value Storage. Writes are staged per unit of work and
// applied in one MULTI/EXEC, guarded by WATCH on every key the unit has read.
type RedisStorage struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

func NewRedisStorage(client *redis.Client) *RedisStorage {
	return &RedisStorage{client: client, prefix: "fdms", now: time.Now}
}

func (s *RedisStorage) key(parts ...string) string {
	return s.prefix + ":" + strings.Join(parts, ":")
}

func (s *RedisStorage) seqKey(name string) string { return s.key("seq", name) }
func (s *RedisStorage) authKey(id int64) string { return s.key("auth", strconv.FormatInt(id, 10)) }
func (s *RedisStorage) authIndexKey(merchant, code string) string {
	return s.key("authidx", merchant, code)
}
func (s *RedisStorage) uncapturedKey() string { return s.key("auth", "uncaptured") }
func (s *RedisStorage) openKey(merchant, device string) string { return s.key("open", merchant, device) }
func (s *RedisStorage) closedIndexKey(merchant, device string) string {
	return s.key("closed", merchant, device)
}
func (s *RedisStorage) closedKey(id int64) string { return s.key("closedbatch", strconv.FormatInt(id, 10)) }
func (s *RedisStorage) recordKey(batchID int64, itemNo string) string {
	return s.key("rec", strconv.FormatInt(batchID, 10), itemNo)
}
func (s *RedisStorage) recordIndexKey(batchID int64) string {
	return s.key("recidx", strconv.FormatInt(batchID, 10))
}

func (s *RedisStorage) nextID(ctx context.Context, name string) (int64, error) {
	return s.client.Incr(ctx, s.seqKey(name)).Result()
}

func (s *RedisStorage) Begin(ctx context.Context) (UnitOfWork, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &redisUnit{
		s:          s,
		reads:      make(map[string]snapshot),
		writes:     make(map[string]*string),
		setAdds:    make(map[string][]string),
		lastClosed: make(map[string]int64),
		closedTop:  make(map[string]string),
	}, nil
}

func (s *RedisStorage) PurgeAuthorizations(ctx context.Context, before time.Time) (int64, error) {
	ids, err := s.client.ZRangeByScore(ctx, s.uncapturedKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatInt(before.Unix(), 10),
	}).Result()
	if err != nil {
		return 0, err
	}

	var purged int64
	for _, member := range ids {
		id, err := strconv.ParseInt(member, 10, 64)
		if err != nil {
			continue
		}
		key := s.authKey(id)
		raw, err := s.client.Get(ctx, key).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return purged, err
		}

		_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if raw != "" {
				if auth, err := decodeEntity[Authorization](raw); err == nil {
					pipe.SRem(ctx, s.authIndexKey(auth.MerchantNumber, auth.AuthorizationCode), member)
				}
			}
			pipe.Del(ctx, key)
			pipe.ZRem(ctx, s.uncapturedKey(), member)
			return nil
		})
		if err != nil {
			return purged, err
		}
		purged++
	}
	return purged, nil
}

type snapshot struct {
	value  string
	exists bool
}

type redisUnit struct {
	s      *RedisStorage
	reads  map[string]snapshot
	writes map[string]*string
	order  []string
	// setAdds mirrors staged SADDs so reads inside the unit see them
	setAdds    map[string][]string
	lastClosed map[string]int64
	// closedTop is the newest member of each closed-batch index as first read, "" when empty
	closedTop map[string]string
	ops        []func(ctx context.Context, pipe redis.Pipeliner)
	done       bool
}

func (u *redisUnit) get(ctx context.Context, key string) (string, bool, error) {
	if v, ok := u.writes[key]; ok {
		if v == nil {
			return "", false, nil
		}
		return *v, true, nil
	}
	if snap, ok := u.reads[key]; ok {
		return snap.value, snap.exists, nil
	}

	val, err := u.s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		u.reads[key] = snapshot{}
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	u.reads[key] = snapshot{value: val, exists: true}
	return val, true, nil
}

func (u *redisUnit) set(key, value string) {
	if _, ok := u.writes[key]; !ok {
		u.order = append(u.order, key)
	}
	u.writes[key] = &value
}

func (u *redisUnit) del(key string) {
	if _, ok := u.writes[key]; !ok {
		u.order = append(u.order, key)
	}
	u.writes[key] = nil
}

func (u *redisUnit) sadd(key, member string) {
	u.setAdds[key] = append(u.setAdds[key], member)
	u.ops = append(u.ops, func(ctx context.Context, pipe redis.Pipeliner) {
		pipe.SAdd(ctx, key, member)
	})
}

func (u *redisUnit) members(ctx context.Context, key string) ([]string, error) {
	stored, err := u.s.client.SMembers(ctx, key).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}
	seen := make(map[string]bool, len(stored))
	var out []string
	for _, m := range append(stored, u.setAdds[key]...) {
		if !seen[m] {
			seen[m] = true
			out = append(out, m)
		}
	}
	return out, nil
}

func loadEntity[T any](ctx context.Context, u *redisUnit, key string) (*T, error) {
	raw, ok, err := u.get(ctx, key)
	if err != nil || !ok {
		return nil, err
	}
	v, err := decodeEntity[T](raw)
	if err != nil {
		return nil, fmt.Errorf("redis storage -> decode %s: %w", key, err)
	}
	return &v, nil
}

func storeEntity[T any](u *redisUnit, key string, v T) error {
	raw, err := encodeEntity(v)
	if err != nil {
		return fmt.Errorf("redis storage -> encode %s: %w", key, err)
	}
	u.set(key, raw)
	return nil
}

func (u *redisUnit) LastClosedBatch(ctx context.Context, merchant, device string) (*ClosedBatch, error) {
	index := u.s.closedIndexKey(merchant, device)
	if id, ok := u.lastClosed[index]; ok {
		return loadEntity[ClosedBatch](ctx, u, u.s.closedKey(id))
	}

	top, seen := u.closedTop[index]
	if !seen {
		var err error
		if top, err = u.newestClosed(ctx, u.s.client, index); err != nil {
			return nil, err
		}
		u.closedTop[index] = top
	}
	if top == "" {
		return nil, nil
	}
	id, err := strconv.ParseInt(top, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("redis storage -> closed batch index %s: %w", index, err)
	}
	return loadEntity[ClosedBatch](ctx, u, u.s.closedKey(id))
}

// newestClosed reads the top of a closed-batch index through the client or a watching tx.
func (u *redisUnit) newestClosed(ctx context.Context, c interface {
	ZRevRange(ctx context.Context, key string, start, stop int64) *redis.StringSliceCmd
}, index string) (string, error) {
	ids, err := c.ZRevRange(ctx, index, 0, 0).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return "", err
	}
	if len(ids) == 0 {
		return "", nil
	}
	return ids[0], nil
}

func (u *redisUnit) GetOpenBatch(ctx context.Context, merchant, device string) (*OpenBatch, error) {
	return loadEntity[OpenBatch](ctx, u, u.s.openKey(merchant, device))
}

func (u *redisUnit) CreateBatch(ctx context.Context, merchant, device, batchNo string) (*OpenBatch, error) {
	key := u.s.openKey(merchant, device)
	existing, err := loadEntity[OpenBatch](ctx, u, key)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrConflict
	}

	id, err := u.s.nextID(ctx, "batch")
	if err != nil {
		return nil, err
	}
	batch := &OpenBatch{
		ID:             id,
		MerchantNumber: merchant,
		DeviceID:       device,
		BatchNo:        batchNo,
		DateOpen:       u.s.now(),
	}
	if err := storeEntity(u, key, *batch); err != nil {
		return nil, err
	}
	return batch, nil
}

func (u *redisUnit) GetBatchRecord(ctx context.Context, batchID int64, itemNo string) (*BatchRecord, error) {
	return loadEntity[BatchRecord](ctx, u, u.s.recordKey(batchID, itemNo))
}

func (u *redisUnit) PutBatchRecord(ctx context.Context, rec *BatchRecord, expectedRevision string) error {
	key := u.s.recordKey(rec.BatchID, rec.ItemNo)
	stored, err := loadEntity[BatchRecord](ctx, u, key)
	if err != nil {
		return err
	}
	switch {
	case expectedRevision == "" && stored != nil:
		return ErrConflict
	case expectedRevision != "" && (stored == nil || stored.RevisionNo != expectedRevision):
		return ErrConflict
	}

	if rec.ID == 0 {
		if rec.ID, err = u.s.nextID(ctx, "record"); err != nil {
			return err
		}
	}
	if err := storeEntity(u, key, *rec); err != nil {
		return err
	}
	if stored == nil {
		u.sadd(u.s.recordIndexKey(rec.BatchID), rec.ItemNo)
	}
	return nil
}

func (u *redisUnit) QueryBatchItems(ctx context.Context, batchID int64) ([]BatchRecord, error) {
	items, err := u.members(ctx, u.s.recordIndexKey(batchID))
	if err != nil {
		return nil, err
	}
	records := make([]BatchRecord, 0, len(items))
	for _, item := range items {
		rec, err := loadEntity[BatchRecord](ctx, u, u.s.recordKey(batchID, item))
		if err != nil {
			return nil, err
		}
		if rec != nil {
			records = append(records, *rec)
		}
	}
	sort.Slice(records, func(i, j int) bool { return records[i].ItemNo < records[j].ItemNo })
	return records, nil
}

func (u *redisUnit) GetAuthorization(ctx context.Context, id int64) (*Authorization, error) {
	return loadEntity[Authorization](ctx, u, u.s.authKey(id))
}

func (u *redisUnit) PutAuthorization(ctx context.Context, auth *Authorization) error {
	if auth.ID == 0 {
		id, err := u.s.nextID(ctx, "auth")
		if err != nil {
			return err
		}
		auth.ID = id
	}
	if err := storeEntity(u, u.s.authKey(auth.ID), *auth); err != nil {
		return err
	}

	member := strconv.FormatInt(auth.ID, 10)
	if auth.AuthorizationCode != "" {
		u.sadd(u.s.authIndexKey(auth.MerchantNumber, auth.AuthorizationCode), member)
	}
	captured, score := auth.IsCaptured, float64(auth.Date.Unix())
	u.ops = append(u.ops, func(ctx context.Context, pipe redis.Pipeliner) {
		if captured {
			pipe.ZRem(ctx, u.s.uncapturedKey(), member)
		} else {
			pipe.ZAdd(ctx, u.s.uncapturedKey(), redis.Z{Score: score, Member: member})
		}
	})
	return nil
}

func (u *redisUnit) QueryAuthorization(ctx context.Context, merchant, authCode string) ([]Authorization, error) {
	ids, err := u.members(ctx, u.s.authIndexKey(merchant, authCode))
	if err != nil {
		return nil, err
	}
	var auths []Authorization
	for _, member := range ids {
		id, err := strconv.ParseInt(member, 10, 64)
		if err != nil {
			continue
		}
		auth, err := loadEntity[Authorization](ctx, u, u.s.authKey(id))
		if err != nil {
			return nil, err
		}
		if auth != nil && auth.MerchantNumber == merchant && auth.AuthorizationCode == authCode {
			auths = append(auths, *auth)
		}
	}
	sort.Slice(auths, func(i, j int) bool { return auths[i].ID < auths[j].ID })
	return auths, nil
}

func (u *redisUnit) CloseBatch(ctx context.Context, batch *OpenBatch, credit, debit Totals) (*ClosedBatch, error) {
	openKey := u.s.openKey(batch.MerchantNumber, batch.DeviceID)
	stored, err := loadEntity[OpenBatch](ctx, u, openKey)
	if err != nil {
		return nil, err
	}
	if stored == nil || stored.ID != batch.ID {
		return nil, ErrConflict
	}

	closed := newClosedBatch(stored, credit, debit, u.s.now())
	if err := storeEntity(u, u.s.closedKey(closed.ID), *closed); err != nil {
		return nil, err
	}
	u.del(openKey)

	index := u.s.closedIndexKey(closed.MerchantNumber, closed.DeviceID)
	u.lastClosed[index] = closed.ID
	id := closed.ID
	u.ops = append(u.ops, func(ctx context.Context, pipe redis.Pipeliner) {
		pipe.ZAdd(ctx, index, redis.Z{Score: float64(id), Member: strconv.FormatInt(id, 10)})
	})
	return closed, nil
}

func (u *redisUnit) Save(ctx context.Context) error {
	if u.done {
		return nil
	}
	u.done = true
	if len(u.writes) == 0 && len(u.ops) == 0 {
		return nil
	}

	watched := make([]string, 0, len(u.reads)+len(u.closedTop))
	for key := range u.reads {
		watched = append(watched, key)
	}
	for index := range u.closedTop {
		watched = append(watched, index)
	}

	txf := func(tx *redis.Tx) error {
		for key, snap := range u.reads {
			val, err := tx.Get(ctx, key).Result()
			switch {
			case errors.Is(err, redis.Nil):
				if snap.exists {
					return ErrConflict
				}
			case err != nil:
				return err
			case !snap.exists || val != snap.value:
				return ErrConflict
			}
		}
		for index, top := range u.closedTop {
			current, err := u.newestClosed(ctx, tx, index)
			if err != nil {
				return err
			}
			if current != top {
				return ErrConflict
			}
		}

		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for _, key := range u.order {
				if v := u.writes[key]; v != nil {
					pipe.Set(ctx, key, *v, 0)
				} else {
					pipe.Del(ctx, key)
				}
			}
			for _, op := range u.ops {
				op(ctx, pipe)
			}
			return nil
		})
		return err
	}

	err := u.s.client.Watch(ctx, txf, watched...)
	if errors.Is(err, redis.TxFailedErr) {
		return ErrConflict
	}
	return err
}

func (u *redisUnit) Discard() {
	u.done = true
}
