package snapshot

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/redis/go-redis/v9"

	wgerrors "github.com/matzehuels/workgraph/pkg/errors"
)

// DefaultRedisPrefix namespaces every key written by RedisStore.
const DefaultRedisPrefix = "workgraph:snapshot:"

// RedisStore keeps each snapshot as a JSON string. Two sorted sets scored by
// creation time index all snapshots and the snapshots of each workflow.
//
// Keys:
//
//	<prefix>doc:<id>     snapshot JSON
//	<prefix>all          sorted set of ids
//	<prefix>wf:<wfid>    sorted set of ids for one workflow
type RedisStore struct {
	client *redis.Client
	prefix string
}

// OpenRedis connects to addr and verifies the connection.
func OpenRedis(ctx context.Context, addr string) (*RedisStore, error) {
	if addr == "" {
		addr = "localhost:6379"
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, wgerrors.Wrap(wgerrors.ErrCodeNetwork, err, "connect to redis at %s", addr)
	}
	return NewRedisStore(client, DefaultRedisPrefix), nil
}

// NewRedisStore wraps an existing client. The store owns the client and
// closes it on Close.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) docKey(id string) string  { return s.prefix + "doc:" + id }
func (s *RedisStore) allKey() string           { return s.prefix + "all" }
func (s *RedisStore) wfKey(wfID string) string { return s.prefix + "wf:" + wfID }

func (s *RedisStore) Save(ctx context.Context, snap *Snapshot) error {
	if err := checkSnapshot(snap); err != nil {
		return err
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return wgerrors.Wrap(wgerrors.ErrCodeInternal, err, "marshal snapshot")
	}
	score := float64(snap.CreatedAt.UnixMilli())
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.docKey(snap.ID), data, 0)
		pipe.ZAdd(ctx, s.allKey(), redis.Z{Score: score, Member: snap.ID})
		pipe.ZAdd(ctx, s.wfKey(snap.WorkflowID), redis.Z{Score: score, Member: snap.ID})
		return nil
	})
	if err != nil {
		return backendErr(err, "save snapshot")
	}
	return nil
}

func (s *RedisStore) get(ctx context.Context, id string) (*Snapshot, error) {
	data, err := s.client.Get(ctx, s.docKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, backendErr(err, "get snapshot")
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, wgerrors.Wrap(wgerrors.ErrCodeMalformedInput, err, "parse snapshot %q", id)
	}
	return &snap, nil
}

func (s *RedisStore) Load(ctx context.Context, id string) (*Snapshot, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}
	return s.get(ctx, id)
}

// List reads the index newest first. Index entries whose document has
// disappeared are skipped.
func (s *RedisStore) List(ctx context.Context, workflowID string) ([]Info, error) {
	key := s.allKey()
	if workflowID != "" {
		key = s.wfKey(workflowID)
	}
	ids, err := s.client.ZRevRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, backendErr(err, "list snapshots")
	}
	out := make([]Info, 0, len(ids))
	for _, id := range ids {
		snap, err := s.get(ctx, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, snap.Info)
	}
	sortNewestFirst(out)
	return out, nil
}

func (s *RedisStore) Rename(ctx context.Context, id, title string) error {
	if err := checkID(id); err != nil {
		return err
	}
	title, err := wgerrors.ValidateTitle(title)
	if err != nil {
		return err
	}
	snap, err := s.get(ctx, id)
	if err != nil {
		return err
	}
	snap.Title = title
	data, err := json.Marshal(snap)
	if err != nil {
		return wgerrors.Wrap(wgerrors.ErrCodeInternal, err, "marshal snapshot")
	}
	// XX only updates an existing key, so a concurrent Delete wins.
	if err := s.client.SetXX(ctx, s.docKey(id), data, redis.KeepTTL).Err(); err != nil {
		return backendErr(err, "rename snapshot")
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	if err := checkID(id); err != nil {
		return err
	}
	snap, err := s.get(ctx, id)
	if err != nil {
		return err
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.docKey(id))
		pipe.ZRem(ctx, s.allKey(), id)
		pipe.ZRem(ctx, s.wfKey(snap.WorkflowID), id)
		return nil
	})
	if err != nil {
		return backendErr(err, "delete snapshot")
	}
	return nil
}

// Close closes the client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

var _ Store = (*RedisStore)(nil)
