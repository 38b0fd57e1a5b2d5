package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// RedisKVStore はRedisの文字列キーにスロットを保存するKVStore実装。
type RedisKVStore struct {
	client *redis.Client
	prefix string
}

// NewRedisKVStore はredis URL（例: "redis://localhost:6379/0"）からRedisKVStoreを生成する。
// prefixは全キーの先頭に付与される。
func NewRedisKVStore(redisURL, prefix string) (*RedisKVStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	return NewRedisKVStoreWithClient(redis.NewClient(opts), prefix), nil
}

// NewRedisKVStoreWithClient は既存のクライアントからRedisKVStoreを生成する。
func NewRedisKVStoreWithClient(client *redis.Client, prefix string) *RedisKVStore {
	return &RedisKVStore{client: client, prefix: prefix}
}

func (s *RedisKVStore) key(k string) string {
	return s.prefix + k
}

// versionKey はスロットのバージョンを保持するキー。
// 値のキーと同じプレフィックスの下に置く。
func (s *RedisKVStore) versionKey(k string) string {
	return s.prefix + k + ":version"
}

// Get は指定キーの値を返す。
func (s *RedisKVStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	slot, found, err := s.GetSlot(ctx, key)
	return slot.Value, found, err
}

// GetSlot は値とバージョンを1回のMGETで読み込む。
// バージョンキーのない既存の値はバージョン0として扱う。
func (s *RedisKVStore) GetSlot(ctx context.Context, key string) (Slot, bool, error) {
	vals, err := s.client.MGet(ctx, s.key(key), s.versionKey(key)).Result()
	if err != nil {
		return Slot{}, false, fmt.Errorf("スロットの取得に失敗しました: %w", err)
	}
	version, err := parseVersion(vals[1])
	if err != nil {
		return Slot{}, false, err
	}
	value, ok := vals[0].(string)
	if !ok {
		return Slot{Version: version}, false, nil
	}
	return Slot{Value: []byte(value), Version: version}, true, nil
}

func parseVersion(v any) (int64, error) {
	str, ok := v.(string)
	if !ok {
		return 0, nil
	}
	n, err := strconv.ParseInt(str, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("スロットのバージョンが不正です: %q", str)
	}
	return n, nil
}

// Set は指定キーの値を置き換える。有効期限は設定しない。
func (s *RedisKVStore) Set(ctx context.Context, key string, value []byte) error {
	return s.SetMulti(ctx, map[string][]byte{key: value})
}

// SetMulti はMULTI/EXECで全キーをまとめて置き換える。
func (s *RedisKVStore) SetMulti(ctx context.Context, values map[string][]byte) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		s.queueWrites(ctx, pipe, values)
		return nil
	})
	if err != nil {
		return fmt.Errorf("スロットの一括保存に失敗しました: %w", err)
	}
	return nil
}

func (s *RedisKVStore) queueWrites(ctx context.Context, pipe redis.Pipeliner, values map[string][]byte) {
	for k, v := range values {
		pipe.Set(ctx, s.key(k), v, 0)
		pipe.Incr(ctx, s.versionKey(k))
	}
}

// CompareAndSwap は関係する全キーをWATCHしてバージョンを照合し、MULTI/EXECで書き込む。
// 照合後に別のクライアントが書き込んだ場合もEXECが失敗し、ErrConflictになる。
func (s *RedisKVStore) CompareAndSwap(ctx context.Context, expected map[string]int64, values map[string][]byte) error {
	keys := unionKeys(expected, values)
	watched := make([]string, 0, len(keys)*2)
	for _, k := range keys {
		watched = append(watched, s.key(k), s.versionKey(k))
	}

	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		for k, want := range expected {
			current, err := tx.Get(ctx, s.versionKey(k)).Int64()
			if errors.Is(err, redis.Nil) {
				current, err = 0, nil
			}
			if err != nil {
				return err
			}
			if current != want {
				return ErrConflict
			}
		}
		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			s.queueWrites(ctx, pipe, values)
			return nil
		})
		return err
	}, watched...)

	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrConflict), errors.Is(err, redis.TxFailedErr):
		return ErrConflict
	default:
		return fmt.Errorf("スロットの条件付き保存に失敗しました: %w", err)
	}
}

// Delete は指定キーを削除する。
func (s *RedisKVStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.key(key), s.versionKey(key)).Err(); err != nil {
		return fmt.Errorf("スロットの削除に失敗しました: %w", err)
	}
	return nil
}

// Ping はRedisへの疎通を確認する。
func (s *RedisKVStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close はクライアントをクローズする。
func (s *RedisKVStore) Close() error {
	return s.client.Close()
}
