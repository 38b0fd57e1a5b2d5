package repository

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"
)

// PostgresKVStore はPostgreSQLのkv_slotsテーブルにスロットを保存するKVStore実装。
// テーブルはdatabaseパッケージのマイグレーションで作成される。
// version列は書き込みのたびに1増え、CompareAndSwapの照合に使う。
type PostgresKVStore struct {
	db *sql.DB
}

// NewPostgresKVStore はPostgresKVStoreを生成する。
func NewPostgresKVStore(db *sql.DB) *PostgresKVStore {
	return &PostgresKVStore{db: db}
}

// Get は指定キーの値を返す。見つからない場合はfound=falseを返す。
func (s *PostgresKVStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	slot, found, err := s.GetSlot(ctx, key)
	return slot.Value, found, err
}

// GetSlot は指定キーの値とバージョンを返す。
func (s *PostgresKVStore) GetSlot(ctx context.Context, key string) (Slot, bool, error) {
	var slot Slot
	err := s.db.QueryRowContext(ctx,
		`SELECT value, version FROM kv_slots WHERE key = $1`, key,
	).Scan(&slot.Value, &slot.Version)
	if err == sql.ErrNoRows {
		return Slot{}, false, nil
	}
	if err != nil {
		return Slot{}, false, fmt.Errorf("スロットの取得に失敗しました: %w", err)
	}
	return slot, true, nil
}

// Set は指定キーの値をUPSERTする。
func (s *PostgresKVStore) Set(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx, upsertSlotSQL, key, value, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("スロットの保存に失敗しました: %w", err)
	}
	return nil
}

const upsertSlotSQL = `INSERT INTO kv_slots (key, value, updated_at, version)
	 VALUES ($1, $2, $3, 1)
	 ON CONFLICT (key) DO UPDATE SET
	     value = EXCLUDED.value,
	     updated_at = EXCLUDED.updated_at,
	     version = kv_slots.version + 1`

// updateIfVersionSQL は読み込み時のバージョンのままの行だけを書き換える。
// 並行する更新はこの行のロックで直列化され、後着側は0行更新になる。
const updateIfVersionSQL = `UPDATE kv_slots
	 SET value = $2, updated_at = $3, version = version + 1
	 WHERE key = $1 AND version = $4`

// insertIfAbsentSQL は行が存在しない場合だけ作成する。
const insertIfAbsentSQL = `INSERT INTO kv_slots (key, value, updated_at, version)
	 VALUES ($1, $2, $3, 1)
	 ON CONFLICT (key) DO NOTHING`

// lockVersionSQL は書き込まないキーのバージョンを確認し、コミットまで行をロックする。
const lockVersionSQL = `SELECT version FROM kv_slots WHERE key = $1 FOR UPDATE`

// SetMulti は1つのトランザクション内で全キーをUPSERTする。
// キーはソート順に書き込み、並行トランザクション間のデッドロックを避ける。
func (s *PostgresKVStore) SetMulti(ctx context.Context, values map[string][]byte) error {
	return s.CompareAndSwap(ctx, nil, values)
}

// CompareAndSwap は1つのトランザクション内でバージョンを照合しながら書き込む。
// expectedにあるキーは条件付きUPDATE（存在しない想定ならINSERT ... DO NOTHING）で書き、
// 影響行数が1でなければロールバックしてErrConflictを返す。
func (s *PostgresKVStore) CompareAndSwap(ctx context.Context, expected map[string]int64, values map[string][]byte) error {
	keys := unionKeys(expected, values)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("トランザクションの開始に失敗しました: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	for _, k := range keys {
		want, checked := expected[k]
		value, written := values[k]

		switch {
		case !checked:
			if _, err := tx.ExecContext(ctx, upsertSlotSQL, k, value, now); err != nil {
				return fmt.Errorf("スロットの一括保存に失敗しました (key=%s): %w", k, err)
			}

		case !written:
			var current int64
			err := tx.QueryRowContext(ctx, lockVersionSQL, k).Scan(&current)
			if err != nil && err != sql.ErrNoRows {
				return fmt.Errorf("スロットのバージョン確認に失敗しました (key=%s): %w", k, err)
			}
			if current != want {
				return ErrConflict
			}

		default:
			var res sql.Result
			if want == 0 {
				res, err = tx.ExecContext(ctx, insertIfAbsentSQL, k, value, now)
			} else {
				res, err = tx.ExecContext(ctx, updateIfVersionSQL, k, value, now, want)
			}
			if err != nil {
				return fmt.Errorf("スロットの条件付き保存に失敗しました (key=%s): %w", k, err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("影響行数の取得に失敗しました (key=%s): %w", k, err)
			}
			if n != 1 {
				return ErrConflict
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("トランザクションのコミットに失敗しました: %w", err)
	}
	return nil
}

// unionKeys は両方のマップのキーをソートして返す。
func unionKeys(expected map[string]int64, values map[string][]byte) []string {
	keys := make([]string, 0, len(expected)+len(values))
	for k := range expected {
		keys = append(keys, k)
	}
	for k := range values {
		if _, ok := expected[k]; !ok {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// Delete は指定キーの行を削除する。
func (s *PostgresKVStore) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv_slots WHERE key = $1`, key); err != nil {
		return fmt.Errorf("スロットの削除に失敗しました: %w", err)
	}
	return nil
}

// Ping はデータベースへの疎通を確認する。
func (s *PostgresKVStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close はデータベース接続をクローズする。
func (s *PostgresKVStore) Close() error {
	return s.db.Close()
}
