// Package store は全エンティティコレクションを保持する永続ストアを提供する。
//
// 各コレクションはJSON配列として1つのスロットに保存される。
// 変更は常にコレクション全体の読み込み・変換・書き戻しで行われ、
// コレクションごとのロックにより読み手が書き込み途中の状態を観測しないことを保証する。
// 永続化先はrepository.KVStoreとして注入される。
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/hitoshi/unihub/internal/repository"
)

// MetricsRecorder はストア操作のメトリクス記録インターフェース。
type MetricsRecorder interface {
	RecordStoreLoad(key string)
	RecordStoreSave(key string)
	RecordSeedFallback(key string)
}

type nopRecorder struct{}

func (nopRecorder) RecordStoreLoad(string)    {}
func (nopRecorder) RecordStoreSave(string)    {}
func (nopRecorder) RecordSeedFallback(string) {}

// Store はコレクション単位のロードと保存を提供する。
// 全ての利用者に明示的に渡して使う（プロセス全体のシングルトンにしない）。
type Store struct {
	kv      repository.KVStore
	logger  *slog.Logger
	metrics MetricsRecorder

	locksMu sync.Mutex
	locks   map[string]*sync.RWMutex
}

// New はStoreの新しいインスタンスを生成する。
// metricsがnilの場合は記録しない。
func New(kv repository.KVStore, logger *slog.Logger, metrics MetricsRecorder) *Store {
	if metrics == nil {
		metrics = nopRecorder{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		kv:      kv,
		logger:  logger,
		metrics: metrics,
		locks:   make(map[string]*sync.RWMutex),
	}
}

// Ping は永続化先への疎通を確認する。
func (s *Store) Ping(ctx context.Context) error {
	return s.kv.Ping(ctx)
}

func (s *Store) lock(key string) *sync.RWMutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	l, ok := s.locks[key]
	if !ok {
		l = &sync.RWMutex{}
		s.locks[key] = l
	}
	return l
}

// Load はコレクションを読み込む。
// スロットが存在しない場合は既定データを返す。
// デシリアライズに失敗した場合も既定データを返し、呼び出し元にはエラーを伝えない。
// 保存先自体の障害はエラーとして返す。
func Load[T any](ctx context.Context, s *Store, c Collection[T]) ([]T, error) {
	l := s.lock(c.Key)
	l.RLock()
	defer l.RUnlock()
	items, _, err := loadLocked(ctx, s, c)
	return items, err
}

// loadLocked はコレクションと、読み込んだスロットのバージョンを返す。
func loadLocked[T any](ctx context.Context, s *Store, c Collection[T]) ([]T, int64, error) {
	s.metrics.RecordStoreLoad(c.Key)

	slot, found, err := s.kv.GetSlot(ctx, c.Key)
	if err != nil {
		return nil, 0, fmt.Errorf("コレクションの読み込みに失敗しました (%s): %w", c.Key, err)
	}
	if !found {
		items, err := c.Seed()
		return items, slot.Version, err
	}

	var items []T
	if err := json.Unmarshal(slot.Value, &items); err != nil {
		s.logger.Warn("コレクションのデシリアライズに失敗したため既定データを使用します",
			slog.String("collection", c.Key),
			slog.Int("bytes", len(slot.Value)),
			slog.String("error", err.Error()),
		)
		s.metrics.RecordSeedFallback(c.Key)
		items, err := c.Seed()
		return items, slot.Version, err
	}
	if items == nil {
		items = []T{}
	}
	return items, slot.Version, nil
}

// Save はコレクション全体を置き換える。
func Save[T any](ctx context.Context, s *Store, c Collection[T], items []T) error {
	l := s.lock(c.Key)
	l.Lock()
	defer l.Unlock()
	return saveLocked(ctx, s, c, items)
}

func saveLocked[T any](ctx context.Context, s *Store, c Collection[T], items []T) error {
	data, err := encode(items)
	if err != nil {
		return fmt.Errorf("コレクションのシリアライズに失敗しました (%s): %w", c.Key, err)
	}
	if err := s.kv.Set(ctx, c.Key, data); err != nil {
		return fmt.Errorf("コレクションの保存に失敗しました (%s): %w", c.Key, err)
	}
	s.metrics.RecordStoreSave(c.Key)
	return nil
}

// ErrUnchanged をfnが返すと、Updateは何も書き込まずにnilを返す。
var ErrUnchanged = errors.New("store: collection unchanged")

// ErrConflict は別プロセスの書き込みとの競合が再試行しても解消しなかった場合に返される。
var ErrConflict = errors.New("store: concurrent write conflict")

// maxAttempts は競合時に読み込みからやり直す最大回数。
const maxAttempts = 5

// Update はコレクションを読み込み、fnで変換した結果を書き戻す。
// 読み込みから書き戻しまでコレクションの書き込みロックを保持する。
// 書き戻しは読み込んだバージョンとの照合付きで行い、
// 別プロセスが先に書き込んでいた場合は読み込みからやり直す。
// fnは再試行のたびに呼ばれるため、外部の状態は毎回初期化すること。
// fnがエラーを返した場合は何も書き込まない。
func Update[T any](ctx context.Context, s *Store, c Collection[T], fn func(items []T) ([]T, error)) error {
	l := s.lock(c.Key)
	l.Lock()
	defer l.Unlock()

	return s.retry(ctx, c.Key, func() error {
		items, version, err := loadLocked(ctx, s, c)
		if err != nil {
			return err
		}
		next, err := fn(items)
		if errors.Is(err, ErrUnchanged) {
			return nil
		}
		if err != nil {
			return err
		}
		data, err := encode(next)
		if err != nil {
			return fmt.Errorf("コレクションのシリアライズに失敗しました (%s): %w", c.Key, err)
		}
		if err := s.kv.CompareAndSwap(ctx,
			map[string]int64{c.Key: version},
			map[string][]byte{c.Key: data},
		); err != nil {
			return fmt.Errorf("コレクションの保存に失敗しました (%s): %w", c.Key, err)
		}
		s.metrics.RecordStoreSave(c.Key)
		return nil
	})
}

// retry はattemptがrepository.ErrConflictを返す間、maxAttempts回まで繰り返す。
func (s *Store) retry(ctx context.Context, label string, attempt func() error) error {
	for i := 1; ; i++ {
		err := attempt()
		if !errors.Is(err, repository.ErrConflict) {
			return err
		}
		if i >= maxAttempts {
			s.logger.Warn("書き込みの競合が解消しませんでした",
				slog.String("collections", label),
				slog.Int("attempts", i),
			)
			return fmt.Errorf("%w (%s)", ErrConflict, label)
		}
		s.logger.Info("書き込みが競合したため再試行します",
			slog.String("collections", label),
			slog.Int("attempt", i),
		)
		if err := ctx.Err(); err != nil {
			return err
		}
	}
}

// Tx は複数コレクションにまたがる書き込みの単位。
// Stageした内容はコミットまで他の読み手から見えない。
type Tx struct {
	ctx      context.Context
	s        *Store
	held     map[string]bool
	versions map[string]int64
	staged   map[string][]byte
}

// Batch は指定したコレクションの書き込みロックを取得してfnを実行し、
// Stageされた全コレクションを1回のCompareAndSwapでコミットする。
// 全て書き込まれるか、何も書き込まれないかのいずれかになる。
// fn内で読み込んだコレクションは書き込まないものも含めてバージョンを照合し、
// 別プロセスが先に書き込んでいた場合はfnからやり直す。
// ロックはキーのソート順に取得する。
func (s *Store) Batch(ctx context.Context, fn func(tx *Tx) error, cols ...Keyed) error {
	keys := make([]string, 0, len(cols))
	seen := make(map[string]bool, len(cols))
	for _, c := range cols {
		k := c.CollectionKey()
		if seen[k] {
			continue
		}
		seen[k] = true
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		l := s.lock(k)
		l.Lock()
		defer l.Unlock()
	}

	return s.retry(ctx, strings.Join(keys, ","), func() error {
		tx := &Tx{
			ctx:      ctx,
			s:        s,
			held:     seen,
			versions: make(map[string]int64),
			staged:   make(map[string][]byte),
		}
		if err := fn(tx); err != nil {
			return err
		}
		if len(tx.staged) == 0 {
			return nil
		}
		if err := s.kv.CompareAndSwap(ctx, tx.versions, tx.staged); err != nil {
			return fmt.Errorf("コレクションの一括保存に失敗しました: %w", err)
		}
		for k := range tx.staged {
			s.metrics.RecordStoreSave(k)
		}
		return nil
	})
}

// LoadTx はトランザクション内でコレクションを読み込む。
// 同じトランザクションでStage済みの場合はその内容を返す。
func LoadTx[T any](tx *Tx, c Collection[T]) ([]T, error) {
	if !tx.held[c.Key] {
		return nil, fmt.Errorf("collection %s is not part of this batch", c.Key)
	}
	if raw, ok := tx.staged[c.Key]; ok {
		var items []T
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, err
		}
		return items, nil
	}
	items, version, err := loadLocked(tx.ctx, tx.s, c)
	if err != nil {
		return nil, err
	}
	if _, ok := tx.versions[c.Key]; !ok {
		tx.versions[c.Key] = version
	}
	return items, nil
}

// StageTx はコミット時に書き込むコレクションの内容を登録する。
func StageTx[T any](tx *Tx, c Collection[T], items []T) error {
	if !tx.held[c.Key] {
		return fmt.Errorf("collection %s is not part of this batch", c.Key)
	}
	data, err := encode(items)
	if err != nil {
		return fmt.Errorf("コレクションのシリアライズに失敗しました (%s): %w", c.Key, err)
	}
	tx.staged[c.Key] = data
	return nil
}

// Reset は全コレクションを既定データで上書きする。
// 現在の内容に関係なく置き換えるため、バージョンは照合しない。
func (s *Store) Reset(ctx context.Context) error {
	keys := Keys()
	sort.Strings(keys)
	for _, k := range keys {
		l := s.lock(k)
		l.Lock()
		defer l.Unlock()
	}

	values := make(map[string][]byte, len(all))
	for _, c := range all {
		data, err := c.seedJSON()
		if err != nil {
			return err
		}
		values[c.CollectionKey()] = data
	}
	if err := s.kv.SetMulti(ctx, values); err != nil {
		return fmt.Errorf("既定データの書き込みに失敗しました: %w", err)
	}
	for k := range values {
		s.metrics.RecordStoreSave(k)
	}
	return nil
}

// LoadScalar はスカラー値（現在のユーザーIDなど）を読み込む。
// 存在しないか読めない場合はfound=falseを返す。
func (s *Store) LoadScalar(ctx context.Context, key string) (string, bool, error) {
	raw, found, err := s.kv.Get(ctx, key)
	if err != nil {
		return "", false, fmt.Errorf("スカラー値の読み込みに失敗しました (%s): %w", key, err)
	}
	if !found {
		return "", false, nil
	}
	var v string
	if err := json.Unmarshal(raw, &v); err != nil {
		s.logger.Warn("スカラー値のデシリアライズに失敗しました",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return "", false, nil
	}
	return v, true, nil
}

// SaveScalar はスカラー値を保存する。
func (s *Store) SaveScalar(ctx context.Context, key, value string) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if err := s.kv.Set(ctx, key, data); err != nil {
		return fmt.Errorf("スカラー値の保存に失敗しました (%s): %w", key, err)
	}
	return nil
}

// encode はnilスライスを空配列として書き出す。
func encode[T any](items []T) ([]byte, error) {
	if items == nil {
		items = []T{}
	}
	return json.Marshal(items)
}
