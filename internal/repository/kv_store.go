// Package repository はデータ永続化のインターフェースと実装を提供する。
//
// 永続化の単位は「スロット」であり、1つのコレクションキーに対して
// JSON配列を1つ保持する。スロット間の外部キー制約は存在しない。
package repository

import (
	"context"
	"errors"
)

// ErrClosed はクローズ済みのストアに対する操作で返される。
var ErrClosed = errors.New("kv store is closed")

// ErrConflict はCompareAndSwapの読み込み時点から別の書き手がスロットを更新していた場合に返される。
var ErrConflict = errors.New("kv store: slot version conflict")

// Slot はスロットの値とバージョン。
// Versionは書き込みのたびに変わる。スロットが存在しない場合は0。
type Slot struct {
	Value   []byte
	Version int64
}

// KVStore はコレクションスロットの永続化インターフェース。
// 各実装は1回のSet/SetMultiについて、読み手が書き込み途中の状態を
// 観測しないことを保証する。
type KVStore interface {
	// Get は指定キーの値を返す。スロットが存在しない場合はfound=falseを返す。
	Get(ctx context.Context, key string) (value []byte, found bool, err error)

	// GetSlot は指定キーの値とバージョンを返す。
	GetSlot(ctx context.Context, key string) (slot Slot, found bool, err error)

	// CompareAndSwap はexpectedの全キーが指定バージョンのままである場合に限り、
	// valuesの全キーを書き込む。1つでも食い違えば何も書き込まずErrConflictを返す。
	// プロセスをまたいだ読み込み・変換・書き戻しの競合はこれで検出する。
	CompareAndSwap(ctx context.Context, expected map[string]int64, values map[string][]byte) error

	// Set は指定キーの値を丸ごと置き換える。
	Set(ctx context.Context, key string, value []byte) error

	// SetMulti は複数キーの値をまとめて置き換える。
	// 全て書き込まれるか、何も書き込まれないかのいずれかになる。
	SetMulti(ctx context.Context, values map[string][]byte) error

	// Delete は指定キーのスロットを削除する。存在しない場合は何もしない。
	Delete(ctx context.Context, key string) error

	// Ping は保存先への疎通を確認する。
	Ping(ctx context.Context) error

	// Close は保存先との接続を解放する。
	Close() error
}
