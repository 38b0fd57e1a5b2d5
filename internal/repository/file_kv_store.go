package repository

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// validKey はファイル名として安全なキーの形式。
var validKey = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

// FileKVStore はディレクトリ配下に1スロット1ファイル（<key>.json）で保存するKVStore実装。
// 端末ローカルの永続ストレージとして使用する。
// 書き込みは一時ファイルへの書き出しとrenameで行うため、
// 読み手が書きかけのファイルを読むことはない。
// 別プロセスとの排他はディレクトリの .lock ファイルで取り、
// スロットのバージョンにはファイル内容のハッシュを使う。
type FileKVStore struct {
	dir string
	mu  sync.RWMutex
}

// NewFileKVStore はdirを保存先とするFileKVStoreを生成する。
// ディレクトリが存在しない場合は作成する。
func NewFileKVStore(dir string) (*FileKVStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("store directory is empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("ストアディレクトリの作成に失敗しました: %w", err)
	}
	return &FileKVStore{dir: dir}, nil
}

const lockFileName = ".lock"

func (s *FileKVStore) lock(exclusive bool) (*dirLock, error) {
	return lockDir(filepath.Join(s.dir, lockFileName), exclusive)
}

// contentVersion はスロット内容から0以外のバージョンを求める。
func contentVersion(data []byte) int64 {
	v := int64(xxhash.Sum64(data))
	if v == 0 {
		return 1
	}
	return v
}

func (s *FileKVStore) path(key string) (string, error) {
	if !validKey.MatchString(key) {
		return "", fmt.Errorf("invalid key: %q", key)
	}
	return filepath.Join(s.dir, key+".json"), nil
}

// Get は指定キーのファイル内容を返す。
func (s *FileKVStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	slot, found, err := s.GetSlot(ctx, key)
	return slot.Value, found, err
}

// GetSlot は指定キーのファイル内容と、その内容から求めたバージョンを返す。
func (s *FileKVStore) GetSlot(ctx context.Context, key string) (Slot, bool, error) {
	p, err := s.path(key)
	if err != nil {
		return Slot{}, false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	l, err := s.lock(false)
	if err != nil {
		return Slot{}, false, err
	}
	defer l.unlock()

	return readSlot(p)
}

func readSlot(p string) (Slot, bool, error) {
	data, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return Slot{}, false, nil
	}
	if err != nil {
		return Slot{}, false, fmt.Errorf("スロットの読み込みに失敗しました: %w", err)
	}
	return Slot{Value: data, Version: contentVersion(data)}, true, nil
}

// CompareAndSwap は排他ロックの下で現在のファイル内容のバージョンを照合してから書き込む。
func (s *FileKVStore) CompareAndSwap(ctx context.Context, expected map[string]int64, values map[string][]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, err := s.lock(true)
	if err != nil {
		return err
	}
	defer l.unlock()

	for key, want := range expected {
		p, err := s.path(key)
		if err != nil {
			return err
		}
		current, _, err := readSlot(p)
		if err != nil {
			return err
		}
		if current.Version != want {
			return ErrConflict
		}
	}
	return s.writeLocked(ctx, values)
}

// Set は指定キーのファイルを置き換える。
func (s *FileKVStore) Set(ctx context.Context, key string, value []byte) error {
	return s.SetMulti(ctx, map[string][]byte{key: value})
}

// SetMulti は全キーの一時ファイルを書き出してから順にrenameする。
// 一時ファイルの書き出しに失敗した場合は既存ファイルに一切触れない。
// rename自体の失敗（ファイルシステム障害）は途中までの置き換えを残しうるが、
// 読み手はディレクトリのロックにより中間状態を観測しない。
func (s *FileKVStore) SetMulti(ctx context.Context, values map[string][]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, err := s.lock(true)
	if err != nil {
		return err
	}
	defer l.unlock()

	return s.writeLocked(ctx, values)
}

func (s *FileKVStore) writeLocked(ctx context.Context, values map[string][]byte) error {
	type staged struct {
		tmp, dst string
	}
	var files []staged

	cleanup := func() {
		for _, f := range files {
			os.Remove(f.tmp)
		}
	}

	for key, value := range values {
		dst, err := s.path(key)
		if err != nil {
			cleanup()
			return err
		}
		tmp, err := os.CreateTemp(s.dir, key+".*.tmp")
		if err != nil {
			cleanup()
			return fmt.Errorf("一時ファイルの作成に失敗しました: %w", err)
		}
		files = append(files, staged{tmp: tmp.Name(), dst: dst})

		if _, err := tmp.Write(value); err != nil {
			tmp.Close()
			cleanup()
			return fmt.Errorf("一時ファイルへの書き込みに失敗しました: %w", err)
		}
		if err := tmp.Sync(); err != nil {
			tmp.Close()
			cleanup()
			return fmt.Errorf("一時ファイルの同期に失敗しました: %w", err)
		}
		if err := tmp.Close(); err != nil {
			cleanup()
			return fmt.Errorf("一時ファイルのクローズに失敗しました: %w", err)
		}
	}

	if err := ctx.Err(); err != nil {
		cleanup()
		return err
	}

	for _, f := range files {
		if err := os.Rename(f.tmp, f.dst); err != nil {
			cleanup()
			return fmt.Errorf("スロットの置き換えに失敗しました: %w", err)
		}
	}
	return nil
}

// Delete は指定キーのファイルを削除する。
func (s *FileKVStore) Delete(ctx context.Context, key string) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	l, err := s.lock(true)
	if err != nil {
		return err
	}
	defer l.unlock()

	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("スロットの削除に失敗しました: %w", err)
	}
	return nil
}

// Ping は保存先ディレクトリが存在するかを確認する。
func (s *FileKVStore) Ping(ctx context.Context) error {
	info, err := os.Stat(s.dir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", s.dir)
	}
	return nil
}

// Close は何もしない。
func (s *FileKVStore) Close() error { return nil }
