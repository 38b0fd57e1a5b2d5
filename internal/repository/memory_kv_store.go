package repository

import (
	"context"
	"sync"
)

// MemoryKVStore はプロセス内メモリにスロットを保持するKVStore実装。
// テストと一時的な実行環境向け。
type MemoryKVStore struct {
	mu     sync.RWMutex
	slots  map[string]Slot
	closed bool
}

// NewMemoryKVStore はMemoryKVStoreを生成する。
func NewMemoryKVStore() *MemoryKVStore {
	return &MemoryKVStore{slots: make(map[string]Slot)}
}

// Get は指定キーの値のコピーを返す。
func (s *MemoryKVStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	slot, found, err := s.GetSlot(ctx, key)
	return slot.Value, found, err
}

// GetSlot は指定キーの値のコピーとバージョンを返す。
func (s *MemoryKVStore) GetSlot(ctx context.Context, key string) (Slot, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return Slot{}, false, ErrClosed
	}
	v, ok := s.slots[key]
	if !ok {
		return Slot{}, false, nil
	}
	return Slot{Value: append([]byte(nil), v.Value...), Version: v.Version}, true, nil
}

// CompareAndSwap は単一のロック区間内でバージョンを照合してから書き込む。
func (s *MemoryKVStore) CompareAndSwap(ctx context.Context, expected map[string]int64, values map[string][]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	for k, want := range expected {
		if s.slots[k].Version != want {
			return ErrConflict
		}
	}
	s.putLocked(values)
	return nil
}

// Set は指定キーの値を置き換える。
func (s *MemoryKVStore) Set(ctx context.Context, key string, value []byte) error {
	return s.SetMulti(ctx, map[string][]byte{key: value})
}

// SetMulti は単一のロック区間内で全キーを置き換える。
func (s *MemoryKVStore) SetMulti(ctx context.Context, values map[string][]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.putLocked(values)
	return nil
}

func (s *MemoryKVStore) putLocked(values map[string][]byte) {
	for k, v := range values {
		s.slots[k] = Slot{
			Value:   append([]byte(nil), v...),
			Version: s.slots[k].Version + 1,
		}
	}
}

// Delete は指定キーのスロットを削除する。
func (s *MemoryKVStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	delete(s.slots, key)
	return nil
}

// Ping はクローズ済みでなければnilを返す。
func (s *MemoryKVStore) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

// Close はストアをクローズする。以降の操作はErrClosedを返す。
func (s *MemoryKVStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
