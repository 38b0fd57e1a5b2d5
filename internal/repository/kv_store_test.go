package repository

import (
	"context"
	"errors"
	"testing"
)

// KVStoreの実装がインターフェースを満たすことを検証
func TestKVStore_ImplementsInterface(t *testing.T) {
	var _ KVStore = (*MemoryKVStore)(nil)
	var _ KVStore = (*FileKVStore)(nil)
	var _ KVStore = (*RedisKVStore)(nil)
	var _ KVStore = (*PostgresKVStore)(nil)
}

// runKVStoreContract は全実装に共通する振る舞いを検証する。
func runKVStoreContract(t *testing.T, s KVStore) {
	t.Helper()
	ctx := context.Background()

	t.Run("missing key reports not found", func(t *testing.T) {
		v, found, err := s.Get(ctx, "absent_v1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if found {
			t.Errorf("found = true, want false (value=%q)", v)
		}
	})

	t.Run("set then get returns value", func(t *testing.T) {
		if err := s.Set(ctx, "posts_v1", []byte(`[{"id":"p1"}]`)); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
		v, found, err := s.Get(ctx, "posts_v1")
		if err != nil || !found {
			t.Fatalf("Get = (%q, %v, %v), want value", v, found, err)
		}
		if string(v) != `[{"id":"p1"}]` {
			t.Errorf("value = %q", v)
		}
	})

	t.Run("set replaces wholesale", func(t *testing.T) {
		if err := s.Set(ctx, "posts_v1", []byte(`[]`)); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
		v, _, _ := s.Get(ctx, "posts_v1")
		if string(v) != `[]` {
			t.Errorf("value = %q, want []", v)
		}
	})

	t.Run("set multi writes all keys", func(t *testing.T) {
		err := s.SetMulti(ctx, map[string][]byte{
			"tickets_v1":       []byte(`[{"id":"t1"}]`),
			"notifications_v1": []byte(`[{"id":"n1"}]`),
		})
		if err != nil {
			t.Fatalf("SetMulti failed: %v", err)
		}
		for _, k := range []string{"tickets_v1", "notifications_v1"} {
			if _, found, _ := s.Get(ctx, k); !found {
				t.Errorf("key %s not written", k)
			}
		}
	})

	t.Run("delete removes key and is idempotent", func(t *testing.T) {
		if err := s.Delete(ctx, "tickets_v1"); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if err := s.Delete(ctx, "tickets_v1"); err != nil {
			t.Fatalf("second Delete failed: %v", err)
		}
		if _, found, _ := s.Get(ctx, "tickets_v1"); found {
			t.Error("key still present after delete")
		}
	})

	t.Run("missing slot has version zero", func(t *testing.T) {
		slot, found, err := s.GetSlot(ctx, "absent_v1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if found || slot.Version != 0 {
			t.Errorf("GetSlot = (%+v, %v), want version 0 and not found", slot, found)
		}
	})

	t.Run("compare and swap creates absent slot", func(t *testing.T) {
		err := s.CompareAndSwap(ctx,
			map[string]int64{"users_v1": 0},
			map[string][]byte{"users_v1": []byte(`[{"id":"u1"}]`)},
		)
		if err != nil {
			t.Fatalf("CompareAndSwap failed: %v", err)
		}
		slot, found, _ := s.GetSlot(ctx, "users_v1")
		if !found || string(slot.Value) != `[{"id":"u1"}]` {
			t.Errorf("GetSlot = (%q, %v)", slot.Value, found)
		}
		if slot.Version == 0 {
			t.Error("version should be non-zero after write")
		}
	})

	t.Run("compare and swap rejects stale version", func(t *testing.T) {
		before, _, _ := s.GetSlot(ctx, "users_v1")
		if err := s.Set(ctx, "users_v1", []byte(`[{"id":"u2"}]`)); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
		after, _, _ := s.GetSlot(ctx, "users_v1")
		if after.Version == before.Version {
			t.Fatalf("version unchanged after Set: %d", after.Version)
		}

		err := s.CompareAndSwap(ctx,
			map[string]int64{"users_v1": before.Version},
			map[string][]byte{"users_v1": []byte(`[]`)},
		)
		if !errors.Is(err, ErrConflict) {
			t.Fatalf("err = %v, want ErrConflict", err)
		}
		v, _, _ := s.Get(ctx, "users_v1")
		if string(v) != `[{"id":"u2"}]` {
			t.Errorf("value = %q, conflicting write applied", v)
		}
	})

	t.Run("compare and swap rejects create over existing slot", func(t *testing.T) {
		err := s.CompareAndSwap(ctx,
			map[string]int64{"users_v1": 0},
			map[string][]byte{"users_v1": []byte(`[]`)},
		)
		if !errors.Is(err, ErrConflict) {
			t.Fatalf("err = %v, want ErrConflict", err)
		}
	})

	t.Run("compare and swap checks read-only keys", func(t *testing.T) {
		users, _, _ := s.GetSlot(ctx, "users_v1")
		if err := s.Set(ctx, "users_v1", []byte(`[{"id":"u3"}]`)); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
		err := s.CompareAndSwap(ctx,
			map[string]int64{"users_v1": users.Version, "tickets_v2": 0},
			map[string][]byte{"tickets_v2": []byte(`[{"id":"t9"}]`)},
		)
		if !errors.Is(err, ErrConflict) {
			t.Fatalf("err = %v, want ErrConflict", err)
		}
		if _, found, _ := s.Get(ctx, "tickets_v2"); found {
			t.Error("no key should be written when any version mismatches")
		}
	})

	t.Run("ping succeeds", func(t *testing.T) {
		if err := s.Ping(ctx); err != nil {
			t.Errorf("Ping failed: %v", err)
		}
	})
}

func TestMemoryKVStore_Contract(t *testing.T) {
	runKVStoreContract(t, NewMemoryKVStore())
}

func TestMemoryKVStore_GetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryKVStore()
	s.Set(ctx, "k", []byte("abc"))

	v, _, _ := s.Get(ctx, "k")
	v[0] = 'z'

	again, _, _ := s.Get(ctx, "k")
	if string(again) != "abc" {
		t.Errorf("stored value mutated through returned slice: %q", again)
	}
}

func TestMemoryKVStore_ClosedReturnsError(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryKVStore()
	s.Close()

	if _, _, err := s.Get(ctx, "k"); err != ErrClosed {
		t.Errorf("Get err = %v, want ErrClosed", err)
	}
	if err := s.Set(ctx, "k", nil); err != ErrClosed {
		t.Errorf("Set err = %v, want ErrClosed", err)
	}
	if err := s.Ping(ctx); err != ErrClosed {
		t.Errorf("Ping err = %v, want ErrClosed", err)
	}
}
