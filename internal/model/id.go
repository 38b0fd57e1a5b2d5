package model

import (
	"fmt"

	"github.com/google/uuid"
)

// NewID はprefix付きの一意なIDを生成する。
// UUIDv7はミリ秒タイムスタンプと単調増加のシーケンスを含むため、
// 同一ミリ秒内に連続生成しても衝突しない。
func NewID(prefix string) string {
	id, err := uuid.NewV7()
	if err != nil {
		// 乱数源の取得に失敗した場合のみ。v4で代替する。
		id = uuid.New()
	}
	if prefix == "" {
		return id.String()
	}
	return prefix + "_" + id.String()
}

// DedupeIDs は出現順を保ったまま重複したIDを取り除く。
func DedupeIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// CheckUniqueIDs は一覧内でIDが重複していればINVALID_INPUTエラーを返す。
// kindはエラーメッセージに使うエンティティ名。
func CheckUniqueIDs[T any](kind string, items []T, id func(T) string) error {
	seen := make(map[string]bool, len(items))
	for _, it := range items {
		v := id(it)
		if seen[v] {
			return NewInvalidInputError(fmt.Sprintf("%sのIDが重複しています: %s", kind, v))
		}
		seen[v] = true
	}
	return nil
}
