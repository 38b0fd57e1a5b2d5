package store

import (
	"encoding/json"
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/hitoshi/unihub/internal/model"
)

// Collection は1種類のエンティティを保持する名前付きコレクションを表す。
// Keyは永続化スロットの名前であり、形式が変わる場合はバージョン接尾辞を上げる。
type Collection[T any] struct {
	Key  string
	seed string // seeds/配下のYAMLファイル名。空の場合は空配列
}

// CollectionKey はスロット名を返す。
func (c Collection[T]) CollectionKey() string { return c.Key }

// Seed はコレクションの既定データを返す。
// 埋め込みYAMLのデコードは初回だけ行い、以降はキャッシュしたJSONから毎回新しいスライスを生成する。
// 呼び出し側が変更しても次回の結果には影響しない。
func (c Collection[T]) Seed() ([]T, error) {
	items := []T{}
	if c.seed == "" {
		return items, nil
	}
	data, err := seedBytes[T](c.seed)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("既定データの復元に失敗しました (%s): %w", c.seed, err)
	}
	return items, nil
}

// seedCache はファイル名ごとにデコード済みの既定データをJSONで保持する。
var seedCache sync.Map

func seedBytes[T any](name string) ([]byte, error) {
	if v, ok := seedCache.Load(name); ok {
		return v.([]byte), nil
	}
	raw, err := seedFS.ReadFile("seeds/" + name)
	if err != nil {
		return nil, fmt.Errorf("既定データの読み込みに失敗しました (%s): %w", name, err)
	}
	items := []T{}
	if err := yaml.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("既定データのパースに失敗しました (%s): %w", name, err)
	}
	data, err := encode(items)
	if err != nil {
		return nil, err
	}
	v, _ := seedCache.LoadOrStore(name, data)
	return v.([]byte), nil
}

// seedJSON は既定データをスロットに書き込む形式で返す。
func (c Collection[T]) seedJSON() ([]byte, error) {
	items, err := c.Seed()
	if err != nil {
		return nil, err
	}
	return encode(items)
}

// Keyed はスロット名を持つコレクションを表す。Batchのロック対象指定に使う。
type Keyed interface {
	CollectionKey() string
}

// seedable は既定データを書き戻せるコレクション。
type seedable interface {
	Keyed
	seedJSON() ([]byte, error)
}

// 全コレクションの定義。
var (
	Posts         = Collection[model.Post]{Key: "unihub_posts_v2", seed: "posts.yaml"}
	Users         = Collection[model.User]{Key: "unihub_users_v2", seed: "users.yaml"}
	Notifications = Collection[model.Notification]{Key: "unihub_notifications_v1", seed: "notifications.yaml"}
	Tickets       = Collection[model.Ticket]{Key: "unihub_tickets_v1"}
	Events        = Collection[model.CalendarEvent]{Key: "unihub_calendar_events_v3", seed: "events.yaml"}
	Groups        = Collection[model.Group]{Key: "unihub_groups_v1", seed: "groups.yaml"}
	GroupMessages = Collection[model.GroupMessage]{Key: "unihub_group_messages_v1", seed: "group_messages.yaml"}
	Chats         = Collection[model.ChatConversation]{Key: "unihub_chats_v2", seed: "chats.yaml"}
	Resources     = Collection[model.Resource]{Key: "unihub_resources_v1", seed: "resources.yaml"}
	LostFound     = Collection[model.LostFoundItem]{Key: "unihub_lost_found_v1", seed: "lost_found.yaml"}
	Lessons       = Collection[model.AudioLesson]{Key: "unihub_audio_lessons_v1", seed: "lessons.yaml"}
)

// CurrentUserKey は現在のユーザーIDを保持するスカラースロットの名前。
const CurrentUserKey = "unihub_current_user"

// all はReset対象の全コレクション。
var all = []seedable{
	Posts, Users, Notifications, Tickets, Events, Groups,
	GroupMessages, Chats, Resources, LostFound, Lessons,
}

// Keys は全コレクションのスロット名を返す。
func Keys() []string {
	keys := make([]string, 0, len(all))
	for _, c := range all {
		keys = append(keys, c.CollectionKey())
	}
	return keys
}
