// Package model はドメインモデルを定義する。
package model

// College は投稿の公開範囲を表すカレッジタグ。
type College string

const (
	CollegeGlobal      College = "Global"
	CollegeEngineering College = "Engineering"
	CollegeScience     College = "Science"
	CollegeArts        College = "Arts"
	CollegeBusiness    College = "Business"
	CollegeMedicine    College = "Medicine"
	CollegeLaw         College = "Law"
)

// Colleges は選択可能なカレッジの一覧。Globalを含む。
var Colleges = []College{
	CollegeGlobal,
	CollegeEngineering,
	CollegeScience,
	CollegeArts,
	CollegeBusiness,
	CollegeMedicine,
	CollegeLaw,
}

// Valid はカレッジが定義済みの値かを返す。
func (c College) Valid() bool {
	for _, v := range Colleges {
		if v == c {
			return true
		}
	}
	return false
}

// User はプラットフォームの利用者を表す。
//
// Followers、Following、Posts、TotalLikesは表示用のキャッシュであり、
// Postコレクションから再計算されない。実データと乖離しうる。
type User struct {
	ID         string  `json:"id" yaml:"id"`
	Name       string  `json:"name" yaml:"name"`
	Avatar     string  `json:"avatar" yaml:"avatar"`
	Role       string  `json:"role" yaml:"role"`
	College    College `json:"college" yaml:"college"`
	Status     string  `json:"status" yaml:"status"`
	Bio        string  `json:"bio,omitempty" yaml:"bio,omitempty"`
	Followers  int     `json:"followers" yaml:"followers"`
	Following  int     `json:"following" yaml:"following"`
	Posts      int     `json:"posts" yaml:"posts"`
	TotalLikes int     `json:"totalLikes" yaml:"totalLikes"`
	IsAdmin    bool    `json:"isAdmin,omitempty" yaml:"isAdmin,omitempty"`
}
