// Package permission はイベントの編集・削除操作を表示するかどうかの判定を提供する。
//
// ここでの判定はUI上の利便性のためだけのもので、認可ではない。
// 他人のイベントの更新・削除はサーバーが独立して拒否する前提に依存している。
package permission

import "github.com/hitoshi/eventdesk/internal/model"

// IsOwner は現在のユーザーがイベントのオーナーかを返す。
// currentUserIDが空（未認証・トークン不正）の場合は常にfalse。
func IsOwner(event *model.Event, currentUserID string) bool {
	if event == nil || currentUserID == "" {
		return false
	}
	return event.UserID == currentUserID
}
