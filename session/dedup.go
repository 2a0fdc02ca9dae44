package session

import (
	"time"

	"github.com/BaSui01/naya/types"
)

// DefaultDedupWindow 语音消息的重复抑制窗口
const DefaultDedupWindow = 3000 * time.Millisecond

// DuplicatePolicy 判断语音消息是否与已有消息重复。
// Window 为 0 时不做抑制。
type DuplicatePolicy struct {
	Window time.Duration
}

// IsDuplicate 已有消息中存在角色与内容相同、且时间差小于窗口的消息时返回 true
func (p DuplicatePolicy) IsDuplicate(existing []types.Message, role types.Role, text string, at time.Time) bool {
	if p.Window <= 0 {
		return false
	}
	for i := len(existing) - 1; i >= 0; i-- {
		m := existing[i]
		if m.Role != role || m.Content != text {
			continue
		}
		d := at.Sub(m.Timestamp)
		if d < 0 {
			d = -d
		}
		if d < p.Window {
			return true
		}
	}
	return false
}
