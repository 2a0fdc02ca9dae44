// =============================================================================
// 📦 测试数据工厂 - 对话与流式样例
// =============================================================================
package fixtures

import "github.com/BaSui01/naya/types"

// HaloChunks 两个片段 "Hal" + "o!"，拼接结果为 "Halo!"
var HaloChunks = []string{
	`data: {"choices":[{"delta":{"content":"Hal"}}]}` + "\n",
	`data: {"choices":[{"delta":{"content":"o!"}}]}` + "\n",
	"data: [DONE]\n",
}

// SplitFrameChunks 一个 JSON 被切成两块的帧，只产出片段 "X"
var SplitFrameChunks = []string{
	`data: {"choices":[{"de`,
	`lta":{"content":"X"}}]}` + "\n",
}

// RateLimitBody 网关限流时中继返回的正文
const RateLimitBody = `{"error":"Terlalu banyak permintaan. Mohon tunggu sebentar."}`

// PaymentRequiredBody 网关额度不足时中继返回的正文
const PaymentRequiredBody = `{"error":"Layanan AI memerlukan kredit tambahan."}`

// TourismConversation 一段典型的旅游问答
func TourismConversation() []types.ChatMessage {
	return []types.ChatMessage{
		{Role: types.RoleUser, Content: "Apa saja wisata di Sidoarjo?"},
		{Role: types.RoleAssistant, Content: "Ada Candi Pari, Museum Mpu Tantular, dan Lumpur Lapindo. 😊"},
		{Role: types.RoleUser, Content: "Kuliner khasnya apa?"},
	}
}
