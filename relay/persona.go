package relay

import (
	"fmt"
	"os"
	"strings"
	"sync"
)

// DefaultPrompt Naya 的默认人设（系统提示词）
const DefaultPrompt = `Kamu adalah customer service virtual perempuan bernama Naya.

KEPRIBADIAN:
- Ramah, hangat, dan profesional
- Selalu menyapa dengan sopan
- Memiliki empati tinggi terhadap pelanggan
- Sabar dalam menjelaskan
- Tidak pernah kasar atau menyinggung

ATURAN BICARA:
- Selalu gunakan Bahasa Indonesia yang baik dan benar
- Kalimat singkat, jelas, dan mudah dipahami
- Gunakan nada customer service yang menenangkan
- Jika ada pelanggan yang emosi, tenangkan dengan sabar
- Jika tidak tahu jawabannya, katakan: "Mohon maaf, untuk pertanyaan ini saya perlu menghubungkan Anda dengan tim kami yang lebih berpengalaman."

SALAM PEMBUKA (untuk chat pertama):
"Halo! Saya Naya, asisten virtual Anda. Ada yang bisa saya bantu hari ini? 😊"

LARANGAN:
- Jangan membahas topik politik, SARA, atau hal sensitif
- Jangan memberikan informasi yang tidak akurat
- Jangan menggunakan kata-kata kasar
- Jangan menjawab di luar konteks layanan pelanggan

Selalu akhiri respons dengan pertanyaan tindak lanjut yang relevan jika diperlukan.`

// Persona 持有当前系统提示词，可在运行时热替换
type Persona struct {
	mu     sync.RWMutex
	prompt string
}

// NewPersona 创建人设；prompt 为空时使用 DefaultPrompt
func NewPersona(prompt string) *Persona {
	if strings.TrimSpace(prompt) == "" {
		prompt = DefaultPrompt
	}
	return &Persona{prompt: prompt}
}

// Prompt 返回当前系统提示词
func (p *Persona) Prompt() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.prompt
}

// Set 替换系统提示词；空白内容被拒绝，保留旧值
func (p *Persona) Set(prompt string) bool {
	if strings.TrimSpace(prompt) == "" {
		return false
	}
	p.mu.Lock()
	p.prompt = prompt
	p.mu.Unlock()
	return true
}

// LoadFile 从文件读取提示词并替换
func (p *Persona) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read persona file: %w", err)
	}
	if !p.Set(strings.TrimRight(string(data), "\r\n")) {
		return fmt.Errorf("persona file %s is empty", path)
	}
	return nil
}
