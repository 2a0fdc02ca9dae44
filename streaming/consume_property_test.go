package streaming

import (
	"context"
	"sort"
	"strings"
	"testing"

	"pgregory.net/rapid"
)

// 任意切分同一 SSE 正文，最终内容必须一致
func TestProperty_ChunkBoundaryInvariance(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		fragments := rapid.SliceOfN(rapid.String(), 0, 12).Draw(rt, "fragments")

		var sb strings.Builder
		for i, f := range fragments {
			if rapid.Bool().Draw(rt, "comment") {
				sb.WriteString(": keep-alive\n")
			}
			if rapid.Bool().Draw(rt, "blank") {
				sb.WriteString("\n")
			}
			line := deltaLine(f)
			if rapid.Bool().Draw(rt, "crlf") {
				line = strings.TrimSuffix(line, "\n") + "\r\n"
			}
			sb.WriteString(line)
			if i%3 == 2 {
				sb.WriteString("event: ignored\n")
			}
		}
		sb.WriteString("data: [DONE]\n")
		body := sb.String()

		cuts := rapid.SliceOfN(rapid.IntRange(0, len(body)), 0, 24).Draw(rt, "cuts")
		sort.Ints(cuts)

		whole := runConsume(rt, []string{body})
		split := runConsume(rt, splitAt(body, cuts))
		want := strings.Join(fragments, "")

		if whole != want {
			rt.Fatalf("whole body: got %q, want %q", whole, want)
		}
		if split != whole {
			rt.Fatalf("split body: got %q, want %q", split, whole)
		}
	})
}

// [DONE] 之后的任何字节都不会改变结果
func TestProperty_IdempotentTermination(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		before := rapid.SliceOfN(rapid.StringMatching(`[a-zA-Z0-9 ]{0,8}`), 1, 6).Draw(rt, "before")
		after := rapid.SliceOfN(rapid.StringMatching(`[a-zA-Z0-9 ]{1,8}`), 1, 6).Draw(rt, "after")

		body := sseBody(before...)
		for _, f := range after {
			body += deltaLine(f)
		}
		body += "data: [DONE]\n"

		cuts := rapid.SliceOfN(rapid.IntRange(0, len(body)), 0, 10).Draw(rt, "cuts")
		sort.Ints(cuts)

		got := runConsume(rt, splitAt(body, cuts))
		if want := strings.Join(before, ""); got != want {
			rt.Fatalf("got %q, want %q", got, want)
		}
	})
}

func runConsume(rt *rapid.T, chunks []string) string {
	sink := &recordingSink{}
	r := NewReassembler(sink)
	content, err := Consume(context.Background(), newChunkReader(chunks...), r)
	if err != nil {
		rt.Fatalf("consume: %v", err)
	}
	return content
}
