package streaming

// Tap 旁路观察一条 SSE 字节流，不修改字节。
// 中继端用它统计转发的帧和片段。
type Tap struct {
	dec     *Decoder
	onDelta func(Delta)
	stats   Stats
}

// NewTap 创建旁路观察器；onDelta 可为 nil
func NewTap(onDelta func(Delta)) *Tap {
	return &Tap{dec: NewDecoder(), onDelta: onDelta}
}

// Write 实现 io.Writer，永不返回错误
func (t *Tap) Write(p []byte) (int, error) {
	t.stats.Bytes += int64(len(p))
	t.dec.Write(p)
	for {
		f, ok := t.dec.Next()
		if !ok {
			break
		}
		if f.Done {
			t.stats.SawDone = true
			break
		}
		d := Extract(f.Payload)
		if d.Kind == DeltaIncomplete && t.dec.Hold(f) {
			t.stats.PutBacks++
			break
		}
		t.observe(d)
	}
	return len(p), nil
}

// Close 重扫残余缓冲区
func (t *Tap) Close() error {
	for _, f := range t.dec.Flush() {
		if f.Done {
			t.stats.SawDone = true
			break
		}
		t.observe(Extract(f.Payload))
	}
	return nil
}

// Stats 返回目前为止的统计
func (t *Tap) Stats() Stats {
	return t.stats
}

func (t *Tap) observe(d Delta) {
	t.stats.Frames++
	switch d.Kind {
	case DeltaComplete:
		t.stats.Fragments++
	case DeltaMalformed, DeltaIncomplete:
		t.stats.Skipped++
	}
	if t.onDelta != nil {
		t.onDelta(d)
	}
}
