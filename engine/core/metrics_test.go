package core

import "testing"

func TestFrameMetricsAverage(t *testing.T) {
	m := NewFrameMetrics()
	for i := 0; i < int(AVG_COUNT); i++ {
		m.Update(0.010)
	}
	if got := m.FrameTime(); got < 9.999 || got > 10.001 {
		t.Fatalf("expected 10ms average, got %f", got)
	}
	// a second window must not accumulate on top of the first one
	for i := 0; i < int(AVG_COUNT); i++ {
		m.Update(0.020)
	}
	if got := m.FrameTime(); got < 19.999 || got > 20.001 {
		t.Fatalf("expected 20ms average, got %f", got)
	}
}

func TestFrameMetricsFPS(t *testing.T) {
	m := NewFrameMetrics()
	sampled := false
	for i := 0; i < 101; i++ {
		if m.Update(0.010) {
			sampled = true
		}
	}
	if !sampled {
		t.Fatal("expected an fps sample after one second of frames")
	}
	if fps := m.FPS(); fps < 99 || fps > 101 {
		t.Fatalf("expected ~100 fps, got %f", fps)
	}
	if m.TotalFrames() != 101 {
		t.Fatalf("expected 101 frames, got %d", m.TotalFrames())
	}
}
