package core

import "sync"

const AVG_COUNT uint8 = 30

// FrameMetrics keeps a rolling frame time average and the frames counted
// during the last full second.
type FrameMetrics struct {
	mu                 sync.RWMutex
	frameAVGCounter    uint8
	msTimes            [AVG_COUNT]float64
	msAvg              float64
	frames             int32
	accumulatedFrameMS float64
	fps                float64
	totalFrames        uint64
}

func NewFrameMetrics() *FrameMetrics {
	return &FrameMetrics{}
}

// Update records a frame that took frameElapsedTime seconds. It reports
// whether a new FPS sample became available.
func (m *FrameMetrics) Update(frameElapsedTime float64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	frameMS := frameElapsedTime * 1000.0
	m.msTimes[m.frameAVGCounter] = frameMS
	if m.frameAVGCounter == AVG_COUNT-1 {
		sum := 0.0
		for i := uint8(0); i < AVG_COUNT; i++ {
			sum += m.msTimes[i]
		}
		m.msAvg = sum / float64(AVG_COUNT)
	}
	m.frameAVGCounter++
	m.frameAVGCounter %= AVG_COUNT

	m.frames++
	m.totalFrames++

	m.accumulatedFrameMS += frameMS
	if m.accumulatedFrameMS > 1000 {
		m.fps = float64(m.frames)
		m.accumulatedFrameMS -= 1000
		m.frames = 0
		return true
	}
	return false
}

func (m *FrameMetrics) FPS() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.fps
}

// FrameTime is the average frame time in milliseconds over the last
// AVG_COUNT frames.
func (m *FrameMetrics) FrameTime() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.msAvg
}

func (m *FrameMetrics) TotalFrames() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.totalFrames
}

func (m *FrameMetrics) Frame() (float64, float64) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.fps, m.msAvg
}
