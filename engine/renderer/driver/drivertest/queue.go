package drivertest

import (
	"sync"

	"github.com/spaghettifunk/vulkanese/engine/renderer/driver"
)

type Submission struct {
	Infos []driver.SubmitInfo
	Fence driver.FenceHandle
}

// Queue records submissions. Work completes immediately: a fence passed
// to Submit is signaled on the device.
type Queue struct {
	mu     sync.Mutex
	device *Device

	Submits   []Submission
	WaitIdles int
	FailWith  error
	// Log receives "submit" and "queue_wait_idle" events.
	Log *[]string
}

func NewQueue(device *Device) *Queue {
	return &Queue{device: device}
}

func (q *Queue) Submit(infos []driver.SubmitInfo, fence driver.FenceHandle) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.FailWith != nil {
		return q.FailWith
	}
	q.Submits = append(q.Submits, Submission{Infos: infos, Fence: fence})
	if q.Log != nil {
		*q.Log = append(*q.Log, "submit")
	}
	if fence != driver.NullHandle && q.device != nil {
		q.device.Signal(fence)
	}
	return nil
}

func (q *Queue) WaitIdle() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.WaitIdles++
	if q.Log != nil {
		*q.Log = append(*q.Log, "queue_wait_idle")
	}
	return nil
}

// Presenter hands out images round robin. AcquireResults and
// PresentResults are consumed one per call; once empty every call
// succeeds.
type Presenter struct {
	mu sync.Mutex

	Images         int
	Size           driver.Extent2D
	AcquireResults []driver.Result
	PresentResults []driver.Result

	Acquires  int
	Presented []uint32
	Log       *[]string

	next uint32
}

func NewPresenter(images int) *Presenter {
	return &Presenter{Images: images, Size: driver.Extent2D{Width: 800, Height: 600}}
}

func (p *Presenter) ImageCount() int         { return p.Images }
func (p *Presenter) Extent() driver.Extent2D { return p.Size }

func (p *Presenter) AcquireNextImage(timeout uint64, signal driver.SemaphoreHandle) (uint32, driver.Result) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Acquires++
	result := driver.Success
	if len(p.AcquireResults) > 0 {
		result = p.AcquireResults[0]
		p.AcquireResults = p.AcquireResults[1:]
	}
	if p.Log != nil {
		*p.Log = append(*p.Log, "acquire:"+resultName(result))
	}
	if !result.IsSuccess() {
		return 0, result
	}
	index := p.next
	p.next = (p.next + 1) % uint32(p.Images)
	return index, result
}

func (p *Presenter) Present(imageIndex uint32, wait []driver.SemaphoreHandle) driver.Result {
	p.mu.Lock()
	defer p.mu.Unlock()
	result := driver.Success
	if len(p.PresentResults) > 0 {
		result = p.PresentResults[0]
		p.PresentResults = p.PresentResults[1:]
	}
	if p.Log != nil {
		*p.Log = append(*p.Log, "present")
	}
	if result.IsSuccess() {
		p.Presented = append(p.Presented, imageIndex)
	}
	return result
}

func resultName(r driver.Result) string {
	switch r {
	case driver.Success:
		return "success"
	case driver.NotReady:
		return "not_ready"
	case driver.Timeout:
		return "timeout"
	case driver.Suboptimal:
		return "suboptimal"
	case driver.ErrorOutOfDate:
		return "out_of_date"
	}
	return "error"
}
