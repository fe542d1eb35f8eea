package signals

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

type stageDone struct {
	stage int
}

func TestNotifyInAttachOrder(t *testing.T) {
	s := New[stageDone]()
	var calls []int
	s.Attach(func(e stageDone) { calls = append(calls, 10+e.stage) })
	s.Attach(func(e stageDone) { calls = append(calls, 20+e.stage) })

	s.Notify(stageDone{1})
	assert.Equal(t, []int{11, 21}, calls)
}

func TestDetach(t *testing.T) {
	s := New[stageDone]()
	var first, second int
	detach := s.Attach(func(stageDone) { first++ })
	s.Attach(func(stageDone) { second++ })

	s.Notify(stageDone{})
	detach()
	detach()
	s.Notify(stageDone{})

	assert.Equal(t, 1, first)
	assert.Equal(t, 2, second)
	assert.Equal(t, 1, s.Len())
}

func TestSameObserverTwice(t *testing.T) {
	s := New[stageDone]()
	n := 0
	observer := Observer[stageDone](func(stageDone) { n++ })
	s.Attach(observer)
	detach := s.Attach(observer)
	s.Notify(stageDone{})
	detach()
	s.Notify(stageDone{})
	assert.Equal(t, 3, n)
}

func TestConcurrentNotify(t *testing.T) {
	s := New[stageDone]()
	var mu sync.Mutex
	total := 0
	s.Attach(func(e stageDone) {
		mu.Lock()
		total += e.stage
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 1; i <= 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.Notify(stageDone{i})
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 1275, total)
}
