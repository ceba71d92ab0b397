package scraper

import (
	"errors"
	"sync"
)

var errQueueEmpty = errors.New("queue is empty")

// fifoQueueStorage is a very simple FIFO storage backend for the colly queue.
type fifoQueueStorage struct {
	lock     sync.Mutex
	requests [][]byte
}

func (s *fifoQueueStorage) Init() error {
	return nil
}

func (s *fifoQueueStorage) AddRequest(r []byte) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.requests = append(s.requests, r)

	return nil
}

func (s *fifoQueueStorage) GetRequest() ([]byte, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	if len(s.requests) == 0 {
		return nil, errQueueEmpty
	}
	r := s.requests[0]
	s.requests[0] = nil
	s.requests = s.requests[1:]

	return r, nil
}

func (s *fifoQueueStorage) QueueSize() (int, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	return len(s.requests), nil
}
