package pipeline

import "sync"

// ResultStore 线程安全地保存最近一次结果，供 watch/schedule 与推送读取
type ResultStore struct {
	mu     sync.RWMutex
	latest *Result
}

func (s *ResultStore) Set(r *Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latest = r
}

func (s *ResultStore) Get() *Result {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest
}
