package sma_multicast

import (
	"context"
	"net"
	"sync"
	"time"
)

// TestTelegramSource replays telegrams in order, one per Interval, and then
// blocks until the context is done.
type TestTelegramSource struct {
	Telegrams [][]byte
	Interval  time.Duration

	mu          sync.Mutex
	next        int
	open        bool
	opens       int
	discoveries int
	failAfter   int
	failErr     error
}

func CreateTestTelegramSource() (TelegramSource, error) {
	return NewTestTelegramSource(
		BuildTelegram(1900123456, 12345, 4100, 4200, 4045),
		// unrelated multicast traffic
		[]byte{0x53, 0x4d, 0x41, 0x00},
		BuildTelegram(3012345678, -8000, -2500, -2700, -2800),
	), nil
}

func NewTestTelegramSource(telegrams ...[]byte) *TestTelegramSource {
	return &TestTelegramSource{
		Telegrams: telegrams,
		Interval:  10 * time.Millisecond,
	}
}

func (s *TestTelegramSource) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.open = true
	s.opens++
	return nil
}

func (s *TestTelegramSource) Opens() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opens
}

// FailAfter makes the read following the first n telegrams return err, once.
func (s *TestTelegramSource) FailAfter(n int, err error) *TestTelegramSource {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failAfter = n
	s.failErr = err
	return s
}

func (s *TestTelegramSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.open = false
	return nil
}

func (s *TestTelegramSource) SendDiscovery() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open {
		return ErrListenerClosed
	}
	s.discoveries++
	return nil
}

func (s *TestTelegramSource) Discoveries() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.discoveries
}

func (s *TestTelegramSource) ReadTelegram(ctx context.Context) (*Datagram, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(s.Interval):
	}

	s.mu.Lock()
	if !s.open {
		s.mu.Unlock()
		return nil, ErrListenerClosed
	}
	if s.failErr != nil && s.next == s.failAfter {
		err := s.failErr
		s.failErr = nil
		s.mu.Unlock()
		return nil, err
	}
	if s.next >= len(s.Telegrams) {
		s.mu.Unlock()
		<-ctx.Done()
		return nil, ctx.Err()
	}
	data := s.Telegrams[s.next]
	s.next++
	s.mu.Unlock()

	return &Datagram{
		Data:       data,
		Source:     &net.UDPAddr{IP: net.IPv4(192, 168, 1, 50), Port: DEFAULT_MULTICAST_PORT},
		ReceivedAt: time.Now(),
	}, nil
}

var _ TelegramSource = (*TestTelegramSource)(nil)
