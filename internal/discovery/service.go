package discovery

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/oddmeter/camhub/internal/admin"
)

// Scanner runs periodic WS-Discovery probes and fans out each hit to every
// subscriber. It never persists a result — a subscriber that isn't
// currently reading a scan's hits simply misses them, same "never block
// the publisher" policy internal/rail uses for the Frame and Control Rails,
// since a dropped discovery hit just means the next scan interval will
// likely rediscover the same device.
type Scanner struct {
	interval time.Duration

	mu      sync.Mutex
	subs    map[int]chan admin.DiscoveredService
	nextSub int
}

func NewScanner(interval time.Duration) *Scanner {
	return &Scanner{
		interval: interval,
		subs:     make(map[int]chan admin.DiscoveredService),
	}
}

// Subscribe registers a new listener and returns a stop function that
// unregisters and closes its channel. Satisfies internal/admin's
// Discoverer interface.
func (s *Scanner) Subscribe() (<-chan admin.DiscoveredService, func()) {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	ch := make(chan admin.DiscoveredService, 8)
	s.subs[id] = ch
	s.mu.Unlock()

	stop := func() {
		s.mu.Lock()
		if c, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(c)
		}
		s.mu.Unlock()
	}
	return ch, stop
}

func (s *Scanner) broadcast(svc admin.DiscoveredService) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- svc:
		default:
		}
	}
}

// Run scans on a fixed interval until ctx is cancelled, by which point the
// Global shutdown's discovery task token has already fired. Every
// subscriber channel is closed on exit.
func (s *Scanner) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.closeAll()
			return
		case <-ticker.C:
			s.scanOnce(ctx)
		}
	}
}

func (s *Scanner) scanOnce(ctx context.Context) {
	client, err := NewWSDiscoveryClient()
	if err != nil {
		log.Printf("discovery: probe init failed: %v", err)
		return
	}
	defer client.Close()

	devices, err := client.Scan(ctx, MaxScanDuration)
	if err != nil {
		log.Printf("discovery: scan failed: %v", err)
		return
	}

	now := time.Now()
	for _, dev := range devices {
		addr := dev.IPAddress
		if len(dev.XAddrs) > 0 {
			addr = dev.XAddrs[0]
		}
		s.broadcast(admin.DiscoveredService{
			Hostname:      dev.EndpointRef,
			SocketAddress: addr,
			ObservedAt:    now,
		})
	}
}

func (s *Scanner) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, ch := range s.subs {
		delete(s.subs, id)
		close(ch)
	}
}

const MaxScanDuration = 5 * time.Second
