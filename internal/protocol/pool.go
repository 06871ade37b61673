package protocol

import (
	"net"
	"sync"
)

// Pool caches one live *Client per socket path, probing liveness before
// handing out a cached connection and dialing fresh otherwise. Mirrors
// the "probe before reuse" contract clients are expected to honor.
type Pool struct {
	mu      sync.Mutex
	clients map[string]*Client
}

func NewPool() *Pool {
	return &Pool{clients: make(map[string]*Client)}
}

// Get returns a live client for socketPath, reusing a cached connection
// when it's still alive.
func (p *Pool) Get(socketPath string) (*Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if c, ok := p.clients[socketPath]; ok {
		if c.Probe() {
			return c, nil
		}
		_ = c.Close()
		delete(p.clients, socketPath)
	}

	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return nil, err
	}
	c := NewClient(conn)
	p.clients[socketPath] = c
	return c, nil
}

// Evict closes and removes any cached client for socketPath.
func (p *Pool) Evict(socketPath string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.clients[socketPath]; ok {
		_ = c.Close()
		delete(p.clients, socketPath)
	}
}

// CloseAll closes every pooled connection.
func (p *Pool) CloseAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for path, c := range p.clients {
		_ = c.Close()
		delete(p.clients, path)
	}
}
