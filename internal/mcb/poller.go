package mcb

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Target names one register to poll.
type Target struct {
	Subnode uint8
	Address uint16
}

// Sample is the outcome of one poll of one target. Err is an *ErrorReply
// when the drive answered with an error frame.
type Sample struct {
	Target Target
	Time   time.Time
	Frame  *Frame
	Err    error
}

// Poller reads a fixed set of registers through a Client at a fixed
// interval and hands every sample to a callback.
type Poller struct {
	client   *Client
	targets  []Target
	interval time.Duration
	onSample func(Sample)
	logger   *zap.Logger

	stopChan chan struct{}
	wg       sync.WaitGroup
	running  bool
	mu       sync.Mutex
}

func NewPoller(client *Client, targets []Target, interval time.Duration, onSample func(Sample), logger *zap.Logger) *Poller {
	return &Poller{
		client:   client,
		targets:  targets,
		interval: interval,
		onSample: onSample,
		logger:   logger,
		stopChan: make(chan struct{}),
	}
}

// Start begins polling. The first round runs immediately.
func (p *Poller) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return
	}

	p.running = true
	p.wg.Add(1)

	go p.pollLoop()

	p.logger.Debug("Poller started",
		zap.String("target", p.client.Address()),
		zap.Int("registers", len(p.targets)),
		zap.Duration("interval", p.interval))
}

// Stop ends polling and waits for the current round to finish. A stopped
// poller cannot be restarted.
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.mu.Unlock()

	close(p.stopChan)
	p.wg.Wait()

	p.logger.Debug("Poller stopped", zap.String("target", p.client.Address()))
}

func (p *Poller) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *Poller) pollLoop() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		p.poll()
		select {
		case <-p.stopChan:
			return
		case <-ticker.C:
		}
	}
}

func (p *Poller) poll() {
	for _, t := range p.targets {
		select {
		case <-p.stopChan:
			return
		default:
		}

		frame, err := p.client.Read(context.Background(), t.Subnode, t.Address)
		var reply *ErrorReply
		if err != nil && !errors.As(err, &reply) {
			p.logger.Warn("Poll failed",
				zap.Uint8("subnode", t.Subnode),
				zap.Uint16("address", t.Address),
				zap.Error(err))
		}
		p.onSample(Sample{Target: t, Time: time.Now(), Frame: frame, Err: err})
	}
}
