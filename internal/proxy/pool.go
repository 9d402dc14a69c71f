package proxy

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/jonesrussell/guildcrawl/internal/fetcher"
	"github.com/jonesrussell/guildcrawl/internal/logger"
)

// Pool holds one Machine per proxy endpoint, or a single direct Machine when
// no proxy is configured.
type Pool struct {
	machines []*Machine
}

// NewPool builds machines for every configured endpoint. Each endpoint gets its
// own dispatch gate so serialization is per proxy instance.
func NewPool(doer fetcher.Doer, cfg Config, workers int, log logger.Logger) (*Pool, error) {
	if cfg.PoolFile != "" {
		extra, err := ReadPoolFile(cfg.PoolFile)
		if err != nil {
			return nil, err
		}
		cfg.Pool = append(cfg.Pool, extra...)
	}

	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = workers
	}

	endpoints := cfg.Endpoints()
	if len(endpoints) == 0 {
		endpoints = []string{""}
	}

	machines := make([]*Machine, 0, len(endpoints))
	for _, ep := range endpoints {
		gate := NewGate(cfg.Concurrent, maxConcurrent, cfg.RequestsPerSecond)
		machines = append(machines, NewMachine(doer, ep, cfg, gate, log))
	}

	log.Info("Proxy pool ready",
		logger.Int("endpoints", len(machines)),
		logger.Bool("concurrent", cfg.Concurrent),
		logger.Int("max_concurrent", maxConcurrent),
	)

	return &Pool{machines: machines}, nil
}

// For returns the machine assigned to a worker, round-robin by worker index.
func (p *Pool) For(worker int) *Machine {
	if worker < 0 {
		worker = -worker
	}
	return p.machines[worker%len(p.machines)]
}

// Len returns the number of machines.
func (p *Pool) Len() int {
	return len(p.machines)
}

// ReadPoolFile reads proxy endpoints, one per line. Blank lines and lines
// starting with # are skipped.
func ReadPoolFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open proxy pool file: %w", err)
	}
	defer f.Close()

	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read proxy pool file: %w", err)
	}
	return out, nil
}
