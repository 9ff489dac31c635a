// Package batch runs local-energy evaluations over many walker
// configurations in parallel. The evaluation of one configuration is pure, so
// a batch is embarrassingly parallel; the pool bounds the goroutine count and
// returns results in input order.
package batch

import (
	"fmt"
	"math/rand"
	"runtime"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"gonum.org/v1/gonum/floats"

	"github.com/varqc/varmc/pkg/hamiltonian"
	"github.com/varqc/varmc/pkg/system"
)

// Pool distributes walker evaluations across a bounded set of goroutines.
type Pool struct {
	workers int
	log     zerolog.Logger
}

// NewPool creates a pool with the given worker count. A count of zero or less
// selects the number of physical CPU cores.
func NewPool(workers int, log zerolog.Logger) *Pool {
	if workers <= 0 {
		workers = physicalCores()
	}
	return &Pool{
		workers: workers,
		log:     log.With().Str("component", "batch").Logger(),
	}
}

// Workers returns the configured worker count.
func (p *Pool) Workers() int { return p.workers }

func physicalCores() int {
	n, err := cpu.Counts(false)
	if err != nil || n < 1 {
		return runtime.NumCPU()
	}
	return n
}

type jobItem struct {
	index int
	cfg   system.Configuration
}

type resultItem struct {
	index  int
	result hamiltonian.Result
	err    error
}

// EvaluateBatch evaluates the local energy of every configuration and returns
// the results in input order. Walker i draws from its own RNG stream seeded
// with seed+i, so the outcome is independent of worker scheduling and matches
// a serial evaluation with the same seed.
func (p *Pool) EvaluateBatch(le *hamiltonian.LocalEnergy, params []float64, seed int64, cfgs []system.Configuration) ([]hamiltonian.Result, error) {
	n := len(cfgs)
	if n == 0 {
		return []hamiltonian.Result{}, nil
	}

	workers := p.workers
	if n < workers {
		workers = n
	}
	runID := uuid.New().String()
	p.log.Debug().
		Str("run_id", runID).
		Int("walkers", n).
		Int("workers", workers).
		Msg("evaluating batch")

	jobs := make(chan jobItem, n)
	results := make(chan resultItem, n)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				rng := rand.New(rand.NewSource(seed + int64(job.index)))
				res, err := le.Evaluate(params, rng, job.cfg)
				results <- resultItem{index: job.index, result: res, err: err}
			}
		}()
	}

	for idx, cfg := range cfgs {
		jobs <- jobItem{index: idx, cfg: cfg}
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(results)
	}()

	out := make([]hamiltonian.Result, n)
	errs := make([]error, n)
	for r := range results {
		out[r.index] = r.result
		errs[r.index] = r.err
	}
	for idx, err := range errs {
		if err != nil {
			return nil, fmt.Errorf("batch: walker %d: %w", idx, err)
		}
	}
	return out, nil
}

// CheckSynced reports whether every replica of a parameter vector matches
// replica 0 exactly. Replicated walkers must hold identical parameters, so a
// nonzero difference norm means a reduction went wrong upstream.
func CheckSynced(name string, replicas [][]float64, log zerolog.Logger) bool {
	for i := 1; i < len(replicas); i++ {
		if len(replicas[i]) != len(replicas[0]) {
			log.Warn().
				Str("name", name).
				Int("replica", i).
				Int("length", len(replicas[i])).
				Int("want", len(replicas[0])).
				Msg("replica shape differs from replica 0")
			return false
		}
		if norm := floats.Distance(replicas[0], replicas[i], 2); norm != 0 {
			log.Warn().
				Str("name", name).
				Int("replica", i).
				Float64("difference_norm", norm).
				Msg("replica out of sync with replica 0")
			return false
		}
	}
	log.Debug().Str("name", name).Int("replicas", len(replicas)).Msg("replicas in sync")
	return true
}
