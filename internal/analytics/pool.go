package analytics

import (
	"sync"
	"sync/atomic"
	"time"

	"breathing-analytics/internal/models"
)

// Outcome результат обработки записи в пуле
type Outcome struct {
	Result  models.AnalysisResult
	Elapsed time.Duration
}

// Pool пул воркеров для параллельного анализа независимых записей
type Pool struct {
	pipeline  *Pipeline
	jobs      chan models.Recording
	results   chan Outcome
	mu        sync.RWMutex
	stopped   bool
	stopOnce  sync.Once
	wg        sync.WaitGroup
	workers   int
	processed atomic.Int64
	rejected  atomic.Int64
	dropped   atomic.Int64
}

// NewPool создает пул с очередью заданного размера
func NewPool(pipeline *Pipeline, queueSize int) *Pool {
	if queueSize < 1 {
		queueSize = 1
	}
	return &Pool{
		pipeline: pipeline,
		jobs:     make(chan models.Recording, queueSize),
		results:  make(chan Outcome, queueSize),
	}
}

// Start запускает обработчики в goroutines
func (p *Pool) Start(workers int) {
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.work()
	}
	p.workers += workers
}

// Stop перестает принимать записи и ждет, пока воркеры обработают очередь.
// Results нужно читать до закрытия канала. Если воркеры не запускались,
// оставшиеся записи отбрасываются и учитываются в статистике dropped.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() {
		p.mu.Lock()
		p.stopped = true
		close(p.jobs)
		p.mu.Unlock()

		p.wg.Wait()
		for rec := range p.jobs {
			p.dropped.Add(1)
			p.pipeline.logger.Warn("recording dropped on pool stop", "session_id", rec.SessionID)
		}
		close(p.results)
	})
}

// Submit ставит запись в очередь, false если очередь полна или пул остановлен
func (p *Pool) Submit(rec models.Recording) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.stopped {
		p.rejected.Add(1)
		return false
	}

	select {
	case p.jobs <- rec:
		return true
	default:
		p.rejected.Add(1)
		return false
	}
}

// Results канал с результатами, закрывается после Stop
func (p *Pool) Results() <-chan Outcome {
	return p.results
}

func (p *Pool) work() {
	defer p.wg.Done()

	for rec := range p.jobs {
		start := time.Now()
		result := p.pipeline.AnalyzeRecording(rec)
		p.processed.Add(1)
		p.results <- Outcome{Result: result, Elapsed: time.Since(start)}
	}
}

// QueueSize текущий размер очереди
func (p *Pool) QueueSize() int {
	return len(p.jobs)
}

// GetStats возвращает статистику пула
func (p *Pool) GetStats() map[string]interface{} {
	return map[string]interface{}{
		"workers":    p.workers,
		"queue_size": len(p.jobs),
		"queue_cap":  cap(p.jobs),
		"processed":  p.processed.Load(),
		"rejected":   p.rejected.Load(),
		"dropped":    p.dropped.Load(),
	}
}
