package checkout

import "sync/atomic"

// Progress phases reported while a checkout runs.
const (
	PhaseAnalyzing = "Analyzing workdir"
	PhaseUpdating  = "Updating workdir"
)

// ProgressEvent is the payload of a progress event. Total is zero while
// the walk is still discovering entries.
type ProgressEvent struct {
	Phase  string
	Loaded int
	Total  int
}

// Emitter receives named events during a checkout. Implementations must
// tolerate concurrent calls; apply phases fan out.
type Emitter interface {
	Emit(event string, p ProgressEvent)
}

// progressCounter emits monotonic progress events for one phase.
type progressCounter struct {
	emitter Emitter
	event   string
	phase   string
	total   int
	loaded  atomic.Int64
}

func newProgressCounter(emitter Emitter, prefix, phase string, total int) *progressCounter {
	return &progressCounter{
		emitter: emitter,
		event:   prefix + "progress",
		phase:   phase,
		total:   total,
	}
}

// tick records one completed unit and emits it.
func (p *progressCounter) tick() {
	n := p.loaded.Add(1)
	if p.emitter == nil {
		return
	}
	p.emitter.Emit(p.event, ProgressEvent{
		Phase:  p.phase,
		Loaded: int(n),
		Total:  p.total,
	})
}
