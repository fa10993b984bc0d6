package internal

// AnalyticsSink emits the three event shapes from spec.md §4.11
// non-blockingly. When nil, events are silently dropped — callers use it as
// `sink.emitX(...)` against a possibly-nil *AnalyticsSink via the helper
// methods below, which all nil-check themselves.
type AnalyticsSink struct {
	events chan any
	done   chan struct{}
}

// ProviderRequestEvent mirrors spec.md's `provider_request` shape.
type ProviderRequestEvent struct {
	Provider      string
	Capability    Capability
	Operation     string
	Status        string // success | error | timeout | cache_hit
	ErrorType     string
	LatencyMs     int64
	CacheHit      bool
	QuotaConsumed int
}

// OrchestratorFallbackEvent mirrors spec.md's `orchestrator_fallback` shape.
type OrchestratorFallbackEvent struct {
	Orchestrator      string
	ProviderChain     []string
	SuccessfulProvider string
	Operation         string
	AttemptsCount     int
	TotalLatencyMs    int64
	Success           bool
}

// ProviderCostEvent mirrors spec.md's `provider_cost` shape.
type ProviderCostEvent struct {
	Provider        string
	Tier            string
	APICallsCount   int
	EstimatedCostUSD float64
}

// NewAnalyticsSink starts a background drain goroutine so emit calls never
// block the request path; the channel is generously buffered and, when full,
// drops the incoming event rather than applying back-pressure to callers, since
// analytics is explicitly allowed to be lossy (spec.md §4.11: "optional...
// silently dropped").
func NewAnalyticsSink(handle func(any)) *AnalyticsSink {
	s := &AnalyticsSink{
		events: make(chan any, 4096),
		done:   make(chan struct{}),
	}
	go func() {
		for {
			select {
			case e := <-s.events:
				if handle != nil {
					handle(e)
				}
			case <-s.done:
				return
			}
		}
	}()
	return s
}

func (s *AnalyticsSink) Close() {
	if s == nil {
		return
	}
	close(s.done)
}

func (s *AnalyticsSink) emit(e any) {
	if s == nil {
		return
	}
	select {
	case s.events <- e:
	default:
		// Buffer full; drop rather than block the request path.
	}
}

func (s *AnalyticsSink) EmitProviderRequest(e ProviderRequestEvent) { s.emit(e) }
func (s *AnalyticsSink) EmitOrchestratorFallback(e OrchestratorFallbackEvent) { s.emit(e) }
func (s *AnalyticsSink) EmitProviderCost(e ProviderCostEvent) { s.emit(e) }
