package services

import "sync"

// marketGuard admits at most one in-flight cycle per market. A cycle that
// finds a market held skips it instead of waiting.
type marketGuard struct {
	mu       sync.Mutex
	inFlight map[string]MarketState
}

func newMarketGuard() *marketGuard {
	return &marketGuard{inFlight: make(map[string]MarketState)}
}

func (g *marketGuard) acquire(market string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, busy := g.inFlight[market]; busy {
		return false
	}
	g.inFlight[market] = MarketStateIdle
	return true
}

func (g *marketGuard) set(market string, state MarketState) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, held := g.inFlight[market]; held {
		g.inFlight[market] = state
	}
}

func (g *marketGuard) release(market string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	delete(g.inFlight, market)
}

func (g *marketGuard) snapshot() map[string]MarketState {
	g.mu.Lock()
	defer g.mu.Unlock()

	states := make(map[string]MarketState, len(g.inFlight))
	for market, state := range g.inFlight {
		states[market] = state
	}
	return states
}
