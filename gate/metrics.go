package gate

import "sync"

// Metrics tracks operational statistics for the gate.
type Metrics struct {
	mu               sync.RWMutex
	TokensVerified   int64
	VerifyRejections int64
	TokensExpired    int64
	TokensRevoked    int64
	TokensSwept      int64
	FallbacksUsed    int64
	StoreErrors      int64
}

func (m *Metrics) IncrementTokensVerified() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.TokensVerified++
}

func (m *Metrics) IncrementVerifyRejections() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.VerifyRejections++
}

func (m *Metrics) IncrementTokensExpired() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.TokensExpired++
}

func (m *Metrics) IncrementTokensRevoked() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.TokensRevoked++
}

func (m *Metrics) IncrementTokensSwept() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.TokensSwept++
}

func (m *Metrics) IncrementFallbacksUsed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FallbacksUsed++
}

func (m *Metrics) IncrementStoreErrors() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.StoreErrors++
}

// GetSnapshot returns a point-in-time copy of all counters.
func (m *Metrics) GetSnapshot() map[string]int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return map[string]int64{
		"tokens_verified":   m.TokensVerified,
		"verify_rejections": m.VerifyRejections,
		"tokens_expired":    m.TokensExpired,
		"tokens_revoked":    m.TokensRevoked,
		"tokens_swept":      m.TokensSwept,
		"fallbacks_used":    m.FallbacksUsed,
		"store_errors":      m.StoreErrors,
	}
}
