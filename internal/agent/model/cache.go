package model

import "time"

// CacheEntry is a cached prompt/response pair. The shared cache store owns
// its lifecycle; the pipeline only writes and reads it.
type CacheEntry struct {
	PromptKey  string            `json:"promptKey"`
	Prompt     string            `json:"prompt"`
	Response   string            `json:"response"`
	TTLMillis  int64             `json:"ttlMillis"`
	Attributes map[string]string `json:"attributes,omitempty"`
	CreatedAt  time.Time         `json:"createdAt"`
}

// TTL returns the entry time-to-live as a duration.
func (e CacheEntry) TTL() time.Duration {
	return time.Duration(e.TTLMillis) * time.Millisecond
}

// SessionAttribute is the attribute key used to scope cache entries.
const SessionAttribute = "sessionId"
