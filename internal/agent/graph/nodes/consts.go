package nodes

// Graph node names.
const (
	NodeInputConverter   = "InputConverter"
	NodeCacheCheck       = "CacheCheck"
	NodeReasoningLoop    = "ReasoningLoop"
	NodeSanitizeAndCache = "SanitizeAndCache"
	NodePersistHistory   = "PersistHistory"
)
