package types

// IngestStats counts frames a source has handed to the engine. Rejected
// covers payloads that failed to decode and frames the engine refused.
type IngestStats struct {
	Accepted uint64 `json:"accepted"`
	Rejected uint64 `json:"rejected"`
}
