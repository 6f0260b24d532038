package models

// DripResult is the outcome of a single token dispense request.
// Business failures are reported with OK=false and a message in Error.
type DripResult struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}
