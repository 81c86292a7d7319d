package models

import "time"

// ContextType enumerates baseline scopes.
type ContextType string

const (
	ContextTypeIP       ContextType = "ip"
	ContextTypeEndpoint ContextType = "endpoint"
	ContextTypeGlobal   ContextType = "global"
	ContextTypeOther    ContextType = "other"
)

// NormalizeContextType maps unknown values to ContextTypeOther.
func NormalizeContextType(v string) ContextType {
	switch ContextType(v) {
	case ContextTypeIP, ContextTypeEndpoint, ContextTypeGlobal:
		return ContextType(v)
	default:
		return ContextTypeOther
	}
}

// Baseline is a stored statistical profile for a traffic context.
type Baseline struct {
	ContextType ContextType    `json:"context_type"`
	ContextKey  string         `json:"context_key"`
	Metrics     map[string]any `json:"metrics"`
	Version     string         `json:"version"`
	WindowEnd   *time.Time     `json:"window_end,omitempty"`
}

// BaselineStat is the condensed, display-ready view of a baseline.
type BaselineStat struct {
	Context string `json:"context"`
	Metrics int    `json:"metrics"`
	Version string `json:"version"`
	Updated string `json:"updated"`
}
