package redis

import "fmt"

// Key construction helpers for the published working state.

// AreaStateKey returns the key for fused area state (hash)
// Pattern: presence:area:{area}
func AreaStateKey(area string) string {
	return fmt.Sprintf("presence:area:%s", area)
}

// SensorStateKey returns the key for learned per-sensor state (hash)
// Pattern: presence:sensor:{area}:{entity}
func SensorStateKey(area, entity string) string {
	return fmt.Sprintf("presence:sensor:%s:%s", area, entity)
}

// AnalysisRunKey returns the key for the most recent analysis report (string)
// Pattern: presence:analysis:{area}
func AnalysisRunKey(area string) string {
	return fmt.Sprintf("presence:analysis:%s", area)
}
