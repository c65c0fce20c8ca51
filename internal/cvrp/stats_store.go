package cvrp

import "sync"

type statsKey struct {
	InstanceID string
	Variant    string
}

var (
	statsMu    sync.Mutex
	statsStore = map[statsKey]SearchStats{}
)

// RecordStats keeps the latest search stats per instance and variant so an
// operator can compare strategies after the fact.
func RecordStats(instanceID, variant string, s SearchStats) {
	statsMu.Lock()
	statsStore[statsKey{InstanceID: instanceID, Variant: variant}] = s
	statsMu.Unlock()
}

// GetStats returns recorded stats for one instance keyed by variant name.
func GetStats(instanceID string) map[string]SearchStats {
	statsMu.Lock()
	defer statsMu.Unlock()
	out := map[string]SearchStats{}
	for k, v := range statsStore {
		if k.InstanceID == instanceID {
			out[k.Variant] = v
		}
	}
	return out
}
