package extract

import (
	"github.com/hurttlocker/scamintel/internal/intel"
)

// Merge combines a pattern record with an optional external record using the
// default extractor settings. A nil external record yields Cleanse(pattern).
func Merge(pattern intel.Record, external *intel.Record) intel.Record {
	return defaultExtractor.Merge(pattern, external)
}

// Merge unions pattern with the governed external record and cleanses the
// result. Union is commutative and idempotent, so merging the same pair in
// either order, or more than once, yields the same record.
func (e *Extractor) Merge(pattern intel.Record, external *intel.Record) intel.Record {
	merged := pattern
	if external != nil {
		merged = pattern.Union(e.governor.Apply(*external))
	}
	return e.Cleanse(merged)
}
