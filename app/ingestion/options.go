package ingestion

import "time"

// IngestOptions carries the per-run knobs every adapter's Ingest method
// accepts: the inclusive time window, the bot filter switch, and the
// strict-validation flag threaded down into the format parsers.
type IngestOptions struct {
	StartTime    time.Time
	HasStartTime bool
	EndTime      time.Time
	HasEndTime   bool

	FilterBots       bool
	StrictValidation bool
	BaseDir          string

	// FieldMapping, when non-nil, overrides an adapter's default field map
	// (used by Fastly's options.field_mapping knob).
	FieldMapping map[string]string
}

// InWindow reports whether ts falls within the inclusive [StartTime, EndTime]
// bounds configured on opts. Bounds that were never set impose no constraint.
func (o IngestOptions) InWindow(ts time.Time) bool {
	if o.HasStartTime && ts.Before(o.StartTime) {
		return false
	}
	if o.HasEndTime && ts.After(o.EndTime) {
		return false
	}
	return true
}
