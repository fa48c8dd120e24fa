package observe

// OpMeta describes a cache operation for telemetry purposes.
type OpMeta struct {
	Cache string // Cache instance name (may be empty)
	Op    string // Operation name, e.g. "remember" or "purge" (required)
	Key   string // Entry key (optional; never used as a metric attribute)
	Group string // Entry group (optional)
}

// SpanName returns the deterministic span name for this operation.
// Format: cache.<name>.<op> or cache.<op>
func (m OpMeta) SpanName() string {
	if m.Cache != "" {
		return "cache." + m.Cache + "." + m.Op
	}
	return "cache." + m.Op
}

// Fields returns the log fields describing the operation.
func (m OpMeta) Fields() []Field {
	fields := []Field{{Key: "op", Value: m.Op}}
	if m.Key != "" {
		fields = append(fields, Field{Key: "key", Value: m.Key})
	}
	if m.Group != "" {
		fields = append(fields, Field{Key: "group", Value: m.Group})
	}
	return fields
}
