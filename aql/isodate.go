package aql

import (
	"time"

	"github.com/banyanmesh/core/model"
)

// parseIsoDate parses an RFC3339 timestamp (spec §4.5 IsoDate) into a
// Timestamp (microseconds since epoch).
func parseIsoDate(s string, pos int) (model.Timestamp, error) {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return model.Timestamp(t.UnixMicro()), nil
		}
	}
	return 0, errf(pos, "invalid ISO-8601 date %q", s)
}
