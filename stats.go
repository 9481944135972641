// Introspection: a point-in-time summary of a database's shape,
// serialisable as JSON for diagnostics or a CLI --inspect flag.
package stringdb

import (
	json "github.com/goccy/go-json"
)

// Stats is a snapshot of a database's structure as of the moment
// Inspect was called. RecordCount and TotalValueBytes require a full
// scan (and a Load per record), so Inspect is not cheap on a large
// database.
type Stats struct {
	RecordCount     int   `json:"record_count"`
	TotalKeyBytes   int64 `json:"total_key_bytes"`
	TotalValueBytes int64 `json:"total_value_bytes"`
	JumpsFollowed   int   `json:"jumps_followed"`
	HeadOfChain     int64 `json:"head_of_chain"`
}

// Inspect walks db once and returns a Stats describing its contents.
// JumpsFollowed counts how many jump records the walk crossed, which
// is 0 for a database written as a single InsertRange batch and grows
// by one per subsequent batch — a rough proxy for how fragmented the
// chain is.
func Inspect(db *Database) (Stats, error) {
	var st Stats
	st.HeadOfChain = db.dbd.openJumpPos

	for rec, err := range db.Iter() {
		if err != nil {
			return Stats{}, err
		}
		value, err := rec.Loader.Load()
		if err != nil {
			return Stats{}, err
		}
		st.RecordCount++
		st.TotalKeyBytes += int64(len(rec.Key))
		st.TotalValueBytes += int64(len(value))
	}
	st.JumpsFollowed = db.dbd.jumpsFollowed

	return st, nil
}

// MarshalJSON lets Stats serialize with github.com/goccy/go-json
// directly.
func (s Stats) MarshalJSON() ([]byte, error) {
	type alias Stats
	return json.Marshal(alias(s))
}
