package chainstate

import "fmt"

// LookupRange is a contiguous, inclusive span of block heights whose transfers have been fetched.
type LookupRange struct {
	Start uint64 `json:"start"`
	End   uint64 `json:"end"`
}

func (r LookupRange) Validate() error {
	if r.Start > r.End {
		return fmt.Errorf("lookup range start %d is after end %d", r.Start, r.End)
	}
	return nil
}

// Contains reports whether other lies entirely within r.
func (r LookupRange) Contains(other LookupRange) bool {
	return r.Start <= other.Start && other.End <= r.End
}

// Union returns the smallest range covering both r and other.
func (r LookupRange) Union(other LookupRange) LookupRange {
	out := r
	if other.Start < out.Start {
		out.Start = other.Start
	}
	if other.End > out.End {
		out.End = other.End
	}
	return out
}

// TransferLookup is the sync cursor of one (account, network, asset): history between Oldest and
// Newest has been fetched. Oldest only decreases and Newest only increases.
type TransferLookup struct {
	Account TrackedAccount  `json:"account"`
	Asset   AssetDescriptor `json:"asset"`
	Oldest  uint64          `json:"oldest"`
	Newest  uint64          `json:"newest"`
	// Ranges counts the recorded ranges that widened the cursor.
	Ranges uint64 `json:"ranges"`
	// UpdatedAt is the unix millisecond time of the last widening.
	UpdatedAt int64 `json:"updated_at"`
}

// Range returns the covered span.
func (l TransferLookup) Range() LookupRange {
	return LookupRange{Start: l.Oldest, End: l.Newest}
}
