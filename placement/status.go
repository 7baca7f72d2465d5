package placement

// =============================================================================
// PLACEMENT STATUS & FLAG PROJECTION
// =============================================================================

type PlacementStatus string

const (
	StatusPlaced       PlacementStatus = "placed"
	StatusHold         PlacementStatus = "hold"
	StatusActive       PlacementStatus = "active"
	StatusOfferPending PlacementStatus = "offerPending"
)

func (s PlacementStatus) Valid() bool {
	switch s {
	case StatusPlaced, StatusHold, StatusActive, StatusOfferPending:
		return true
	}
	return false
}

// ParsePlacementStatus accepts only members of the enum.
func ParsePlacementStatus(s string) (PlacementStatus, error) {
	status := PlacementStatus(s)
	if !status.Valid() {
		return "", invalidField("placementStatus", "unknown placement status "+s)
	}
	return status, nil
}

// PlacementFlags are the mutually exclusive booleans exposed on a Consultant.
type PlacementFlags struct {
	IsPlaced       bool
	IsHold         bool
	IsActive       bool
	IsOfferPending bool
}

// Count returns how many flags are set. A well-formed value has exactly one.
func (f PlacementFlags) Count() int {
	n := 0
	for _, b := range []bool{f.IsPlaced, f.IsHold, f.IsActive, f.IsOfferPending} {
		if b {
			n++
		}
	}
	return n
}

// Status maps the flags back to the status they project from. Anything other
// than exactly one set flag reads as active.
func (f PlacementFlags) Status() PlacementStatus {
	if f.Count() != 1 {
		return StatusActive
	}
	switch {
	case f.IsPlaced:
		return StatusPlaced
	case f.IsHold:
		return StatusHold
	case f.IsOfferPending:
		return StatusOfferPending
	}
	return StatusActive
}

// ProjectFlags sets exactly the flag matching status. Unknown or empty
// statuses project to IsActive.
func ProjectFlags(status PlacementStatus) PlacementFlags {
	switch status {
	case StatusPlaced:
		return PlacementFlags{IsPlaced: true}
	case StatusHold:
		return PlacementFlags{IsHold: true}
	case StatusOfferPending:
		return PlacementFlags{IsOfferPending: true}
	default:
		return PlacementFlags{IsActive: true}
	}
}

// ProjectIsJob is true for every member of the status enum.
func ProjectIsJob(status PlacementStatus) bool {
	return status.Valid()
}
