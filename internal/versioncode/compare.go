package versioncode

// Ordering is the result of comparing two version codes.
type Ordering int

const (
	// Older means the first code precedes the second.
	Older Ordering = iota - 1
	// Same means both codes are equal.
	Same
	// Newer means the first code follows the second.
	Newer
)

// String implements fmt.Stringer.
func (o Ordering) String() string {
	switch o {
	case Older:
		return "older"
	case Same:
		return "same"
	case Newer:
		return "newer"
	default:
		return "unknown"
	}
}

// Compare returns the ordering of a relative to b.
func Compare(a, b int64) Ordering {
	switch {
	case a < b:
		return Older
	case a > b:
		return Newer
	default:
		return Same
	}
}
