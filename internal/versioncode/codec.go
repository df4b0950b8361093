package versioncode

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// Encoding selects the multipliers used to pack version components.
type Encoding string

const (
	// EncodingLegacy packs components as major*10000 + minor*100 + patch.
	EncodingLegacy Encoding = "legacy"
	// EncodingWide packs components as major*100000000 + minor*10000 + patch.
	EncodingWide Encoding = "wide"
)

// maxComponent bounds a single component; larger values are a parse anomaly.
const maxComponent = 1<<31 - 1

// multipliers holds the per-component factors of an encoding.
type multipliers struct {
	major int64
	minor int64
}

// Parts are the decoded components of a version tag.
type Parts struct {
	Major int64
	Minor int64
	Patch int64
}

// Codec converts tags to codes with a fixed encoding.
type Codec struct {
	encoding Encoding
}

// New returns a codec for the given encoding. Unknown encodings fall back to legacy.
func New(encoding Encoding) Codec {
	if encoding != EncodingWide {
		encoding = EncodingLegacy
	}

	return Codec{encoding: encoding}
}

// Legacy returns the default codec.
func Legacy() Codec {
	return New(EncodingLegacy)
}

// ParseEncoding validates an encoding name from configuration.
func ParseEncoding(s string) (Encoding, error) {
	switch Encoding(strings.ToLower(strings.TrimSpace(s))) {
	case "", EncodingLegacy:
		return EncodingLegacy, nil
	case EncodingWide:
		return EncodingWide, nil
	default:
		return "", fmt.Errorf("unknown tag encoding %q", s)
	}
}

// Encoding returns the codec's encoding.
func (c Codec) Encoding() Encoding {
	if c.encoding == "" {
		return EncodingLegacy
	}

	return c.encoding
}

// ParseTag converts a tag such as "v1.4.2" into a version code.
// It is total: malformed input yields 0.
func (c Codec) ParseTag(tag string) int64 {
	parts, ok := Split(tag)
	if !ok {
		return 0
	}

	return c.Encode(parts)
}

// Encode packs parts into a code.
func (c Codec) Encode(p Parts) int64 {
	m := c.multipliers()

	return p.Major*m.major + p.Minor*m.minor + p.Patch
}

// Decode unpacks a code produced by Encode. Negative codes decode to zero parts.
func (c Codec) Decode(code int64) Parts {
	if code <= 0 {
		return Parts{}
	}

	m := c.multipliers()

	return Parts{
		Major: code / m.major,
		Minor: code % m.major / m.minor,
		Patch: code % m.minor,
	}
}

// Format renders a code as major.minor.patch.
func (c Codec) Format(code int64) string {
	p := c.Decode(code)

	return fmt.Sprintf("%d.%d.%d", p.Major, p.Minor, p.Patch)
}

// Ambiguous reports whether parts overflow their slot in this encoding,
// in which case the resulting code can collide with another tag.
func (c Codec) Ambiguous(p Parts) bool {
	m := c.multipliers()
	slot := m.major / m.minor

	return p.Minor >= slot || p.Patch >= m.minor
}

func (c Codec) multipliers() multipliers {
	if c.encoding == EncodingWide {
		return multipliers{major: 100_000_000, minor: 10_000}
	}

	return multipliers{major: 10_000, minor: 100}
}

// ParseTag converts a tag with the legacy encoding.
func ParseTag(tag string) int64 {
	return Legacy().ParseTag(tag)
}

// Split decomposes a tag into its first three components.
// One leading 'v' or 'V' is dropped, then the tag is split on '.', '-' and '+'
// and the first three tokens map to major, minor and patch; non-numeric or
// missing tokens count as zero. Strict semantic versions, which always have
// three dotted numbers in front, are decoded by the semver parser.
// ok is false when a component is out of range.
func Split(tag string) (Parts, bool) {
	trimmed := strings.TrimSpace(tag)
	if strings.HasPrefix(trimmed, "v") || strings.HasPrefix(trimmed, "V") {
		trimmed = trimmed[1:]
	}

	if trimmed == "" {
		return Parts{}, true
	}

	if trimmed[0] >= '0' && trimmed[0] <= '9' {
		if v, err := semver.StrictNewVersion(trimmed); err == nil {
			return semverParts(v)
		}
	}

	tokens := splitTag(trimmed)

	var values [3]int64

	for i := 0; i < len(values) && i < len(tokens); i++ {
		n, err := strconv.ParseInt(tokens[i], 10, 64)
		if err != nil {
			if errors.Is(err, strconv.ErrRange) {
				return Parts{}, false
			}

			continue
		}

		if n < 0 || n > maxComponent {
			return Parts{}, false
		}

		values[i] = n
	}

	return Parts{Major: values[0], Minor: values[1], Patch: values[2]}, true
}

// semverParts converts a parsed semantic version, rejecting oversized components.
func semverParts(v *semver.Version) (Parts, bool) {
	if v.Major() > maxComponent || v.Minor() > maxComponent || v.Patch() > maxComponent {
		return Parts{}, false
	}

	return Parts{
		Major: int64(v.Major()), //nolint:gosec // Bounded by maxComponent above.
		Minor: int64(v.Minor()), //nolint:gosec // Bounded by maxComponent above.
		Patch: int64(v.Patch()), //nolint:gosec // Bounded by maxComponent above.
	}, true
}

// splitTag splits on every separator and keeps empty tokens so that
// positions stay stable ("1..2" is major 1, minor 0, patch 2).
func splitTag(s string) []string {
	tokens := make([]string, 0, 4)
	start := 0

	for i, r := range s {
		if r == '.' || r == '-' || r == '+' {
			tokens = append(tokens, s[start:i])
			start = i + 1
		}
	}

	return append(tokens, s[start:])
}
