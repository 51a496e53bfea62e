// Package bytesize converts human-readable size strings such as "1mb" or
// "20 KB" into byte counts. Units are binary: 1KB is 1024 bytes.
package bytesize

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ErrInvalidSize is returned for strings that are neither a bare integer nor
// an integer followed by a known unit.
var ErrInvalidSize = errors.New("invalid byte size")

const (
	KB int64 = 1 << (10 * (iota + 1))
	MB
	GB
	TB
)

var sizeRe = regexp.MustCompile(`^(\d+)\s*([A-Za-z]*)$`)

var units = map[string]int64{
	"":   1,
	"b":  1,
	"kb": KB,
	"mb": MB,
	"gb": GB,
	"tb": TB,
}

// Parse returns the number of bytes described by s. Unknown units fail
// closed with ErrInvalidSize instead of falling back to the numeric prefix.
func Parse(s string) (int64, error) {
	m := sizeRe.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidSize, s)
	}
	mult, ok := units[strings.ToLower(m[2])]
	if !ok {
		return 0, fmt.Errorf("%w: unknown unit %q", ErrInvalidSize, m[2])
	}
	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidSize, err)
	}
	if n > 0 && mult > 1 && n > (1<<63-1)/mult {
		return 0, fmt.Errorf("%w: %q overflows", ErrInvalidSize, s)
	}
	return n * mult, nil
}

// Format renders n using the largest unit that divides it exactly.
func Format(n int64) string {
	switch {
	case n != 0 && n%TB == 0:
		return strconv.FormatInt(n/TB, 10) + "TB"
	case n != 0 && n%GB == 0:
		return strconv.FormatInt(n/GB, 10) + "GB"
	case n != 0 && n%MB == 0:
		return strconv.FormatInt(n/MB, 10) + "MB"
	case n != 0 && n%KB == 0:
		return strconv.FormatInt(n/KB, 10) + "KB"
	}
	return strconv.FormatInt(n, 10) + "B"
}
