package videos

import (
	"errors"
	"strconv"
	"strings"
)

// errRangeNotSatisfiable marks a well-formed range that lies outside the
// payload: start or end at/after total size.
var errRangeNotSatisfiable = errors.New("range not satisfiable")

// byteRange is an inclusive byte range within a payload.
type byteRange struct {
	start int64
	end   int64
}

func (r byteRange) length() int64 { return r.end - r.start + 1 }

// parseRange parses a single "bytes=start-end" header against the payload
// size. Returns (nil, nil) when the whole payload should be served: absent
// header, non-bytes unit, or any form we do not support (suffix and
// multipart ranges fall back to full content rather than erroring). Returns
// errRangeNotSatisfiable when start or end reaches past the payload.
func parseRange(header string, size int64) (*byteRange, error) {
	if header == "" {
		return nil, nil
	}
	spec, ok := strings.CutPrefix(header, "bytes=")
	if !ok {
		return nil, nil
	}
	if strings.Contains(spec, ",") {
		return nil, nil
	}
	startStr, endStr, ok := strings.Cut(spec, "-")
	if !ok || startStr == "" {
		return nil, nil
	}

	start, err := strconv.ParseInt(strings.TrimSpace(startStr), 10, 64)
	if err != nil || start < 0 {
		return nil, nil
	}

	end := size - 1
	if endStr = strings.TrimSpace(endStr); endStr != "" {
		end, err = strconv.ParseInt(endStr, 10, 64)
		if err != nil || end < 0 {
			return nil, nil
		}
	}

	if start >= size || end >= size {
		return nil, errRangeNotSatisfiable
	}
	if start > end {
		return nil, nil
	}
	return &byteRange{start: start, end: end}, nil
}
