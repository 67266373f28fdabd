package config

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseSize converts a human-readable size such as "50M" or "1.5G" into
// bytes. Suffixes B, K, M, G and T are powers of 1024, case-insensitive; a
// bare number is bytes. Sizes must come out positive.
func ParseSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty size")
	}

	mult := int64(1)
	num := s
	switch strings.ToUpper(s[len(s)-1:]) {
	case "B":
		num = s[:len(s)-1]
	case "K":
		mult, num = 1<<10, s[:len(s)-1]
	case "M":
		mult, num = 1<<20, s[:len(s)-1]
	case "G":
		mult, num = 1<<30, s[:len(s)-1]
	case "T":
		mult, num = 1<<40, s[:len(s)-1]
	}
	if num == "" {
		return 0, fmt.Errorf("invalid size %q", s)
	}

	var bytes int64
	if n, err := strconv.ParseInt(num, 10, 64); err == nil {
		bytes = n * mult
	} else {
		f, err := strconv.ParseFloat(num, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid size %q", s)
		}
		bytes = int64(f * float64(mult))
	}

	if bytes <= 0 {
		return 0, fmt.Errorf("size must be positive, got %q", s)
	}
	return bytes, nil
}
