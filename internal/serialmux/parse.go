package serialmux

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var errEmptyLine = errors.New("empty line")

// ParseReading decodes one line of device output. A line holding a JSON
// object decodes to map[string]any, a bare number to float64. Anything else
// is an error.
func ParseReading(line string) (any, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil, errEmptyLine
	}
	if strings.HasPrefix(line, "{") {
		var obj map[string]any
		if err := json.Unmarshal([]byte(line), &obj); err != nil {
			return nil, fmt.Errorf("invalid JSON reading: %w", err)
		}
		return obj, nil
	}
	v, err := strconv.ParseFloat(line, 64)
	if err != nil {
		return nil, fmt.Errorf("unrecognised reading %q", line)
	}
	return v, nil
}
