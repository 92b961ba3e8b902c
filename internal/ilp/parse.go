package ilp

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// parseSolution reads a CBC/Gurobi solution file, format-tolerant per
// §4.7: blank/comment/prelude lines are skipped, both "name value" and
// "idx name value" layouts are accepted, and any line mentioning
// "infeasible" (either case) is conclusive. Variables absent from the
// file are left out of the returned map; callers treat a missing lookup
// as zero, matching "missing variables default to zero".
func parseSolution(path string) (map[string]float64, bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, false, fmt.Errorf("ilp: open solution file: %w", err)
	}
	defer f.Close()

	values := make(map[string]float64)
	sawAny := false

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4<<20)
	for sc.Scan() {
		line := sc.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		if strings.Contains(line, "Infeasible") || strings.Contains(line, "infeasible") {
			return values, true, nil
		}
		sawAny = true

		tokens := strings.Fields(line)
		if len(tokens) >= 2 && isAlphaByte(tokens[0][0]) {
			if v, err := strconv.ParseFloat(tokens[1], 64); err == nil {
				values[tokens[0]] = v
			}
			continue
		}
		if len(tokens) >= 3 {
			if v, err := strconv.ParseFloat(tokens[2], 64); err == nil {
				values[tokens[1]] = v
			}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, false, fmt.Errorf("ilp: read solution file: %w", err)
	}
	if !sawAny {
		// An empty solution file is conclusive infeasibility too (the
		// source's `sol.peek() == eof` guard before even opening values).
		return values, true, nil
	}
	return values, false, nil
}

func isAlphaByte(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}
