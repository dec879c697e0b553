package dataset

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// ErrMalformedXYZ is returned for frames that do not follow the extended XYZ layout.
var ErrMalformedXYZ = errors.New("malformed xyz")

// ReadXYZFile reads every frame of an extended XYZ file.
func ReadXYZFile(path string) ([]*Structure, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	out, err := ReadXYZ(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return out, nil
}

// ReadXYZ reads consecutive frames: an atom count, a comment line of
// key=value pairs and one line per atom. The Properties key selects the
// species and pos columns; without it columns are "symbol x y z".
func ReadXYZ(r io.Reader) ([]*Structure, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	var out []*Structure
	line := 0
	next := func() (string, bool) {
		if !sc.Scan() {
			return "", false
		}
		line++
		return sc.Text(), true
	}

	for {
		head, ok := next()
		if !ok {
			break
		}
		head = strings.TrimSpace(head)
		if head == "" {
			continue
		}
		n, err := strconv.Atoi(head)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("line %d: atom count %q: %w", line, head, ErrMalformedXYZ)
		}
		comment, ok := next()
		if !ok {
			return nil, fmt.Errorf("line %d: missing comment line: %w", line, ErrMalformedXYZ)
		}
		info, err := parseInfo(comment)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		spCol, posCol, err := columns(info)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		delete(info, "Properties")

		s := &Structure{
			Symbols:   make([]string, n),
			Positions: make([][3]float64, n),
			Info:      info,
		}
		for i := 0; i < n; i++ {
			row, ok := next()
			if !ok {
				return nil, fmt.Errorf("line %d: want %d atoms, got %d: %w", line, n, i, ErrMalformedXYZ)
			}
			f := strings.Fields(row)
			if len(f) <= max(spCol, posCol+2) {
				return nil, fmt.Errorf("line %d: %d columns: %w", line, len(f), ErrMalformedXYZ)
			}
			s.Symbols[i] = f[spCol]
			for k := 0; k < 3; k++ {
				v, err := strconv.ParseFloat(f[posCol+k], 64)
				if err != nil {
					return nil, fmt.Errorf("line %d: %w: %v", line, ErrMalformedXYZ, err)
				}
				s.Positions[i][k] = v
			}
		}
		out = append(out, s)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// columns locates species and pos in a Properties=name:type:count:... declaration.
func columns(info map[string]any) (int, int, error) {
	p, ok := info["Properties"].(string)
	if !ok {
		return 0, 1, nil
	}
	parts := strings.Split(p, ":")
	if len(parts)%3 != 0 {
		return 0, 0, fmt.Errorf("Properties=%q: %w", p, ErrMalformedXYZ)
	}
	sp, pos, col := -1, -1, 0
	for i := 0; i < len(parts); i += 3 {
		cnt, err := strconv.Atoi(parts[i+2])
		if err != nil {
			return 0, 0, fmt.Errorf("Properties=%q: %w", p, ErrMalformedXYZ)
		}
		switch parts[i] {
		case "species":
			sp = col
		case "pos":
			pos = col
		}
		col += cnt
	}
	if sp < 0 || pos < 0 {
		return 0, 0, fmt.Errorf("Properties=%q lacks species or pos: %w", p, ErrMalformedXYZ)
	}
	return sp, pos, nil
}

// parseInfo splits a comment line into key=value pairs. Values may be
// double-quoted; bare keys are true; T/F are booleans and numbers are parsed.
func parseInfo(s string) (map[string]any, error) {
	info := map[string]any{}
	i := 0
	for i < len(s) {
		for i < len(s) && (s[i] == ' ' || s[i] == '\t') {
			i++
		}
		if i >= len(s) {
			break
		}
		start := i
		for i < len(s) && s[i] != '=' && s[i] != ' ' && s[i] != '\t' {
			i++
		}
		key := s[start:i]
		if i >= len(s) || s[i] != '=' {
			info[key] = true
			continue
		}
		i++
		var val string
		if i < len(s) && s[i] == '"' {
			end := strings.IndexByte(s[i+1:], '"')
			if end < 0 {
				return nil, fmt.Errorf("unterminated quote for %q: %w", key, ErrMalformedXYZ)
			}
			val = s[i+1 : i+1+end]
			i += end + 2
			info[key] = val
			continue
		}
		start = i
		for i < len(s) && s[i] != ' ' && s[i] != '\t' {
			i++
		}
		val = s[start:i]
		info[key] = scalar(val)
	}
	return info, nil
}

func scalar(v string) any {
	switch v {
	case "T", "True", "true":
		return true
	case "F", "False", "false":
		return false
	}
	if n, err := strconv.ParseInt(v, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return f
	}
	return v
}
