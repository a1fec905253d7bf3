// Package input expands command arguments that use - (stdin) or @file
// syntax.
package input

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// maxInput bounds what is read from stdin or a file.
const maxInput = 1 << 20

// Lines expands each value: "-" becomes the non-empty lines of stdin, "@path"
// the non-empty lines of that file, anything else stays as is. Stdin can be
// used once.
func Lines(values []string, stdin io.Reader) ([]string, error) {
	var out []string
	stdinUsed := false
	for _, v := range values {
		r, closeFn, err := open(v, stdin, &stdinUsed)
		if err != nil {
			return nil, err
		}
		if r == nil {
			out = append(out, v)
			continue
		}
		lines, err := readLines(r)
		closeFn()
		if err != nil {
			return nil, err
		}
		out = append(out, lines...)
	}
	return out, nil
}

// Text joins args with spaces, except that a single "-" or "@path" argument
// is replaced by the whole of stdin or the file, newlines kept.
func Text(args []string, stdin io.Reader) (string, error) {
	if len(args) == 1 {
		used := false
		r, closeFn, err := open(args[0], stdin, &used)
		if err != nil {
			return "", err
		}
		if r != nil {
			defer closeFn()
			data, err := io.ReadAll(io.LimitReader(r, maxInput))
			if err != nil {
				return "", err
			}
			return strings.TrimSpace(string(data)), nil
		}
	}
	return strings.Join(args, " "), nil
}

// open returns a reader for "-" or "@path" values and nil for plain values.
func open(v string, stdin io.Reader, stdinUsed *bool) (io.Reader, func(), error) {
	switch {
	case v == "-":
		if *stdinUsed {
			return nil, nil, fmt.Errorf("stdin can only be read once")
		}
		*stdinUsed = true
		return stdin, func() {}, nil
	case strings.HasPrefix(v, "@") && len(v) > 1:
		f, err := os.Open(v[1:])
		if err != nil {
			return nil, nil, err
		}
		return f, func() { f.Close() }, nil
	}
	return nil, nil, nil
}

// readLines reads non-empty trimmed lines.
func readLines(r io.Reader) ([]string, error) {
	var lines []string
	scanner := bufio.NewScanner(io.LimitReader(r, maxInput))
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	return lines, scanner.Err()
}
