package gate

import (
	"bufio"
	"bytes"
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// trueLiteral is the only value that enables a stage.
const trueLiteral = "true"

// maxLineLen bounds a single marker file line.
const maxLineLen = 1024 * 1024

// ParseError reports a structurally invalid line in a marker file.
type ParseError struct {
	Line int    // 1-based
	Text string // the offending line, trimmed
	Msg  string
}

func (e *ParseError) Error() string {
	if e.Text == "" {
		return fmt.Sprintf("line %d: %s", e.Line, e.Msg)
	}
	return fmt.Sprintf("line %d: %s: %q", e.Line, e.Msg, e.Text)
}

// Load parses marker file contents and merges them with defaults.
//
// Each non-blank, non-comment line must have the form key=value. Surrounding
// whitespace is trimmed from the key and the value; the first '=' separates
// them. When a key repeats, the last occurrence wins. Only the exact value
// "true" enables a stage. Keys not mentioned in defaults are kept.
//
// On a malformed line Load returns a *ParseError and an empty StageConfig.
func Load(contents []byte, defaults Defaults) (StageConfig, error) {
	raw, err := parse(contents)
	if err != nil {
		return StageConfig{}, err
	}

	cfg := StageConfig{
		flags:   make(map[StageKey]bool, len(raw)+len(defaults)),
		raw:     raw,
		sources: make(map[StageKey]Source, len(raw)+len(defaults)),
	}
	for k, v := range raw {
		cfg.flags[k] = v == trueLiteral
		cfg.sources[k] = SourceFile
	}
	for k, v := range defaults {
		if _, ok := raw[k]; ok {
			continue
		}
		cfg.flags[k] = v
		cfg.sources[k] = SourceDefault
	}
	return cfg, nil
}

func parse(contents []byte) (map[StageKey]string, error) {
	contents = bytes.TrimPrefix(contents, []byte("\xef\xbb\xbf"))
	raw := map[StageKey]string{}

	sc := bufio.NewScanner(bytes.NewReader(contents))
	sc.Buffer(make([]byte, 0, 64*1024), maxLineLen)
	n := 0
	for sc.Scan() {
		n++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, found := strings.Cut(line, "=")
		if !found {
			return nil, &ParseError{Line: n, Text: line, Msg: "missing '=' separator"}
		}
		key = strings.TrimSpace(key)
		if key == "" {
			return nil, &ParseError{Line: n, Text: line, Msg: "empty key"}
		}
		raw[StageKey(key)] = strings.TrimSpace(value)
	}
	if err := sc.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			return nil, &ParseError{Line: n + 1, Msg: "line exceeds 1 MiB"}
		}
		return nil, errors.Wrap(err, "error reading marker contents")
	}
	return raw, nil
}
