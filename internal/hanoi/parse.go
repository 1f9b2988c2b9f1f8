package hanoi

import (
	"bytes"
	"encoding/json"
	"strings"
)

// #region proposal

// proposal is the predictor's claim before validation.
type proposal struct {
	Move  any
	State any
}

var (
	moveKeys  = []string{"move", "action"}
	stateKeys = []string{"predicted_state", "next_state", "state", "pegs"}
)

// parseProposal accepts a JSON object (optionally wrapped in prose or a code
// fence) or "move = ..." / "next_state = ..." lines.
func parseProposal(text string) (proposal, bool) {
	if obj, ok := extractObject(text); ok {
		var p proposal
		for _, k := range moveKeys {
			if v, ok := obj[k]; ok {
				p.Move = v
				break
			}
		}
		for _, k := range stateKeys {
			if v, ok := obj[k]; ok {
				p.State = v
				break
			}
		}
		if p.Move != nil && p.State != nil {
			return p, true
		}
	}
	return parseLines(text)
}

func extractObject(text string) (map[string]any, bool) {
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end <= start {
		return nil, false
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(text[start:end+1]), &obj); err != nil {
		return nil, false
	}
	return obj, true
}

func parseLines(text string) (proposal, bool) {
	var p proposal
	for _, line := range strings.Split(text, "\n") {
		name, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		name = strings.ToLower(strings.TrimSpace(name))
		var v any
		dec := json.NewDecoder(bytes.NewReader([]byte(strings.TrimSpace(value))))
		if err := dec.Decode(&v); err != nil {
			continue
		}
		switch {
		case contains(moveKeys, name):
			p.Move = v
		case contains(stateKeys, name):
			p.State = v
		}
	}
	return p, p.Move != nil && p.State != nil
}

func contains(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}

// #endregion
