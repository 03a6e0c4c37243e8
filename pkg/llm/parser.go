package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-pkgz/lgr"

	"github.com/umputun/commentscope/pkg/domain"
)

var (
	fenceRe         = regexp.MustCompile("```json\\n?|\\n?```")
	trailingCommaRe = regexp.MustCompile(`,\s*([\]}])`)
)

// repair is a single recovery attempt, turning raw model text into structured output
type repair struct {
	name string
	fn   func(raw string) (*domain.ModelOutput, error)
}

// repairs are tried in order, the first successful one wins
var repairs = []repair{
	{name: "strict", fn: parseStrict},
	{name: "trailing-commas", fn: parseWithoutTrailingCommas},
	{name: "truncated", fn: parseTruncated},
}

// ParseOutput converts raw model text into ModelOutput. Models wrap JSON in markdown
// fences, leave trailing commas and get cut off at the token limit, so the text goes
// through a list of increasingly aggressive repairs. Returns domain.ErrMalformedOutput
// if none of them produced a JSON object.
func ParseOutput(raw string) (*domain.ModelOutput, error) {
	var lastErr error
	for i, r := range repairs {
		out, err := r.fn(raw)
		if err == nil {
			if i > 0 {
				lgr.Printf("[DEBUG] model output recovered with %q repair", r.name)
			}
			return out, nil
		}
		lgr.Printf("[DEBUG] %s parse of model output failed: %v", r.name, err)
		lastErr = err
	}
	return nil, fmt.Errorf("%w: %w", domain.ErrMalformedOutput, lastErr)
}

// stripFences removes markdown code fences and surrounding whitespace
func stripFences(raw string) string {
	return strings.TrimSpace(fenceRe.ReplaceAllString(raw, ""))
}

func parseStrict(raw string) (*domain.ModelOutput, error) {
	return decodeObject(stripFences(raw))
}

func parseWithoutTrailingCommas(raw string) (*domain.ModelOutput, error) {
	return decodeObject(trailingCommaRe.ReplaceAllString(stripFences(raw), "$1"))
}

// parseTruncated keeps the text between the first '{' and the last '}', closes whatever
// arrays and objects the cut left open and decodes the result
func parseTruncated(raw string) (*domain.ModelOutput, error) {
	s := stripFences(raw)
	start, end := strings.Index(s, "{"), strings.LastIndex(s, "}")
	if start == -1 || end <= start {
		return nil, errors.New("no json object found")
	}
	s = s[start : end+1]
	if out, err := decodeObject(s); err == nil {
		return out, nil
	}
	closed := s + closingBrackets(s)
	return decodeObject(trailingCommaRe.ReplaceAllString(closed, "$1"))
}

// closingBrackets returns the brackets needed to balance s, ignoring brackets inside strings
func closingBrackets(s string) string {
	var stack []byte
	inString, escaped := false, false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			stack = append(stack, '}')
		case '[':
			stack = append(stack, ']')
		case '}', ']':
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		}
	}

	var sb strings.Builder
	for i := len(stack) - 1; i >= 0; i-- {
		sb.WriteByte(stack[i])
	}
	return sb.String()
}

// decodeObject strictly decodes s, which must hold a single JSON object
func decodeObject(s string) (*domain.ModelOutput, error) {
	if !strings.HasPrefix(s, "{") {
		return nil, errors.New("not a json object")
	}
	var out domain.ModelOutput
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	return &out, nil
}
