package analysis

import (
	"fmt"
	"strings"

	"github.com/goccy/go-json"

	"github.com/mietcheck/mietcheck/pkg/models"
)

// ParseResult locates the first top-level JSON object in the model's
// free-form response and decodes it. When the response was cut off at
// the token ceiling the fragment is structurally repaired first:
// unbalanced braces and brackets are closed and the trailing incomplete
// element is dropped.
func ParseResult(raw string, truncated bool) (*models.AnalysisResult, error) {
	start := strings.IndexByte(raw, '{')
	if start < 0 {
		return nil, ErrNoStructuredOutput
	}
	fragment := raw[start:]

	obj, complete := extractObject(fragment)
	if !complete {
		repaired, err := repairFragment(obj)
		if err != nil {
			return nil, ErrNoStructuredOutput
		}
		obj = repaired
	}

	var result models.AnalysisResult
	if err := json.Unmarshal([]byte(obj), &result); err != nil {
		return nil, &Error{Kind: KindMalformed, err: fmt.Errorf("decode analysis result: %w", err)}
	}
	if result.Validation == "" {
		return nil, &Error{Kind: KindMalformed, err: fmt.Errorf("analysis result missing validation status")}
	}
	return &result, nil
}

// extractObject returns the first balanced JSON object starting at
// fragment[0], or the whole fragment with complete=false when the
// object never closes.
func extractObject(fragment string) (string, bool) {
	depth := 0
	inString := false
	escape := false

	for i := 0; i < len(fragment); i++ {
		c := fragment[i]
		if inString {
			switch {
			case escape:
				escape = false
			case c == '\\':
				escape = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				return fragment[:i+1], true
			}
		}
	}
	return fragment, false
}

// frame tracks one open container during the repair scan.
type frame struct {
	typ         byte // '{' or '['
	openIdx     int
	lastElemEnd int // offset just past the last complete element, -1 if none
	elemStart   int // offset of the in-progress element, -1 if none
	afterColon  bool
}

// repairFragment balances a truncated JSON object fragment. The cut is
// made at the last complete element boundary of the innermost open
// array (or, with no array open, of the innermost object), so a value
// or key sliced mid-string is dropped rather than closed into a
// corrupted element. All remaining open containers are then closed.
func repairFragment(fragment string) (string, error) {
	if len(fragment) == 0 || fragment[0] != '{' {
		return "", fmt.Errorf("fragment does not start with an object")
	}

	var stack []*frame
	inString := false
	escape := false
	inScalar := false

	endScalar := func(i int) {
		if !inScalar {
			return
		}
		inScalar = false
		if len(stack) == 0 {
			return
		}
		top := stack[len(stack)-1]
		top.lastElemEnd = i
		top.elemStart = -1
		top.afterColon = false
	}

	var strIsValue bool
	for i := 0; i < len(fragment); i++ {
		c := fragment[i]
		if inString {
			switch {
			case escape:
				escape = false
			case c == '\\':
				escape = true
			case c == '"':
				inString = false
				if len(stack) > 0 && strIsValue {
					top := stack[len(stack)-1]
					top.lastElemEnd = i + 1
					top.elemStart = -1
					top.afterColon = false
				}
			}
			continue
		}

		switch c {
		case '"':
			inString = true
			if len(stack) > 0 {
				top := stack[len(stack)-1]
				if top.elemStart == -1 {
					top.elemStart = i
				}
				// Inside an object a string before the colon is a key,
				// not a completable value.
				strIsValue = top.typ == '[' || top.afterColon
			}
		case '{', '[':
			endScalar(i)
			if len(stack) > 0 {
				top := stack[len(stack)-1]
				if top.elemStart == -1 {
					top.elemStart = i
				}
			}
			stack = append(stack, &frame{typ: c, openIdx: i, lastElemEnd: -1, elemStart: -1})
		case '}', ']':
			endScalar(i)
			stack = stack[:len(stack)-1]
			if len(stack) > 0 {
				top := stack[len(stack)-1]
				top.lastElemEnd = i + 1
				top.elemStart = -1
				top.afterColon = false
			}
		case ':':
			if len(stack) > 0 {
				stack[len(stack)-1].afterColon = true
			}
		case ',':
			endScalar(i)
			if len(stack) > 0 {
				top := stack[len(stack)-1]
				top.elemStart = -1
				top.afterColon = false
			}
		case ' ', '\t', '\n', '\r':
			endScalar(i)
		default:
			// Start of (or continuation of) a scalar token.
			if !inScalar {
				inScalar = true
				if len(stack) > 0 {
					top := stack[len(stack)-1]
					if top.elemStart == -1 {
						top.elemStart = i
					}
				}
			}
		}
	}

	if len(stack) == 0 {
		// Balanced after all; nothing to repair.
		return fragment, nil
	}

	// Prefer cutting at the innermost open array so a half-written
	// finding is dropped as a whole.
	cut := len(stack) - 1
	for i := len(stack) - 1; i >= 0; i-- {
		if stack[i].typ == '[' {
			cut = i
			break
		}
	}

	cutFrame := stack[cut]
	pos := cutFrame.lastElemEnd
	if pos < 0 {
		pos = cutFrame.openIdx + 1
	}

	var b strings.Builder
	b.WriteString(fragment[:pos])
	for i := cut; i >= 0; i-- {
		if stack[i].typ == '{' {
			b.WriteByte('}')
		} else {
			b.WriteByte(']')
		}
	}

	repaired := b.String()
	if !json.Valid([]byte(repaired)) {
		return "", fmt.Errorf("fragment not repairable")
	}
	return repaired, nil
}
