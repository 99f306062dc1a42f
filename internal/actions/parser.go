// internal/actions/parser.go
package actions

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Convention identifies which of the two output styles a response used.
type Convention string

const (
	// ConventionTab is "<THINK>..</THINK> explain:..\taction:CLICK\tpoint:x,y".
	ConventionTab Convention = "tab"
	// ConventionFunction is `do(action="Tap", element=[x,y])` or `finish(message="..")`.
	ConventionFunction Convention = "function"
)

// Result is a successfully parsed model response.
type Result struct {
	Action     Action
	Rationale  string
	Convention Convention
	// Then is a completion declared after the main call in the same response,
	// as in `do(action="Tap", ...) finish(message="done")`.
	Then *Action
}

// ParseError reports model output that could not be turned into a valid action.
type ParseError struct {
	Reason string
	Raw    string
	Code   ErrorCode
}

func (e *ParseError) Error() string {
	return "cannot parse action: " + e.Reason
}

func parseErr(code ErrorCode, format string, args ...interface{}) *ParseError {
	return &ParseError{Reason: fmt.Sprintf(format, args...), Code: code}
}

const (
	doMarker     = "do(action="
	finishMarker = "finish(message="
)

var (
	// thinkTagPattern matches <think>, <TINK>, < /THINK > and friends.
	thinkTagPattern  = regexp.MustCompile(`(?i)<\s*(/?)\s*th?ink\s*>`)
	answerTagPattern = regexp.MustCompile(`(?i)<\s*/?\s*answer\s*>`)
	// fieldSeparator splits tab-convention fields: tabs, newlines, or runs of
	// two or more spaces.
	fieldSeparator = regexp.MustCompile(`\t+|\n+|\s{2,}`)
)

// Parse turns one model response into a validated action. It never touches
// the device and has no side effects. Any failure is a *ParseError.
func Parse(raw string) (Result, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return Result{}, withRaw(parseErr(ErrCodeInvalidParameters, "empty response"), raw)
	}

	var (
		res Result
		err error
	)
	if start := firstCallIndex(text); start >= 0 {
		res, err = parseFunctionConvention(text, start)
	} else {
		res, err = parseTabConvention(text)
	}
	if err != nil {
		return Result{}, withRaw(err, raw)
	}
	return res, nil
}

func withRaw(err error, raw string) error {
	var pe *ParseError
	if errors.As(err, &pe) {
		pe.Raw = raw
		return pe
	}
	return &ParseError{Reason: err.Error(), Raw: raw, Code: ErrCodeInvalidParameters}
}

func firstCallIndex(text string) int {
	i, j := strings.Index(text, doMarker), strings.Index(text, finishMarker)
	switch {
	case i < 0:
		return j
	case j < 0 || i < j:
		return i
	default:
		return j
	}
}

// normalizeThinkTags rewrites every think-tag variant to <THINK> / </THINK>.
func normalizeThinkTags(s string) string {
	return thinkTagPattern.ReplaceAllString(s, "<${1}THINK>")
}

// stripThink removes think and answer wrappers from free-form rationale.
func stripThink(s string) string {
	s = normalizeThinkTags(s)
	s = strings.NewReplacer("<THINK>", "", "</THINK>", "").Replace(s)
	s = answerTagPattern.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

// -- Function-call convention --

func parseFunctionConvention(text string, start int) (Result, error) {
	end, ok := balancedCallEnd(text, start)
	if !ok {
		return Result{}, parseErr(ErrCodeInvalidParameters, "unterminated call %q", excerpt(text[start:]))
	}
	action, err := parseCall(text[start:end])
	if err != nil {
		return Result{}, err
	}

	res := Result{Rationale: stripThink(text[:start]), Convention: ConventionFunction}
	action.Thinking = res.Rationale
	res.Action = action

	if action.Kind != KindComplete {
		rest := text[end:]
		if i := strings.Index(rest, finishMarker); i >= 0 {
			if tailEnd, ok := balancedCallEnd(rest, i); ok {
				// A malformed trailing finish does not invalidate the main call.
				if then, err := parseCall(rest[i:tailEnd]); err == nil {
					res.Then = &then
				}
			}
		}
	}
	return res, nil
}

// balancedCallEnd returns the index just past the parenthesis closing the
// call that starts at start. Parentheses inside quoted strings are ignored.
func balancedCallEnd(text string, start int) (int, bool) {
	depth := 0
	var quote byte
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if quote != 0 {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == quote:
				quote = 0
			}
			continue
		}
		switch c {
		case '"', '\'':
			quote = c
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i + 1, true
			}
		}
	}
	return 0, false
}

type callArg struct {
	text   string
	list   []int
	isList bool
}

func parseCall(call string) (Action, error) {
	name, args, err := lexCall(call)
	if err != nil {
		return Action{}, err
	}

	var a Action
	switch name {
	case "finish":
		a.Kind = KindComplete
	case "do":
		av, ok := args["action"]
		if !ok || av.isList {
			return Action{}, parseErr(ErrCodeInvalidParameters, "do() call has no action argument")
		}
		if a.Kind, ok = LookupKind(av.text); !ok {
			return Action{}, parseErr(ErrCodeUnknownAction, "unknown action %q", av.text)
		}
	default:
		return Action{}, parseErr(ErrCodeUnknownAction, "unknown call %q", name)
	}

	str := func(key string) (string, bool, error) {
		v, ok := args[key]
		if !ok {
			return "", false, nil
		}
		if v.isList {
			return "", false, parseErr(ErrCodeInvalidParameters, "argument %s must be a string", key)
		}
		return v.text, true, nil
	}
	point := func(key string) (*Point, error) {
		v, ok := args[key]
		if !ok {
			return nil, nil
		}
		if !v.isList || len(v.list) != 2 {
			return nil, parseErr(ErrCodeInvalidParameters, "argument %s must be an [x, y] pair", key)
		}
		return &Point{X: v.list[0], Y: v.list[1]}, nil
	}

	p := &a.Params
	if p.Point, err = point("element"); err != nil {
		return Action{}, err
	}
	if p.Point1, err = point("start"); err != nil {
		return Action{}, err
	}
	if p.Point2, err = point("end"); err != nil {
		return Action{}, err
	}

	hasValue := false
	for _, key := range []string{"value", "text", "app"} {
		s, ok, err := str(key)
		if err != nil {
			return Action{}, err
		}
		if ok {
			p.Value, hasValue = s, true
			break
		}
	}

	fields := []struct {
		key string
		set func(string) error
	}{
		{"direction", func(s string) error {
			d, ok := ParseDirection(s)
			if !ok {
				return parseErr(ErrCodeInvalidParameters, "unknown direction %q", s)
			}
			p.Direction = d
			return nil
		}},
		{"duration", func(s string) error {
			// Wait(duration="2 seconds") is the usual spelling of a WAIT value.
			if a.Kind == KindWait && !hasValue {
				p.Value = s
			} else {
				p.Duration = s
			}
			return nil
		}},
		{"message", func(s string) error {
			_, hasReturn := args["return"]
			switch {
			case a.Kind == KindComplete && !hasReturn:
				p.Return = s
			case a.Kind == KindAskUser && !hasValue:
				p.Value = s
			default:
				p.Message = s
			}
			return nil
		}},
		{"return", func(s string) error { p.Return = s; return nil }},
		{"reason", func(s string) error { p.Reason = s; return nil }},
		{"status", func(s string) error { p.Status = s; return nil }},
		{"explain", func(s string) error { a.Explanation = s; return nil }},
		{"summary", func(s string) error { a.Summary = s; return nil }},
	}
	for _, f := range fields {
		s, ok, err := str(f.key)
		if err != nil {
			return Action{}, err
		}
		if !ok {
			continue
		}
		if err := f.set(s); err != nil {
			return Action{}, err
		}
	}

	if err := a.Validate(); err != nil {
		return Action{}, parseErr(ErrCodeInvalidParameters, "%v", err)
	}
	return a, nil
}

// lexCall splits `name(key=value, ...)` into its name and keyword arguments.
// Values are quoted strings, integer lists, or bare literals.
func lexCall(call string) (string, map[string]callArg, error) {
	open := strings.IndexByte(call, '(')
	if open < 0 {
		return "", nil, parseErr(ErrCodeInvalidParameters, "not a call: %q", excerpt(call))
	}
	l := &callLexer{s: call, pos: open + 1}
	name := strings.TrimSpace(call[:open])
	args := make(map[string]callArg)

	for {
		l.skipSpace()
		if l.eof() {
			return "", nil, parseErr(ErrCodeInvalidParameters, "unterminated call %q", excerpt(call))
		}
		if l.peek() == ')' {
			return name, args, nil
		}

		key := l.ident()
		if key == "" {
			return "", nil, parseErr(ErrCodeInvalidParameters, "expected argument name at offset %d", l.pos)
		}
		l.skipSpace()
		if l.peek() != '=' {
			return "", nil, parseErr(ErrCodeInvalidParameters, "expected '=' after %s", key)
		}
		l.pos++
		l.skipSpace()

		var v callArg
		var err error
		switch l.peek() {
		case '"', '\'':
			v.text, err = l.stringLit()
		case '[':
			v.list, err = l.intList()
			v.isList = true
		default:
			v.text = l.bare()
			if v.text == "" {
				err = parseErr(ErrCodeInvalidParameters, "missing value for %s", key)
			}
		}
		if err != nil {
			return "", nil, err
		}
		args[key] = v

		l.skipSpace()
		switch l.peek() {
		case ',':
			l.pos++
		case ')':
			return name, args, nil
		default:
			return "", nil, parseErr(ErrCodeInvalidParameters, "expected ',' or ')' after %s", key)
		}
	}
}

type callLexer struct {
	s   string
	pos int
}

func (l *callLexer) eof() bool { return l.pos >= len(l.s) }

func (l *callLexer) peek() byte {
	if l.eof() {
		return 0
	}
	return l.s[l.pos]
}

func (l *callLexer) skipSpace() {
	for !l.eof() && (l.s[l.pos] == ' ' || l.s[l.pos] == '\t' || l.s[l.pos] == '\n' || l.s[l.pos] == '\r') {
		l.pos++
	}
}

func (l *callLexer) ident() string {
	start := l.pos
	for !l.eof() {
		c := l.s[l.pos]
		if c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (l.pos > start && c >= '0' && c <= '9') {
			l.pos++
			continue
		}
		break
	}
	return l.s[start:l.pos]
}

func (l *callLexer) stringLit() (string, error) {
	quote := l.s[l.pos]
	l.pos++
	var b strings.Builder
	for !l.eof() {
		c := l.s[l.pos]
		l.pos++
		switch {
		case c == quote:
			return b.String(), nil
		case c == '\\' && !l.eof():
			next := l.s[l.pos]
			switch next {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case 'r':
				b.WriteByte('\r')
			case '\\', '"', '\'':
				b.WriteByte(next)
			default:
				// Unknown escapes are kept verbatim.
				b.WriteByte('\\')
				continue
			}
			l.pos++
		default:
			b.WriteByte(c)
		}
	}
	return "", parseErr(ErrCodeInvalidParameters, "unterminated string literal")
}

func (l *callLexer) intList() ([]int, error) {
	l.pos++ // '['
	var out []int
	for {
		l.skipSpace()
		if l.eof() {
			return nil, parseErr(ErrCodeInvalidParameters, "unterminated list")
		}
		if l.peek() == ']' {
			l.pos++
			return out, nil
		}
		start := l.pos
		for !l.eof() && l.peek() != ',' && l.peek() != ']' && l.peek() != ' ' {
			l.pos++
		}
		tok := l.s[start:l.pos]
		n, err := strconv.Atoi(tok)
		if err != nil {
			return nil, parseErr(ErrCodeInvalidParameters, "malformed coordinate %q", tok)
		}
		out = append(out, n)
		l.skipSpace()
		if l.peek() == ',' {
			l.pos++
		}
	}
}

func (l *callLexer) bare() string {
	start := l.pos
	for !l.eof() {
		c := l.peek()
		if c == ',' || c == ')' || c == ' ' || c == '\t' || c == '\n' {
			break
		}
		l.pos++
	}
	return l.s[start:l.pos]
}

// -- Tab/kv convention --

func parseTabConvention(text string) (Result, error) {
	text = normalizeThinkTags(text)

	var thinking string
	kvPart := text
	if open := strings.Index(text, "<THINK>"); open >= 0 {
		if body, rest, ok := strings.Cut(text[open+len("<THINK>"):], "</THINK>"); ok {
			thinking = strings.TrimSpace(body)
			kvPart = rest
		}
	}

	var (
		a         Action
		sawAction bool
	)
	a.Thinking = thinking
	p := &a.Params

	for _, field := range fieldSeparator.Split(kvPart, -1) {
		key, value, ok := strings.Cut(strings.TrimSpace(field), ":")
		if !ok {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)

		var err error
		switch key {
		case "action":
			k, ok := LookupKind(value)
			if !ok {
				return Result{}, parseErr(ErrCodeUnknownAction, "unknown action %q", value)
			}
			a.Kind, sawAction = k, true
		case "explain":
			a.Explanation = value
		case "summary":
			a.Summary = value
		case "point":
			p.Point, err = parsePointText(key, value)
		case "point1":
			p.Point1, err = parsePointText(key, value)
		case "point2":
			p.Point2, err = parsePointText(key, value)
		case "direction":
			d, ok := ParseDirection(value)
			if !ok {
				err = parseErr(ErrCodeInvalidParameters, "unknown direction %q", value)
			}
			p.Direction = d
		case "value":
			p.Value = value
		case "duration":
			p.Duration = value
		case "message":
			p.Message = value
		case "reason":
			p.Reason = value
		case "status":
			p.Status = value
		case "return":
			p.Return = value
		}
		if err != nil {
			return Result{}, err
		}
	}

	if !sawAction {
		return Result{}, parseErr(ErrCodeInvalidParameters, "no action field in %q", excerpt(kvPart))
	}
	if err := a.Validate(); err != nil {
		return Result{}, parseErr(ErrCodeInvalidParameters, "%v", err)
	}
	return Result{Action: a, Rationale: thinking, Convention: ConventionTab}, nil
}

// parsePointText accepts "x,y", "x y", "[x, y]" and "(x, y)".
func parsePointText(key, value string) (*Point, error) {
	trimmed := strings.Trim(strings.TrimSpace(value), "[]()")
	coords := strings.Fields(strings.ReplaceAll(trimmed, ",", " "))
	if len(coords) != 2 {
		return nil, parseErr(ErrCodeInvalidParameters, "%s %q is not an x,y pair", key, value)
	}
	x, errX := strconv.Atoi(coords[0])
	y, errY := strconv.Atoi(coords[1])
	if errX != nil || errY != nil {
		return nil, parseErr(ErrCodeInvalidParameters, "%s %q has non-integer coordinates", key, value)
	}
	return &Point{X: x, Y: y}, nil
}

func excerpt(s string) string {
	const max = 60
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
