package textfsm

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrTemplate 模板语法错误
var ErrTemplate = errors.New("textfsm template error")

// ErrRuleError 规则触发 Error 动作
var ErrRuleError = errors.New("textfsm rule error")

const (
	stateStart = "Start"
	stateEnd   = "End"
	stateEOF   = "EOF"
)

type lineOp int

const (
	opNext lineOp = iota
	opContinue
	opError
)

type recordOp int

const (
	recNone recordOp = iota
	recRecord
	recClear
	recClearAll
)

type valueDef struct {
	name     string
	regex    string
	filldown bool
	fillup   bool
	required bool
	list     bool
	key      bool
}

type rule struct {
	line     string
	re       *regexp.Regexp
	lineOp   lineOp
	recordOp recordOp
	next     string
	message  string
}

// Template 编译后的 TextFSM 模板，只读，可并发复用
type Template struct {
	values []*valueDef
	index  map[string]int
	states map[string][]*rule
	hasEOF bool
}

var (
	ruleSplit   = regexp.MustCompile(`^(.*)\s->(.*)$`)
	varRef      = regexp.MustCompile(`\$\{(\w+)\}|\$(\w+)|\$\$`)
	stateNameRe = regexp.MustCompile(`^\w+$`)
)

// LooksLikeTemplate 粗略判断文本是否为 TextFSM 模板
func LooksLikeTemplate(s string) bool {
	return strings.Contains(s, "Value ") && strings.Contains(s, "\nStart")
}

// Compile 解析模板文本
func Compile(src string) (*Template, error) {
	t := &Template{index: map[string]int{}, states: map[string][]*rule{}}
	lines := strings.Split(strings.ReplaceAll(src, "\r\n", "\n"), "\n")

	i := 0
	// Value 段，以首个空行结束
	for ; i < len(lines); i++ {
		line := strings.TrimRight(lines[i], " \t")
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			if len(t.values) > 0 {
				i++
				break
			}
			continue
		}
		if strings.HasPrefix(trimmed, "#") {
			continue
		}
		if !strings.HasPrefix(line, "Value ") {
			if len(t.values) == 0 {
				return nil, fmt.Errorf("%w: line %d: expected Value definition", ErrTemplate, i+1)
			}
			break
		}
		v, err := parseValue(line)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrTemplate, i+1, err)
		}
		if _, dup := t.index[v.name]; dup {
			return nil, fmt.Errorf("%w: line %d: duplicate value %q", ErrTemplate, i+1, v.name)
		}
		t.index[v.name] = len(t.values)
		t.values = append(t.values, v)
	}
	if len(t.values) == 0 {
		return nil, fmt.Errorf("%w: no Value definitions", ErrTemplate)
	}

	current := ""
	for ; i < len(lines); i++ {
		raw := strings.TrimRight(lines[i], " \t")
		trimmed := strings.TrimSpace(raw)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		if raw[0] != ' ' && raw[0] != '\t' {
			if !stateNameRe.MatchString(trimmed) {
				return nil, fmt.Errorf("%w: line %d: invalid state name %q", ErrTemplate, i+1, trimmed)
			}
			if _, dup := t.states[trimmed]; dup {
				return nil, fmt.Errorf("%w: line %d: duplicate state %q", ErrTemplate, i+1, trimmed)
			}
			current = trimmed
			t.states[current] = []*rule{}
			if current == stateEOF {
				t.hasEOF = true
			}
			continue
		}
		if current == "" {
			return nil, fmt.Errorf("%w: line %d: rule outside of state", ErrTemplate, i+1)
		}
		r, err := t.parseRule(trimmed)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrTemplate, i+1, err)
		}
		t.states[current] = append(t.states[current], r)
	}

	if _, ok := t.states[stateStart]; !ok {
		return nil, fmt.Errorf("%w: missing Start state", ErrTemplate)
	}
	for name, rules := range t.states {
		for _, r := range rules {
			if r.next == "" || r.next == stateEnd || r.next == stateEOF {
				continue
			}
			if _, ok := t.states[r.next]; !ok {
				return nil, fmt.Errorf("%w: state %s: unknown next state %q", ErrTemplate, name, r.next)
			}
		}
	}
	return t, nil
}

// MustCompile 编译失败时 panic，用于内置模板
func MustCompile(src string) *Template {
	t, err := Compile(src)
	if err != nil {
		panic(err)
	}
	return t
}

func parseValue(line string) (*valueDef, error) {
	rest := strings.TrimSpace(strings.TrimPrefix(line, "Value "))
	lp := strings.Index(rest, "(")
	if lp < 0 || !strings.HasSuffix(rest, ")") {
		return nil, errors.New("value regex must be enclosed in parentheses")
	}
	head := strings.Fields(rest[:lp])
	v := &valueDef{regex: strings.TrimSpace(rest[lp:])}
	switch len(head) {
	case 1:
		v.name = head[0]
	case 2:
		v.name = head[1]
		for _, opt := range strings.Split(head[0], ",") {
			switch strings.TrimSpace(opt) {
			case "Filldown":
				v.filldown = true
			case "Fillup":
				v.fillup = true
			case "Required":
				v.required = true
			case "List":
				v.list = true
			case "Key":
				v.key = true
			default:
				return nil, fmt.Errorf("unknown value option %q", opt)
			}
		}
	default:
		return nil, fmt.Errorf("malformed value line %q", line)
	}
	if _, err := regexp.Compile(v.regex); err != nil {
		return nil, fmt.Errorf("value %s: %v", v.name, err)
	}
	return v, nil
}

func (t *Template) parseRule(line string) (*rule, error) {
	if !strings.HasPrefix(line, "^") {
		return nil, fmt.Errorf("rule must start with '^': %q", line)
	}
	r := &rule{line: line}
	pattern := line
	if m := ruleSplit.FindStringSubmatch(line); m != nil {
		pattern = strings.TrimSpace(m[1])
		if err := r.parseAction(strings.TrimSpace(m[2])); err != nil {
			return nil, err
		}
	}

	var missing string
	expanded := varRef.ReplaceAllStringFunc(pattern, func(ref string) string {
		if ref == "$$" {
			return "$"
		}
		name := strings.Trim(ref, "${}")
		idx, ok := t.index[name]
		if !ok {
			missing = name
			return ref
		}
		v := t.values[idx]
		return "(?P<" + name + ">" + strings.TrimPrefix(v.regex, "(")
	})
	if missing != "" {
		return nil, fmt.Errorf("unknown value %q in rule", missing)
	}
	re, err := regexp.Compile(expanded)
	if err != nil {
		return nil, fmt.Errorf("rule %q: %v", line, err)
	}
	r.re = re
	return r, nil
}

func (r *rule) parseAction(action string) error {
	if action == "" {
		return nil
	}
	first, rest, _ := strings.Cut(action, " ")
	rest = strings.TrimSpace(rest)

	lineTok, recTok, dotted := strings.Cut(first, ".")
	lineKnown := true
	switch lineTok {
	case "Next":
		r.lineOp = opNext
	case "Continue":
		r.lineOp = opContinue
	case "Error":
		r.lineOp = opError
	default:
		lineKnown = false
	}
	if !lineKnown {
		if dotted {
			return fmt.Errorf("unknown line action %q", lineTok)
		}
		recTok = lineTok
	}
	if recTok != "" {
		switch recTok {
		case "Record":
			r.recordOp = recRecord
		case "NoRecord":
			r.recordOp = recNone
		case "Clear":
			r.recordOp = recClear
		case "Clearall":
			r.recordOp = recClearAll
		default:
			if lineKnown || rest != "" {
				return fmt.Errorf("unknown record action %q", recTok)
			}
			// 仅有新状态名
			r.next = recTok
			return nil
		}
	}

	if r.lineOp == opError {
		r.message = strings.Trim(rest, `"`)
		return nil
	}
	if rest != "" {
		if strings.Contains(rest, " ") || !stateNameRe.MatchString(rest) {
			return fmt.Errorf("invalid next state %q", rest)
		}
		if r.lineOp == opContinue {
			return errors.New("continue rule cannot change state")
		}
		r.next = rest
	}
	return nil
}

// Header 值名称（小写），顺序与模板定义一致
func (t *Template) Header() []string {
	out := make([]string, len(t.values))
	for i, v := range t.values {
		out[i] = strings.ToLower(v.name)
	}
	return out
}

// Keys 带 Key 选项的值名称（小写）
func (t *Template) Keys() []string {
	var out []string
	for _, v := range t.values {
		if v.key {
			out = append(out, strings.ToLower(v.name))
		}
	}
	return out
}

// slot 单个值的运行时状态
type slot struct {
	set     bool
	value   string
	list    []string
	keep    string
	keepSet bool
}

type run struct {
	t       *Template
	slots   []slot
	records [][]string
}

// ParseText 按状态机逐行处理文本，返回记录行
func (t *Template) ParseText(text string) ([][]string, error) {
	rn := &run{t: t, slots: make([]slot, len(t.values))}
	state := stateStart
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	if n := len(lines); n > 0 && lines[n-1] == "" {
		lines = lines[:n-1]
	}

	for _, line := range lines {
		next, err := rn.step(state, line)
		if err != nil {
			return rn.records, err
		}
		state = next
		if state == stateEnd || state == stateEOF {
			break
		}
	}
	if state != stateEnd && !t.hasEOF {
		rn.appendRecord()
	}
	return rn.records, nil
}

func (rn *run) step(state, line string) (string, error) {
	for _, r := range rn.t.states[state] {
		m := r.re.FindStringSubmatchIndex(line)
		if m == nil {
			continue
		}
		for gi, name := range r.re.SubexpNames() {
			idx, ok := rn.t.index[name]
			if !ok || gi == 0 {
				continue
			}
			if m[2*gi] < 0 {
				rn.assign(idx, "", false)
				continue
			}
			rn.assign(idx, line[m[2*gi]:m[2*gi+1]], true)
		}

		if r.lineOp == opError {
			msg := r.message
			if msg == "" {
				msg = r.line
			}
			return state, fmt.Errorf("%w: %s: %q", ErrRuleError, msg, line)
		}
		switch r.recordOp {
		case recRecord:
			rn.appendRecord()
		case recClear:
			rn.clear()
		case recClearAll:
			rn.clearAll()
		}
		if r.lineOp == opContinue {
			continue
		}
		if r.next != "" {
			return r.next, nil
		}
		return state, nil
	}
	return state, nil
}

func (rn *run) assign(idx int, val string, matched bool) {
	v := rn.t.values[idx]
	s := &rn.slots[idx]
	if v.list {
		if matched {
			s.list = append(s.list, val)
			s.set = true
		}
	} else {
		s.value = val
		s.set = matched
	}
	if v.filldown {
		s.keep, s.keepSet = s.value, s.set
	}
	if v.fillup && matched && val != "" {
		for i := len(rn.records) - 1; i >= 0; i-- {
			if rn.records[i][idx] != "" {
				break
			}
			rn.records[i][idx] = val
		}
	}
}

func (rn *run) appendRecord() {
	row := make([]string, len(rn.slots))
	hasValue := false
	for i, v := range rn.t.values {
		s := rn.slots[i]
		if v.list {
			row[i] = strings.Join(s.list, ", ")
		} else {
			row[i] = s.value
		}
		if v.required && row[i] == "" {
			rn.clear()
			return
		}
		if s.set {
			hasValue = true
		}
	}
	if hasValue {
		rn.records = append(rn.records, row)
	}
	rn.clear()
}

func (rn *run) clear() {
	for i, v := range rn.t.values {
		s := &rn.slots[i]
		if v.filldown {
			if v.list {
				continue
			}
			s.value, s.set = s.keep, s.keepSet
			continue
		}
		s.value, s.set, s.list = "", false, nil
	}
}

func (rn *run) clearAll() {
	for i := range rn.slots {
		rn.slots[i] = slot{}
	}
}

// Parse 编译模板并解析文本，返回小写表头与记录行
func Parse(src, text string) ([]string, [][]string, error) {
	t, err := Compile(src)
	if err != nil {
		return nil, nil, err
	}
	rows, err := t.ParseText(text)
	if err != nil {
		return t.Header(), rows, err
	}
	return t.Header(), rows, nil
}
