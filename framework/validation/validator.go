package validation

import (
	"fmt"
	"net/url"
	"regexp"
	"slices"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// ── Types ────────────────────────────────────────────────────────────────────

// Errors collects failed options per key.
type Errors struct {
	Bag map[string][]string `json:"errors"`
}

func (e *Errors) add(field, msg string) {
	if e.Bag == nil {
		e.Bag = make(map[string][]string)
	}
	e.Bag[field] = append(e.Bag[field], msg)
}

// Has returns true if there are any errors.
func (e *Errors) Has() bool { return len(e.Bag) > 0 }

// First returns the first error for a field.
func (e *Errors) First(field string) string {
	if msgs, ok := e.Bag[field]; ok && len(msgs) > 0 {
		return msgs[0]
	}
	return ""
}

// Error joins every message, ordered by key.
func (e *Errors) Error() string {
	keys := make([]string, 0, len(e.Bag))
	for k := range e.Bag {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var msgs []string
	for _, k := range keys {
		msgs = append(msgs, e.Bag[k]...)
	}
	return strings.Join(msgs, " ")
}

// ── Validator ────────────────────────────────────────────────────────────────

// Rules maps an option key to a pipe-separated rule string.
//
//	Rules{"addr": "required", "db": "integer|gte:0", "mode": "in:fifo,lifo"}
type Rules map[string]string

// Validator checks a flat map of option values.
type Validator struct {
	data   map[string]string
	rules  Rules
	errors *Errors
	done   bool
}

// Make creates a Validator.
func Make(data map[string]string, rules Rules) *Validator {
	return &Validator{
		data:   data,
		rules:  rules,
		errors: &Errors{},
	}
}

// Validate runs rules against data and returns *Errors when any fail.
func Validate(data map[string]string, rules Rules) error {
	v := Make(data, rules)
	if v.Fails() {
		return v.Errors()
	}
	return nil
}

// Fails runs validation and returns true if any rule fails.
func (v *Validator) Fails() bool {
	if !v.done {
		v.validate()
		v.done = true
	}
	return v.errors.Has()
}

// Passes runs validation and returns true if all rules pass.
func (v *Validator) Passes() bool { return !v.Fails() }

// Errors returns the error bag.
func (v *Validator) Errors() *Errors { return v.errors }

// ── Core validation loop ─────────────────────────────────────────────────────

func (v *Validator) validate() {
	for field, ruleStr := range v.rules {
		value, present := v.data[field]
		rules := strings.Split(ruleStr, "|")

		numeric := slices.Contains(rules, "integer") || slices.Contains(rules, "numeric")
		if !present && !slices.Contains(rules, "required") {
			// Absent optional options fall back to provider defaults.
			continue
		}

		for _, rule := range rules {
			rule = strings.TrimSpace(rule)
			if rule == "" {
				continue
			}
			name, param, _ := strings.Cut(rule, ":")
			if !v.applyRule(field, value, name, param, numeric) {
				break
			}
		}
	}
}

// applyRule returns true if the rule passes.
func (v *Validator) applyRule(field, value, rule, param string, numeric bool) bool {
	switch rule {
	case "required":
		if strings.TrimSpace(value) == "" {
			v.errors.add(field, fmt.Sprintf("The %s option is required.", field))
			return false
		}

	case "nullable":
		if value == "" {
			return false
		}

	case "integer":
		if _, err := strconv.Atoi(value); err != nil {
			v.errors.add(field, fmt.Sprintf("The %s option must be an integer.", field))
			return false
		}

	case "numeric":
		if _, err := strconv.ParseFloat(value, 64); err != nil {
			v.errors.add(field, fmt.Sprintf("The %s option must be a number.", field))
			return false
		}

	case "boolean":
		switch strings.ToLower(value) {
		case "true", "false", "1", "0", "yes", "no", "on", "off":
		default:
			v.errors.add(field, fmt.Sprintf("The %s option must be true or false.", field))
			return false
		}

	case "duration":
		// Bare numbers are seconds.
		if _, err := time.ParseDuration(value); err != nil && !isNumber(value) {
			v.errors.add(field, fmt.Sprintf("The %s option must be a duration such as 5s.", field))
			return false
		}

	case "url":
		u, err := url.Parse(value)
		if err != nil || u.Scheme == "" || u.Host == "" {
			v.errors.add(field, fmt.Sprintf("The %s option must be a valid URL.", field))
			return false
		}

	case "min":
		if numeric {
			return v.compare(field, value, param, ">=", "at least")
		}
		n, _ := strconv.Atoi(param)
		if utf8.RuneCountInString(value) < n {
			v.errors.add(field, fmt.Sprintf("The %s option must be at least %d characters.", field, n))
			return false
		}

	case "max":
		if numeric {
			return v.compare(field, value, param, "<=", "at most")
		}
		n, _ := strconv.Atoi(param)
		if utf8.RuneCountInString(value) > n {
			v.errors.add(field, fmt.Sprintf("The %s option may not be longer than %d characters.", field, n))
			return false
		}

	case "gt":
		return v.compare(field, value, param, ">", "greater than")
	case "gte":
		return v.compare(field, value, param, ">=", "greater than or equal to")
	case "lt":
		return v.compare(field, value, param, "<", "less than")
	case "lte":
		return v.compare(field, value, param, "<=", "less than or equal to")

	case "in":
		if !inList(param, value) {
			v.errors.add(field, fmt.Sprintf("The selected %s is invalid.", field))
			return false
		}

	case "not_in":
		if inList(param, value) {
			v.errors.add(field, fmt.Sprintf("The selected %s is invalid.", field))
			return false
		}

	case "alpha_dash":
		if !alphaDash.MatchString(value) {
			v.errors.add(field, fmt.Sprintf("The %s option may only contain letters, numbers, dashes, dots and underscores.", field))
			return false
		}

	case "regex":
		re, err := regexp.Compile(param)
		if err != nil || !re.MatchString(value) {
			v.errors.add(field, fmt.Sprintf("The %s option format is invalid.", field))
			return false
		}
	}

	return true
}

func isNumber(s string) bool {
	_, err := strconv.ParseFloat(s, 64)
	return err == nil
}

var alphaDash = regexp.MustCompile(`^[a-zA-Z0-9_.-]+$`)

func (v *Validator) compare(field, value, param, op, words string) bool {
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		v.errors.add(field, fmt.Sprintf("The %s option must be a number.", field))
		return false
	}
	limit, _ := strconv.ParseFloat(param, 64)

	var ok bool
	switch op {
	case ">":
		ok = f > limit
	case ">=":
		ok = f >= limit
	case "<":
		ok = f < limit
	case "<=":
		ok = f <= limit
	}
	if !ok {
		v.errors.add(field, fmt.Sprintf("The %s option must be %s %s.", field, words, param))
	}
	return ok
}

func inList(list, value string) bool {
	for _, item := range strings.Split(list, ",") {
		if strings.TrimSpace(item) == value {
			return true
		}
	}
	return false
}
