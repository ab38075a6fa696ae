// Package command maps transcripts to actions through an ordered rule list.
package command

import (
	"context"
	"fmt"
	log "log/slog"
	"regexp"
	"strings"
)

type Mode int

const (
	// Full matches the whole transcript.
	Full Mode = iota
	// Prefix matches at the start of the transcript, ending on a word boundary.
	Prefix
	// Contains matches whole words anywhere in the transcript.
	Contains
)

func (m Mode) String() string {
	switch m {
	case Full:
		return "full"
	case Prefix:
		return "prefix"
	case Contains:
		return "contains"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

type Category string

const (
	SmallTalk Category = "smalltalk"
	Typing    Category = "typing"
	Apps      Category = "apps"
	Web       Category = "web"
	Files     Category = "files"
	Media     Category = "media"
	Volume    Category = "volume"
	Screen    Category = "screen"
	System    Category = "system"
	Power     Category = "power"
)

// Handler runs a matched rule. args holds the pattern's capture groups.
// The reply is spoken even when err is set; an empty reply on error gets a
// generic failure phrase.
type Handler func(ctx context.Context, args []string) (reply string, err error)

type Rule struct {
	Name     string
	Category Category
	Mode     Mode
	Pattern  string
	Handler  Handler
}

type Result struct {
	Rule     string
	Category Category
	Args     []string
	Reply    string
	Err      error
}

type compiled struct {
	Rule
	re *regexp.Regexp
}

type Dispatcher struct {
	rules []compiled
}

// NewDispatcher compiles rules once. Evaluation order is slice order.
func NewDispatcher(rules []Rule) (*Dispatcher, error) {
	d := &Dispatcher{rules: make([]compiled, 0, len(rules))}
	seen := make(map[string]bool, len(rules))

	for _, r := range rules {
		if r.Name == "" || r.Handler == nil {
			return nil, fmt.Errorf("rule %q: name and handler are required", r.Name)
		}
		if seen[r.Name] {
			return nil, fmt.Errorf("rule %q: duplicate name", r.Name)
		}
		seen[r.Name] = true

		re, err := regexp.Compile(anchor(r.Mode, r.Pattern))
		if err != nil {
			return nil, fmt.Errorf("rule %q: %w", r.Name, err)
		}
		d.rules = append(d.rules, compiled{Rule: r, re: re})
	}
	return d, nil
}

func anchor(m Mode, pattern string) string {
	switch m {
	case Prefix:
		return `^(?:` + pattern + `)(?:\W|$)`
	case Contains:
		return `(?:^|\W)(?:` + pattern + `)(?:\W|$)`
	default:
		return `^(?:` + pattern + `)$`
	}
}

// Match returns the first rule accepting text and its capture groups
// without running the handler.
func (d *Dispatcher) Match(text string) (Rule, []string, bool) {
	text = strings.TrimSpace(text)
	for _, r := range d.rules {
		if m := r.re.FindStringSubmatch(text); m != nil {
			return r.Rule, trimArgs(m[1:]), true
		}
	}
	return Rule{}, nil, false
}

// Dispatch runs the first matching rule. A matched rule always counts as
// handled, including when its target is missing or its effect fails.
func (d *Dispatcher) Dispatch(ctx context.Context, text string) (Result, bool) {
	rule, args, ok := d.Match(text)
	if !ok {
		log.Debug("No rule matched", "text", text)
		return Result{}, false
	}

	log.Info("Rule matched", "rule", rule.Name, "category", rule.Category, "args", args)
	reply, err := rule.Handler(ctx, args)
	if err != nil {
		log.Error("Rule failed", "rule", rule.Name, "err", err)
		if reply == "" {
			reply = "Sorry, that didn't work."
		}
	}

	return Result{Rule: rule.Name, Category: rule.Category, Args: args, Reply: reply, Err: err}, true
}

func (d *Dispatcher) Rules() []Rule {
	out := make([]Rule, len(d.rules))
	for i, r := range d.rules {
		out[i] = r.Rule
	}
	return out
}

func trimArgs(in []string) []string {
	out := make([]string, len(in))
	for i, a := range in {
		out[i] = strings.Trim(strings.TrimSpace(a), `"'`)
	}
	return out
}
