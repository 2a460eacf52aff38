// Package report renders fetch outcomes into operator-facing messages.
//
// Rendering is deterministic: outcomes keep their input order and service
// and container lines are sorted by name.
package report

import (
	"fmt"
	"html"
	"sort"
	"strings"

	"github.com/hazz-dev/statusrelay/internal/fetcher"
	"github.com/hazz-dev/statusrelay/internal/registry"
)

const (
	SymbolOK    = "✅"
	SymbolFail  = "❌"
	SymbolError = "⚠️"
)

// Style controls markup. HTML matches the chat's HTML parse mode, Text is plain.
type Style struct {
	bold   func(string) string
	escape func(string) string
}

var (
	HTML = Style{
		bold:   func(s string) string { return "<b>" + s + "</b>" },
		escape: html.EscapeString,
	}
	Text = Style{
		bold:   func(s string) string { return s },
		escape: func(s string) string { return s },
	}
)

// Render builds one message from outcomes, one section per outcome.
func Render(outcomes []fetcher.Outcome, s Style) string {
	var b strings.Builder
	for i, o := range outcomes {
		if i > 0 {
			b.WriteString("\n\n")
		}
		if o.OK() {
			writeReport(&b, o, s)
		} else {
			writeFailure(&b, o, s)
		}
	}
	return b.String()
}

func writeReport(b *strings.Builder, o fetcher.Outcome, s Style) {
	b.WriteString(s.bold(s.escape(o.Endpoint.Name)))
	b.WriteString("\n")
	b.WriteString(s.bold("Services:"))
	b.WriteString("\n")
	writeStates(b, o.Report.Services, s)
	b.WriteString("\n")
	b.WriteString(s.bold("Containers:"))
	b.WriteString("\n")
	writeStates(b, o.Report.Containers, s)
	b.WriteString("\n")
	b.WriteString(s.bold("Diskspace:"))
	b.WriteString("\n")
	b.WriteString(s.escape(o.Report.Diskspace.String()))
}

func writeStates(b *strings.Builder, states map[string]fetcher.State, s Style) {
	names := make([]string, 0, len(states))
	for name := range states {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		symbol := SymbolFail
		if states[name] == fetcher.StateOK {
			symbol = SymbolOK
		}
		fmt.Fprintf(b, "%s: %s\n", s.escape(name), symbol)
	}
}

// writeFailure never includes o.Err; only the category reaches the operator.
func writeFailure(b *strings.Builder, o fetcher.Outcome, s Style) {
	fmt.Fprintf(b, "%s: %s %s", s.bold(s.escape(o.Endpoint.Name)), SymbolError, failureLabel(o))
}

func failureLabel(o fetcher.Outcome) string {
	if o.Kind == fetcher.KindHTTPStatus && o.StatusCode != 0 {
		return fmt.Sprintf("HTTP %d", o.StatusCode)
	}
	return "unavailable"
}

// UnknownTarget is the reply for a target that matches no endpoint.
func UnknownTarget(err *registry.UnknownTargetError, s Style) string {
	return fmt.Sprintf("Invalid target \"%s\". Use %s.", s.escape(err.Target), usage(err.Valid, s))
}

// Greeting is the reply to the start command.
func Greeting(name string, targets []string, s Style) string {
	if name == "" {
		name = "there"
	}
	return fmt.Sprintf("Hello, %s!\n"+
		"I can fetch the latest health-check info from your servers.\n\n"+
		"Use %s.",
		s.bold(s.escape(name)), usage(targets, s))
}

// NoEndpoints is the reply when nothing is configured.
func NoEndpoints() string {
	return "No health endpoints are configured."
}

// usage lists "/health" followed by "/health <target>" for every target.
func usage(targets []string, s Style) string {
	forms := []string{"/health"}
	for _, t := range targets {
		forms = append(forms, "/health "+s.escape(t))
	}
	if len(forms) == 1 {
		return forms[0]
	}
	return strings.Join(forms[:len(forms)-1], ", ") + " or " + forms[len(forms)-1]
}
