// Package termfmt styles values for the terminal via fmt verbs:
//
//	fmt.Printf("%s errors\n", termfmt.Bold().Fg(termfmt.Red).V(n))
//
// Styling can be switched off globally, e.g. when output is not a terminal.
package termfmt

import (
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"unicode"
)

var disabled atomic.Bool

// SetEnabled turns escape sequences on or off for every Style.
func SetEnabled(on bool) { disabled.Store(!on) }

type Escape interface {
	Wrap(out string) string
}

type Style struct {
	escapes []Escape
	v       any
}

var _ fmt.Formatter = Style{}

func Bold() Style               { return (Style{}).Bold() }
func Fg(name C16Name) Style     { return (Style{}).Fg(name) }
func With(escs ...Escape) Style { return (Style{}).With(escs...) }

func (c Style) With(escs ...Escape) Style {
	c.escapes = append(append([]Escape(nil), c.escapes...), escs...)
	return c
}

func (c Style) Bold() Style           { return c.With(BoldEscape{}) }
func (c Style) Fg(name C16Name) Style { return c.With(C16Color{Name: name}) }

func (c Style) V(v any) Style {
	c.v = v
	return c
}

func (c Style) Format(f fmt.State, verb rune) {
	v := printable(fmt.Sprintf(valueFormat(f, verb), c.v))
	if !disabled.Load() {
		for i := len(c.escapes) - 1; i >= 0; i-- {
			v = c.escapes[i].Wrap(v)
		}
	}
	f.Write([]byte(v))
}

// valueFormat rebuilds the directive Format was called with, so "%-8s" keeps its padding.
func valueFormat(f fmt.State, verb rune) string {
	var sb strings.Builder
	sb.WriteByte('%')
	for _, flag := range " +-0#" {
		if f.Flag(int(flag)) {
			sb.WriteRune(flag)
		}
	}
	if width, ok := f.Width(); ok {
		sb.WriteString(strconv.Itoa(width))
	}
	if prec, ok := f.Precision(); ok {
		sb.WriteString("." + strconv.Itoa(prec))
	}
	sb.WriteRune(verb)
	return sb.String()
}

// printable drops control characters, so remote names can't smuggle escapes into the terminal.
func printable(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsPrint(r) || r == '\n' || r == '\t' {
			return r
		}
		return -1
	}, s)
}

type BoldEscape struct{}

func (BoldEscape) Wrap(v string) string { return "\x1b[1m" + v + "\x1b[0m" }

type C16Name uint8

const (
	DefaultColor C16Name = iota
	Black
	Red
	Green
	Yellow
	Blue
	Magenta
	Cyan
	LightGrey
)

type C16Color struct {
	Name C16Name
}

func (c C16Color) Wrap(out string) string {
	cv := 39
	if c.Name != DefaultColor {
		// the enum starts at one, the fg escapes at 30.
		cv = 30 + int(c.Name) - 1
	}
	return fmt.Sprintf("\x1b[%dm%s\x1b[0m", cv, out)
}
