// Package eval holds the evaluation context consumed by kernel factories.
//
// The context selects how strictly numeric conversions are checked, how
// ambiguous dates are parsed, and where factories send debug traces.
package eval

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/pkg/errors"
)

// ErrorMode selects the value-time checks an assignment kernel performs.
type ErrorMode uint8

const (
	// None performs no checks; conversions truncate or wrap.
	None ErrorMode = iota
	// Overflow fails when the value is out of range of the destination.
	Overflow
	// Fractional also fails when a fractional part would be dropped.
	Fractional
	// Inexact fails on any loss of precision.
	Inexact
	// Default defers to the Context's ErrorMode.
	Default
)

// ErrorModeCount is the number of concrete (non-default) error modes.
const ErrorModeCount = int(Default)

func (m ErrorMode) String() string {
	switch m {
	case None:
		return "nocheck"
	case Overflow:
		return "overflow"
	case Fractional:
		return "fractional"
	case Inexact:
		return "inexact"
	case Default:
		return "default"
	}
	return fmt.Sprintf("ErrorMode(%d)", uint8(m))
}

// ParseErrorMode maps the names printed by String back to a mode.
func ParseErrorMode(s string) (ErrorMode, error) {
	switch s {
	case "nocheck", "none":
		return None, nil
	case "overflow":
		return Overflow, nil
	case "fractional":
		return Fractional, nil
	case "inexact":
		return Inexact, nil
	case "default", "":
		return Default, nil
	}
	return Default, errors.Errorf("unknown error mode %q", s)
}

// DateParseOrder resolves ambiguous numeric dates such as 01/02/2003.
type DateParseOrder uint8

const (
	DateOrderNone DateParseOrder = iota
	DateOrderYMD
	DateOrderMDY
	DateOrderDMY
)

var dateOrderNames = [...]string{DateOrderNone: "none", DateOrderYMD: "ymd", DateOrderMDY: "mdy", DateOrderDMY: "dmy"}

func (o DateParseOrder) String() string {
	if int(o) < len(dateOrderNames) {
		return dateOrderNames[o]
	}
	return fmt.Sprintf("DateParseOrder(%d)", uint8(o))
}

// ParseDateOrder maps a field order name such as "mdy" to its value.
func ParseDateOrder(s string) (DateParseOrder, error) {
	if s == "" {
		return DateOrderNone, nil
	}
	for i, n := range dateOrderNames {
		if n == s {
			return DateParseOrder(i), nil
		}
	}
	return DateOrderNone, errors.Errorf("unknown date order %q", s)
}

// Context configures kernel construction.
type Context struct {
	// ErrorMode replaces Default when a factory is asked for the default mode.
	ErrorMode ErrorMode
	// DateParseOrder applies to dates with two-digit fields and no ISO layout.
	DateParseOrder DateParseOrder
	// CenturyWindow maps two-digit years: values below it land in 20xx.
	CenturyWindow int
	// ChainBatch is the element count staged through buffered-chain scratch buffers.
	ChainBatch int
	// Logger receives debug traces from the factories.
	Logger *slog.Logger
}

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

// DefaultContext returns the context used when callers pass nil.
func DefaultContext() *Context {
	return &Context{
		ErrorMode:      Fractional,
		DateParseOrder: DateOrderNone,
		CenturyWindow:  70,
		ChainBatch:     128,
		Logger:         discard,
	}
}

var defaultContext = DefaultContext()

// OrDefault returns c, or the shared default context when c is nil.
func OrDefault(c *Context) *Context {
	if c == nil {
		return defaultContext
	}
	return c
}

// Resolve turns Default into the context's configured mode.
func (c *Context) Resolve(m ErrorMode) ErrorMode {
	if m != Default {
		return m
	}
	if c == nil || c.ErrorMode == Default {
		return Fractional
	}
	return c.ErrorMode
}

// Log returns the context's logger, never nil.
func (c *Context) Log() *slog.Logger {
	if c == nil || c.Logger == nil {
		return discard
	}
	return c.Logger
}

// Batch returns the buffered-chain batch size, at least 1.
func (c *Context) Batch() int {
	if c == nil || c.ChainBatch <= 0 {
		return 128
	}
	return c.ChainBatch
}

// WithErrorMode returns a copy of c using mode m.
func (c *Context) WithErrorMode(m ErrorMode) *Context {
	cp := *OrDefault(c)
	cp.ErrorMode = m
	return &cp
}
