package compiler

import "fmt"

// Context carries the monotonic counters a single compilation needs for
// fresh temporary names and labels. Bundling them in a value threaded
// through the pipeline, rather than process-wide globals, makes two Build
// calls in the same process produce identical output and lets tests run
// in parallel without interference.
type Context struct {
	nextVar   int
	nextLabel int
}

// NewContext returns a zeroed Context ready for a fresh compilation.
func NewContext() *Context {
	return &Context{}
}

// FreshVar returns a unique temporary/renamed-identifier name derived from
// base, e.g. "x" -> "x.3".
func (c *Context) FreshVar(base string) string {
	c.nextVar++
	return fmt.Sprintf("%s.%d", base, c.nextVar)
}

// FreshLabel returns a unique assembly label derived from tag, e.g.
// "if_end" -> ".Lif_end.7".
func (c *Context) FreshLabel(tag string) string {
	c.nextLabel++
	return fmt.Sprintf(".L%s.%d", tag, c.nextLabel)
}
