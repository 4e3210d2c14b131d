// Package orchestrator drives scan passes over one page lifetime.
//
// An Orchestrator owns the processed set and the result cache of its page.
// Load and message triggers start a pass at once; mutation and scroll
// triggers each have their own trailing-edge debounce timer, so a burst of
// events from one source produces a single pass while the two sources never
// delay each other.
package orchestrator
