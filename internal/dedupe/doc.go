// Package dedupe keeps a bounded, time-limited window of frame ids so an
// adapter can drop frames the gateway delivers twice.
package dedupe
