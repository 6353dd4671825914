// Package formatting renders command output in the formats selected with --output:
// a colored table for humans, or JSON and YAML for scripts.
package formatting
