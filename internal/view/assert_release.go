//go:build !debug

package view

// debugAssert is a no-op in release builds; see assert_debug.go.
func debugAssert(cond bool, msg string) {}
