//go:build !debug

// Package debug provides build-tag-gated invariant checks: a no-op in
// production builds, active under the "debug" build tag.
/*
 * Adapted from the aistore cmn/debug package.
 */
package debug

func ON() bool { return false }

func Assert(_ bool, _ ...any)            {}
func Assertf(_ bool, _ string, _ ...any) {}
func AssertNoErr(_ error)                {}
func AssertFunc(_ func() bool, _ ...any) {}
