// Package ir provides the value model shared by every strata package.
//
// This package contains value and record types only. All other internal
// packages import ir; ir imports nothing internal. This keeps the value
// model the foundational layer with no circular dependencies.
//
// Key design constraints:
//   - Value is a sealed interface; backends switch over it exhaustively
//   - Row labels are qualified as "alias.column" (see Label)
//   - Records are sealed exactly once and never mutated afterwards
//   - Record identity is always a UUID
package ir
