// Package vars implements the variable graph: named scalars that are either
// simple (a value, an optional domain, a free/fixed flag) or compound (an
// expression over other variables).
//
// Dependencies live in a dag.Graph. An edge carries a dag.Tag telling
// whether the dependent shares the variable (Alias, plain references) or
// owns a private copy (Copy, auto-created parameters). Function instances
// register themselves as owners through Attach, so a variable still used by a
// function cannot be deleted.
//
// Values are recomputed lazily: assigning a simple variable only marks its
// dependents stale, and a compound value (with its gradient over the simple
// variables it depends on) is recomputed on the next read. The cache is
// guarded by a mutex and recomputation is idempotent.
//
// Errors (see package errs):
//
//   - ErrDomain      assignment outside a domain; domain on a compound.
//   - ErrReference   delete while depended upon; definitions closing a cycle.
//   - ErrEvaluation  unknown names; assigning a compound.
package vars
