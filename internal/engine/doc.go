// Package engine expands building blocks: macro elements in a declarative
// tree that are replaced, in place, by the fragment their definition
// renders.
//
// One expansion runs as a state machine:
//
//	init → properties-resolved → contexts-resolved → children-classified
//	     → expanded → spliced → done
//
// and drops to failed from any step. A failed expansion never propagates an
// error to the tree walk; the macro's position receives a diagnostic
// fragment instead (see package diag).
//
// Usage:
//
//	eng := engine.New(engine.WithLogger(log), engine.WithMetrics(metrics))
//	if err := eng.Register(def); err != nil {
//		return err
//	}
//	v := memory.New(settings, memory.WithHandlers(eng))
//	err := v.VisitNode(ctx, doc)
//
// Error codes:
//   - BB100 missing required property
//   - BB200 metadata context could not be resolved (logged, never fatal)
//   - BB300 generated fragment malformed after a diagnostic re-render
//   - BB900 anything else raised by macro code, panics included
package engine
