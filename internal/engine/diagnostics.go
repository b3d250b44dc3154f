package engine

import (
	"go.uber.org/zap"

	"github.com/GriffinCanCode/blockforge/internal/diag"
	"github.com/GriffinCanCode/blockforge/internal/logging"
	"github.com/GriffinCanCode/blockforge/internal/xmltree"
)

// fail replaces the expansion's output with a diagnostic fragment. It
// never fails itself.
func (x *expansion) fail(err *ExpansionError) {
	x.transition(StateFailed)
	x.e.metrics.RecordFailure(x.def.Name, string(err.Code))
	x.log.Error("Building block expansion failed",
		zap.String(logging.FieldCode, string(err.Code)),
		zap.Error(err))

	defer func() {
		if r := recover(); r != nil {
			x.log.Error("Failed to project diagnostic fragment", zap.Any("panic", r))
		}
	}()

	initial := x.initial
	if initial == nil {
		initial = x.props
	}
	resolved := x.processed
	if resolved == nil {
		resolved = x.props
	}

	report := &diag.Report{
		Macro:   x.def.Name,
		Code:    string(err.Code),
		Message: err.Message,
		Source:  x.source,
		Trace:   diag.NewTrace(initial, resolved, x.missing),
		Stack:   err.Stack(),
	}
	x.place(report.Node())
}

// place puts el where the expansion output belongs: in place of the
// original node while it is attached, otherwise in place of whatever was
// spliced between the cursors
func (x *expansion) place(el *xmltree.Node) {
	if x.node.Parent != nil {
		if err := xmltree.ReplaceWith(x.node, el); err == nil {
			return
		}
	}
	if x.parent == nil {
		return
	}

	for _, n := range x.splicedRange() {
		xmltree.Detach(n)
	}
	at := -1
	if x.after != nil && x.after.Parent == x.parent {
		at = xmltree.Index(x.after)
	}
	if at < 0 {
		xmltree.AppendChild(x.parent, el)
		return
	}
	xmltree.InsertAt(x.parent, at, el)
}
