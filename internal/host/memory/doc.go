/*
Package memory is an in-memory host for the expansion engine.

It walks an xmltree with a cursor worklist, dispatches macro tags through a
host.HandlerLookup and resolves bindings:

	{model>path}   value at path in a named variable or model
	{path}         value relative to the current context path
	{= expr}       goja expression; ${model>path} references become JSON literals

template:if elements in host.TemplateNamespace are expanded in place, and
named fragments are served from a Library.
*/
package memory
