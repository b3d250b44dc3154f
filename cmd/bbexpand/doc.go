// Package main is the bbexpand command line tool.
//
// It expands the building blocks in a view file and prints the resulting
// tree. Definitions come from YAML or TOML files, data from JSON models.
//
// Usage:
//
//	bbexpand -in view.xml -defs ./blocks -model data.json
//
//	# fragments, metadata model and a summary line on stderr
//	bbexpand -in view.xml -defs ./blocks -fragments ./fragments -meta meta.json -stats
//
//	# one debug log line per expansion span (set BB_LOG_LEVEL=debug)
//	bbexpand -in view.xml -defs ./blocks -trace
//
//	# registered blocks and fragments, no expansion
//	bbexpand -defs ./blocks -fragments ./fragments -list
//
// Configuration:
//   - BB_* environment variables (see internal/infrastructure/config)
//   - CLI flags override BB_DEFINITIONS_DIR
//
// Logs go to stderr so the expanded tree on stdout stays clean.
package main
