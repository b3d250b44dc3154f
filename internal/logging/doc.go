// Package logging builds the zap logger used across blockforge.
//
// Development mode writes colored console lines; otherwise lines are JSON.
// Engine log lines carry the fields macro, expansion and state so that one
// expansion can be followed through its steps.
//
//	logger, err := logging.New(cfg.Logging)
//	log := logging.ForExpansion(logger.Logger, "Field", expansionID.String())
//	log.Warn("Unrecognized attribute", zap.String("attribute", "foo"))
package logging
