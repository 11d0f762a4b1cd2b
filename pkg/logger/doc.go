// Package logger provides structured logging for imgsniff on top of zerolog.
//
// Console output is written to stderr so that result JSON printed on stdout
// stays machine-readable. Setting logging.file adds a JSON file sink.
//
//	if err := logger.Initialize(&cfg.Logging); err != nil {
//	    return err
//	}
//	log := logger.GetLogger().WithField("session_id", id)
//	log.InfoWithFields("Sniff finished", map[string]interface{}{
//	    "target": target,
//	    "images": len(images),
//	})
//
// Components accept a Logger and fall back to the global one when given nil.
// Tests use NewNopLogger or NewTestLogger.
package logger
