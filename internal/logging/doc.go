// Package logging builds the zap loggers used across metricsd.
//
// Components accept a plain *zap.Logger and fall back to zap.NewNop() when
// given nil, so this package only concerns itself with construction:
//
//	cfg := logging.NewDefaultConfig()
//	cfg.Level = zapcore.DebugLevel
//	logger, err := logging.NewLogger(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer logging.Sync(logger)
//
// Output is JSON by default with an ISO8601 "ts" key and a constant
// "service" field:
//
//	{"level":"warn","ts":"2025-11-24T10:15:30.000Z","msg":"low extraction confidence","service":"metricsd","confidence":0.42}
//
// Field names listed in RedactionConfig.Fields (api_key, token, password,
// authorization, ...) are replaced with "[REDACTED]" at encode time, and
// string values matching RedactionConfig.Patterns are masked.
package logging
