// Package logger wraps zerolog behind a small interface used by every
// component of the audience pipeline.
//
// Components accept a Logger in their constructors and fall back to the
// process-wide logger (GetLogger) when given nil:
//
//	log := logger.OrDefault(nil).WithField("component", "collector")
//	log.InfoWithFields("Collected candidates", map[string]interface{}{
//	    "handle": "nike",
//	    "count":  27,
//	})
//
// Tests use NewTestLogger to assert on emitted messages, or NewNopLogger to
// silence output.
package logger
