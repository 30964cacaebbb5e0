// Package hfslog is the structured-logging ambient layer shared by every
// core package: mount/unmount transitions, damaged-volume reports, block
// allocations and frees, fork extensions, cache flushes and catalog changes
// go through here instead of fmt.Printf, using github.com/sirupsen/logrus
// fields rather than formatted prose so a host can filter or ship them.
package hfslog

import "github.com/sirupsen/logrus"

// Logger is the package-wide logger. The CLI raises its level for
// --verbose; a caller may replace it to change formatter or output sink.
var Logger = logrus.New()

// WithVolume returns a field logger scoped to one mounted volume, identified
// by its device path — every mount gets its own line of provenance in a
// multi-volume host process.
func WithVolume(device string) *logrus.Entry {
	return Logger.WithField("device", device)
}

// Fields is a re-export of logrus.Fields so callers don't need a direct
// logrus import just to build a field set.
type Fields = logrus.Fields
