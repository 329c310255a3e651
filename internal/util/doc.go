// Package util provides small formatting helpers shared by the command line
// and startup logging.
//
// Usage example:
//
//	logrus.Info("Note that the next check will be performed in " + util.FormatDuration(time.Until(next)))
package util
