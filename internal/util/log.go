package util

import (
	"fmt"

	"github.com/pterm/pterm"
)

func init() {
	pterm.DefaultLogger.ShowTime = true
	pterm.DefaultLogger.TimeFormat = "02 Jan 15:04:05"
	pterm.DefaultLogger.MaxWidth = 1000
}

// Leveled logging functions backed by the pterm default logger.

func LogDebug(format string, args ...interface{}) {
	pterm.DefaultLogger.Debug(fmt.Sprintf(format, args...))
}

func LogInfo(format string, args ...interface{}) {
	pterm.DefaultLogger.Info(fmt.Sprintf(format, args...))
}

func LogSuccess(format string, args ...interface{}) {
	pterm.DefaultLogger.Info(fmt.Sprintf(format, args...))
}

func LogWarning(format string, args ...interface{}) {
	pterm.DefaultLogger.Warn(fmt.Sprintf(format, args...))
}

func LogError(format string, args ...interface{}) {
	pterm.DefaultLogger.Error(fmt.Sprintf(format, args...))
}

// EnableDebug configures the logger to show debug messages.
func EnableDebug() {
	pterm.DefaultLogger.Level = pterm.LogLevelDebug
}

// EnableJSON switches every log line to JSON, for running under a
// supervisor that collects logs.
func EnableJSON() {
	pterm.DefaultLogger.Formatter = pterm.LogFormatterJSON
}

// CallLog tags every line with the participant's role and case.
type CallLog struct {
	role, caseID string
}

// NewCallLog returns a logger for one participant of a call.
func NewCallLog(role, caseID string) CallLog {
	return CallLog{role: role, caseID: caseID}
}

func (l CallLog) args() []pterm.LoggerArgument {
	return pterm.DefaultLogger.Args("role", l.role, "case", l.caseID)
}

func (l CallLog) Debug(format string, args ...interface{}) {
	if !pterm.DefaultLogger.CanPrint(pterm.LogLevelDebug) {
		return
	}
	pterm.DefaultLogger.Debug(fmt.Sprintf(format, args...), l.args())
}

func (l CallLog) Info(format string, args ...interface{}) {
	pterm.DefaultLogger.Info(fmt.Sprintf(format, args...), l.args())
}

func (l CallLog) Warning(format string, args ...interface{}) {
	pterm.DefaultLogger.Warn(fmt.Sprintf(format, args...), l.args())
}

func (l CallLog) Error(format string, args ...interface{}) {
	pterm.DefaultLogger.Error(fmt.Sprintf(format, args...), l.args())
}
