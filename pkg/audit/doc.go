// Package audit keeps a durable trail of membership changes.
//
// A Recorder subscribes to the event bus and turns every committed domain
// event into an Event that is handed to a Logger. Two loggers are provided:
// FileLogger writes JSON lines with size based rotation and LogrusLogger
// forwards events to the application log.
package audit
