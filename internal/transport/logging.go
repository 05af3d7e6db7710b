package transport

import (
	applog "melscope/internal/log"
)

// LoggingTransport implements the Transport interface by summarizing
// sent payloads at debug level. Useful when no network transport is
// configured.
type LoggingTransport struct{}

// NewLoggingTransport creates a new LoggingTransport instance.
func NewLoggingTransport() *LoggingTransport {
	applog.Infof("Transport: Using LoggingTransport")
	return &LoggingTransport{}
}

// Send logs a short summary of the payload.
func (lt *LoggingTransport) Send(data any) error {
	if raw, ok := data.([]byte); ok {
		applog.Debugf("LoggingTransport: %d bytes", len(raw))
	} else {
		applog.Debugf("LoggingTransport: %T", data)
	}
	return nil
}

// Close is a no-op for LoggingTransport.
func (lt *LoggingTransport) Close() error {
	return nil
}

var _ Transport = (*LoggingTransport)(nil)
