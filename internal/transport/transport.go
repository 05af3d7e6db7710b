// Package transport publishes spectrogram output to external
// consumers. Implementations fan processed columns or raster frames
// out over WebSocket or UDP without blocking the frame handler.
package transport

// Transport defines a generic interface for sending processed data or events.
// Implementations must be safe for concurrent use and must not block
// the caller: a Transport under pressure drops data rather than
// stalling the audio path.
type Transport interface {
	Send(data any) error
	Close() error
}
