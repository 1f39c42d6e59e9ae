// Package protocol defines the JSON message protocol spoken over each
// WebSocket connection: inbound commands and outbound events.
//
// Every frame is a JSON object with a "type" discriminator. Events are only
// ever delivered to the connection whose command caused them.
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/c360/scanbridge/errors"
)

// Inbound command types.
const (
	CmdDiscover = "discover"
	CmdScan     = "scan"
	CmdCancel   = "cancel"
	CmdPing     = "ping"
)

// Outbound event types.
const (
	EventConnected   = "connected"
	EventDiscovering = "discovering"
	EventScanners    = "scanners"
	EventScanning    = "scanning"
	EventProgress    = "progress"
	EventScanned     = "scanned"
	EventCancelled   = "cancelled"
	EventPong        = "pong"
	EventError       = "error"
)

// ScanSettings carries the caller-supplied parameters of a scan command.
// All fields are optional; unknown or missing values fall back to defaults
// in the job controller.
type ScanSettings struct {
	ScannerID  string `json:"scannerId,omitempty"`
	ColorMode  string `json:"colorMode,omitempty"`
	Resolution int    `json:"resolution,omitempty"`
	PaperSize  string `json:"paperSize,omitempty"`
	Duplex     bool   `json:"duplex,omitempty"`
}

// Command is the inbound message envelope.
type Command struct {
	Type     string        `json:"type"`
	Settings *ScanSettings `json:"settings,omitempty"`
}

// ParseCommand decodes an inbound frame. A frame that is not a JSON object
// or lacks a type discriminator is an invalid message.
func ParseCommand(data []byte) (*Command, error) {
	var cmd Command
	if err := json.Unmarshal(data, &cmd); err != nil {
		return nil, errors.WrapInvalid(err, "protocol", "ParseCommand", "unmarshal command")
	}
	if cmd.Type == "" {
		return nil, errors.WrapInvalid(errors.ErrInvalidMessage,
			"protocol", "ParseCommand", "validate command type")
	}
	return &cmd, nil
}

// Scanner is a discovered device descriptor.
type Scanner struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Driver string `json:"driver"`
}

// Event is an outbound protocol message.
type Event interface {
	EventType() string
}

// Encode serializes an event to its wire form.
func Encode(e Event) ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, errors.WrapFatal(err, "protocol", "Encode",
			fmt.Sprintf("marshal %s event", e.EventType()))
	}
	return data, nil
}

// ConnectedEvent announces the connection's assigned identity.
type ConnectedEvent struct {
	Type     string `json:"type"`
	ClientID string `json:"clientId"`
	Message  string `json:"message"`
}

// EventType implements Event.
func (e ConnectedEvent) EventType() string { return EventConnected }

// NewConnected builds the greeting event for a freshly accepted connection.
func NewConnected(clientID string) ConnectedEvent {
	return ConnectedEvent{
		Type:     EventConnected,
		ClientID: clientID,
		Message:  "Connected to scanbridge",
	}
}

// DiscoveringEvent signals that device discovery has started.
type DiscoveringEvent struct {
	Type string `json:"type"`
}

// EventType implements Event.
func (e DiscoveringEvent) EventType() string { return EventDiscovering }

// NewDiscovering builds a discovering event.
func NewDiscovering() DiscoveringEvent {
	return DiscoveringEvent{Type: EventDiscovering}
}

// ScannersEvent carries the final discovery result. Scanners is always
// present on the wire, even when empty.
type ScannersEvent struct {
	Type     string    `json:"type"`
	Scanners []Scanner `json:"scanners"`
}

// EventType implements Event.
func (e ScannersEvent) EventType() string { return EventScanners }

// NewScanners builds a scanners event.
func NewScanners(scanners []Scanner) ScannersEvent {
	if scanners == nil {
		scanners = []Scanner{}
	}
	return ScannersEvent{Type: EventScanners, Scanners: scanners}
}

// ScanningEvent signals that a scan job was accepted and is starting.
type ScanningEvent struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// EventType implements Event.
func (e ScanningEvent) EventType() string { return EventScanning }

// NewScanning builds a scanning event.
func NewScanning(message string) ScanningEvent {
	return ScanningEvent{Type: EventScanning, Message: message}
}

// ProgressEvent reports scan progress in the range [0,100].
type ProgressEvent struct {
	Type     string `json:"type"`
	Progress int    `json:"progress"`
}

// EventType implements Event.
func (e ProgressEvent) EventType() string { return EventProgress }

// NewProgress builds a progress event.
func NewProgress(progress int) ProgressEvent {
	return ProgressEvent{Type: EventProgress, Progress: progress}
}

// ScannedEvent is the successful terminal event carrying the encoded image.
type ScannedEvent struct {
	Type     string `json:"type"`
	Image    string `json:"image"` // data:image/png;base64,...
	Filename string `json:"filename"`
}

// EventType implements Event.
func (e ScannedEvent) EventType() string { return EventScanned }

// NewScanned builds a scanned event.
func NewScanned(image, filename string) ScannedEvent {
	return ScannedEvent{Type: EventScanned, Image: image, Filename: filename}
}

// CancelledEvent is the terminal event for an explicitly cancelled job.
type CancelledEvent struct {
	Type string `json:"type"`
}

// EventType implements Event.
func (e CancelledEvent) EventType() string { return EventCancelled }

// NewCancelled builds a cancelled event.
func NewCancelled() CancelledEvent {
	return CancelledEvent{Type: EventCancelled}
}

// PongEvent answers a ping command.
type PongEvent struct {
	Type string `json:"type"`
}

// EventType implements Event.
func (e PongEvent) EventType() string { return EventPong }

// NewPong builds a pong event.
func NewPong() PongEvent {
	return PongEvent{Type: EventPong}
}

// ErrorEvent reports a failure to the offending connection only.
type ErrorEvent struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// EventType implements Event.
func (e ErrorEvent) EventType() string { return EventError }

// NewError builds an error event.
func NewError(message string) ErrorEvent {
	return ErrorEvent{Type: EventError, Message: message}
}
