package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/scanbridge/errors"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		name     string
		frame    string
		wantType string
	}{
		{"discover", `{"type":"discover"}`, CmdDiscover},
		{"cancel", `{"type":"cancel"}`, CmdCancel},
		{"ping", `{"type":"ping"}`, CmdPing},
		{"unknown passes parsing", `{"type":"reboot"}`, "reboot"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, err := ParseCommand([]byte(tt.frame))
			require.NoError(t, err)
			assert.Equal(t, tt.wantType, cmd.Type)
			assert.Nil(t, cmd.Settings)
		})
	}
}

func TestParseScanCommandSettings(t *testing.T) {
	frame := `{"type":"scan","settings":{
		"scannerId":"epson2:libusb:001:004",
		"colorMode":"grayscale",
		"resolution":300,
		"paperSize":"a4",
		"duplex":true
	}}`

	cmd, err := ParseCommand([]byte(frame))
	require.NoError(t, err)
	require.NotNil(t, cmd.Settings)
	assert.Equal(t, "epson2:libusb:001:004", cmd.Settings.ScannerID)
	assert.Equal(t, "grayscale", cmd.Settings.ColorMode)
	assert.Equal(t, 300, cmd.Settings.Resolution)
	assert.Equal(t, "a4", cmd.Settings.PaperSize)
	assert.True(t, cmd.Settings.Duplex)
}

func TestParseCommandRejections(t *testing.T) {
	tests := []struct {
		name  string
		frame string
	}{
		{"malformed json", `{"type":`},
		{"not an object", `"scan"`},
		{"missing type", `{"settings":{}}`},
		{"empty type", `{"type":""}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCommand([]byte(tt.frame))
			require.Error(t, err)
			assert.True(t, errors.IsInvalid(err))
		})
	}
}

func TestEncodeConnected(t *testing.T) {
	data, err := Encode(NewConnected("c-123"))
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "connected", decoded["type"])
	assert.Equal(t, "c-123", decoded["clientId"])
	assert.NotEmpty(t, decoded["message"])
}

func TestEncodeScannersAlwaysCarriesList(t *testing.T) {
	data, err := Encode(NewScanners(nil))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"scanners","scanners":[]}`, string(data))

	data, err = Encode(NewScanners([]Scanner{
		{ID: "test:scanner", Name: "Test Scanner (Development)", Driver: "test"},
	}))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"scanners","scanners":[
		{"id":"test:scanner","name":"Test Scanner (Development)","driver":"test"}
	]}`, string(data))
}

func TestEncodeProgressKeepsZero(t *testing.T) {
	data, err := Encode(NewProgress(0))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"progress","progress":0}`, string(data))
}

func TestEventTypes(t *testing.T) {
	tests := []struct {
		event Event
		want  string
	}{
		{NewConnected("x"), EventConnected},
		{NewDiscovering(), EventDiscovering},
		{NewScanners(nil), EventScanners},
		{NewScanning("starting"), EventScanning},
		{NewProgress(50), EventProgress},
		{NewScanned("data:image/png;base64,AA==", "scan.png"), EventScanned},
		{NewCancelled(), EventCancelled},
		{NewPong(), EventPong},
		{NewError("boom"), EventError},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.event.EventType())
	}
}
