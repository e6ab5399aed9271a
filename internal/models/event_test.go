package models

import (
	"fmt"
	"testing"
	"time"

	"github.com/radiolink/radiolink/pkg/radio"
)

func TestNewEventLog(t *testing.T) {
	dev := radio.Address{1, 2, 3, 4, 5, 6, 7, 8}
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		evt   radio.Event
		typ   EventType
		level EventLevel
		code  int
	}{
		{
			name:  "state change",
			evt:   radio.Event{Type: radio.EventStateChanged, Time: at, State: radio.PowerRx},
			typ:   EventTypeStateChanged,
			level: EventLevelDebug,
		},
		{
			name:  "lost packet",
			evt:   radio.Event{Type: radio.EventPacketLost, Time: at, Err: radio.ErrNoAck, Error: radio.ErrNoAck.Error(), Code: -4},
			typ:   EventTypePacketLost,
			level: EventLevelError,
			code:  -4,
		},
		{
			name:  "dropped packet",
			evt:   radio.Event{Type: radio.EventPacketDropped, Time: at, Err: radio.ErrBufferFull, Code: -7},
			typ:   EventTypePacketDropped,
			level: EventLevelWarning,
			code:  -7,
		},
		{
			name:  "joined",
			evt:   radio.Event{Type: radio.EventNetworkJoined, Time: at, NetworkID: 1002},
			typ:   EventTypeNetworkJoined,
			level: EventLevelInfo,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewEventLog(dev, tt.evt)
			if e.Type != tt.typ || e.Level != tt.level || e.Code != tt.code {
				t.Errorf("got type=%s level=%s code=%d, want %s %s %d", e.Type, e.Level, e.Code, tt.typ, tt.level, tt.code)
			}
			if e.Device != "0102030405060708" {
				t.Errorf("device = %s", e.Device)
			}
			if !e.CreatedAt.Equal(at) {
				t.Errorf("created at = %s, want %s", e.CreatedAt, at)
			}
			if e.Description != radio.ErrorString(tt.evt.Err) {
				t.Errorf("description = %q", e.Description)
			}
		})
	}

	joined := NewEventLog(dev, tests[3].evt)
	if joined.NetworkID == nil || *joined.NetworkID != 1002 {
		t.Errorf("network id = %v, want 1002", joined.NetworkID)
	}
}

func TestDetailsScan(t *testing.T) {
	var v Details
	if err := v.Scan([]byte(`{"error":"boom"}`)); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if v["error"] != "boom" {
		t.Errorf("scanned = %v", v)
	}
	if err := v.Scan(42); err == nil {
		t.Error("expected error for unsupported type")
	}
	if err := v.Scan(nil); err != nil || v == nil {
		t.Errorf("Scan(nil) = %v, %v", v, err)
	}

	raw, err := Details{"n": 1}.Value()
	if err != nil || fmt.Sprintf("%s", raw) != `{"n":1}` {
		t.Errorf("Value = %s, %v", raw, err)
	}
	if raw, _ := (Details{}).Value(); raw != nil {
		t.Errorf("empty Value = %v, want nil", raw)
	}
}
