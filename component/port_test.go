package component

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestDirection(t *testing.T) {
	tests := []struct {
		name      string
		direction Direction
		expected  string
	}{
		{"input direction", DirectionInput, "input"},
		{"output direction", DirectionOutput, "output"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if string(tt.direction) != tt.expected {
				t.Errorf("Expected %s, got %s", tt.expected, string(tt.direction))
			}
		})
	}
}

func TestNetworkPort(t *testing.T) {
	tests := []struct {
		name        string
		port        NetworkPort
		resourceID  string
		isExclusive bool
		portType    string
	}{
		{
			name:        "TCP listener",
			port:        NetworkPort{Protocol: "tcp", Host: "0.0.0.0", Port: 8080},
			resourceID:  "tcp:0.0.0.0:8080",
			isExclusive: true,
			portType:    "network",
		},
		{
			name:        "UDP listener",
			port:        NetworkPort{Protocol: "udp", Host: "localhost", Port: 5140},
			resourceID:  "udp:localhost:5140",
			isExclusive: true,
			portType:    "network",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.port.ResourceID() != tt.resourceID {
				t.Errorf("Expected ResourceID %s, got %s", tt.resourceID, tt.port.ResourceID())
			}
			if tt.port.IsExclusive() != tt.isExclusive {
				t.Errorf("Expected IsExclusive %t, got %t", tt.isExclusive, tt.port.IsExclusive())
			}
			if tt.port.Type() != tt.portType {
				t.Errorf("Expected Type %s, got %s", tt.portType, tt.port.Type())
			}
		})
	}
}

func TestNATSPort(t *testing.T) {
	port := NATSPort{Subject: "logs.ingest.http"}

	if got := port.ResourceID(); got != "nats:logs.ingest.http" {
		t.Errorf("ResourceID = %s", got)
	}
	if port.IsExclusive() {
		t.Error("NATS ports must be shareable")
	}
	if port.Type() != "nats" {
		t.Errorf("Type = %s, want nats", port.Type())
	}
}

func TestPortJSONRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		port Port
	}{
		{
			name: "network port",
			port: Port{
				Name:        "listen",
				Direction:   DirectionInput,
				Required:    true,
				Description: "HTTP listen address",
				Config:      NetworkPort{Protocol: "tcp", Host: "0.0.0.0", Port: 8080},
			},
		},
		{
			name: "nats port with interface",
			port: Port{
				Name:      "records",
				Direction: DirectionOutput,
				Required:  true,
				Config: NATSPort{
					Subject: "logs.ingest.http",
					Interface: &InterfaceContract{
						Type:    "message.Envelope",
						Version: "v1",
					},
				},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.port)
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}

			var decoded Port
			if err := json.Unmarshal(data, &decoded); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}

			if decoded.Name != tt.port.Name {
				t.Errorf("name = %q, want %q", decoded.Name, tt.port.Name)
			}
			if decoded.Direction != tt.port.Direction {
				t.Errorf("direction = %q, want %q", decoded.Direction, tt.port.Direction)
			}
			if decoded.Config == nil {
				t.Fatal("config lost in round trip")
			}
			if decoded.Config.Type() != tt.port.Config.Type() {
				t.Errorf("config type = %q, want %q", decoded.Config.Type(), tt.port.Config.Type())
			}
			if decoded.Config.ResourceID() != tt.port.Config.ResourceID() {
				t.Errorf("resource ID = %q, want %q",
					decoded.Config.ResourceID(), tt.port.Config.ResourceID())
			}
		})
	}
}

func TestPortUnmarshalPreservesInterfaceContract(t *testing.T) {
	port := Port{
		Name:      "records",
		Direction: DirectionOutput,
		Config: NATSPort{
			Subject:   "logs.ingest.udp",
			Interface: &InterfaceContract{Type: "message.Envelope", Version: "v1"},
		},
	}

	data, err := json.Marshal(port)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded Port
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	natsPort, ok := decoded.Config.(NATSPort)
	if !ok {
		t.Fatalf("config type = %T, want NATSPort", decoded.Config)
	}
	if natsPort.Interface == nil {
		t.Fatal("interface contract lost")
	}
	if natsPort.Interface.Type != "message.Envelope" || natsPort.Interface.Version != "v1" {
		t.Errorf("interface = %+v", natsPort.Interface)
	}
}

func TestPortUnmarshalUnknownConfigType(t *testing.T) {
	raw := `{"name":"x","direction":"input","required":false,"description":"",` +
		`"config":{"type":"carrier-pigeon","data":{}}}`

	var port Port
	err := json.Unmarshal([]byte(raw), &port)
	if err == nil {
		t.Fatal("expected unknown config type to fail")
	}
	if !strings.Contains(err.Error(), "unknown config type") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestPortUnmarshalNoConfig(t *testing.T) {
	raw := `{"name":"bare","direction":"output","required":false,"description":""}`

	var port Port
	if err := json.Unmarshal([]byte(raw), &port); err != nil {
		t.Fatalf("unmarshal without config: %v", err)
	}
	if port.Config != nil {
		t.Error("config should stay nil when absent")
	}
}
