package prof

import (
	"context"
	"testing"
)

func TestStart_Disabled(t *testing.T) {
	stop, err := Start(context.Background(), Options{})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	stop()
}

func TestStart_InvalidOptions(t *testing.T) {
	tests := []Options{
		{Enabled: true, AppName: "secretmark"},
		{Enabled: true, AppName: "secretmark", ServerAddress: "pyroscope:4040"},
		{Enabled: true, ServerAddress: "http://pyroscope:4040"},
	}
	for _, o := range tests {
		stop, err := Start(context.Background(), o)
		if err == nil {
			t.Errorf("Start(%+v) succeeded", o)
		}
		if stop == nil {
			t.Errorf("Start(%+v) returned nil stop", o)
		}
	}
}

func TestConfig(t *testing.T) {
	c := Options{AppName: "secretmark.server", ServerAddress: "http://p:4040", TenantID: "t1", Tags: map[string]string{"env": "dev"}}.config()
	if c.ApplicationName != "secretmark.server" || c.TenantID != "t1" || c.Tags["env"] != "dev" {
		t.Fatalf("config = %+v", c)
	}
	if len(c.ProfileTypes) != len(profileTypes) {
		t.Fatalf("profile types = %d", len(c.ProfileTypes))
	}
}
