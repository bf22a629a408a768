package plugin

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/fkcurrie/matricks-golang/internal/logging"
	"github.com/fkcurrie/matricks-golang/internal/types"
)

func TestParsePathMap(t *testing.T) {
	tests := []struct {
		name      string
		directive string
		want      PathMap
		wantErr   bool
	}{
		{"simple", "/data>/home/pi/data", PathMap{From: "/data", To: "/home/pi/data"}, false},
		{"split on first separator", "/in>/tmp/a>b", PathMap{From: "/in", To: "/tmp/a>b"}, false},
		{"relative host path", "/assets>./assets", PathMap{From: "/assets", To: "./assets"}, false},
		{"no separator", "/data", PathMap{}, true},
		{"empty sandbox path", ">/home/pi", PathMap{}, true},
		{"empty host path", "/data>", PathMap{}, true},
		{"empty", "", PathMap{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePathMap(tt.directive)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParsePathMap() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrMalformedPathMap) {
				t.Errorf("ParsePathMap() error = %v, want %v", err, ErrMalformedPathMap)
			}
			if got != tt.want {
				t.Errorf("ParsePathMap() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestParsePathMaps(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(&buf, "debug")
	if err != nil {
		t.Fatalf("logging.New() error = %v", err)
	}

	got := ParsePathMaps([]string{"/a>/host/a", "broken", "/b>/host/b"}, logger)
	want := []PathMap{{From: "/a", To: "/host/a"}, {From: "/b", To: "/host/b"}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ParsePathMaps() = %v, want %v", got, want)
	}
	if !strings.Contains(buf.String(), "broken") {
		t.Errorf("dropped directive not logged: %q", buf.String())
	}
}

func TestManifest(t *testing.T) {
	m := NewManifest("fade.wasm", []byte{0, 'a', 's', 'm'}).
		WithAllowedHosts("api.example.com", " ", "*.weather.gov").
		WithPaths(PathMap{From: "/data", To: "/srv/data"})
	m.Timeout = 1500 * time.Millisecond

	if err := (KeyValueDelivery{}).Apply(m, types.MatrixConfiguration{Width: 4, Height: 2, TargetFPS: 30}); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	em := toExtism(m)
	if len(em.Wasm) != 1 {
		t.Fatalf("Wasm has %d entries, want 1", len(em.Wasm))
	}
	if want := []string{"api.example.com", "*.weather.gov"}; !reflect.DeepEqual(em.AllowedHosts, want) {
		t.Errorf("AllowedHosts = %v, want %v", em.AllowedHosts, want)
	}
	if want := map[string]string{"/srv/data": "/data"}; !reflect.DeepEqual(em.AllowedPaths, want) {
		t.Errorf("AllowedPaths = %v, want %v", em.AllowedPaths, want)
	}
	if em.Timeout != 1500 {
		t.Errorf("Timeout = %d, want 1500", em.Timeout)
	}
	if em.Config["width"] != "4" {
		t.Errorf("Config[width] = %q, want 4", em.Config["width"])
	}
}

func TestNameFromPath(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/plugins/fade.wasm", "fade.wasm"},
		{"fade.wasm", "fade.wasm"},
		{"plugins/nested/rain.wasm", "rain.wasm"},
	}
	for _, tt := range tests {
		if got := NameFromPath(tt.path); got != tt.want {
			t.Errorf("NameFromPath(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestConfigDelivery(t *testing.T) {
	cfg := types.MatrixConfiguration{
		Width:      16,
		Height:     8,
		TargetFPS:  30,
		Serpentine: true,
		Brightness: 128,
	}

	tests := []struct {
		name      string
		delivery  string
		wantKeys  bool
		wantInput bool
		wantErr   bool
	}{
		{"json", DeliveryJSON, false, true, false},
		{"keyvalue", DeliveryKeyValue, true, false, false},
		{"both", DeliveryBoth, true, true, false},
		{"default", "", true, true, false},
		{"unknown", "yaml", false, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := ParseDelivery(tt.delivery)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseDelivery() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}

			m := NewManifest("p.wasm", []byte{1})
			if err := d.Apply(m, cfg); err != nil {
				t.Fatalf("Apply() error = %v", err)
			}
			if got := m.Config["width"] == "16"; got != tt.wantKeys {
				t.Errorf("Config = %v, want keys %v", m.Config, tt.wantKeys)
			}

			input, err := d.SetupInput(cfg)
			if err != nil {
				t.Fatalf("SetupInput() error = %v", err)
			}
			if (len(input) > 0) != tt.wantInput {
				t.Fatalf("SetupInput() = %q, want input %v", input, tt.wantInput)
			}
			if len(input) > 0 {
				var decoded types.MatrixConfiguration
				if err := json.Unmarshal(input, &decoded); err != nil {
					t.Fatalf("setup input is not JSON: %v", err)
				}
				if decoded.Width != 16 || decoded.Height != 8 || !decoded.Serpentine {
					t.Errorf("setup input = %s", input)
				}
			}
		})
	}
}

func TestKeyValues(t *testing.T) {
	got := KeyValues(types.MatrixConfiguration{
		Width:      32,
		Height:     8,
		TargetFPS:  29.97,
		Serpentine: true,
		Brightness: 255,
	})
	want := map[string]string{
		"width":             "32",
		"height":            "8",
		"target_fps":        "29.97",
		"serpentine":        "true",
		"vertical":          "false",
		"mirror_horizontal": "false",
		"mirror_vertical":   "false",
		"brightness":        "255",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("KeyValues() = %v, want %v", got, want)
	}
}

func TestDecode(t *testing.T) {
	red := types.Color{0, 0, 255, 255}
	frame := types.FrameBuffer{{red, {}}}

	tests := []struct {
		name     string
		protocol Protocol
		out      string
		want     types.PluginUpdate
		wantErr  error
	}{
		{"frame", ProtocolFrame, `[[[0,0,255,255],[0,0,0,0]]]`, types.PluginUpdate{State: frame}, nil},
		{"frame null", ProtocolFrame, `null`, types.PluginUpdate{Done: true}, nil},
		{"frame empty output", ProtocolFrame, ``, types.PluginUpdate{Done: true}, nil},
		{"frame given object", ProtocolFrame, `{"state":null}`, types.PluginUpdate{}, ErrMalformedUpdate},
		{"update", ProtocolUpdate, `{"state":[[[0,0,255,255],[0,0,0,0]]],"done":false}`, types.PluginUpdate{State: frame}, nil},
		{"update null state", ProtocolUpdate, `{"state":null,"done":false}`, types.PluginUpdate{Done: true}, nil},
		{"update missing state", ProtocolUpdate, `{"done":false}`, types.PluginUpdate{Done: true}, nil},
		{"update done with frame", ProtocolUpdate, `{"state":[[[1,1,1,1],[1,1,1,1]]],"done":true}`, types.PluginUpdate{Done: true}, nil},
		{
			"update log list", ProtocolUpdate,
			`{"state":[[[0,0,255,255],[0,0,0,0]]],"done":false,"log_message":["a","b"]}`,
			types.PluginUpdate{State: frame, LogMessage: types.LogMessages{"a", "b"}}, nil,
		},
		{
			"update log string", ProtocolUpdate,
			`{"state":null,"done":true,"log_message":"bye"}`,
			types.PluginUpdate{Done: true, LogMessage: types.LogMessages{"bye"}}, nil,
		},
		{"update given frame", ProtocolUpdate, `[[[0,0,0,0],[0,0,0,0]]]`, types.PluginUpdate{}, ErrMalformedUpdate},
		{"auto frame", ProtocolAuto, ` [[[0,0,255,255],[0,0,0,0]]]`, types.PluginUpdate{State: frame}, nil},
		{"auto update", ProtocolAuto, `{"state":[[[0,0,255,255],[0,0,0,0]]],"done":false}`, types.PluginUpdate{State: frame}, nil},
		{"auto null", ProtocolAuto, `null`, types.PluginUpdate{Done: true}, nil},
		{"auto garbage", ProtocolAuto, `hello`, types.PluginUpdate{}, ErrMalformedUpdate},
		{"not json", ProtocolFrame, `[[[0,0,0,0],`, types.PluginUpdate{}, ErrMalformedUpdate},
		{"invalid utf8", ProtocolAuto, "\xff\xfe", types.PluginUpdate{}, ErrInvalidUTF8},
		{"too few rows", ProtocolFrame, `[]`, types.PluginUpdate{}, ErrFrameSize},
		{"too many columns", ProtocolFrame, `[[[0,0,0,0],[0,0,0,0],[0,0,0,0]]]`, types.PluginUpdate{}, ErrFrameSize},
		{"short quad", ProtocolFrame, `[[[0,0,0],[0,0,0,0]]]`, types.PluginUpdate{}, ErrMalformedUpdate},
		{"channel out of range", ProtocolFrame, `[[[0,0,256,0],[0,0,0,0]]]`, types.PluginUpdate{}, ErrMalformedUpdate},
		{"negative channel", ProtocolFrame, `[[[0,-1,0,0],[0,0,0,0]]]`, types.PluginUpdate{}, ErrMalformedUpdate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.protocol.Decode([]byte(tt.out), 2, 1)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Decode() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Decode() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestFrameSizeIsMalformed(t *testing.T) {
	if !errors.Is(ErrFrameSize, ErrMalformedUpdate) {
		t.Error("ErrFrameSize does not wrap ErrMalformedUpdate")
	}
}

func TestParseProtocol(t *testing.T) {
	tests := []struct {
		name    string
		want    Protocol
		wantErr bool
	}{
		{"auto", ProtocolAuto, false},
		{"", ProtocolAuto, false},
		{"frame", ProtocolFrame, false},
		{"update", ProtocolUpdate, false},
		{"legacy", ProtocolAuto, true},
	}
	for _, tt := range tests {
		got, err := ParseProtocol(tt.name)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseProtocol(%q) error = %v, wantErr %v", tt.name, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseProtocol(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestHostFunctions(t *testing.T) {
	funcs := HostFunctions(logging.Discard())
	names := map[string]bool{}
	for _, f := range funcs {
		names[f.Name] = true
	}
	for _, want := range []string{
		"debug", "info", "warn", "error",
		"matricks_debug", "matricks_info", "matricks_warn", "matricks_error",
	} {
		if !names[want] {
			t.Errorf("host function %q missing", want)
		}
	}
}

func TestInstantiateInvalidModule(t *testing.T) {
	tests := []struct {
		name   string
		module []byte
	}{
		{"empty", nil},
		{"not wasm", []byte("definitely not a wasm module")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRuntime().Instantiate(context.Background(), NewManifest("bad.wasm", tt.module), logging.Discard())
			if err == nil {
				t.Error("Instantiate() succeeded for an invalid module")
			}
		})
	}
}

func loadTestModule(t *testing.T) []byte {
	t.Helper()
	module, err := os.ReadFile(filepath.Join("testdata", "hostlog.wasm"))
	if err != nil {
		t.Fatalf("failed to read test module: %v", err)
	}
	return module
}

func TestInstantiateLogsThroughHost(t *testing.T) {
	var buf bytes.Buffer
	root, err := logging.New(&buf, "debug")
	if err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	m := NewManifest("hostlog.wasm", loadTestModule(t))
	instance, err := NewRuntime().Instantiate(ctx, m, logging.ForPlugin(root, m.Name))
	if err != nil {
		t.Fatalf("Instantiate() error = %v", err)
	}
	defer instance.Close(ctx)

	out, err := instance.Call(ctx, "setup", nil)
	if err != nil {
		t.Fatalf("Call(setup) error = %v", err)
	}
	if len(out) != 0 {
		t.Errorf("Call(setup) output = %q, want none", out)
	}

	line := buf.String()
	for _, want := range []string{"INFO", "plugin hostlog.wasm:", "hi"} {
		if !strings.Contains(line, want) {
			t.Errorf("log output = %q, want it to contain %q", line, want)
		}
	}

	if _, err := instance.Call(ctx, "missing", nil); err == nil {
		t.Error("Call() succeeded for a missing export")
	}
}

func TestKeyValueDeliveryReachesPlugin(t *testing.T) {
	ctx := context.Background()
	m := NewManifest("hostlog.wasm", loadTestModule(t))
	if err := (KeyValueDelivery{}).Apply(m, types.MatrixConfiguration{Width: 7, Height: 3, TargetFPS: 30}); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	instance, err := NewRuntime().Instantiate(ctx, m, logging.Discard())
	if err != nil {
		t.Fatalf("Instantiate() error = %v", err)
	}
	defer instance.Close(ctx)

	out, err := instance.Call(ctx, "width", nil)
	if err != nil {
		t.Fatalf("Call(width) error = %v", err)
	}
	if string(out) != "7" {
		t.Errorf("Call(width) = %q, want %q", out, "7")
	}
}
