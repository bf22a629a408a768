package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	config := Default()
	if err := config.Validate(); err != nil {
		t.Fatalf("Default().Validate() error = %v", err)
	}

	matrix := config.MatrixConfiguration()
	if matrix.Width != 32 || matrix.Height != 8 {
		t.Errorf("default matrix = %dx%d, want 32x8", matrix.Width, matrix.Height)
	}
	if matrix.GPIOPin != 10 || matrix.DMAChannel != 10 || matrix.SignalFrequency != 800_000 {
		t.Errorf("default controller = pin %d dma %d freq %d", matrix.GPIOPin, matrix.DMAChannel, matrix.SignalFrequency)
	}
	if config.Driver.PowerLine != -1 {
		t.Errorf("default power line = %d, want -1", config.Driver.PowerLine)
	}
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		content string
		check   func(t *testing.T, c *Config)
		wantErr bool
	}{
		{
			name: "full file",
			content: `
[matrix]
width = 16
height = 16
fps = 60
serpentine = false
vertical = true
mirror_horizontal = true
brightness = 40

[plugin]
path = "/opt/matricks/plugins"
loop = true
time_limit = 30
allow_host = ["api.example.com"]
map_path = ["/data>/srv/data"]
protocol = "update"
config_delivery = "json"
call_timeout_ms = 500

[driver]
kind = "png"
output = "/tmp/matrix.png"
stop_timeout_ms = 2000

[log]
level = "debug"
`,
			check: func(t *testing.T, c *Config) {
				m := c.MatrixConfiguration()
				if m.Width != 16 || m.Height != 16 || m.TargetFPS != 60 {
					t.Errorf("matrix = %+v", m)
				}
				if m.Serpentine || !m.Vertical || !m.MirrorHorizontal || m.Brightness != 40 {
					t.Errorf("wiring = %+v", m)
				}
				if m.GPIOPin != 10 {
					t.Errorf("GPIOPin = %d, want default 10", m.GPIOPin)
				}
				if !c.Plugin.Loop || c.TimeLimit() != 30*time.Second || c.CallTimeout() != 500*time.Millisecond {
					t.Errorf("plugin = %+v", c.Plugin)
				}
				if !reflect.DeepEqual(c.Plugin.AllowHost, []string{"api.example.com"}) {
					t.Errorf("AllowHost = %v", c.Plugin.AllowHost)
				}
				if !reflect.DeepEqual(c.Plugin.MapPath, []string{"/data>/srv/data"}) {
					t.Errorf("MapPath = %v", c.Plugin.MapPath)
				}
				if c.Driver.Kind != "png" || c.Driver.Output != "/tmp/matrix.png" || c.StopTimeout() != 2*time.Second {
					t.Errorf("driver = %+v", c.Driver)
				}
				if c.Log.Level != "debug" {
					t.Errorf("log level = %q", c.Log.Level)
				}
			},
		},
		{
			name:    "partial file keeps defaults",
			content: "[matrix]\nwidth = 8\n",
			check: func(t *testing.T, c *Config) {
				if c.Matrix.Width != 8 || c.Matrix.Height != 8 || c.Matrix.FPS != 30 {
					t.Errorf("matrix = %+v", c.Matrix)
				}
				if c.Driver.Kind != "ws281x" {
					t.Errorf("driver kind = %q", c.Driver.Kind)
				}
			},
		},
		{name: "not toml", content: "[matrix\nwidth = ", wantErr: true},
		{name: "misspelled key", content: "[matrix]\nwidht = 8\n", wantErr: true},
		{name: "unknown table", content: "[matrx]\nwidth = 8\n", wantErr: true},
		{name: "wrong type", content: "[matrix]\nwidth = \"wide\"\n", wantErr: true},
		{name: "zero width", content: "[matrix]\nwidth = 0\n", wantErr: true},
		{name: "zero fps", content: "[matrix]\nfps = 0.0\n", wantErr: true},
		{name: "brightness too high", content: "[matrix]\nbrightness = 300\n", wantErr: true},
		{name: "unknown driver", content: "[driver]\nkind = \"hub75\"\n", wantErr: true},
		{name: "unknown protocol", content: "[plugin]\nprotocol = \"xml\"\n", wantErr: true},
		{name: "unknown delivery", content: "[plugin]\nconfig_delivery = \"env\"\n", wantErr: true},
		{name: "negative time limit", content: "[plugin]\ntime_limit = -1\n", wantErr: true},
		{name: "negative stop timeout", content: "[driver]\nstop_timeout_ms = -5\n", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "matricks.toml")
			if err := os.WriteFile(path, []byte(tt.content), 0o644); err != nil {
				t.Fatal(err)
			}

			config, err := Load(path)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Load() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.check != nil && config != nil {
				tt.check(t, config)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Error("Load() succeeded for a missing file")
	}
}

func TestSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "matricks.toml")

	want := Default()
	want.Matrix.Width = 64
	want.Matrix.MirrorVertical = true
	want.Plugin.Path = "/srv/plugins"
	want.Plugin.AllowHost = []string{"a.example.com", "b.example.com"}
	want.Driver.Kind = "record"
	want.Driver.Output = "/tmp/frames.cbor.zst"

	if err := Save(path, want); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Load() = %+v, want %+v", got, want)
	}
}
