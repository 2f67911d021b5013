package config

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestLoad_DefaultValues(t *testing.T) {
	viper.Reset()

	if err := Load(); err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	cfg := Get()

	tests := []struct {
		name     string
		got      interface{}
		expected interface{}
	}{
		{"TickRateHz", cfg.TickRateHz, 200},
		{"DefaultAuxALevel", cfg.DefaultAuxALevel, 0.0},
		{"DefaultAuxBLevel", cfg.DefaultAuxBLevel, 0.0},
		{"MIDICoalesceMS", cfg.MIDICoalesceMS, 1.0},
		{"MIDISingleThread", cfg.MIDISingleThread, false},
		{"LogLevel", cfg.LogLevel, "info"},
		{"AmplitudeMode", cfg.AmplitudeMode, "linear"},
		{"SFXSampleRateHz", cfg.SFXSampleRateHz, 32000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.expected {
				t.Errorf("Config.%s = %v, want %v", tt.name, tt.got, tt.expected)
			}
		})
	}
}

func TestLoad_TOMLParsing(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.toml")

	configData := `
TickRateHz = 100
DefaultAuxALevel = 0.25
DefaultAuxBLevel = 0.1
MIDICoalesceMS = 2.5
MIDISingleThread = true
LogLevel = "debug"
AmplitudeMode = "percent"
SFXSampleRateHz = 44100
`
	if err := os.WriteFile(configPath, []byte(configData), 0o644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	viper.Reset()
	viper.SetConfigName("config")
	viper.SetConfigType("toml")
	viper.AddConfigPath(tmpDir)

	viper.SetDefault("TickRateHz", 200)
	viper.SetDefault("DefaultAuxALevel", 0.0)
	viper.SetDefault("DefaultAuxBLevel", 0.0)
	viper.SetDefault("MIDICoalesceMS", 1.0)
	viper.SetDefault("MIDISingleThread", false)
	viper.SetDefault("LogLevel", "info")
	viper.SetDefault("AmplitudeMode", "linear")
	viper.SetDefault("SFXSampleRateHz", 32000)

	if err := viper.ReadInConfig(); err != nil {
		t.Fatalf("viper.ReadInConfig() failed: %v", err)
	}

	if err := viper.Unmarshal(&C); err != nil {
		t.Fatalf("viper.Unmarshal() failed: %v", err)
	}

	cfg := Get()

	tests := []struct {
		name     string
		got      interface{}
		expected interface{}
	}{
		{"TickRateHz", cfg.TickRateHz, 100},
		{"DefaultAuxALevel", cfg.DefaultAuxALevel, 0.25},
		{"DefaultAuxBLevel", cfg.DefaultAuxBLevel, 0.1},
		{"MIDICoalesceMS", cfg.MIDICoalesceMS, 2.5},
		{"MIDISingleThread", cfg.MIDISingleThread, true},
		{"LogLevel", cfg.LogLevel, "debug"},
		{"AmplitudeMode", cfg.AmplitudeMode, "percent"},
		{"SFXSampleRateHz", cfg.SFXSampleRateHz, 44100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.expected {
				t.Errorf("Config.%s = %v, want %v", tt.name, tt.got, tt.expected)
			}
		})
	}
}

func TestLoad_MissingFileFallback(t *testing.T) {
	viper.Reset()
	viper.SetConfigName("config")
	viper.SetConfigType("toml")
	viper.AddConfigPath("/nonexistent/path")

	if err := Load(); err != nil {
		t.Errorf("Load() with missing file should not error, got: %v", err)
	}

	cfg := Get()
	if cfg.TickRateHz != 200 {
		t.Errorf("Default TickRateHz = %d, want 200", cfg.TickRateHz)
	}
}

func TestSave_RoundTrip(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.toml")

	viper.Reset()
	viper.SetConfigName("config")
	viper.SetConfigType("toml")
	viper.AddConfigPath(tmpDir)

	if err := Load(); err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	cfg := Config{
		TickRateHz:       120,
		DefaultAuxALevel: 0.3,
		DefaultAuxBLevel: 0.2,
		MIDICoalesceMS:   1.5,
		MIDISingleThread: true,
		LogLevel:         "warn",
		AmplitudeMode:    "percent",
		SFXSampleRateHz:  48000,
	}
	Set(cfg)

	viper.Set("TickRateHz", cfg.TickRateHz)
	viper.Set("DefaultAuxALevel", cfg.DefaultAuxALevel)
	viper.Set("DefaultAuxBLevel", cfg.DefaultAuxBLevel)
	viper.Set("MIDICoalesceMS", cfg.MIDICoalesceMS)
	viper.Set("MIDISingleThread", cfg.MIDISingleThread)
	viper.Set("LogLevel", cfg.LogLevel)
	viper.Set("AmplitudeMode", cfg.AmplitudeMode)
	viper.Set("SFXSampleRateHz", cfg.SFXSampleRateHz)

	if err := viper.WriteConfigAs(configPath); err != nil {
		t.Fatalf("viper.WriteConfigAs() failed: %v", err)
	}

	viper.Reset()
	viper.SetConfigName("config")
	viper.SetConfigType("toml")
	viper.AddConfigPath(tmpDir)

	if err := Load(); err != nil {
		t.Fatalf("Load() after save failed: %v", err)
	}

	newCfg := Get()
	if newCfg.TickRateHz != 120 {
		t.Errorf("TickRateHz = %d, want 120", newCfg.TickRateHz)
	}
	if newCfg.LogLevel != "warn" {
		t.Errorf("LogLevel = %s, want warn", newCfg.LogLevel)
	}
	if newCfg.MIDICoalesceMS != 1.5 {
		t.Errorf("MIDICoalesceMS = %f, want 1.5", newCfg.MIDICoalesceMS)
	}
}

func TestWatch_HotReload(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.toml")

	initialData := `
TickRateHz = 200
LogLevel = "info"
AmplitudeMode = "linear"
`
	if err := os.WriteFile(configPath, []byte(initialData), 0o644); err != nil {
		t.Fatalf("Failed to write initial config: %v", err)
	}

	viper.Reset()

	mu.Lock()
	C = Config{}
	mu.Unlock()

	viper.SetConfigName("config")
	viper.SetConfigType("toml")
	viper.AddConfigPath(tmpDir)

	viper.SetDefault("TickRateHz", 200)
	viper.SetDefault("LogLevel", "info")
	viper.SetDefault("AmplitudeMode", "linear")

	if err := viper.ReadInConfig(); err != nil {
		t.Fatalf("viper.ReadInConfig() failed: %v", err)
	}

	mu.Lock()
	if err := viper.Unmarshal(&C); err != nil {
		mu.Unlock()
		t.Fatalf("viper.Unmarshal() failed: %v", err)
	}
	mu.Unlock()

	initialCfg := Get()
	if initialCfg.TickRateHz != 200 {
		t.Fatalf("Initial TickRateHz = %d, want 200", initialCfg.TickRateHz)
	}

	var callbackCalled bool
	var newCfg Config
	var cbMu sync.Mutex

	callback := func(old, new Config) {
		cbMu.Lock()
		callbackCalled = true
		newCfg = new
		cbMu.Unlock()
		t.Logf("Hot-reload callback invoked: old.TickRateHz=%d, new.TickRateHz=%d", old.TickRateHz, new.TickRateHz)
	}

	stop, err := Watch(callback)
	if err != nil {
		t.Fatalf("Watch() failed: %v", err)
	}
	defer stop()

	time.Sleep(100 * time.Millisecond)

	modifiedData := `
TickRateHz = 100
LogLevel = "debug"
AmplitudeMode = "percent"
`
	if err := os.WriteFile(configPath, []byte(modifiedData), 0o644); err != nil {
		t.Fatalf("Failed to write modified config: %v", err)
	}

	time.Sleep(500 * time.Millisecond)

	cbMu.Lock()
	called := callbackCalled
	cbMu.Unlock()

	if !called {
		t.Error("Callback was not called after config change")
		return
	}

	cbMu.Lock()
	if newCfg.TickRateHz != 100 {
		t.Errorf("Callback new.TickRateHz = %d, want 100", newCfg.TickRateHz)
	}
	if newCfg.LogLevel != "debug" {
		t.Errorf("Callback new.LogLevel = %s, want debug", newCfg.LogLevel)
	}
	cbMu.Unlock()

	cfg := Get()
	if cfg.TickRateHz != 100 {
		t.Errorf("Global TickRateHz = %d, want 100", cfg.TickRateHz)
	}
	if cfg.AmplitudeMode != "percent" {
		t.Errorf("Global AmplitudeMode = %s, want percent", cfg.AmplitudeMode)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("Global LogLevel = %s, want debug", cfg.LogLevel)
	}
}

func TestWatch_NilCallback(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.toml")

	initialData := `TickRateHz = 200`
	if err := os.WriteFile(configPath, []byte(initialData), 0o644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	viper.Reset()
	viper.SetConfigName("config")
	viper.SetConfigType("toml")
	viper.AddConfigPath(tmpDir)

	if err := Load(); err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	stop, err := Watch(nil)
	if err != nil {
		t.Fatalf("Watch(nil) failed: %v", err)
	}
	defer stop()

	time.Sleep(100 * time.Millisecond)

	modifiedData := `TickRateHz = 100`
	if err := os.WriteFile(configPath, []byte(modifiedData), 0o644); err != nil {
		t.Fatalf("Failed to write modified config: %v", err)
	}

	time.Sleep(500 * time.Millisecond)

	cfg := Get()
	if cfg.TickRateHz != 100 {
		t.Errorf("TickRateHz = %d, want 100", cfg.TickRateHz)
	}
}

func TestGetSet_Concurrency(t *testing.T) {
	viper.Reset()
	if err := Load(); err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	var wg sync.WaitGroup
	iterations := 100

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < iterations; j++ {
				_ = Get()
			}
		}()
	}

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < iterations; j++ {
				cfg := Get()
				cfg.TickRateHz = 200 + id
				Set(cfg)
			}
		}(i)
	}

	wg.Wait()

	cfg := Get()
	if cfg.TickRateHz < 200 || cfg.TickRateHz >= 210 {
		t.Logf("Final TickRateHz = %d (expected in range [200, 210))", cfg.TickRateHz)
	}
}

func TestLoad_InvalidTOML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.toml")

	invalidData := `
TickRateHz = "not a number"
[[[invalid structure
`
	if err := os.WriteFile(configPath, []byte(invalidData), 0o644); err != nil {
		t.Fatalf("Failed to write invalid config: %v", err)
	}

	viper.Reset()
	viper.SetConfigName("config")
	viper.SetConfigType("toml")
	viper.AddConfigPath(tmpDir)

	err := Load()
	if err == nil {
		t.Error("Load() should return error for invalid TOML")
	}
}

func BenchmarkGet(b *testing.B) {
	viper.Reset()
	if err := Load(); err != nil {
		b.Fatalf("Load() failed: %v", err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = Get()
	}
}

func BenchmarkSet(b *testing.B) {
	viper.Reset()
	if err := Load(); err != nil {
		b.Fatalf("Load() failed: %v", err)
	}

	cfg := Get()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Set(cfg)
	}
}

func BenchmarkGetSet_Concurrent(b *testing.B) {
	viper.Reset()
	if err := Load(); err != nil {
		b.Fatalf("Load() failed: %v", err)
	}

	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			cfg := Get()
			cfg.TickRateHz = 150
			Set(cfg)
		}
	})
}
