// Package config handles loading and storing amuse-engine configuration.
package config

import (
	"context"
	"errors"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Config holds engine-wide tunables that live outside on-disk group/song
// data: scheduler tick rate, default studio aux send levels, MIDI event
// coalescing window, log level, and amplitude mode.
type Config struct {
	TickRateHz       int     `mapstructure:"TickRateHz"`       // scheduler ticks/sec, spec §4.6 default 200 (5ms)
	DefaultAuxALevel float64 `mapstructure:"DefaultAuxALevel"` // new studios' AuxA send level, 0..1
	DefaultAuxBLevel float64 `mapstructure:"DefaultAuxBLevel"` // new studios' AuxB send level, 0..1
	MIDICoalesceMS   float64 `mapstructure:"MIDICoalesceMS"`   // event-queue drain window, spec §5
	MIDISingleThread bool    `mapstructure:"MIDISingleThread"` // bypass the MIDI queue mutex
	LogLevel         string  `mapstructure:"LogLevel"`         // logrus level name
	AmplitudeMode    string  `mapstructure:"AmplitudeMode"`    // "linear" or "percent", spec §4.2
	SFXSampleRateHz  int     `mapstructure:"SFXSampleRateHz"`  // fallback rate for SFX lacking an explicit one
}

// C is the global configuration instance.
var C Config

// mu protects concurrent access to C during hot-reload.
var mu sync.RWMutex

// watcherMu protects the watcher state
var (
	watcherMu       sync.Mutex
	watcherActive   bool
	watcherCtx      context.Context
	watcherCancel   context.CancelFunc
	currentCallback ReloadCallback
)

// ReloadCallback is called when the configuration is hot-reloaded.
type ReloadCallback func(old, new Config)

// Load reads configuration from file and environment, populating C.
func Load() error {
	viper.SetConfigName("config")
	viper.SetConfigType("toml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("$HOME/.amuse-engine")

	viper.SetDefault("TickRateHz", 200)
	viper.SetDefault("DefaultAuxALevel", 0.0)
	viper.SetDefault("DefaultAuxBLevel", 0.0)
	viper.SetDefault("MIDICoalesceMS", 1.0)
	viper.SetDefault("MIDISingleThread", false)
	viper.SetDefault("LogLevel", "info")
	viper.SetDefault("AmplitudeMode", "linear")
	viper.SetDefault("SFXSampleRateHz", 32000)

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return err
		}
	}

	return viper.Unmarshal(&C)
}

// Save writes the current configuration to file.
func Save() error {
	mu.RLock()
	defer mu.RUnlock()

	viper.Set("TickRateHz", C.TickRateHz)
	viper.Set("DefaultAuxALevel", C.DefaultAuxALevel)
	viper.Set("DefaultAuxBLevel", C.DefaultAuxBLevel)
	viper.Set("MIDICoalesceMS", C.MIDICoalesceMS)
	viper.Set("MIDISingleThread", C.MIDISingleThread)
	viper.Set("LogLevel", C.LogLevel)
	viper.Set("AmplitudeMode", C.AmplitudeMode)
	viper.Set("SFXSampleRateHz", C.SFXSampleRateHz)

	return viper.WriteConfig()
}

// Watch starts watching the config file for changes and calls the callback on reload.
// Returns a stop function to cancel watching.
// Only one watcher can be active at a time. Calling Watch when a watcher is active
// will replace the callback but keep the same underlying file watcher (to avoid
// viper race conditions).
func Watch(callback ReloadCallback) (stop func(), err error) {
	watcherMu.Lock()
	defer watcherMu.Unlock()

	// If no watcher is active, start one
	if !watcherActive {
		ctx, cancel := context.WithCancel(context.Background())
		watcherCtx = ctx
		watcherCancel = cancel
		currentCallback = callback
		watcherActive = true

		// Start viper's file watcher (only once)
		viper.WatchConfig()
		viper.OnConfigChange(func(e fsnotify.Event) {
			watcherMu.Lock()
			cb := currentCallback
			ctx := watcherCtx
			watcherMu.Unlock()

			// Check if watcher has been stopped
			if ctx != nil {
				select {
				case <-ctx.Done():
					return
				default:
				}
			}

			mu.Lock()
			old := C
			var newCfg Config
			if err := viper.Unmarshal(&newCfg); err == nil {
				C = newCfg
				mu.Unlock()
				if cb != nil {
					cb(old, newCfg)
				}
			} else {
				mu.Unlock()
			}
		})
	} else {
		// Watcher already active, just replace the callback
		currentCallback = callback
	}

	return func() {
		watcherMu.Lock()
		defer watcherMu.Unlock()
		if watcherCancel != nil {
			watcherCancel()
			watcherCancel = nil
			watcherCtx = nil
		}
		watcherActive = false
		currentCallback = nil
	}, nil
}

// Get returns a copy of the current config safely.
func Get() Config {
	mu.RLock()
	defer mu.RUnlock()
	return C
}

// Set updates the config safely.
func Set(cfg Config) {
	mu.Lock()
	C = cfg
	mu.Unlock()
}
