// Package session dumps a human-readable snapshot of the engine's live
// studio graph for debugging and support tooling, serialized as YAML.
package session

import (
	"gopkg.in/yaml.v3"

	"github.com/opd-ai/amuse-engine/pkg/amuse/engine"
	"github.com/opd-ai/amuse-engine/pkg/amuse/voice"
)

// StudioSnapshot is the serializable view of one studio.
type StudioSnapshot struct {
	ID      int32 `yaml:"id"`
	Default bool  `yaml:"default"`
}

// VoiceSnapshot is the serializable view of one live voice.
type VoiceSnapshot struct {
	ID       int32   `yaml:"id"`
	ObjectID uint16  `yaml:"objectId"`
	State    string  `yaml:"state"`
	Volume   float64 `yaml:"volume"`
	Pan      float64 `yaml:"pan"`
	Keygroup uint8   `yaml:"keygroup,omitempty"`
}

// Snapshot is the full dumpable engine state graph.
type Snapshot struct {
	Studios []StudioSnapshot `yaml:"studios"`
	Voices  []VoiceSnapshot  `yaml:"voices"`
}

func stateName(s voice.State) string {
	switch s {
	case voice.Playing:
		return "playing"
	case voice.KeyOff:
		return "keyoff"
	case voice.Finished:
		return "finished"
	default:
		return "unknown"
	}
}

// Build walks an engine's live studios and voices into a Snapshot.
func Build(e *engine.Engine) Snapshot {
	var snap Snapshot
	for _, s := range e.Studios() {
		snap.Studios = append(snap.Studios, StudioSnapshot{ID: int32(s.ID), Default: s.Default})
	}
	for _, v := range e.Voices() {
		snap.Voices = append(snap.Voices, VoiceSnapshot{
			ID:       int32(v.ID),
			ObjectID: uint16(v.ObjectID),
			State:    stateName(v.State()),
			Volume:   v.Volume,
			Pan:      v.Pan,
			Keygroup: v.Keygroup,
		})
	}
	return snap
}

// Dump renders a Snapshot as YAML text.
func Dump(snap Snapshot) (string, error) {
	b, err := yaml.Marshal(snap)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
