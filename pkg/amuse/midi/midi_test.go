package midi

import "testing"

func TestDecodeNoteOn(t *testing.T) {
	raw := []byte{0x90, 60, 100}
	e, n, ok := Decode(raw, 0)
	if !ok {
		t.Fatal("Decode() ok = false")
	}
	if n != 3 {
		t.Errorf("consumed = %d, want 3", n)
	}
	if e.Type != NoteOn || e.Channel != 0 || e.Data1 != 60 || e.Data2 != 100 {
		t.Errorf("event = %+v, want NoteOn chan=0 note=60 vel=100", e)
	}
}

func TestDecodeNoteOnZeroVelocityIsNoteOff(t *testing.T) {
	raw := []byte{0x91, 64, 0}
	e, _, ok := Decode(raw, 0)
	if !ok {
		t.Fatal("Decode() ok = false")
	}
	if e.Type != NoteOff || e.Channel != 1 {
		t.Errorf("event = %+v, want NoteOff chan=1", e)
	}
}

func TestDecodeNoteOff(t *testing.T) {
	raw := []byte{0x80, 60, 0}
	e, n, ok := Decode(raw, 0)
	if !ok || e.Type != NoteOff || n != 3 {
		t.Errorf("Decode() = %+v, %d, %v", e, n, ok)
	}
}

func TestDecodeControllerAllNotesOff(t *testing.T) {
	raw := []byte{0xB0, 123, 0}
	e, _, ok := Decode(raw, 0)
	if !ok || e.Type != AllNotesOff {
		t.Errorf("event = %+v, want AllNotesOff", e)
	}
}

func TestDecodeControllerAllSoundOff(t *testing.T) {
	raw := []byte{0xB2, 120, 0}
	e, _, ok := Decode(raw, 0)
	if !ok || e.Type != AllSoundOff || e.Channel != 2 {
		t.Errorf("event = %+v, want AllSoundOff chan=2", e)
	}
}

func TestDecodeController(t *testing.T) {
	raw := []byte{0xB0, 7, 100}
	e, _, ok := Decode(raw, 0)
	if !ok || e.Type != Controller || e.Data1 != 7 || e.Data2 != 100 {
		t.Errorf("event = %+v, want Controller ctrl=7 val=100", e)
	}
}

func TestDecodeProgramChange(t *testing.T) {
	raw := []byte{0xC3, 5}
	e, n, ok := Decode(raw, 0)
	if !ok || e.Type != ProgramChange || e.Data1 != 5 || e.Channel != 3 || n != 2 {
		t.Errorf("Decode() = %+v, %d, %v", e, n, ok)
	}
}

func TestDecodePitchWheel(t *testing.T) {
	raw := []byte{0xE0, 0x00, 0x40} // center value 0x2000
	e, n, ok := Decode(raw, 0)
	if !ok || e.Type != PitchWheel || n != 3 {
		t.Errorf("Decode() = %+v, %d, %v", e, n, ok)
	}
	norm := e.PitchWheelNorm()
	if norm < -0.01 || norm > 0.01 {
		t.Errorf("PitchWheelNorm() = %v, want ~0", norm)
	}
}

func TestDecodeIgnoredMessages(t *testing.T) {
	tests := []struct {
		name string
		raw  []byte
		n    int
	}{
		{"aftertouch", []byte{0xA0, 1, 2}, 3},
		{"channel pressure", []byte{0xD0, 1}, 2},
		{"sysex", []byte{0xF0}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, n, ok := Decode(tt.raw, 0)
			if !ok || e.Type != Ignored || n != tt.n {
				t.Errorf("Decode(%v) = %+v, %d, %v", tt.raw, e, n, ok)
			}
		})
	}
}

func TestDecodeEmptyOrShort(t *testing.T) {
	if _, _, ok := Decode(nil, 0); ok {
		t.Error("Decode(nil) ok = true, want false")
	}
	if _, _, ok := Decode([]byte{0x90, 60}, 0); ok {
		t.Error("Decode(short note-on) ok = true, want false")
	}
	if _, _, ok := Decode([]byte{0x30}, 0); ok {
		t.Error("Decode(data byte as status) ok = true, want false")
	}
}

func TestQueuePushDrainWindow(t *testing.T) {
	var q Queue
	q.Push(Event{TimestampMS: 0})
	q.Push(Event{TimestampMS: 0.5})
	q.Push(Event{TimestampMS: 2.0})

	drained := q.Drain(1.0)
	if len(drained) != 2 {
		t.Fatalf("Drain() returned %d events, want 2", len(drained))
	}

	remaining := q.Drain(1000)
	if len(remaining) != 1 {
		t.Fatalf("second Drain() returned %d events, want 1", len(remaining))
	}
}

func TestQueueDrainEmpty(t *testing.T) {
	var q Queue
	if out := q.Drain(5); out != nil {
		t.Errorf("Drain() on empty queue = %v, want nil", out)
	}
}

func TestQueueSingleThreaded(t *testing.T) {
	q := Queue{SingleThreaded: true}
	q.Push(Event{TimestampMS: 0})
	q.Push(Event{TimestampMS: 0.2})
	out := q.Drain(1.0)
	if len(out) != 2 {
		t.Errorf("Drain() = %d events, want 2", len(out))
	}
}
