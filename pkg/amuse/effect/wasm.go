package effect

import (
	"fmt"

	"github.com/wasmerio/wasmer-go/wasmer"
)

// WasmEffect adapts a compiled WASM module exporting an `apply` function
// (`(ptr: i32, frames: i32, channels: i32) -> ()` operating on its own
// linear memory) into the Effect interface, letting studios chain
// user-authored DSP without linking native code into the engine.
type WasmEffect struct {
	name     string
	instance *wasmer.Instance
	memory   *wasmer.Memory
	apply    wasmer.NativeFunction
}

// NewWasmEffect compiles wasmBytes and binds its exported `apply`
// function and `memory` export.
func NewWasmEffect(name string, wasmBytes []byte) (*WasmEffect, error) {
	engine := wasmer.NewEngine()
	store := wasmer.NewStore(engine)

	module, err := wasmer.NewModule(store, wasmBytes)
	if err != nil {
		return nil, fmt.Errorf("effect: compile wasm module %q: %w", name, err)
	}

	importObject := wasmer.NewImportObject()
	instance, err := wasmer.NewInstance(module, importObject)
	if err != nil {
		return nil, fmt.Errorf("effect: instantiate wasm module %q: %w", name, err)
	}

	memory, err := instance.Exports.GetMemory("memory")
	if err != nil {
		return nil, fmt.Errorf("effect: wasm module %q does not export memory: %w", name, err)
	}

	apply, err := instance.Exports.GetRawFunction("apply")
	if err != nil {
		return nil, fmt.Errorf("effect: wasm module %q does not export apply: %w", name, err)
	}
	nativeApply := apply.Native()

	return &WasmEffect{name: name, instance: instance, memory: memory, apply: nativeApply}, nil
}

func (w *WasmEffect) Name() string { return w.name }

// Apply copies buf into the module's linear memory at offset 0, invokes
// apply(0, frameCount, channels), then copies the (possibly mutated)
// region back out.
func (w *WasmEffect) Apply(buf []int16, frameCount, channels int) {
	n := frameCount * channels
	if n > len(buf) {
		n = len(buf)
	}
	mem := w.memory.Data()
	needed := n * 2
	if needed > len(mem) {
		return
	}
	for i := 0; i < n; i++ {
		mem[i*2] = byte(buf[i])
		mem[i*2+1] = byte(buf[i] >> 8)
	}

	if _, err := w.apply(int32(0), int32(frameCount), int32(channels)); err != nil {
		return
	}

	mem = w.memory.Data()
	for i := 0; i < n; i++ {
		buf[i] = int16(uint16(mem[i*2]) | uint16(mem[i*2+1])<<8)
	}
}
