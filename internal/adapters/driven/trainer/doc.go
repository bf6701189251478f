// Package trainer provides the TrainingEngine backends.
//
//   - Stub writes a fixed checkpoint and adapter pair with no GPU work.
//   - Command renders a command template, runs it through the shell and
//     checks that the adapter weights were produced.
//
// Both backends lay out their output directory the same way:
//
//	<output>/adapter/adapter_config.json
//	<output>/adapter/adapter_model.safetensors
//	<output>/checkpoints/<step>/...
package trainer
