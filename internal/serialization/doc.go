// Package serialization reads and writes model weights in the SafeTensors
// format.
//
//	Format Structure:
//	  [8 bytes: header_size (uint64 LE)]
//	  [header_size bytes: JSON header]
//	  [tensor data: raw little-endian bytes]
//
// Tensor names follow "<layer>.<param>", for example "block1_conv1.kernel".
// F32 and F64 tensors are supported; F64 is narrowed to float32 on load.
//
// Example usage:
//
//	if err := serialization.WriteSafeTensors("weights.safetensors", model.StateDict(), nil); err != nil {
//	    return err
//	}
//
//	stateDict, meta, err := serialization.ReadSafeTensors("weights.safetensors")
//	if err != nil {
//	    return err
//	}
//	err = model.LoadStateDict(stateDict)
package serialization
