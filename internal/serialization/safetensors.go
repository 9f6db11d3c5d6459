package serialization

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"os"

	"github.com/born-ml/saliency/internal/tensor"
)

// SafeTensorsDType represents supported SafeTensors data types.
type SafeTensorsDType string

// Supported SafeTensors dtypes.
const (
	SafeTensorsF32 SafeTensorsDType = "F32"
	SafeTensorsF64 SafeTensorsDType = "F64"
)

// size returns the element width in bytes, or 0 if unsupported.
func (d SafeTensorsDType) size() int {
	switch d {
	case SafeTensorsF32:
		return 4
	case SafeTensorsF64:
		return 8
	default:
		return 0
	}
}

// MetadataChecksum is the metadata key under which the writer stores the
// hex SHA-256 of the data section. The reader verifies it when present.
const MetadataChecksum = "sha256"

// SafeTensorInfo describes a tensor in SafeTensors format.
type SafeTensorInfo struct {
	DType       SafeTensorsDType `json:"dtype"`
	Shape       []int            `json:"shape"`
	DataOffsets [2]int64         `json:"data_offsets"` // [start, end]
}

// SafeTensorsHeader is the JSON header in SafeTensors format.
type SafeTensorsHeader struct {
	Metadata map[string]string         `json:"__metadata__"`
	Tensors  map[string]SafeTensorInfo `json:"-"`
}

// UnmarshalJSON implements custom JSON unmarshaling for SafeTensorsHeader.
func (h *SafeTensorsHeader) UnmarshalJSON(data []byte) error {
	var rawMap map[string]json.RawMessage
	if err := json.Unmarshal(data, &rawMap); err != nil {
		return err
	}

	if metadataRaw, ok := rawMap["__metadata__"]; ok {
		if err := json.Unmarshal(metadataRaw, &h.Metadata); err != nil {
			return fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}

	// Everything except __metadata__ is a tensor.
	h.Tensors = make(map[string]SafeTensorInfo, len(rawMap))
	for key, value := range rawMap {
		if key == "__metadata__" {
			continue
		}
		var info SafeTensorInfo
		if err := json.Unmarshal(value, &info); err != nil {
			return fmt.Errorf("failed to unmarshal tensor %s: %w", key, err)
		}
		h.Tensors[key] = info
	}

	return nil
}

// ReadSafeTensors loads every tensor of a SafeTensors file as float32.
// It returns the tensors keyed by name together with the file metadata.
func ReadSafeTensors(path string) (map[string]*tensor.RawTensor, map[string]string, error) {
	//nolint:gosec // G304: File path comes from user input, which is expected for model loading
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read file: %w", err)
	}
	return DecodeSafeTensors(buf)
}

// DecodeSafeTensors parses an in-memory SafeTensors file.
func DecodeSafeTensors(buf []byte) (map[string]*tensor.RawTensor, map[string]string, error) {
	if len(buf) < 8 {
		return nil, nil, fmt.Errorf("file too short: %d bytes", len(buf))
	}

	headerSize := binary.LittleEndian.Uint64(buf[:8])
	if headerSize > MaxHeaderSize {
		return nil, nil, fmt.Errorf("%w: %d bytes", ErrHeaderTooLarge, headerSize)
	}
	if headerSize > uint64(len(buf)-8) {
		return nil, nil, fmt.Errorf("header size %d exceeds file size %d", headerSize, len(buf))
	}

	var header SafeTensorsHeader
	if err := json.Unmarshal(buf[8:8+headerSize], &header); err != nil {
		return nil, nil, fmt.Errorf("failed to parse header JSON: %w", err)
	}
	data := buf[8+headerSize:]

	if err := validateHeader(&header, int64(len(data))); err != nil {
		return nil, nil, err
	}

	if want, ok := header.Metadata[MetadataChecksum]; ok {
		decoded, err := hex.DecodeString(want)
		if err != nil || len(decoded) != 32 {
			return nil, nil, fmt.Errorf("invalid %s metadata %q", MetadataChecksum, want)
		}
		var stored [32]byte
		copy(stored[:], decoded)
		if err := ValidateChecksum(ComputeChecksum(data), stored); err != nil {
			return nil, nil, err
		}
	}

	tensors := make(map[string]*tensor.RawTensor, len(header.Tensors))
	for name, info := range header.Tensors {
		raw, err := decodeTensor(name, info, data)
		if err != nil {
			return nil, nil, err
		}
		tensors[name] = raw
	}
	return tensors, header.Metadata, nil
}

func validateHeader(h *SafeTensorsHeader, dataSize int64) error {
	regions := make([]tensorRegion, 0, len(h.Tensors))
	for name, info := range h.Tensors {
		if err := ValidateTensorName(name); err != nil {
			return err
		}
		elemSize := info.DType.size()
		if elemSize == 0 {
			return fmt.Errorf("tensor %s: %w %q", name, ErrUnsupportedDType, info.DType)
		}
		shape := tensor.Shape(info.Shape)
		if err := shape.Validate(); err != nil {
			return fmt.Errorf("tensor %s: %w", name, err)
		}
		size := info.DataOffsets[1] - info.DataOffsets[0]
		if size != int64(shape.NumElements()*elemSize) {
			return fmt.Errorf("tensor %s: %w: %d bytes for shape %v", name, ErrSizeMismatch, size, shape)
		}
		regions = append(regions, tensorRegion{Name: name, Offset: info.DataOffsets[0], Size: size})
	}
	return validateRegions(regions, dataSize)
}

func decodeTensor(name string, info SafeTensorInfo, data []byte) (*tensor.RawTensor, error) {
	raw, err := tensor.NewRaw(tensor.Shape(info.Shape), tensor.CPU)
	if err != nil {
		return nil, fmt.Errorf("tensor %s: %w", name, err)
	}
	src := data[info.DataOffsets[0]:info.DataOffsets[1]]
	dst := raw.Data()

	switch info.DType {
	case SafeTensorsF32:
		for i := range dst {
			dst[i] = math.Float32frombits(binary.LittleEndian.Uint32(src[i*4:]))
		}
	case SafeTensorsF64:
		for i := range dst {
			dst[i] = float32(math.Float64frombits(binary.LittleEndian.Uint64(src[i*8:])))
		}
	default:
		return nil, fmt.Errorf("tensor %s: %w %q", name, ErrUnsupportedDType, info.DType)
	}
	return raw, nil
}
