// Package store writes and reads simulation volumes as zstd-compressed
// little-endian uint32 payloads with a YAML header describing shape and axes.
//
// A volume named "gt" in dir is stored as dir/gt.yaml and dir/gt.zst.
package store

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
	"gopkg.in/yaml.v3"

	"simexm/pkg/simerr"
	"simexm/pkg/volume"
)

const (
	dtypeUint32 = "uint32"
	codecZstd   = "zstd"
)

// Header describes a stored volume.
type Header struct {
	Shape []int  `yaml:"shape"`
	DType string `yaml:"dtype"`
	Codec string `yaml:"codec"`

	// Axes names the axes, e.g. "CZXY" or "ZXY"
	Axes string `yaml:"axes"`

	// Channels names the entries of the leading axis of a fluorophore volume
	Channels []string `yaml:"channels,omitempty"`
}

// WriteArray stores a under name in dir, creating dir if needed.
func WriteArray(dir, name string, a *volume.Array, axes string, channels []string) error {
	if a == nil {
		return fmt.Errorf("%w: nil volume", simerr.ErrInvalidInput)
	}
	if len(axes) != a.Rank() {
		return fmt.Errorf("%w: axes %q do not match rank %d", simerr.ErrInvalidInput, axes, a.Rank())
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	header := Header{
		Shape:    a.Shape(),
		DType:    dtypeUint32,
		Codec:    codecZstd,
		Axes:     axes,
		Channels: channels,
	}
	meta, err := yaml.Marshal(&header)
	if err != nil {
		return fmt.Errorf("failed to marshal header: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, name+".yaml"), meta, 0644); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	raw := make([]byte, 4*a.Len())
	for i, v := range a.Data() {
		binary.LittleEndian.PutUint32(raw[4*i:], v)
	}

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	defer enc.Close()

	if err := os.WriteFile(filepath.Join(dir, name+".zst"), enc.EncodeAll(raw, nil), 0644); err != nil {
		return fmt.Errorf("failed to write payload: %w", err)
	}
	return nil
}

// ReadArray loads the volume stored under name in dir.
func ReadArray(dir, name string) (*volume.Array, *Header, error) {
	meta, err := os.ReadFile(filepath.Join(dir, name+".yaml"))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read header: %w", err)
	}
	var header Header
	if err := yaml.Unmarshal(meta, &header); err != nil {
		return nil, nil, fmt.Errorf("failed to parse header: %w", err)
	}
	if header.DType != dtypeUint32 {
		return nil, nil, fmt.Errorf("%w: unsupported dtype %q", simerr.ErrInvalidInput, header.DType)
	}
	if header.Codec != codecZstd {
		return nil, nil, fmt.Errorf("%w: unsupported codec %q", simerr.ErrInvalidInput, header.Codec)
	}

	compressed, err := os.ReadFile(filepath.Join(dir, name+".zst"))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read payload: %w", err)
	}

	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}
	defer dec.Close()

	raw, err := dec.DecodeAll(compressed, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("zstd decompress failed: %w", err)
	}
	if len(raw)%4 != 0 {
		return nil, nil, fmt.Errorf("%w: payload length %d is not a multiple of 4", simerr.ErrInvalidInput, len(raw))
	}

	data := make([]uint32, len(raw)/4)
	for i := range data {
		data[i] = binary.LittleEndian.Uint32(raw[4*i:])
	}
	a, err := volume.FromData(data, header.Shape...)
	if err != nil {
		return nil, nil, err
	}
	return a, &header, nil
}

// WriteYAML marshals v to dir/name.yaml, for parameter records.
func WriteYAML(dir, name string, v any) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	data, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", name, err)
	}
	if err := os.WriteFile(filepath.Join(dir, name+".yaml"), data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	return nil
}
