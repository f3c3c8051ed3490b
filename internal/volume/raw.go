package volume

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

func decodeRaw(r io.Reader, dataType DataType, order binary.ByteOrder, count int) ([]float32, error) {
	size := dataType.Size()
	if size == 0 {
		return nil, fmt.Errorf("unsupported voxel type %q", dataType)
	}
	if count <= 0 || count > MaxVoxels {
		return nil, fmt.Errorf("invalid voxel count %d", count)
	}
	buf := make([]byte, size*count)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("read %d voxels of %s: %w", count, dataType, err)
	}

	out := make([]float32, count)
	for i := 0; i < count; i++ {
		b := buf[i*size : (i+1)*size]
		switch dataType {
		case Uint8:
			out[i] = float32(b[0])
		case Int8:
			out[i] = float32(int8(b[0]))
		case Uint16:
			out[i] = float32(order.Uint16(b))
		case Int16:
			out[i] = float32(int16(order.Uint16(b)))
		case Uint32:
			out[i] = float32(order.Uint32(b))
		case Int32:
			out[i] = float32(int32(order.Uint32(b)))
		case Float32:
			out[i] = math.Float32frombits(order.Uint32(b))
		case Float64:
			out[i] = float32(math.Float64frombits(order.Uint64(b)))
		}
	}
	return out, nil
}

func encodeRaw(w io.Writer, v *Volume, order binary.ByteOrder) error {
	size := v.Type.Size()
	if size == 0 {
		return fmt.Errorf("unsupported voxel type %q", v.Type)
	}

	const chunk = 1 << 16
	buf := make([]byte, size*chunk)
	for start := 0; start < len(v.Data); start += chunk {
		end := start + chunk
		if end > len(v.Data) {
			end = len(v.Data)
		}
		n := 0
		for _, value := range v.Data[start:end] {
			b := buf[n : n+size]
			clamped := v.ClampToType(float64(value))
			switch v.Type {
			case Uint8:
				b[0] = uint8(clamped)
			case Int8:
				b[0] = uint8(int8(clamped))
			case Uint16:
				order.PutUint16(b, uint16(clamped))
			case Int16:
				order.PutUint16(b, uint16(int16(clamped)))
			case Uint32:
				order.PutUint32(b, uint32(clamped))
			case Int32:
				order.PutUint32(b, uint32(int32(clamped)))
			case Float32:
				order.PutUint32(b, math.Float32bits(clamped))
			case Float64:
				order.PutUint64(b, math.Float64bits(float64(value)))
			}
			n += size
		}
		if _, err := w.Write(buf[:n]); err != nil {
			return fmt.Errorf("write voxels: %w", err)
		}
	}
	return nil
}
