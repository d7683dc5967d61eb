package gallery

import (
	"fmt"
	"io"
	"os"

	"github.com/sbinet/npyio"
)

// ReadNPY decodes a single embedding stored as a float32 or float64 numpy
// array. Multi-dimensional arrays such as (1, 128) are flattened.
func ReadNPY(r io.Reader) ([]float32, error) {
	npy, err := npyio.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("reading npy header: %w", err)
	}

	switch dt := npy.Header.Descr.Type; dt {
	case "<f4", "f4":
		var v []float32
		if err := npy.Read(&v); err != nil {
			return nil, fmt.Errorf("reading float32 data: %w", err)
		}
		return v, nil
	case "<f8", "f8":
		var v64 []float64
		if err := npy.Read(&v64); err != nil {
			return nil, fmt.Errorf("reading float64 data: %w", err)
		}
		v := make([]float32, len(v64))
		for i, x := range v64 {
			v[i] = float32(x)
		}
		return v, nil
	default:
		return nil, fmt.Errorf("unsupported npy dtype %q", dt)
	}
}

// ReadNPYFile reads an embedding from a .npy file.
func ReadNPYFile(path string) ([]float32, error) {
	f, err := os.Open(path) //nolint:gosec // gallery paths come from trusted config
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadNPY(f)
}

// WriteNPY encodes an embedding as a little-endian float32 numpy array.
func WriteNPY(w io.Writer, embedding []float32) error {
	if err := npyio.Write(w, embedding); err != nil {
		return fmt.Errorf("writing npy: %w", err)
	}
	return nil
}
