// Package matio reads and writes dense matrices in the binary exchange
// format: little-endian uint64 rows, uint64 cols, then rows·cols float32
// values in row-major order. Files ending in ".zst" are zstd-compressed.
package matio

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/mat"
)

// CompressedSuffix marks zstd-compressed matrix files.
const CompressedSuffix = ".zst"

// maxElements bounds the dimensions a header may declare.
const maxElements = 1 << 32

// initialCapacity caps the up-front allocation; the value slice grows as the
// payload actually arrives.
const initialCapacity = 1 << 20

var (
	// ErrHeader is returned for headers with zero or oversized dimensions.
	ErrHeader = errors.New("matio: invalid header")

	// ErrTruncated is returned when the payload ends early.
	ErrTruncated = errors.New("matio: truncated payload")
)

// Read decodes one matrix from r.
func Read(r io.Reader) (*mat.Dense, error) {
	var header [2]uint64
	if err := binary.Read(r, binary.LittleEndian, &header); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHeader, err)
	}
	rows, cols := header[0], header[1]
	if rows == 0 || cols == 0 || rows > maxElements/cols {
		return nil, fmt.Errorf("%w: %dx%d", ErrHeader, rows, cols)
	}

	n := int(rows * cols)
	data := make([]float64, 0, min(n, initialCapacity))
	buf := make([]byte, 4*min(n, 1<<16))
	for len(data) < n {
		chunk := buf[:4*min(n-len(data), len(buf)/4)]
		if _, err := io.ReadFull(r, chunk); err != nil {
			return nil, fmt.Errorf("%w: after %d of %d values: %v", ErrTruncated, len(data), n, err)
		}
		for off := 0; off < len(chunk); off += 4 {
			data = append(data, float64(math.Float32frombits(binary.LittleEndian.Uint32(chunk[off:]))))
		}
	}
	return mat.NewDense(int(rows), int(cols), data), nil
}

// Write encodes m to w. Values are narrowed to float32.
func Write(w io.Writer, m mat.Matrix) error {
	rows, cols := m.Dims()
	if err := binary.Write(w, binary.LittleEndian, [2]uint64{uint64(rows), uint64(cols)}); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	row := make([]byte, 4*cols)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			binary.LittleEndian.PutUint32(row[4*j:], math.Float32bits(float32(m.At(i, j))))
		}
		if _, err := w.Write(row); err != nil {
			return fmt.Errorf("write row %d: %w", i, err)
		}
	}
	return nil
}

// Load reads the matrix stored at path.
func Load(path string) (*mat.Dense, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var r io.Reader = bufio.NewReader(f)
	if strings.HasSuffix(path, CompressedSuffix) {
		dec, err := zstd.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("open zstd stream %s: %w", path, err)
		}
		defer dec.Close()
		r = dec
	}

	m, err := Read(r)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	rows, cols := m.Dims()
	log.Debug().Str("path", path).Int("rows", rows).Int("cols", cols).Msg("Loaded matrix")
	return m, nil
}

// Save writes m to path, compressing when path ends in ".zst".
func Save(path string, m mat.Matrix) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	bw := bufio.NewWriter(f)
	var w io.Writer = bw
	var enc *zstd.Encoder
	if strings.HasSuffix(path, CompressedSuffix) {
		enc, err = zstd.NewWriter(bw)
		if err != nil {
			return fmt.Errorf("open zstd stream %s: %w", path, err)
		}
		w = enc
	}

	if err := Write(w, m); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	if enc != nil {
		if err := enc.Close(); err != nil {
			return fmt.Errorf("close zstd stream %s: %w", path, err)
		}
	}
	return bw.Flush()
}
