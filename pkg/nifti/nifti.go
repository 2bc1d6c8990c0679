package nifti

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"
	"gonum.org/v1/gonum/mat"

	"rtstructgen/internal/models"
)

var gzipMagic = []byte{0x1f, 0x8b}

// ReadFile loads a NIfTI-1 volume. Gzip compression is detected from the
// stream itself, not the file name.
func ReadFile(path string) (*models.MaskVolume, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	vol, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	vol.Path = path
	return vol, nil
}

// Read decodes a NIfTI-1 volume from r.
func Read(r io.Reader) (*models.MaskVolume, error) {
	br := bufio.NewReader(r)
	magic, err := br.Peek(2)
	if err != nil {
		return nil, fmt.Errorf("peek: %w", err)
	}

	var src io.Reader = br
	if bytes.Equal(magic, gzipMagic) {
		zr, err := gzip.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("gzip: %w", err)
		}
		defer zr.Close()
		src = zr
	}

	raw := make([]byte, headerSize)
	if _, err := io.ReadFull(src, raw); err != nil {
		return nil, fmt.Errorf("header: %w", err)
	}
	h, err := decodeHeader(raw)
	if err != nil {
		return nil, err
	}

	ndim := int(h.Dim[0])
	if ndim < 3 || ndim > 7 {
		return nil, fmt.Errorf("expected a 3-D volume, header has %d dimensions", ndim)
	}
	for i := 4; i <= ndim; i++ {
		if h.Dim[i] > 1 {
			return nil, fmt.Errorf("expected a 3-D volume, dim[%d] = %d", i, h.Dim[i])
		}
	}
	dims := [3]int{int(h.Dim[1]), int(h.Dim[2]), int(h.Dim[3])}
	for i, d := range dims {
		if d < 0 {
			return nil, fmt.Errorf("negative dimension %d on axis %d", d, i)
		}
	}

	bpv, err := bytesPerVoxel(h.Datatype)
	if err != nil {
		return nil, err
	}

	// skip extensions up to vox_offset
	offset := int(h.VoxOffset)
	if offset < headerSize {
		offset = defaultVoxel
	}
	if _, err := io.CopyN(io.Discard, src, int64(offset-headerSize)); err != nil {
		return nil, fmt.Errorf("skip to voxel data: %w", err)
	}

	count := dims[0] * dims[1] * dims[2]
	payload, err := readPayload(src, int64(count)*int64(bpv))
	if err != nil {
		return nil, err
	}

	data := decodeVoxels(payload, h.Datatype, h.byteOrder, count)
	if h.SclSlope != 0 && !(h.SclSlope == 1 && h.SclInter == 0) {
		for i := range data {
			data[i] = data[i]*h.SclSlope + h.SclInter
		}
	}

	return &models.MaskVolume{
		Data:    data,
		Dims:    dims,
		Affine:  h.affine(),
		Spacing: [3]float64{float64(h.Pixdim[1]), float64(h.Pixdim[2]), float64(h.Pixdim[3])},
	}, nil
}

// readPayload reads exactly want bytes. The buffer grows with the data that
// actually arrives, so a header claiming more voxels than the stream holds
// fails without allocating the claimed size.
func readPayload(src io.Reader, want int64) ([]byte, error) {
	var buf bytes.Buffer
	n, err := buf.ReadFrom(io.LimitReader(src, want))
	if err != nil {
		return nil, fmt.Errorf("voxel data: %w", err)
	}
	if n < want {
		return nil, fmt.Errorf("voxel data: header declares %d bytes, stream holds %d", want, n)
	}
	return buf.Bytes(), nil
}

func decodeVoxels(b []byte, datatype int16, bo binary.ByteOrder, count int) []float32 {
	out := make([]float32, count)
	switch datatype {
	case DTUint8:
		for i := range out {
			out[i] = float32(b[i])
		}
	case DTInt8:
		for i := range out {
			out[i] = float32(int8(b[i]))
		}
	case DTInt16:
		for i := range out {
			out[i] = float32(int16(bo.Uint16(b[2*i:])))
		}
	case DTUint16:
		for i := range out {
			out[i] = float32(bo.Uint16(b[2*i:]))
		}
	case DTInt32:
		for i := range out {
			out[i] = float32(int32(bo.Uint32(b[4*i:])))
		}
	case DTUint32:
		for i := range out {
			out[i] = float32(bo.Uint32(b[4*i:]))
		}
	case DTFloat32:
		for i := range out {
			out[i] = math.Float32frombits(bo.Uint32(b[4*i:]))
		}
	case DTFloat64:
		for i := range out {
			out[i] = float32(math.Float64frombits(bo.Uint64(b[8*i:])))
		}
	}
	return out
}

// WriteFile stores vol as uint8 labels with an sform equal to vol.Affine.
// Paths ending in ".gz" are gzip compressed.
func WriteFile(path string, vol *models.MaskVolume) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := writeTo(f, path, vol); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func writeTo(f io.Writer, path string, vol *models.MaskVolume) error {
	var w io.Writer = f
	var zw *gzip.Writer
	if strings.HasSuffix(strings.ToLower(path), ".gz") {
		zw = gzip.NewWriter(f)
		w = zw
	}
	if err := Write(w, vol); err != nil {
		return err
	}
	if zw != nil {
		return zw.Close()
	}
	return nil
}

// Write encodes vol as an uncompressed single-file NIfTI-1 stream.
func Write(w io.Writer, vol *models.MaskVolume) error {
	count := vol.Dims[0] * vol.Dims[1] * vol.Dims[2]
	if len(vol.Data) != count {
		return fmt.Errorf("data length %d does not match dims %v", len(vol.Data), vol.Dims)
	}
	aff := vol.Affine
	if aff == nil {
		aff = mat.NewDense(4, 4, []float64{1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1})
	}

	h := &header{
		Datatype:  DTUint8,
		Bitpix:    8,
		VoxOffset: defaultVoxel,
		SclSlope:  1,
		SformCode: 2, // aligned
	}
	h.Dim = [8]int16{3, int16(vol.Dims[0]), int16(vol.Dims[1]), int16(vol.Dims[2]), 1, 1, 1, 1}
	h.Pixdim[0] = 1
	for i := 0; i < 3; i++ {
		col := mat.Col(nil, i, aff.Slice(0, 3, 0, 3))
		h.Pixdim[i+1] = float32(math.Sqrt(col[0]*col[0] + col[1]*col[1] + col[2]*col[2]))
	}
	for j := 0; j < 4; j++ {
		h.SrowX[j] = float32(aff.At(0, j))
		h.SrowY[j] = float32(aff.At(1, j))
		h.SrowZ[j] = float32(aff.At(2, j))
	}

	if _, err := w.Write(h.encode()); err != nil {
		return err
	}
	// 4 bytes of empty extension flag up to vox_offset 352
	if _, err := w.Write(make([]byte, defaultVoxel-headerSize)); err != nil {
		return err
	}
	payload := make([]byte, count)
	for i, v := range vol.Data {
		payload[i] = uint8(math.Max(0, math.Min(255, math.Round(float64(v)))))
	}
	_, err := w.Write(payload)
	return err
}
