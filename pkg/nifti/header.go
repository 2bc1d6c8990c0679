// Package nifti reads and writes single-file NIfTI-1 volumes (.nii, .nii.gz)
// as models.MaskVolume values.
package nifti

import (
	"encoding/binary"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

const (
	headerSize   = 348
	defaultVoxel = 352
)

// Datatype codes from the NIfTI-1 header.
const (
	DTUint8   int16 = 2
	DTInt16   int16 = 4
	DTInt32   int16 = 8
	DTFloat32 int16 = 16
	DTFloat64 int16 = 64
	DTInt8    int16 = 256
	DTUint16  int16 = 512
	DTUint32  int16 = 768
)

// header holds the subset of NIfTI-1 fields the mask pipeline uses.
type header struct {
	SizeofHdr int32
	Dim       [8]int16
	Datatype  int16
	Bitpix    int16
	Pixdim    [8]float32
	VoxOffset float32
	SclSlope  float32
	SclInter  float32
	QformCode int16
	SformCode int16
	QuaternB  float32
	QuaternC  float32
	QuaternD  float32
	QoffsetX  float32
	QoffsetY  float32
	QoffsetZ  float32
	SrowX     [4]float32
	SrowY     [4]float32
	SrowZ     [4]float32
	Magic     [4]byte
	byteOrder binary.ByteOrder
}

// decodeHeader parses the fixed 348-byte header, detecting byte order from
// sizeof_hdr.
func decodeHeader(b []byte) (*header, error) {
	if len(b) < headerSize {
		return nil, fmt.Errorf("nifti header truncated: %d bytes", len(b))
	}
	h := &header{}
	switch {
	case binary.LittleEndian.Uint32(b[0:4]) == headerSize:
		h.byteOrder = binary.LittleEndian
	case binary.BigEndian.Uint32(b[0:4]) == headerSize:
		h.byteOrder = binary.BigEndian
	default:
		return nil, fmt.Errorf("not a NIfTI-1 header (sizeof_hdr=%d)", binary.LittleEndian.Uint32(b[0:4]))
	}
	bo := h.byteOrder
	f32 := func(off int) float32 { return math.Float32frombits(bo.Uint32(b[off : off+4])) }
	i16 := func(off int) int16 { return int16(bo.Uint16(b[off : off+2])) }

	h.SizeofHdr = headerSize
	for i := 0; i < 8; i++ {
		h.Dim[i] = i16(40 + 2*i)
		h.Pixdim[i] = f32(76 + 4*i)
	}
	h.Datatype = i16(70)
	h.Bitpix = i16(72)
	h.VoxOffset = f32(108)
	h.SclSlope = f32(112)
	h.SclInter = f32(116)
	h.QformCode = i16(252)
	h.SformCode = i16(254)
	h.QuaternB = f32(256)
	h.QuaternC = f32(260)
	h.QuaternD = f32(264)
	h.QoffsetX = f32(268)
	h.QoffsetY = f32(272)
	h.QoffsetZ = f32(276)
	for i := 0; i < 4; i++ {
		h.SrowX[i] = f32(280 + 4*i)
		h.SrowY[i] = f32(296 + 4*i)
		h.SrowZ[i] = f32(312 + 4*i)
	}
	copy(h.Magic[:], b[344:348])
	if h.Magic != [4]byte{'n', '+', '1', 0} {
		return nil, fmt.Errorf("unsupported NIfTI magic %q (only single-file n+1 is read)", string(h.Magic[:3]))
	}
	return h, nil
}

// encode renders the header as 348 little-endian bytes.
func (h *header) encode() []byte {
	b := make([]byte, headerSize)
	bo := binary.LittleEndian
	pf := func(off int, v float32) { bo.PutUint32(b[off:off+4], math.Float32bits(v)) }
	pi := func(off int, v int16) { bo.PutUint16(b[off:off+2], uint16(v)) }

	bo.PutUint32(b[0:4], headerSize)
	for i := 0; i < 8; i++ {
		pi(40+2*i, h.Dim[i])
		pf(76+4*i, h.Pixdim[i])
	}
	pi(70, h.Datatype)
	pi(72, h.Bitpix)
	pf(108, h.VoxOffset)
	pf(112, h.SclSlope)
	pf(116, h.SclInter)
	b[123] = 10 // xyzt_units: mm + sec
	pi(252, h.QformCode)
	pi(254, h.SformCode)
	pf(256, h.QuaternB)
	pf(260, h.QuaternC)
	pf(264, h.QuaternD)
	pf(268, h.QoffsetX)
	pf(272, h.QoffsetY)
	pf(276, h.QoffsetZ)
	for i := 0; i < 4; i++ {
		pf(280+4*i, h.SrowX[i])
		pf(296+4*i, h.SrowY[i])
		pf(312+4*i, h.SrowZ[i])
	}
	copy(b[344:348], []byte{'n', '+', '1', 0})
	return b
}

// affine returns the index-to-world transform, preferring sform, then qform,
// then a pixdim-only scaling, as the NIfTI-1 standard prescribes.
func (h *header) affine() *mat.Dense {
	if h.SformCode > 0 {
		return mat.NewDense(4, 4, []float64{
			float64(h.SrowX[0]), float64(h.SrowX[1]), float64(h.SrowX[2]), float64(h.SrowX[3]),
			float64(h.SrowY[0]), float64(h.SrowY[1]), float64(h.SrowY[2]), float64(h.SrowY[3]),
			float64(h.SrowZ[0]), float64(h.SrowZ[1]), float64(h.SrowZ[2]), float64(h.SrowZ[3]),
			0, 0, 0, 1,
		})
	}
	dx, dy, dz := float64(h.Pixdim[1]), float64(h.Pixdim[2]), float64(h.Pixdim[3])
	if h.QformCode > 0 {
		b, c, d := float64(h.QuaternB), float64(h.QuaternC), float64(h.QuaternD)
		a := 1 - (b*b + c*c + d*d)
		if a < 1e-7 {
			// 180 degree rotation: renormalise (b, c, d)
			a = 1 / math.Sqrt(b*b+c*c+d*d)
			b, c, d = b*a, c*a, d*a
			a = 0
		} else {
			a = math.Sqrt(a)
		}
		qfac := float64(h.Pixdim[0])
		if qfac == 0 {
			qfac = 1
		}
		r := [3][3]float64{
			{a*a + b*b - c*c - d*d, 2*b*c - 2*a*d, 2*b*d + 2*a*c},
			{2*b*c + 2*a*d, a*a + c*c - b*b - d*d, 2*c*d - 2*a*b},
			{2*b*d - 2*a*c, 2*c*d + 2*a*b, a*a + d*d - c*c - b*b},
		}
		zooms := [3]float64{dx, dy, dz * qfac}
		off := [3]float64{float64(h.QoffsetX), float64(h.QoffsetY), float64(h.QoffsetZ)}
		data := make([]float64, 16)
		for i := 0; i < 3; i++ {
			for j := 0; j < 3; j++ {
				data[i*4+j] = r[i][j] * zooms[j]
			}
			data[i*4+3] = off[i]
		}
		data[15] = 1
		return mat.NewDense(4, 4, data)
	}
	return mat.NewDense(4, 4, []float64{
		dx, 0, 0, 0,
		0, dy, 0, 0,
		0, 0, dz, 0,
		0, 0, 0, 1,
	})
}

func bytesPerVoxel(datatype int16) (int, error) {
	switch datatype {
	case DTUint8, DTInt8:
		return 1, nil
	case DTInt16, DTUint16:
		return 2, nil
	case DTInt32, DTUint32, DTFloat32:
		return 4, nil
	case DTFloat64:
		return 8, nil
	}
	return 0, fmt.Errorf("unsupported NIfTI datatype %d", datatype)
}
