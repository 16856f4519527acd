package filters

import (
	"fmt"

	"leanpdf/object"
)

// applyPredictor undoes the /Predictor transform declared in a
// filter's decode parameters. Predictor 1 (or absent) is a no-op.
func applyPredictor(data []byte, params *object.Dict) ([]byte, error) {
	if params == nil {
		return data, nil
	}
	pred, _ := params.Int("Predictor")
	if pred <= 1 {
		return data, nil
	}
	columns := intOrDefault(params, "Columns", 1)
	colors := intOrDefault(params, "Colors", 1)
	bpc := intOrDefault(params, "BitsPerComponent", 8)

	switch {
	case pred == 2:
		return undoTIFFPredictor(data, columns, colors, bpc)
	case pred >= 10 && pred <= 15:
		return undoPNGPredictor(data, columns, colors, bpc)
	default:
		return nil, fmt.Errorf("unsupported predictor %d", pred)
	}
}

func intOrDefault(d *object.Dict, key object.Name, def int) int {
	if v, ok := d.Int(key); ok && v > 0 {
		return int(v)
	}
	return def
}

func undoTIFFPredictor(data []byte, columns, colors, bpc int) ([]byte, error) {
	if bpc != 8 {
		return nil, fmt.Errorf("TIFF predictor needs 8 bits per component, got %d", bpc)
	}
	rowSize := columns * colors
	if rowSize == 0 || len(data)%rowSize != 0 {
		return nil, fmt.Errorf("data length %d not a multiple of row size %d", len(data), rowSize)
	}
	out := make([]byte, len(data))
	copy(out, data)
	for row := 0; row < len(data)/rowSize; row++ {
		base := row * rowSize
		for i := colors; i < rowSize; i++ {
			out[base+i] += out[base+i-colors]
		}
	}
	return out, nil
}

// undoPNGPredictor reverses PNG row filters (None/Sub/Up/Average/
// Paeth). Each encoded row carries its filter type in a leading byte.
func undoPNGPredictor(data []byte, columns, colors, bpc int) ([]byte, error) {
	bpp := (colors*bpc + 7) / 8
	rowSize := (columns*colors*bpc + 7) / 8
	stride := rowSize + 1
	if stride == 1 || len(data)%stride != 0 {
		return nil, fmt.Errorf("data length %d not a multiple of row stride %d", len(data), stride)
	}
	rows := len(data) / stride
	out := make([]byte, rows*rowSize)
	for row := 0; row < rows; row++ {
		ft := data[row*stride]
		src := data[row*stride+1 : (row+1)*stride]
		dst := out[row*rowSize : (row+1)*rowSize]
		copy(dst, src)
		var prev []byte
		if row > 0 {
			prev = out[(row-1)*rowSize : row*rowSize]
		}
		switch ft {
		case 0: // None
		case 1: // Sub
			for i := bpp; i < rowSize; i++ {
				dst[i] += dst[i-bpp]
			}
		case 2: // Up
			for i := 0; i < rowSize && prev != nil; i++ {
				dst[i] += prev[i]
			}
		case 3: // Average
			for i := 0; i < rowSize; i++ {
				var left, up int
				if i >= bpp {
					left = int(dst[i-bpp])
				}
				if prev != nil {
					up = int(prev[i])
				}
				dst[i] += byte((left + up) / 2)
			}
		case 4: // Paeth
			for i := 0; i < rowSize; i++ {
				var left, up, upLeft byte
				if i >= bpp {
					left = dst[i-bpp]
				}
				if prev != nil {
					up = prev[i]
					if i >= bpp {
						upLeft = prev[i-bpp]
					}
				}
				dst[i] += paeth(left, up, upLeft)
			}
		default:
			return nil, fmt.Errorf("unknown PNG row filter %d", ft)
		}
	}
	return out, nil
}

func paeth(a, b, c byte) byte {
	p := int(a) + int(b) - int(c)
	pa := abs(p - int(a))
	pb := abs(p - int(b))
	pc := abs(p - int(c))
	if pa <= pb && pa <= pc {
		return a
	}
	if pb <= pc {
		return b
	}
	return c
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
