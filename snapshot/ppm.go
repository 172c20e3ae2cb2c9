package snapshot

import (
	"bufio"
	"fmt"
	"image"
	"io"
)

// maxPPMDimension bounds header values so a corrupt stream cannot force a
// huge allocation.
const maxPPMDimension = 16384

// readPPM reads one binary PPM (P6, 8-bit) image from r.
func readPPM(r *bufio.Reader) (*image.RGBA, error) {
	magic := make([]byte, 2)
	if _, err := io.ReadFull(r, magic); err != nil {
		return nil, err
	}
	if string(magic) != "P6" {
		return nil, fmt.Errorf("ppm: bad magic %q", magic)
	}

	var dims [3]int
	for i := range dims {
		v, err := readPPMInt(r)
		if err != nil {
			return nil, fmt.Errorf("ppm: header: %w", err)
		}
		dims[i] = v
	}
	width, height, maxVal := dims[0], dims[1], dims[2]
	if width <= 0 || height <= 0 || width > maxPPMDimension || height > maxPPMDimension {
		return nil, fmt.Errorf("ppm: bad size %dx%d", width, height)
	}
	if maxVal <= 0 || maxVal > 255 {
		return nil, fmt.Errorf("ppm: unsupported maxval %d", maxVal)
	}

	// exactly one whitespace byte separates the header from the raster
	if _, err := r.ReadByte(); err != nil {
		return nil, err
	}

	row := make([]byte, width*3)
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		if _, err := io.ReadFull(r, row); err != nil {
			return nil, fmt.Errorf("ppm: raster: %w", err)
		}
		off := y * img.Stride
		for x := 0; x < width; x++ {
			px := img.Pix[off+x*4 : off+x*4+4 : off+x*4+4]
			px[0] = scalePPM(row[x*3], maxVal)
			px[1] = scalePPM(row[x*3+1], maxVal)
			px[2] = scalePPM(row[x*3+2], maxVal)
			px[3] = 0xff
		}
	}
	return img, nil
}

func scalePPM(v byte, maxVal int) byte {
	if maxVal == 255 {
		return v
	}
	return byte(int(v) * 255 / maxVal)
}

// readPPMInt skips whitespace and comments, then reads a decimal integer.
// The delimiter after the digits is left unread.
func readPPMInt(r *bufio.Reader) (int, error) {
	var c byte
	var err error
	for {
		c, err = r.ReadByte()
		if err != nil {
			return 0, err
		}
		if c == '#' {
			if _, err := r.ReadString('\n'); err != nil {
				return 0, err
			}
			continue
		}
		if !isPPMSpace(c) {
			break
		}
	}

	n := 0
	digits := 0
	for {
		if c < '0' || c > '9' {
			if digits == 0 {
				return 0, fmt.Errorf("unexpected byte %q", c)
			}
			return n, r.UnreadByte()
		}
		n = n*10 + int(c-'0')
		digits++
		if n > 1<<20 {
			return 0, fmt.Errorf("value too large")
		}
		c, err = r.ReadByte()
		if err != nil {
			return 0, err
		}
	}
}

func isPPMSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\v' || c == '\f'
}
