// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package ktx2

import (
	"errors"
)

// Region locates the payload of one (mip, layer, face)
// image within a cubemap container.
// Rows are tightly packed.
type Region struct {
	Level  int
	Layer  int
	Face   int
	Off    int64
	Length int64
	Width  int
	Height int
}

// LoadCube parses a cubemap container and derives the copy
// regions of every face image.
// The container must have exactly six faces and no
// supercompression; any GPU format is accepted.
func LoadCube(data []byte) (*File, []Region, error) {
	f, err := Parse(data)
	if err != nil {
		return nil, nil, err
	}
	if f.Faces != 6 {
		return nil, nil, errors.New(prefix + "not a cubemap")
	}
	n := f.Layers * f.Faces
	regions := make([]Region, 0, n*len(f.Levels))
	for l := range f.Levels {
		lv := &f.Levels[l]
		faceSize := lv.Length / int64(n)
		for layer := 0; layer < f.Layers; layer++ {
			for face := 0; face < 6; face++ {
				regions = append(regions, Region{
					Level:  l,
					Layer:  layer,
					Face:   face,
					Off:    lv.Off + int64(layer*6+face)*faceSize,
					Length: faceSize,
					Width:  lv.Width,
					Height: lv.Height,
				})
			}
		}
	}
	return f, regions, nil
}
