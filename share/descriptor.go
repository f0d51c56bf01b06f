// Package share moves buffers between processes. A buffer travels as a JSON descriptor of its
// geometry, with one file descriptor per plane passed alongside it.
package share

import (
	"fmt"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/launchdarkly/go-jsonstream/v3/jreader"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/vkngwrapper/bufalloc/caps"
	"github.com/vkngwrapper/bufalloc/format"
	"github.com/vkngwrapper/bufalloc/gbm"
)

const (
	fieldWidth = 1 << iota
	fieldHeight
	fieldFormat
	fieldModifier
	fieldPlanes

	requiredFields = fieldWidth | fieldHeight | fieldFormat | fieldModifier | fieldPlanes
)

// NumPlanes returns the number of planes an ImportData carries: the leading file descriptors that
// are not negative. Unused descriptors must be -1, as BufferObject.Export leaves them.
func NumPlanes(data *gbm.ImportData) int {
	for plane, fd := range data.FDs {
		if fd < 0 {
			return plane
		}
	}
	return format.MaxPlanes
}

// Encode writes the geometry of data as a JSON document. File descriptors are not part of the
// document.
func Encode(data gbm.ImportData) ([]byte, error) {
	numPlanes := NumPlanes(&data)
	if numPlanes == 0 {
		return nil, errors.New("import data has no planes")
	}

	writer := jwriter.NewWriter()
	obj := writer.Object()

	obj.Name("Width").Int(int(data.Width))
	obj.Name("Height").Int(int(data.Height))
	obj.Name("Format").String(data.Format.String())
	obj.Name("Modifier").String(fmt.Sprintf("0x%016x", data.Modifier))
	obj.Name("Tiling").Int(int(data.Tiling))
	obj.Name("Use").Int(int(data.Use))

	planes := obj.Name("Planes").Array()
	for plane := 0; plane < numPlanes; plane++ {
		planeObj := planes.Object()
		planeObj.Name("Stride").Int(int(data.Strides[plane]))
		planeObj.Name("Offset").Int(int(data.Offsets[plane]))
		planeObj.End()
	}
	planes.End()

	obj.End()

	if err := writer.Error(); err != nil {
		return nil, errors.Wrap(err, "failed to encode import data")
	}
	return writer.Bytes(), nil
}

// Decode reads a document written by Encode. Every file descriptor of the returned data is -1;
// the number of planes the document describes is returned alongside it.
func Decode(doc []byte) (gbm.ImportData, int, error) {
	var data gbm.ImportData
	for plane := range data.FDs {
		data.FDs[plane] = -1
	}

	var seen int
	var numPlanes int
	reader := jreader.NewReader(doc)

	for obj := reader.Object(); obj.Next(); {
		switch string(obj.Name()) {
		case "Width":
			data.Width = uint32(reader.Int())
			seen |= fieldWidth
		case "Height":
			data.Height = uint32(reader.Int())
			seen |= fieldHeight
		case "Format":
			f, err := format.ParseFourCC(reader.String())
			if err != nil {
				reader.AddError(err)
			}
			data.Format = f
			seen |= fieldFormat
		case "Modifier":
			modifier, err := strconv.ParseUint(reader.String(), 0, 64)
			if err != nil {
				reader.AddError(errors.Wrap(err, "invalid modifier"))
			}
			data.Modifier = modifier
			seen |= fieldModifier
		case "Tiling":
			data.Tiling = caps.Tiling(reader.Int())
		case "Use":
			data.Use = caps.UseFlags(reader.Int())
		case "Planes":
			for planes := reader.Array(); planes.Next(); {
				if numPlanes == format.MaxPlanes {
					reader.AddError(errors.Newf("more than %d planes", format.MaxPlanes))
					break
				}
				for planeObj := reader.Object(); planeObj.Next(); {
					switch string(planeObj.Name()) {
					case "Stride":
						data.Strides[numPlanes] = uint32(reader.Int())
					case "Offset":
						data.Offsets[numPlanes] = uint32(reader.Int())
					default:
						_ = reader.SkipValue()
					}
				}
				numPlanes++
			}
			seen |= fieldPlanes
		default:
			_ = reader.SkipValue()
		}
	}

	if err := reader.Error(); err != nil {
		return gbm.ImportData{}, 0, errors.Wrap(err, "malformed buffer descriptor")
	}
	if seen&requiredFields != requiredFields {
		return gbm.ImportData{}, 0, errors.Newf("buffer descriptor is missing fields (found %05b)", seen)
	}
	if numPlanes == 0 {
		return gbm.ImportData{}, 0, errors.New("buffer descriptor has no planes")
	}

	return data, numPlanes, nil
}
