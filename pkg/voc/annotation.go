// Package voc reads and writes datasets in the PASCAL VOC directory layout:
//
//	<root>/JPEGImages/<id>.jpg
//	<root>/Annotations/<id>.xml
//	<root>/ImageSets/Main/[<class>_]<set>.txt
package voc

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"image"
	_ "image/jpeg" // DecodeConfig
	_ "image/png"

	"github.com/user/pedvoc/pkg/pipeline"
)

// Annotation is the XML document stored for one image.
type Annotation struct {
	XMLName   xml.Name `xml:"annotation"`
	Folder    string   `xml:"folder"`
	Filename  string   `xml:"filename"`
	Source    Source   `xml:"source"`
	Size      Size     `xml:"size"`
	Segmented int      `xml:"segmented"`
	Objects   []Object `xml:"object"`
}

// Source names the dataset an image comes from.
type Source struct {
	Database   string `xml:"database"`
	Annotation string `xml:"annotation"`
	Image      string `xml:"image"`
	URL        string `xml:"url"`
}

// Size is the image size. Depth is always 3.
type Size struct {
	Width  int `xml:"width"`
	Height int `xml:"height"`
	Depth  int `xml:"depth"`
}

// Object is one labelled box.
type Object struct {
	Name      string `xml:"name"`
	BndBox    BndBox `xml:"bndbox"`
	Difficult int    `xml:"difficult"`
	Occlusion int    `xml:"occlusion"`
}

// BndBox holds inclusive pixel corners.
type BndBox struct {
	XMin int `xml:"xmin"`
	YMin int `xml:"ymin"`
	XMax int `xml:"xmax"`
	YMax int `xml:"ymax"`
}

// Rect returns the box as an image.Rectangle.
func (b BndBox) Rect() image.Rectangle {
	return image.Rect(b.XMin, b.YMin, b.XMax, b.YMax)
}

// NewAnnotation builds the document for image id of dataset. Every box is
// labelled class; an empty box list produces an annotation without objects.
func NewAnnotation(dataset, id string, width, height int, class string, boxes []pipeline.BBox) Annotation {
	a := Annotation{
		Folder:   dataset + "_voc",
		Filename: id,
		Source: Source{
			Database:   dataset,
			Annotation: dataset,
			Image:      dataset,
			URL:        "None",
		},
		Size: Size{Width: width, Height: height, Depth: 3},
	}
	for _, b := range boxes {
		a.Objects = append(a.Objects, Object{
			Name:   class,
			BndBox: BndBox{XMin: b.X1, YMin: b.Y1, XMax: b.X2, YMax: b.Y2},
		})
	}
	return a
}

// Marshal renders the annotation as indented XML without a declaration.
func (a Annotation) Marshal() ([]byte, error) {
	data, err := xml.MarshalIndent(a, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal annotation %s: %w", a.Filename, err)
	}
	return append(data, '\n'), nil
}

// ParseAnnotation decodes an annotation document.
func ParseAnnotation(data []byte) (Annotation, error) {
	var a Annotation
	if err := xml.NewDecoder(bytes.NewReader(data)).Decode(&a); err != nil {
		return Annotation{}, fmt.Errorf("parse annotation: %w", err)
	}
	return a, nil
}

// ImageSize returns the dimensions of an encoded JPEG or PNG image
// without decoding its pixels.
func ImageSize(data []byte) (width, height int, err error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0, fmt.Errorf("read image size: %w", err)
	}
	return cfg.Width, cfg.Height, nil
}

// Sanitize clips boxes to the image, keeping 1 <= x <= width and
// 1 <= y <= height, drops boxes that collapse to a line and orders
// the corners so that x1 < x2 and y1 < y2.
func Sanitize(boxes []pipeline.BBox, width, height int) []pipeline.BBox {
	out := make([]pipeline.BBox, 0, len(boxes))
	for _, b := range boxes {
		b.X1 = max(b.X1, 1)
		b.Y1 = max(b.Y1, 1)
		b.X2 = min(b.X2, width)
		b.Y2 = min(b.Y2, height)
		if b.X1 == b.X2 || b.Y1 == b.Y2 {
			continue
		}
		out = append(out, pipeline.BBox{
			X1: min(b.X1, b.X2),
			Y1: min(b.Y1, b.Y2),
			X2: max(b.X1, b.X2),
			Y2: max(b.Y1, b.Y2),
		})
	}
	return out
}
