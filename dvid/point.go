package dvid

import (
	"fmt"
	"strconv"
	"strings"
)

// Point2d is an ordered pair of 32-bit signed integers, e.g., a position or
// extent within a 2d plane.
type Point2d [2]int32

func (p Point2d) Add(p2 Point2d) Point2d {
	return Point2d{p[0] + p2[0], p[1] + p2[1]}
}

func (p Point2d) Sub(p2 Point2d) Point2d {
	return Point2d{p[0] - p2[0], p[1] - p2[1]}
}

// Prod returns the product of the point elements.
func (p Point2d) Prod() int64 {
	return int64(p[0]) * int64(p[1])
}

func (p Point2d) String() string {
	return fmt.Sprintf("(%d, %d)", p[0], p[1])
}

// Point3d is an ordered list of three 32-bit signed integers.
type Point3d [3]int32

// SetMinimum sets the point to the minimum elements of current and passed points.
func (p *Point3d) SetMinimum(p2 Point3d) {
	for i := 0; i < 3; i++ {
		if p[i] > p2[i] {
			p[i] = p2[i]
		}
	}
}

// SetMaximum sets the point to the maximum elements of current and passed points.
func (p *Point3d) SetMaximum(p2 Point3d) {
	for i := 0; i < 3; i++ {
		if p[i] < p2[i] {
			p[i] = p2[i]
		}
	}
}

// Add returns the addition of two points.
func (p Point3d) Add(p2 Point3d) Point3d {
	return Point3d{p[0] + p2[0], p[1] + p2[1], p[2] + p2[2]}
}

// Sub returns the subtraction of the passed point from the receiver.
func (p Point3d) Sub(p2 Point3d) Point3d {
	return Point3d{p[0] - p2[0], p[1] - p2[1], p[2] - p2[2]}
}

// Downres returns the coordinate of the point at the given scale level,
// where each level halves the resolution along every axis.
func (p Point3d) Downres(scale uint8) Point3d {
	return Point3d{p[0] >> scale, p[1] >> scale, p[2] >> scale}
}

// Upres is the inverse of Downres, returning the full resolution coordinate
// of the first voxel covered by the point at the given scale.
func (p Point3d) Upres(scale uint8) Point3d {
	return Point3d{p[0] << scale, p[1] << scale, p[2] << scale}
}

// Within returns true if the point lies within the inclusive bounds.
func (p Point3d) Within(minPt, maxPt Point3d) bool {
	for i := 0; i < 3; i++ {
		if p[i] < minPt[i] || p[i] > maxPt[i] {
			return false
		}
	}
	return true
}

// Prod returns the product of the point elements.
func (p Point3d) Prod() int64 {
	return int64(p[0]) * int64(p[1]) * int64(p[2])
}

func (p Point3d) String() string {
	return fmt.Sprintf("(%d,%d,%d)", p[0], p[1], p[2])
}

// NdString is the string representation of a point, one string per dimension.
type NdString []string

// Point3d returns a Point3d from a 3-element NdString.
func (n NdString) Point3d() (p Point3d, err error) {
	if len(n) != 3 {
		return p, fmt.Errorf("cannot convert %d-element string to 3d point", len(n))
	}
	for i, s := range n {
		var v int64
		if v, err = strconv.ParseInt(strings.TrimSpace(s), 10, 32); err != nil {
			return
		}
		p[i] = int32(v)
	}
	return
}

// StringToPoint3d parses a string like "10_20_30" or "10,20,30" given the separator.
func StringToPoint3d(str, separator string) (Point3d, error) {
	elems := strings.Split(str, separator)
	if len(elems) != 3 {
		return Point3d{}, fmt.Errorf("cannot convert %q into a 3d point", str)
	}
	return NdString(elems).Point3d()
}
