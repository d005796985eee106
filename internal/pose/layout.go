package pose

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownLayout is returned for a landmark layout name that is not supported.
var ErrUnknownLayout = errors.New("unknown landmark layout")

// Layout describes how an estimator orders its landmark array.
type Layout struct {
	Name  string
	Size  int
	index map[JointRef]int
}

// MediaPipe is the 33-point BlazePose layout.
var MediaPipe = Layout{
	Name: "mediapipe",
	Size: 33,
	index: map[JointRef]int{
		{Left, Shoulder}: 11, {Right, Shoulder}: 12,
		{Left, Elbow}: 13, {Right, Elbow}: 14,
		{Left, Wrist}: 15, {Right, Wrist}: 16,
		{Left, Hip}: 23, {Right, Hip}: 24,
		{Left, Knee}: 25, {Right, Knee}: 26,
		{Left, Ankle}: 27, {Right, Ankle}: 28,
	},
}

// COCO is the 17-keypoint layout used by YOLOv8-pose and MoveNet.
var COCO = Layout{
	Name: "coco",
	Size: 17,
	index: map[JointRef]int{
		{Left, Shoulder}: 5, {Right, Shoulder}: 6,
		{Left, Elbow}: 7, {Right, Elbow}: 8,
		{Left, Wrist}: 9, {Right, Wrist}: 10,
		{Left, Hip}: 11, {Right, Hip}: 12,
		{Left, Knee}: 13, {Right, Knee}: 14,
		{Left, Ankle}: 15, {Right, Ankle}: 16,
	},
}

// LayoutByName returns the layout registered under name (case-insensitive).
// An empty name selects MediaPipe.
func LayoutByName(name string) (Layout, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "mediapipe", "blazepose":
		return MediaPipe, nil
	case "coco", "coco17", "yolov8":
		return COCO, nil
	}
	return Layout{}, fmt.Errorf("%w: %q", ErrUnknownLayout, name)
}

// Joint returns the tracked joint at array position i, if any.
func (l Layout) Joint(i int) (JointRef, bool) {
	for ref, idx := range l.index {
		if idx == i {
			return ref, true
		}
	}
	return JointRef{}, false
}

// Map picks the tracked joints out of an indexed landmark array. Arrays
// shorter than the layout simply yield fewer joints.
func (l Layout) Map(points []Landmark) map[JointRef]Landmark {
	out := make(map[JointRef]Landmark, len(l.index))
	for ref, i := range l.index {
		if i < len(points) {
			out[ref] = points[i]
		}
	}
	return out
}
