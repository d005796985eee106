package pose

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"
)

// Decoder yields frames from a landmark stream. Next returns io.EOF once the
// stream is exhausted; any other error means the stream is malformed.
type Decoder interface {
	Next() (Frame, error)
}

// Supported stream formats.
const (
	FormatJSONL = "jsonl"
	FormatCSV   = "csv"
)

// NewDecoder returns a decoder for the given format. Indexed landmark arrays
// are mapped through layout unless a frame names its own layout.
func NewDecoder(format string, r io.Reader, layout Layout) (Decoder, error) {
	switch strings.ToLower(format) {
	case FormatJSONL, "json", "ndjson", "":
		return NewJSONLDecoder(r, layout), nil
	case FormatCSV:
		return NewCSVDecoder(r, layout), nil
	}
	return nil, fmt.Errorf("unsupported frame format %q", format)
}

// FormatFromPath guesses the stream format from a file name.
func FormatFromPath(path string) (string, bool) {
	lower := strings.ToLower(path)
	switch {
	case strings.HasSuffix(lower, ".jsonl"), strings.HasSuffix(lower, ".ndjson"), strings.HasSuffix(lower, ".json"):
		return FormatJSONL, true
	case strings.HasSuffix(lower, ".csv"):
		return FormatCSV, true
	}
	return "", false
}

// ReadAll drains a decoder.
func ReadAll(dec Decoder) ([]Frame, error) {
	var frames []Frame
	for {
		f, err := dec.Next()
		if errors.Is(err, io.EOF) {
			return frames, nil
		}
		if err != nil {
			return frames, err
		}
		frames = append(frames, f)
	}
}

// WireLandmark is the JSON form of a landmark. A missing visibility means
// the estimator does not report one and the landmark is trusted.
type WireLandmark struct {
	X          float64  `json:"x"`
	Y          float64  `json:"y"`
	Visibility *float64 `json:"visibility,omitempty"`
}

func (w WireLandmark) landmark() (Landmark, error) {
	vis := 1.0
	if w.Visibility != nil {
		vis = *w.Visibility
	}
	lm := Landmark{X: w.X, Y: w.Y, Visibility: vis}
	return lm, lm.checkFinite()
}

// ErrNonFinite is returned for a landmark with a NaN or infinite value.
var ErrNonFinite = errors.New("non-finite landmark value")

func (l Landmark) checkFinite() error {
	for _, v := range [...]float64{l.X, l.Y, l.Visibility} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %v", ErrNonFinite, v)
		}
	}
	return nil
}

// WireFrame is the JSON form of a frame, used by the JSON Lines format and
// the live frames endpoint. Landmarks is an indexed array in Layout order;
// Joints is keyed by joint name. Either may be given.
type WireFrame struct {
	Seq       uint64                  `json:"seq,omitempty"`
	Time      time.Time               `json:"t,omitzero"`
	Detected  *bool                   `json:"detected,omitempty"`
	Layout    string                  `json:"layout,omitempty"`
	Landmarks []WireLandmark          `json:"landmarks,omitempty"`
	Joints    map[string]WireLandmark `json:"joints,omitempty"`
}

// Frame converts the wire form. Unknown joint names are ignored since
// estimators report many joints this package does not track.
func (w WireFrame) Frame(layout Layout) (Frame, error) {
	f := Frame{Seq: w.Seq, Time: w.Time}

	if w.Layout != "" {
		l, err := LayoutByName(w.Layout)
		if err != nil {
			return Frame{}, err
		}
		layout = l
	}

	if len(w.Landmarks) > 0 {
		points := make([]Landmark, len(w.Landmarks))
		for i, lm := range w.Landmarks {
			p, err := lm.landmark()
			if err != nil {
				return Frame{}, fmt.Errorf("landmark %d: %w", i, err)
			}
			points[i] = p
		}
		f.Landmarks = layout.Map(points)
	}

	for name, lm := range w.Joints {
		ref, err := ParseJointRef(name)
		if err != nil {
			continue
		}
		p, err := lm.landmark()
		if err != nil {
			return Frame{}, fmt.Errorf("joint %s: %w", name, err)
		}
		if f.Landmarks == nil {
			f.Landmarks = make(map[JointRef]Landmark, len(w.Joints))
		}
		f.Landmarks[ref] = p
	}

	f.Detected = len(f.Landmarks) > 0
	if w.Detected != nil && !*w.Detected {
		f.Detected = false
		f.Landmarks = nil
	}
	return f, nil
}

// JSONLDecoder reads one JSON object per frame.
type JSONLDecoder struct {
	dec    *json.Decoder
	layout Layout
	n      uint64
}

// NewJSONLDecoder creates a JSON Lines frame decoder.
func NewJSONLDecoder(r io.Reader, layout Layout) *JSONLDecoder {
	return &JSONLDecoder{dec: json.NewDecoder(r), layout: layout}
}

// Next decodes the next frame. Frames without a seq are numbered by position.
func (d *JSONLDecoder) Next() (Frame, error) {
	var w WireFrame
	if err := d.dec.Decode(&w); err != nil {
		if errors.Is(err, io.EOF) {
			return Frame{}, io.EOF
		}
		return Frame{}, fmt.Errorf("decoding frame %d: %w", d.n+1, err)
	}
	d.n++

	f, err := w.Frame(d.layout)
	if err != nil {
		return Frame{}, fmt.Errorf("frame %d: %w", d.n, err)
	}
	if f.Seq == 0 {
		f.Seq = d.n
	}
	return f, nil
}

// CSVDecoder reads rows of seq,joint,x,y[,visibility] grouped by seq. A row
// whose joint is "none" marks a frame without a detected pose. The joint
// column also accepts a numeric index into the decoder's layout.
type CSVDecoder struct {
	r       *csv.Reader
	layout  Layout
	header  bool
	pending []string
	line    int
}

// NewCSVDecoder creates a CSV frame decoder.
func NewCSVDecoder(r io.Reader, layout Layout) *CSVDecoder {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	return &CSVDecoder{r: cr, layout: layout}
}

func (d *CSVDecoder) read() ([]string, error) {
	if d.pending != nil {
		rec := d.pending
		d.pending = nil
		return rec, nil
	}
	for {
		rec, err := d.r.Read()
		if err != nil {
			return nil, err
		}
		d.line++
		if len(rec) == 0 || (len(rec) == 1 && strings.TrimSpace(rec[0]) == "") {
			continue
		}
		if !d.header {
			d.header = true
			if strings.EqualFold(strings.TrimSpace(rec[0]), "seq") {
				continue
			}
		}
		return rec, nil
	}
}

// Next collects all rows sharing the next seq value into one frame.
func (d *CSVDecoder) Next() (Frame, error) {
	var f Frame
	started := false

	for {
		rec, err := d.read()
		if errors.Is(err, io.EOF) {
			if started {
				f.Detected = len(f.Landmarks) > 0
				return f, nil
			}
			return Frame{}, io.EOF
		}
		if err != nil {
			return Frame{}, fmt.Errorf("reading csv: %w", err)
		}
		if len(rec) < 2 {
			return Frame{}, fmt.Errorf("line %d: expected at least seq and joint columns", d.line)
		}

		seq, err := strconv.ParseUint(strings.TrimSpace(rec[0]), 10, 64)
		if err != nil {
			return Frame{}, fmt.Errorf("line %d: parsing seq %q: %w", d.line, rec[0], err)
		}

		if !started {
			started = true
			f.Seq = seq
		} else if seq != f.Seq {
			d.pending = rec
			f.Detected = len(f.Landmarks) > 0
			return f, nil
		}

		joint := strings.TrimSpace(rec[1])
		if strings.EqualFold(joint, "none") {
			continue
		}

		ref, ok := d.resolve(joint)
		if !ok {
			continue
		}

		lm, err := parseCSVLandmark(rec)
		if err != nil {
			return Frame{}, fmt.Errorf("line %d: %w", d.line, err)
		}
		if f.Landmarks == nil {
			f.Landmarks = make(map[JointRef]Landmark)
		}
		f.Landmarks[ref] = lm
	}
}

func (d *CSVDecoder) resolve(joint string) (JointRef, bool) {
	if i, err := strconv.Atoi(joint); err == nil {
		return d.layout.Joint(i)
	}
	ref, err := ParseJointRef(joint)
	return ref, err == nil
}

func parseCSVLandmark(rec []string) (Landmark, error) {
	if len(rec) < 4 {
		return Landmark{}, fmt.Errorf("joint %s: expected x and y columns", rec[1])
	}
	x, err := strconv.ParseFloat(strings.TrimSpace(rec[2]), 64)
	if err != nil {
		return Landmark{}, fmt.Errorf("parsing x %q: %w", rec[2], err)
	}
	y, err := strconv.ParseFloat(strings.TrimSpace(rec[3]), 64)
	if err != nil {
		return Landmark{}, fmt.Errorf("parsing y %q: %w", rec[3], err)
	}
	vis := 1.0
	if len(rec) > 4 && strings.TrimSpace(rec[4]) != "" {
		vis, err = strconv.ParseFloat(strings.TrimSpace(rec[4]), 64)
		if err != nil {
			return Landmark{}, fmt.Errorf("parsing visibility %q: %w", rec[4], err)
		}
	}
	lm := Landmark{X: x, Y: y, Visibility: vis}
	if err := lm.checkFinite(); err != nil {
		return Landmark{}, fmt.Errorf("joint %s: %w", rec[1], err)
	}
	return lm, nil
}
