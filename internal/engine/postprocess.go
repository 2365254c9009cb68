package engine

import (
	"sort"

	"gocv.io/x/gocv"

	"github.com/n0remac/detectrtc/internal/core"
)

// cocoLabels is the fixed 80-class COCO label set the detector's output
// channel 5 (class id) indexes into.
var cocoLabels = [core.NumClasses]string{
	"person", "bicycle", "car", "motorcycle", "airplane", "bus", "train", "truck", "boat",
	"traffic light", "fire hydrant", "stop sign", "parking meter", "bench", "bird", "cat",
	"dog", "horse", "sheep", "cow", "elephant", "bear", "zebra", "giraffe", "backpack",
	"umbrella", "handbag", "tie", "suitcase", "frisbee", "skis", "snowboard", "sports ball",
	"kite", "baseball bat", "baseball glove", "skateboard", "surfboard", "tennis racket",
	"bottle", "wine glass", "cup", "fork", "knife", "spoon", "bowl", "banana", "apple",
	"sandwich", "orange", "broccoli", "carrot", "hot dog", "pizza", "donut", "cake", "chair",
	"couch", "potted plant", "bed", "dining table", "toilet", "tv", "laptop", "mouse",
	"remote", "keyboard", "cell phone", "microwave", "oven", "toaster", "sink", "refrigerator",
	"book", "clock", "vase", "scissors", "teddy bear", "hair drier", "toothbrush",
}

func labelFor(classID int) string {
	return cocoLabels[classID]
}

// postprocess walks a [1,N,6] detector output tensor (x0,y0,x1,y1,score,
// classID per row, in the detector's [0,640] input coordinate frame),
// discards candidates with a class id outside [0,80), normalizes
// coordinates by dividing by the input size and clamping to [0,1],
// applies the score threshold, sorts by descending score, and runs NMS.
func postprocess(raw gocv.Mat, scoreThreshold float64) []core.Detection {
	sizes := raw.Size()
	if len(sizes) < 3 {
		return nil
	}
	n := sizes[1]
	cols := sizes[2]
	if cols < 6 {
		return nil
	}

	const size = float64(core.DetectorInputSize)
	dets := make([]core.Detection, 0, n)
	for i := 0; i < n; i++ {
		score := float64(raw.GetFloatAt3(0, i, 4))
		if score <= scoreThreshold {
			continue
		}
		classID := int(raw.GetFloatAt3(0, i, 5))
		if classID < 0 || classID >= core.NumClasses {
			continue
		}
		d := core.Detection{
			XMin:  clamp01(float64(raw.GetFloatAt3(0, i, 0)) / size),
			YMin:  clamp01(float64(raw.GetFloatAt3(0, i, 1)) / size),
			XMax:  clamp01(float64(raw.GetFloatAt3(0, i, 2)) / size),
			YMax:  clamp01(float64(raw.GetFloatAt3(0, i, 3)) / size),
			Score: score,
			Label: labelFor(classID),
		}
		if !d.Valid() {
			continue
		}
		dets = append(dets, d)
	}

	sort.SliceStable(dets, func(i, j int) bool { return dets[i].Score > dets[j].Score })
	return nonMaxSuppress(dets, core.NMSIoUThreshold)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// nonMaxSuppress greedily keeps the highest-scoring box in each
// overlapping cluster, discarding any later box whose IoU against an
// already-kept box exceeds iouThreshold. dets must already be sorted by
// descending score.
func nonMaxSuppress(dets []core.Detection, iouThreshold float64) []core.Detection {
	kept := make([]core.Detection, 0, len(dets))
	suppressed := make([]bool, len(dets))
	for i := range dets {
		if suppressed[i] {
			continue
		}
		kept = append(kept, dets[i])
		for j := i + 1; j < len(dets); j++ {
			if suppressed[j] {
				continue
			}
			if dets[i].IoU(dets[j]) > iouThreshold {
				suppressed[j] = true
			}
		}
	}
	return kept
}
