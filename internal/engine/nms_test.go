package engine

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/n0remac/detectrtc/internal/core"
)

func box(score, x0, y0, x1, y1 float64) core.Detection {
	return core.Detection{Label: "person", Score: score, XMin: x0, YMin: y0, XMax: x1, YMax: y1}
}

func TestNonMaxSuppressionDropsHeavyOverlap(t *testing.T) {
	dets := []core.Detection{
		box(0.9, 0.1, 0.1, 0.5, 0.5),
		box(0.8, 0.12, 0.12, 0.52, 0.52), // near-identical box, should be suppressed
		box(0.7, 0.6, 0.6, 0.9, 0.9),     // distinct box, should survive
	}

	kept := nonMaxSuppress(dets, core.NMSIoUThreshold)

	require.Len(t, kept, 2)
	require.Equal(t, 0.9, kept[0].Score)
	require.Equal(t, 0.7, kept[1].Score)
}

func TestNonMaxSuppressionKeepsDisjointBoxes(t *testing.T) {
	dets := []core.Detection{
		box(0.9, 0.0, 0.0, 0.2, 0.2),
		box(0.8, 0.5, 0.5, 0.7, 0.7),
		box(0.7, 0.8, 0.8, 1.0, 1.0),
	}

	kept := nonMaxSuppress(dets, core.NMSIoUThreshold)
	require.Len(t, kept, 3)
}

func TestNonMaxSuppressionEmptyInput(t *testing.T) {
	require.Empty(t, nonMaxSuppress(nil, core.NMSIoUThreshold))
}

func TestClamp01(t *testing.T) {
	require.Equal(t, 0.0, clamp01(-0.5))
	require.Equal(t, 1.0, clamp01(1.5))
	require.Equal(t, 0.42, clamp01(0.42))
}

func TestLabelForInRange(t *testing.T) {
	require.Equal(t, "person", labelFor(0))
	require.Equal(t, "toothbrush", labelFor(core.NumClasses-1))
}

func TestStripDataURI(t *testing.T) {
	require.Equal(t, "QUJD", stripDataURI("data:image/jpeg;base64,QUJD"))
	require.Equal(t, "QUJD", stripDataURI("QUJD"))
}
