package engine

import (
	"encoding/base64"
	"fmt"
	"image"
	"strings"

	"gocv.io/x/gocv"

	"github.com/n0remac/detectrtc/internal/core"
)

// stripDataURI removes a "data:image/...;base64," prefix if present,
// returning the raw base64 payload either way.
func stripDataURI(s string) string {
	if idx := strings.Index(s, ",") ; strings.HasPrefix(s, "data:") && idx >= 0 {
		return s[idx+1:]
	}
	return s
}

// decodeFrame turns a (possibly data-URI-wrapped) base64 JPEG/PNG
// payload into a BGR gocv.Mat. The caller must Close the returned Mat.
func decodeFrame(imageData string) (gocv.Mat, error) {
	raw, err := base64.StdEncoding.DecodeString(stripDataURI(imageData))
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("engine: invalid base64 frame payload: %w", err)
	}
	mat, err := gocv.IMDecode(raw, gocv.IMReadColor)
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("engine: frame decode failed: %w", err)
	}
	if mat.Empty() {
		mat.Close()
		return gocv.NewMat(), fmt.Errorf("engine: decoded frame is empty")
	}
	return mat, nil
}

// preprocess resizes the decoded frame to the detector's fixed
// [640,640] input and builds the normalized RGB tensor blob gocv's DNN
// module expects.
func preprocess(mat gocv.Mat) gocv.Mat {
	size := image.Pt(core.DetectorInputSize, core.DetectorInputSize)
	return gocv.BlobFromImage(mat, 1.0/255.0, size, gocv.NewScalar(0, 0, 0, 0), true, false)
}
