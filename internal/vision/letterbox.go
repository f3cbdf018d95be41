package vision

import "fmt"

// Letterbox describes the uniform-scale-plus-centered-padding transform the
// detector preprocessing uses to fit a rectangular source frame into its
// fixed square model input without distortion. ToSource inverts it exactly,
// so a box mapped forward and back reproduces the original within float
// epsilon.
type Letterbox struct {
	ModelSize float64
	SourceW   float64
	SourceH   float64

	scale float64
	padX  float64
	padY  float64
}

// NewLetterbox derives the transform parameters for the given model input
// size and source frame dimensions.
func NewLetterbox(modelSize, sourceW, sourceH float64) (Letterbox, error) {
	if modelSize <= 0 {
		return Letterbox{}, fmt.Errorf("model size must be positive, got %v", modelSize)
	}
	if sourceW <= 0 || sourceH <= 0 {
		return Letterbox{}, fmt.Errorf("source dimensions must be positive, got %vx%v", sourceW, sourceH)
	}

	scale := modelSize / sourceW
	if s := modelSize / sourceH; s < scale {
		scale = s
	}

	return Letterbox{
		ModelSize: modelSize,
		SourceW:   sourceW,
		SourceH:   sourceH,
		scale:     scale,
		padX:      (modelSize - sourceW*scale) / 2,
		padY:      (modelSize - sourceH*scale) / 2,
	}, nil
}

// Scale returns the uniform scale factor applied by the forward transform.
func (lb Letterbox) Scale() float64 { return lb.scale }

// ToSource maps a model-space box back to source-frame pixels. Confidence
// passes through unchanged.
func (lb Letterbox) ToSource(b Box) Box {
	return Box{
		X:          (b.X - lb.padX) / lb.scale,
		Y:          (b.Y - lb.padY) / lb.scale,
		Width:      b.Width / lb.scale,
		Height:     b.Height / lb.scale,
		Confidence: b.Confidence,
	}
}

// ToModel applies the forward letterbox transform, mapping a source-space
// box into model space. Used by replay tooling and tests.
func (lb Letterbox) ToModel(b Box) Box {
	return Box{
		X:          b.X*lb.scale + lb.padX,
		Y:          b.Y*lb.scale + lb.padY,
		Width:      b.Width * lb.scale,
		Height:     b.Height * lb.scale,
		Confidence: b.Confidence,
	}
}

// MapToSource converts a whole detection batch to source space.
func (lb Letterbox) MapToSource(boxes []Box) []Box {
	if boxes == nil {
		return nil
	}
	out := make([]Box, len(boxes))
	for i, b := range boxes {
		out[i] = lb.ToSource(b)
	}
	return out
}
