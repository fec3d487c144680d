package filters

import (
	"fmt"
	"slices"
)

// Kind identifies one of the supported filters. Its string form is used on
// the wire, in the request schema and as the usage log key.
type Kind string

const (
	Bright     Kind = "bright"
	Negative   Kind = "negative"
	WhiteBlack Kind = "white_black"
	GrayScale  Kind = "gray_scale"
	Sepia      Kind = "sepia"
	Contrast   Kind = "contrast"
	UpscaleX2  Kind = "upscale_x2"
	UpscaleX4  Kind = "upscale_x4"
)

// CoefficientParam is the params key read by parametric filters.
const CoefficientParam = "coefficient"

var kinds = []Kind{
	Bright,
	Negative,
	WhiteBlack,
	GrayScale,
	Sepia,
	Contrast,
	UpscaleX2,
	UpscaleX4,
}

// Kinds returns every supported kind in canonical order.
func Kinds() []Kind {
	return slices.Clone(kinds)
}

// ParametricKinds returns the kinds that require a coefficient.
func ParametricKinds() []Kind {
	var out []Kind
	for _, k := range kinds {
		if k.Parametric() {
			out = append(out, k)
		}
	}
	return out
}

// ParseKind converts a wire name to a Kind.
func ParseKind(name string) (Kind, error) {
	k := Kind(name)
	if !k.Valid() {
		return "", fmt.Errorf("unknown filter %q", name)
	}
	return k, nil
}

func (k Kind) String() string { return string(k) }

// Valid reports whether k is one of the supported kinds.
func (k Kind) Valid() bool {
	return slices.Contains(kinds, k)
}

// Parametric reports whether k takes a coefficient.
func (k Kind) Parametric() bool {
	switch k {
	case Bright, WhiteBlack, Contrast:
		return true
	}
	return false
}

// Spec is a validated request for one filter. Params only carries numeric
// values; parametric kinds always have CoefficientParam set.
type Spec struct {
	Kind   Kind
	Params map[string]float64
}

// Coefficient returns the coefficient parameter.
func (s Spec) Coefficient() float64 {
	return s.Params[CoefficientParam]
}
