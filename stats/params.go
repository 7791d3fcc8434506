package stats

import "math"

// Limits for the VLC channel parameters.
const (
	MinReceiverArea   = 1e-8
	MaxReceiverArea   = 1.0
	MinFieldOfView    = 0.0174
	MaxFieldOfView    = 3.1416
	MinLEDPower       = 1e-6
	MaxLEDPower       = 1000.0
	MinHalfPowerAngle = 0.0174
	MaxHalfPowerAngle = 1.5708
)

// StaticParameters holds the VLC channel parameters that stay constant for
// all paths of a frame. They weight histogram bins and are written as the
// header block of every export.
type StaticParameters struct {
	// Receiver effective area (m²).
	ReceiverArea float64 `json:"receiver_area_m2"`

	// LED Lambertian order m.
	LambertianOrder float64 `json:"led_lambertian_order"`

	// Propagation speed (m/s).
	PropagationSpeed float64 `json:"light_speed_ms"`

	// Receiver field of view (radians).
	FieldOfView float64 `json:"receiver_fov_rad"`

	// Optical filter transmittance T_s.
	OpticalFilterGain float64 `json:"optical_filter_gain"`

	// Optical concentration gain g.
	ConcentratorGain float64 `json:"optical_concentration"`
}

// Get the default static parameters: a 1 cm² receiver with a hemispherical
// field of view lit by a Lambertian source.
func DefaultStaticParameters() StaticParameters {
	return StaticParameters{
		ReceiverArea:      1e-4,
		LambertianOrder:   1.0,
		PropagationSpeed:  DefaultPropagationSpeed,
		FieldOfView:       math.Pi,
		OpticalFilterGain: 1.0,
		ConcentratorGain:  1.0,
	}
}

// Validate the parameters.
func (p StaticParameters) Validate() error {
	if err := checkRange("receiver area", p.ReceiverArea, MinReceiverArea, MaxReceiverArea); err != nil {
		return err
	}
	if err := checkRange("receiver field of view", p.FieldOfView, MinFieldOfView, MaxFieldOfView); err != nil {
		return err
	}
	positive := []struct {
		name string
		val  float64
	}{
		{"lambertian order", p.LambertianOrder},
		{"propagation speed", p.PropagationSpeed},
		{"optical filter gain", p.OpticalFilterGain},
		{"concentrator gain", p.ConcentratorGain},
	}
	for _, entry := range positive {
		if err := checkRange(entry.name, entry.val, math.SmallestNonzeroFloat64, math.MaxFloat64); err != nil {
			return err
		}
	}
	return nil
}

// The camera acting as the optical receiver. Lengths are in mm.
type CameraInfo struct {
	FocalLength float64
	FrameHeight float64
	AspectRatio float64
}

// Get the vertical field of view (radians).
func (c CameraInfo) FovY() float64 {
	return 2 * math.Atan(c.FrameHeight/(2*c.FocalLength))
}

// Get the effective receiver area of a single pixel (m²) for a frame with
// the given dimensions.
func (c CameraInfo) PixelArea(frameW, frameH uint32) float64 {
	sensorH := c.FrameHeight * 1e-3
	sensorW := sensorH * c.AspectRatio
	return sensorW * sensorH / float64(frameW*frameH)
}

// Compute the static parameters for a frame. A nil camera keeps the default
// receiver area and field of view; a light opening angle <= 0 keeps the
// default Lambertian order.
func DeriveStaticParameters(camera *CameraInfo, lightOpeningAngle float64, frameW, frameH uint32) StaticParameters {
	params := DefaultStaticParameters()

	if camera != nil && camera.FocalLength > 0 && camera.FrameHeight > 0 && frameW > 0 && frameH > 0 {
		params.ReceiverArea = camera.PixelArea(frameW, frameH)
		params.FieldOfView = camera.FovY()
	}

	if lightOpeningAngle > 0 {
		params.LambertianOrder = LambertianOrder(lightOpeningAngle)
	}

	return params
}

// Calculate the Lambertian order of a source with the given opening angle
// using m = -ln(2) / ln(cos(θ/2)). Sources with an opening angle >= π are
// treated as isotropic (m = 1). The result is never smaller than 0.1.
func LambertianOrder(openingAngle float64) float64 {
	if openingAngle >= math.Pi {
		return 1.0
	}

	cosHalfAngle := math.Cos(openingAngle * 0.5)
	if cosHalfAngle <= 0 || cosHalfAngle >= 1 {
		return 1.0
	}
	return math.Max(0.1, -math.Ln2/math.Log(cosHalfAngle))
}

// Calculate the optical power delivered by a path to the receiver using the
// Lambertian VLC channel model:
//
//	P = Pt * (m+1)/(2π) * cos^m(φ) * A/d² * cos(ψ) * Ts * g * ρ
//
// Paths arriving outside the receiver field of view deliver no power.
func (p StaticParameters) ReceivedPower(rec PathRecord) float64 {
	psi := float64(rec.ReceptionAngle)
	if psi > p.FieldOfView {
		return 0
	}

	d := float64(rec.PathLength)
	if d <= 0 {
		return 0
	}

	// Back-facing emission or reception contributes nothing
	cosPhi := math.Max(0, math.Cos(float64(rec.EmissionAngle)))
	cosPsi := math.Max(0, math.Cos(psi))

	m := p.LambertianOrder
	gain := (m + 1) / (2 * math.Pi) * math.Pow(cosPhi, m)
	return float64(rec.EmittedPower) * gain * p.ReceiverArea / (d * d) * cosPsi *
		p.OpticalFilterGain * p.ConcentratorGain * float64(rec.ReflectanceProduct)
}
