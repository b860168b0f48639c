// Package orientation implements the 6-axis (accelerometer + gyroscope)
// attitude estimator used to rotate raw body-frame accelerations into
// the Earth frame before they are filtered and stored. The magnetometer
// is intentionally never consulted: an uncalibrated magnetometer does
// more harm than good aboard a small wave buoy.
package orientation

import (
	"math"

	"gonum.org/v1/gonum/num/quat"
)

// Beta is the Madgwick filter's gain; higher values track faster at the
// cost of more gyro-noise sensitivity.
const Beta = 0.041

// Filter is a Madgwick gradient-descent AHRS filter operating on
// accelerometer + gyroscope samples only.
type Filter struct {
	q        quat.Number
	lastCall bool
}

// New constructs a Filter initialized to the identity orientation.
func New() *Filter {
	return &Filter{q: quat.Number{Real: 1}}
}

// Quaternion returns the current orientation estimate.
func (f *Filter) Quaternion() quat.Number { return f.q }

// Update advances the filter by one sample. Angular rates are in rad/s,
// accelerations in any consistent unit (only their direction is used).
// The magnetometer axes are not parameters: this filter never uses one.
func (f *Filter) Update(gx, gy, gz, ax, ay, az float64, dt float64) {
	q := f.q

	// Normalize accelerometer; skip the correction step entirely on a
	// degenerate (zero) reading rather than dividing by zero.
	norm := math.Sqrt(ax*ax + ay*ay + az*az)
	qDot := quat.Scale(0.5, quat.Mul(q, quat.Number{Imag: gx, Jmag: gy, Kmag: gz}))

	if norm > 1e-9 {
		ax, ay, az = ax/norm, ay/norm, az/norm

		q0, q1, q2, q3 := q.Real, q.Imag, q.Jmag, q.Kmag

		f1 := 2*(q1*q3-q0*q2) - ax
		f2 := 2*(q0*q1+q2*q3) - ay
		f3 := 2*(0.5-q1*q1-q2*q2) - az

		j11, j12, j13, j14 := -2*q2, 2*q3, -2*q0, 2*q1
		j21, j22, j23, j24 := 2*q1, 2*q0, 2*q3, 2*q2
		j32, j33 := -4*q1, -4*q2

		g0 := j11*f1 + j21*f2
		g1 := j12*f1 + j22*f2 + j32*f3
		g2 := j13*f1 + j23*f2 + j33*f3
		g3 := j14*f1 + j24*f2

		gn := math.Sqrt(g0*g0 + g1*g1 + g2*g2 + g3*g3)
		if gn > 1e-9 {
			g0, g1, g2, g3 = g0/gn, g1/gn, g2/gn, g3/gn
			qDot.Real -= Beta * g0
			qDot.Imag -= Beta * g1
			qDot.Jmag -= Beta * g2
			qDot.Kmag -= Beta * g3
		}
	}

	q.Real += qDot.Real * dt
	q.Imag += qDot.Imag * dt
	q.Jmag += qDot.Jmag * dt
	q.Kmag += qDot.Kmag * dt

	qn := math.Sqrt(q.Real*q.Real + q.Imag*q.Imag + q.Jmag*q.Jmag + q.Kmag*q.Kmag)
	if qn > 1e-9 {
		q = quat.Scale(1/qn, q)
	}
	f.q = q
	f.lastCall = true
}

// RotateToEarth rotates a body-frame vector into the Earth frame using
// the current orientation estimate (v' = q * v * q^-1).
func (f *Filter) RotateToEarth(v [3]float64) [3]float64 {
	p := quat.Number{Imag: v[0], Jmag: v[1], Kmag: v[2]}
	qInv := quat.Conj(f.q)
	r := quat.Mul(quat.Mul(f.q, p), qInv)
	return [3]float64{r.Imag, r.Jmag, r.Kmag}
}

// Ready reports whether Update has been called at least once.
func (f *Filter) Ready() bool { return f.lastCall }
