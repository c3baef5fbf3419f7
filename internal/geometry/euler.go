package geometry

import "math"

// EulToQ composes unit quaternions one Euler step at a time using the
// body-fixed convention: each subsequent rotation is applied in the frame
// produced by all previous rotations. angles[i] pairs with order[i], one of
// 'z' (azimuth, rotation about +z) or 'y' (elevation, rotation about +y,
// applied after azimuthing; in this z-down frame that tilts +x toward -z,
// so positive elevation lifts above the horizon). With non-reversed composition the result is q1*q2*...*qn
// (Hamilton product, left to right); reverse composes right to left.
func EulToQ(angles []float64, order string, reverse bool) Quaternion {
	if len(angles) != len(order) {
		panic("geometry: EulToQ angles/order length mismatch")
	}
	q := Identity
	for i := 0; i < len(order); i++ {
		idx := i
		if reverse {
			idx = len(order) - 1 - i
		}
		step := axisQuat(order[idx], angles[idx])
		if reverse {
			q = step.Mul(q)
		} else {
			q = q.Mul(step)
		}
	}
	return q
}

// axisQuat builds the per-step rotation quaternion for one Euler axis.
// Azimuth ('z') and elevation ('y') are both expressed here as active
// rotations of the vector (not the frame) so that positive elevation lifts
// the boresight above the horizon (x-north/y-east/z-down, z decreasing).
func axisQuat(axis byte, deg float64) Quaternion {
	switch axis {
	case 'z':
		return FromAxisAngle(Vector3{Z: 1}, deg)
	case 'y':
		return FromAxisAngle(Vector3{Y: 1}, deg)
	case 'x':
		return FromAxisAngle(Vector3{X: 1}, deg)
	default:
		panic("geometry: unknown Euler axis " + string(axis))
	}
}

// ToYPR extracts yaw, pitch, roll (ZYX order, degrees) from q. The pitch
// argument to arcsin is clamped to [-1, 1] to tolerate floating rounding
// at the +/-90 degree gimbal.
func ToYPR(q Quaternion) (yaw, pitch, roll float64) {
	q0, q1, q2, q3 := q.W, q.X, q.Y, q.Z

	sinPitch := -2 * (q1*q3 - q0*q2)
	if sinPitch > 1 {
		sinPitch = 1
	} else if sinPitch < -1 {
		sinPitch = -1
	}
	pitch = radToDeg(math.Asin(sinPitch))

	yaw = radToDeg(math.Atan2(2*(q1*q2+q0*q3), q0*q0+q1*q1-q2*q2-q3*q3))
	roll = radToDeg(math.Atan2(2*(q2*q3+q0*q1), q0*q0-q1*q1-q2*q2+q3*q3))
	return yaw, pitch, roll
}

// ToAzEl returns (yaw, pitch) in degrees, i.e. (azimuth, elevation).
func ToAzEl(q Quaternion) (az, el float64) {
	yaw, pitch, _ := ToYPR(q)
	return yaw, pitch
}

// WrapDeg wraps x into (-180, 180].
func WrapDeg(x float64) float64 {
	w := math.Mod(x+180, 360)
	if w <= 0 {
		w += 360
	}
	return w - 180
}
