package gyro

// Bias is the per-axis gyroscope offset measured while the robot is
// stationary.  It is subtracted from raw readings to remove static drift.
// The zero value means "uncalibrated"; only Calibrator updates it.
type Bias struct {
	GX float64 `json:"gx"`
	GY float64 `json:"gy"`
	GZ float64 `json:"gz"`
}

// Correct returns a copy of the raw IMU reading with the gyro axes
// bias-corrected.  All other keys pass through untouched.  A missing gyro
// axis in the raw reading is treated as 0 before subtraction, so the
// corrected map always carries all three axes.
func Correct(raw map[string]float64, bias Bias) map[string]float64 {
	corrected := make(map[string]float64, len(raw)+3)
	for k, v := range raw {
		corrected[k] = v
	}
	corrected["gx"] = raw["gx"] - bias.GX
	corrected["gy"] = raw["gy"] - bias.GY
	corrected["gz"] = raw["gz"] - bias.GZ
	return corrected
}
