package logic

const signBit = 0x8000

// Checksum is the low byte of the sum of the first four frame bytes.
func Checksum(f RawFrame) byte {
	return f[0] + f[1] + f[2] + f[3]
}

// Interpret converts a frame into a Reading. It never fails: a checksum
// mismatch is reported through ChecksumValid.
//
// The temperature half-word is sign-magnitude: bit 15 is the sign and the
// low 15 bits the magnitude.
func Interpret(f RawFrame, units Units) Reading {
	humidity := uint16(f[0])<<8 | uint16(f[1])
	rawTemp := uint16(f[2])<<8 | uint16(f[3])
	magnitude := rawTemp &^ signBit

	if units == UnitsWhole {
		humidity /= 10
		magnitude /= 10
	} else {
		units = UnitsTenths
	}

	temperature := int16(magnitude)
	if rawTemp&signBit != 0 {
		temperature = -temperature
	}

	return Reading{
		Humidity:      humidity,
		Temperature:   temperature,
		ChecksumValid: Checksum(f) == f[4],
		Units:         units,
	}
}

func (r Reading) scale() float64 {
	if r.Units == UnitsWhole {
		return 1
	}
	return 10
}

// HumidityPercent returns relative humidity in percent.
func (r Reading) HumidityPercent() float64 {
	return float64(r.Humidity) / r.scale()
}

// TemperatureCelsius returns the temperature in degrees Celsius.
func (r Reading) TemperatureCelsius() float64 {
	return float64(r.Temperature) / r.scale()
}

// Err returns ErrChecksum if the checksum did not match, nil otherwise.
func (r Reading) Err() error {
	if !r.ChecksumValid {
		return ErrChecksum
	}
	return nil
}
