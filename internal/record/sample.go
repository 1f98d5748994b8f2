package record

import (
	"fmt"
	"math"

	"flightlog/internal/flterr"
	"flightlog/internal/telemetry"
)

// Accepted attitude ranges in degrees
const (
	maxPitchRoll = 180
	maxYaw       = 360
	maxBattery   = 100
)

// sampleFromOSD scales an OSD frame into a sample. A frame with any value out
// of range is rejected as a whole.
func sampleFromOSD(o *OSD, gimbal *Gimbal) (telemetry.Sample, error) {
	lat, lon := degrees(o.Latitude), degrees(o.Longitude)
	if math.IsNaN(lat) || math.IsInf(lat, 0) || math.IsNaN(lon) || math.IsInf(lon, 0) {
		return telemetry.Sample{}, malformed("coordinates are not finite")
	}
	pos := telemetry.Coordinate{Latitude: lat, Longitude: lon}
	if !pos.Valid() {
		return telemetry.Sample{}, malformed("coordinate %.6f,%.6f out of range", lat, lon)
	}

	s := telemetry.Sample{
		Time:      float64(o.FlyTime) / 10,
		Altitude:  float64(o.Height) / 10,
		VelocityX: float64(o.SpeedX) / 10,
		VelocityY: float64(o.SpeedY) / 10,
		VelocityZ: float64(o.SpeedZ) / 10,
		Pitch:     float64(o.Pitch) / 10,
		Roll:      float64(o.Roll) / 10,
		Yaw:       float64(o.Yaw) / 10,
	}
	if math.Abs(s.Pitch) > maxPitchRoll || math.Abs(s.Roll) > maxPitchRoll {
		return telemetry.Sample{}, malformed("attitude pitch %.1f roll %.1f out of range", s.Pitch, s.Roll)
	}
	if math.Abs(s.Yaw) > maxYaw {
		return telemetry.Sample{}, malformed("yaw %.1f out of range", s.Yaw)
	}
	if o.Battery > maxBattery {
		return telemetry.Sample{}, malformed("battery level %d%% out of range", o.Battery)
	}

	// (0,0) is what the flight controller writes before it has a fix
	if lat != 0 || lon != 0 {
		s.Position = &pos
	}

	gpsNum, gpsLevel, battery, mode := o.GPSNum, o.GPSLevel(), o.Battery, o.FlightMode
	s.GPSSatellites = &gpsNum
	s.GPSLevel = &gpsLevel
	s.BatteryPercent = &battery
	s.FlightMode = &mode
	if o.DroneType != nil {
		dt := *o.DroneType
		s.DroneType = &dt
	}

	if gimbal != nil {
		pitch, roll, yaw := float64(gimbal.Pitch)/10, float64(gimbal.Roll)/10, float64(gimbal.Yaw)/10
		s.GimbalPitch = &pitch
		s.GimbalRoll = &roll
		s.GimbalYaw = &yaw
	}
	return s, nil
}

func malformed(format string, args ...interface{}) error {
	return flterr.New(flterr.KindMalformedField, fmt.Sprintf(format, args...))
}
