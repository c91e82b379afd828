package telemetry

import "errors"

// ErrConnectionFailed denotes a failure to reach the InfluxDB server
var ErrConnectionFailed = errors.New("influxdb connection failed")
