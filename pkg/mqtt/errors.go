package mqtt

import "errors"

var (

	// ErrConnectionFailed denotes a failure to connect to the broker
	ErrConnectionFailed = errors.New("mqtt connection failed")

	// ErrSubscribeFailed denotes a failure to subscribe to the command topic
	ErrSubscribeFailed = errors.New("mqtt subscribe failed")
)
