//go:build !livekit

package main

import (
	"errors"

	"github.com/moyeo-ai/moyeo/internal/worker"
	"github.com/moyeo-ai/moyeo/pkg/rtc"
)

// newTransport is the media SDK seam. The default build carries no SDK;
// deployments build with their SFU integration tag (e.g. -tags livekit),
// whose file provides the real rtc.Transport.
func newTransport(worker.Params) (rtc.Transport, error) {
	return nil, errors.New("no media transport compiled in; rebuild with a transport tag")
}
