package drivesdk

import (
	"fmt"
	"log/slog"
	"runtime"
	"sync"

	"github.com/denisbrodbeck/machineid"
	"github.com/openmined/bulkpin/internal/version"
)

const (
	HeaderUserAgent     = "User-Agent"
	HeaderAuthorization = "Authorization"
	HeaderClientVersion = "X-Bulkpin-Version"
	HeaderDeviceID      = "X-Bulkpin-Device-Id"
)

var UserAgent = fmt.Sprintf("%s/%s (%s; %s; %s)", version.AppName, version.Version, version.Revision, runtime.GOOS, runtime.GOARCH)

// DeviceID identifies this machine to the drive service without exposing the raw machine id.
var DeviceID = sync.OnceValue(func() string {
	id, err := machineid.ProtectedID(version.AppName)
	if err != nil {
		slog.Debug("machine id unavailable", "error", err)
		return "unknown"
	}
	return id
})
