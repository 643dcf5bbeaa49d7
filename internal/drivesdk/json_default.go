//go:build !sonic

package drivesdk

import (
	"github.com/goccy/go-json"
)

// for imroc/req and the event socket
var jsonMarshal = json.Marshal
var jsonUnmarshal = json.Unmarshal
