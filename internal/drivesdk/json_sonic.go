//go:build sonic

package drivesdk

import (
	"github.com/bytedance/sonic"
)

// for imroc/req and the event socket
var jsonMarshal = sonic.Marshal
var jsonUnmarshal = sonic.Unmarshal
