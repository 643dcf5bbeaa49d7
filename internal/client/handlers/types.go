package handlers

import "github.com/gin-gonic/gin"

const (
	CodeOk                 string = "OK"
	ErrCodeBadRequest      string = "ERR_BAD_REQUEST"
	ErrCodeUnknownError    string = "ERR_UNKNOWN_ERROR"
	ErrCodeAlreadyRunning  string = "ERR_ALREADY_RUNNING"
	ErrCodeManagerClosed   string = "ERR_MANAGER_CLOSED"
	ErrCodeTrackerNotReady string = "ERR_TRACKER_NOT_READY"
)

type StatusAPIResponse struct {
	Code string `json:"code"`
}

type StatusAPIError struct {
	ErrorCode string `json:"code"`
	Error     string `json:"error"`
}

func AbortWithError(c *gin.Context, status int, code string, err error) {
	c.Abort()
	c.Error(err)
	c.PureJSON(status, StatusAPIError{
		ErrorCode: code,
		Error:     err.Error(),
	})
}
