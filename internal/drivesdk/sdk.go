package drivesdk

import (
	"time"

	"github.com/imroc/req/v3"
	"github.com/openmined/bulkpin/internal/version"
)

// DriveSDK is the client for the remote drive service
type DriveSDK struct {
	client *req.Client
	config *Config
	Files  *FilesAPI
	Events *EventsAPI
}

// New creates a new DriveSDK client
func New(config *Config) (*DriveSDK, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	client := req.C().
		SetBaseURL(config.BaseURL).
		SetCommonRetryCount(max(config.RetryCount, 0)).
		SetCommonRetryBackoffInterval(500*time.Millisecond, 5*time.Second).
		SetUserAgent(UserAgent).
		SetCommonHeader(HeaderClientVersion, version.Version).
		SetCommonHeader(HeaderDeviceID, DeviceID()).
		SetCommonErrorResult(&APIError{}).
		SetJsonMarshal(jsonMarshal).
		SetJsonUnmarshal(jsonUnmarshal)

	if config.AccessToken != "" {
		client.SetCommonBearerAuthToken(config.AccessToken)
	}

	return &DriveSDK{
		client: client,
		config: config,
		Files:  newFilesAPI(client),
		Events: newEventsAPI(config.BaseURL, client.Headers.Clone()),
	}, nil
}

// Close terminates all connections and cleans up resources
func (s *DriveSDK) Close() {
	s.Events.Close()
	s.client.GetClient().CloseIdleConnections()
}

func (s *DriveSDK) BaseURL() string {
	return s.config.BaseURL
}
