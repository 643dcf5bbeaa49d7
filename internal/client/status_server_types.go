package client

// StatusServerConfig contains configuration for the local status server
type StatusServerConfig struct {
	Addr      string // Address to bind the status server
	AuthToken string // Optional access token for the status server
	RateLimit string // Requests per client, in limiter notation
}

const defaultStatusRateLimit = "20-S"
