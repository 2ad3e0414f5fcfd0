package port

import "context"

type RemoteClient interface {
	// Post uploads a full JSON snapshot to the endpoint, returning the raw response body
	Post(ctx context.Context, endpoint string, body []byte) ([]byte, error)

	// Fetch issues GET endpoint?action=<action> and returns the raw response body
	Fetch(ctx context.Context, endpoint, action string) ([]byte, error)
}
