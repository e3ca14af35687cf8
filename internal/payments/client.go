package payments

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultTimeout bounds one outbound gateway call.
const DefaultTimeout = 20 * time.Second

const maxResponseBytes = 1 << 20

func newHTTPClient(client *http.Client, timeout time.Duration) *http.Client {
	if client != nil {
		return client
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{Timeout: timeout}
}

// do sends req and decodes a 2xx JSON body into out. Non-2xx responses become KindAPI errors
// with the provider message extracted by errMessage.
func do(client *http.Client, gateway string, req *http.Request, out any, errMessage func([]byte) string) error {
	resp, err := client.Do(req)
	if err != nil {
		return &GatewayError{Gateway: gateway, Kind: KindNetwork, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return &GatewayError{Gateway: gateway, Kind: KindNetwork, Err: fmt.Errorf("read body: %w", err)}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &GatewayError{Gateway: gateway, Kind: KindAPI, StatusCode: resp.StatusCode, Message: errMessage(body)}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &GatewayError{Gateway: gateway, Kind: KindAPI, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

// AsGatewayError wraps err as a GatewayError unless it already is one.
func AsGatewayError(gateway string, err error) *GatewayError {
	var ge *GatewayError
	if errors.As(err, &ge) {
		return ge
	}
	return &GatewayError{Gateway: gateway, Kind: KindNetwork, Err: err}
}

func formatAmount(cents int) string {
	return fmt.Sprintf("%d.%02d", cents/100, cents%100)
}
