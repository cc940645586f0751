package cmd

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/spf13/viper"
)

// BrokerClient speaks the broker's newline-framed JSON protocol.
type BrokerClient struct {
	conn net.Conn
	r    *bufio.Reader
}

// NewBrokerClient dials the configured broker address.
func NewBrokerClient() (*BrokerClient, error) {
	addr := viper.GetString("broker")
	if addr == "" {
		addr = "localhost:1337"
	}

	conn, err := net.DialTimeout("tcp", addr, 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("connecting to broker at %s: %w", addr, err)
	}

	return &BrokerClient{
		conn: conn,
		r:    bufio.NewReader(conn),
	}, nil
}

// Do sends one request object and decodes the single response line.
func (c *BrokerClient) Do(req any) (map[string]any, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	if _, err := c.conn.Write(append(data, '\n')); err != nil {
		return nil, err
	}

	line, err := c.r.ReadBytes('\n')
	if err != nil {
		return nil, err
	}

	var resp map[string]any
	if err := json.Unmarshal(line, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// Close closes the connection. Any jobs this client still holds go back
// onto their queues broker-side.
func (c *BrokerClient) Close() error {
	return c.conn.Close()
}

// APIClient talks to the broker's monitoring HTTP API.
type APIClient struct {
	BaseURL string
	Client  *http.Client
}

// NewAPIClient uses the configured monitor base URL.
func NewAPIClient() *APIClient {
	baseURL := viper.GetString("monitor")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}

	return &APIClient{
		BaseURL: baseURL,
		Client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Get fetches a path and decodes the JSON body into target.
func (c *APIClient) Get(path string, target any) error {
	resp, err := c.Client.Get(c.BaseURL + path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("API error: %d", resp.StatusCode)
	}

	return json.NewDecoder(resp.Body).Decode(target)
}
