package control

import (
	"encoding/json"
	"fmt"
	"net"
	"time"
)

// Client sends control commands to a running orchestrator
type Client struct {
	socketPath string
	timeout    time.Duration
}

// NewClient creates a new control client
func NewClient(socketPath string) *Client {
	return &Client{
		socketPath: socketPath,
		timeout:    10 * time.Second, // Default 10s timeout
	}
}

// SetTimeout sets the client timeout for commands
func (c *Client) SetTimeout(timeout time.Duration) {
	c.timeout = timeout
}

// SendCommand sends a command and waits for the response
func (c *Client) SendCommand(cmd Command) (*Response, error) {
	// Connect to control socket
	conn, err := net.DialTimeout("unix", c.socketPath, c.timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to fixbot (is `fixbot run` running?): %w", err)
	}
	defer conn.Close()

	// Set overall deadline
	if err := conn.SetDeadline(time.Now().Add(c.timeout)); err != nil {
		return nil, fmt.Errorf("failed to set deadline: %w", err)
	}

	// Send command
	encoder := json.NewEncoder(conn)
	if err := encoder.Encode(cmd); err != nil {
		return nil, fmt.Errorf("failed to send command: %w", err)
	}

	// Read response
	decoder := json.NewDecoder(conn)
	var resp Response
	if err := decoder.Decode(&resp); err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	return &resp, nil
}

// Process asks the orchestrator to run the pipeline for ticketKey now.
func (c *Client) Process(ticketKey string) (*Response, error) {
	return c.SendCommand(Command{Type: CommandProcess, TicketKey: ticketKey, Timestamp: time.Now()})
}

// SetPrompt stores a one-shot prompt override. Blank text clears it.
func (c *Client) SetPrompt(prompt string) (*Response, error) {
	return c.SendCommand(Command{Type: CommandPromptSet, Prompt: prompt, Timestamp: time.Now()})
}

// GetPrompt reads the pending prompt override.
func (c *Client) GetPrompt() (*Response, error) {
	return c.SendCommand(Command{Type: CommandPromptGet, Timestamp: time.Now()})
}

// ConsumePrompt reads and clears the pending prompt override.
func (c *Client) ConsumePrompt() (*Response, error) {
	return c.SendCommand(Command{Type: CommandPromptConsume, Timestamp: time.Now()})
}

// Clarify answers the pending clarification request for ticketKey.
func (c *Client) Clarify(ticketKey, answer string) (*Response, error) {
	return c.SendCommand(Command{Type: CommandClarify, TicketKey: ticketKey, Prompt: answer, Timestamp: time.Now()})
}

// Pending lists outstanding clarification requests.
func (c *Client) Pending() (*Response, error) {
	return c.SendCommand(Command{Type: CommandPending, Timestamp: time.Now()})
}

// Status requests the current orchestrator status
func (c *Client) Status() (*Response, error) {
	return c.SendCommand(Command{Type: CommandStatus, Timestamp: time.Now()})
}
