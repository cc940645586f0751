// Package protocol defines the broker's line-oriented JSON wire format.
// Each request and response is a single JSON object terminated by a newline.
// Requests carry a "request" discriminator; responses always carry "status".
package protocol

import (
	"encoding/json"
	"fmt"
)

// Status is the outcome field present on every response.
type Status string

const (
	StatusOK    Status = "ok"
	StatusNoJob Status = "no-job"
	StatusError Status = "error"
)

// Request is one of PutRequest, GetRequest, DeleteRequest, AbortRequest.
type Request interface {
	kind() string
}

// PutRequest enqueues a job onto a named queue.
type PutRequest struct {
	Queue string          `json:"queue"`
	Job   json.RawMessage `json:"job"`
	Pri   uint32          `json:"pri"`
}

// GetRequest takes the highest-priority job across a set of queues.
// When Wait is set the broker withholds the response until a job is available.
type GetRequest struct {
	Queues []string `json:"queues"`
	Wait   bool     `json:"wait"`
}

// DeleteRequest removes a job anywhere in the broker by id.
type DeleteRequest struct {
	ID uint32 `json:"id"`
}

// AbortRequest returns a job this client holds to its origin queue.
type AbortRequest struct {
	ID uint32 `json:"id"`
}

func (PutRequest) kind() string    { return "put" }
func (GetRequest) kind() string    { return "get" }
func (DeleteRequest) kind() string { return "delete" }
func (AbortRequest) kind() string  { return "abort" }

// envelope mirrors the union of all request fields. Pointers distinguish
// absent fields from zero values so required fields can be enforced.
type envelope struct {
	Request string  `json:"request"`
	Queue   *string `json:"queue"`
	// Job stays raw: a present-but-null payload is a valid job value,
	// which a pointer field could not tell apart from an absent one.
	Job    json.RawMessage `json:"job"`
	Pri    *uint32         `json:"pri"`
	Queues *[]string       `json:"queues"`
	Wait   bool            `json:"wait"`
	ID     *uint32         `json:"id"`
}

// ParseRequest decodes a single request line. It rejects unknown request
// tags and requests missing a required field.
func ParseRequest(line []byte) (Request, error) {
	var env envelope
	if err := json.Unmarshal(line, &env); err != nil {
		return nil, fmt.Errorf("protocol: invalid request: %w", err)
	}

	switch env.Request {
	case "put":
		if env.Queue == nil || env.Job == nil || env.Pri == nil {
			return nil, fmt.Errorf("protocol: put request missing queue, job, or pri")
		}
		return PutRequest{Queue: *env.Queue, Job: env.Job, Pri: *env.Pri}, nil
	case "get":
		if env.Queues == nil {
			return nil, fmt.Errorf("protocol: get request missing queues")
		}
		return GetRequest{Queues: *env.Queues, Wait: env.Wait}, nil
	case "delete":
		if env.ID == nil {
			return nil, fmt.Errorf("protocol: delete request missing id")
		}
		return DeleteRequest{ID: *env.ID}, nil
	case "abort":
		if env.ID == nil {
			return nil, fmt.Errorf("protocol: abort request missing id")
		}
		return AbortRequest{ID: *env.ID}, nil
	case "":
		return nil, fmt.Errorf("protocol: missing request tag")
	default:
		return nil, fmt.Errorf("protocol: unknown request %q", env.Request)
	}
}

// Response is a single reply line. Optional fields are omitted unless set,
// so a bare status response serializes as {"status":"..."} only.
type Response struct {
	Status Status          `json:"status"`
	Pri    *uint32         `json:"pri,omitempty"`
	ID     *uint32         `json:"id,omitempty"`
	Job    json.RawMessage `json:"job,omitempty"`
	// Queue is a pointer so a job response still carries the field when
	// the origin queue's name is the empty string.
	Queue *string `json:"queue,omitempty"`
}

// StatusResponse builds a response carrying only a status.
func StatusResponse(status Status) Response {
	return Response{Status: status}
}

// IDResponse builds the reply to a successful put.
func IDResponse(id uint32) Response {
	return Response{Status: StatusOK, ID: &id}
}

// JobResponse builds the reply to a successful get: the job's fields
// flattened alongside the status, plus the origin queue.
func JobResponse(id, pri uint32, job json.RawMessage, queue string) Response {
	return Response{Status: StatusOK, Pri: &pri, ID: &id, Job: job, Queue: &queue}
}

// Encode serializes a response as a single line without the trailing newline.
func (r Response) Encode() ([]byte, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("protocol: encoding response: %w", err)
	}
	return data, nil
}
