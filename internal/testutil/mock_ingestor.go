// Package testutil provides testing utilities for the content traverser.
package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"time"
)

// MockIngestorResponse defines the behavior for a mock ingestion response.
type MockIngestorResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockIngestor is a configurable mock ingestion service for testing.
// Queued responses are served in order; once the queue is empty every
// request is answered with the default response (200 "Ok").
type MockIngestor struct {
	server *httptest.Server

	mu        sync.RWMutex
	responses []MockIngestorResponse
	fallback  MockIngestorResponse

	// Tracking
	RequestCount  int
	LastAPIKey    string
	ReceivedBody  [][]byte
	ReceivedNames []string
}

// NewMockIngestor creates a new mock ingestion server.
func NewMockIngestor() *MockIngestor {
	mock := &MockIngestor{
		fallback: NewAcceptedResponse(),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)

		var decoded struct {
			Data struct {
				Name string `json:"name"`
			} `json:"data"`
		}
		_ = json.Unmarshal(body, &decoded)

		mock.mu.Lock()
		mock.RequestCount++
		mock.LastAPIKey = r.Header.Get("X-API-Key")
		mock.ReceivedBody = append(mock.ReceivedBody, body)
		mock.ReceivedNames = append(mock.ReceivedNames, decoded.Data.Name)
		resp := mock.fallback
		if len(mock.responses) > 0 {
			resp = mock.responses[0]
			mock.responses = mock.responses[1:]
		}
		mock.mu.Unlock()

		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		writeResponse(w, resp)
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockIngestor) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockIngestor) Close() {
	m.server.Close()
}

// Enqueue appends one-shot responses served before the default one.
func (m *MockIngestor) Enqueue(responses ...MockIngestorResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, responses...)
}

// SetDefault replaces the response used when no queued response remains.
func (m *MockIngestor) SetDefault(resp MockIngestorResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fallback = resp
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockIngestor) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// GetLastAPIKey returns the X-API-Key header of the most recent request.
func (m *MockIngestor) GetLastAPIKey() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.LastAPIKey
}

// GetBodies returns copies of all received request bodies.
func (m *MockIngestor) GetBodies() [][]byte {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([][]byte(nil), m.ReceivedBody...)
}

// GetNames returns the data.name field of every received request.
func (m *MockIngestor) GetNames() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.ReceivedNames...)
}

func writeResponse(w http.ResponseWriter, resp MockIngestorResponse) {
	if resp.Delay > 0 {
		time.Sleep(resp.Delay)
	}
	for key, value := range resp.Headers {
		w.Header().Set(key, value)
	}
	w.WriteHeader(resp.StatusCode)
	if resp.Body != "" {
		w.Write([]byte(resp.Body))
	}
}

// NewAcceptedResponse creates a standard 200 OK response.
func NewAcceptedResponse() MockIngestorResponse {
	return MockIngestorResponse{
		StatusCode: http.StatusOK,
		Body:       "Ok",
	}
}

// NewRejectedResponse creates a 400 Bad Request response with a JSON body.
func NewRejectedResponse(message string) MockIngestorResponse {
	body, _ := json.Marshal(map[string]string{"error": message})
	return MockIngestorResponse{
		StatusCode: http.StatusBadRequest,
		Body:       string(body),
		Headers: map[string]string{
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}

// NewRateLimitResponse creates a 429 Too Many Requests response.
func NewRateLimitResponse(retryAfterSeconds int) MockIngestorResponse {
	resp := MockIngestorResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"error": "Rate limit exceeded"}`,
		Headers: map[string]string{
			"Content-Type": "application/json; charset=utf-8",
		},
	}
	if retryAfterSeconds > 0 {
		resp.Headers["Retry-After"] = strconv.Itoa(retryAfterSeconds)
	}
	return resp
}

// NewServerErrorResponse creates a 502 Bad Gateway response.
func NewServerErrorResponse() MockIngestorResponse {
	return MockIngestorResponse{
		StatusCode: http.StatusBadGateway,
		Body:       `{"error": "Bad gateway"}`,
		Headers: map[string]string{
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}
