package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"github.com/cockroachdb/errors"
)

// HTTPModel is a Model backed by a JSON HTTP completion endpoint: the
// network-facing counterpart to the in-process StubModel. It assumes
// a simple {system, prompt, history} request / {response} reply shape,
// matching the minimal chat-completion surface the teacher's Model[T]
// interface leaves for callers to implement.
type HTTPModel struct {
	Endpoint string
	Client   *http.Client
}

// NewHTTPModel builds an HTTPModel against endpoint using
// http.DefaultClient.
func NewHTTPModel(endpoint string) *HTTPModel {
	return &HTTPModel{Endpoint: endpoint, Client: http.DefaultClient}
}

type httpModelRequest struct {
	System  string `json:"system"`
	Prompt  string `json:"prompt"`
	History []Turn `json:"history"`
}

type httpModelResponse struct {
	Response string `json:"response"`
}

// Generate posts the prompt and conversation history to Endpoint and
// returns the model's textual response.
func (h *HTTPModel) Generate(ctx context.Context, systemPrompt, prompt string, history []Turn) (string, error) {
	body, err := json.Marshal(httpModelRequest{System: systemPrompt, Prompt: prompt, History: history})
	if err != nil {
		return "", errors.Wrap(err, "encode model request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.Endpoint, bytes.NewReader(body))
	if err != nil {
		return "", errors.Wrap(err, "build model request")
	}
	req.Header.Set("Content-Type", "application/json")

	client := h.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "call model endpoint")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", errors.Newf("model endpoint returned status %d", resp.StatusCode)
	}

	var out httpModelResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", errors.Wrap(err, "decode model response")
	}
	return out.Response, nil
}
