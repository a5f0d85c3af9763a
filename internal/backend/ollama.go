package backend

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/orpheuslabs/orpheusd/internal/config"
	"github.com/orpheuslabs/orpheusd/internal/protocol"
)

type ollamaGenerator struct {
	endpoint string
	model    string
	timeout  time.Duration
	client   *http.Client
}

// NewOllamaGenerator speaks the Ollama streaming generate protocol. The
// model emits audio-code tokens which the codec decodes downstream.
func NewOllamaGenerator(cfg config.BackendConfig) Generator {
	timeout := time.Duration(cfg.TimeoutMS) * time.Millisecond
	return &ollamaGenerator{
		endpoint: cfg.Endpoint,
		model:    cfg.Model,
		timeout:  timeout,
		client:   &http.Client{Timeout: timeout},
	}
}

type ollamaRequest struct {
	Model   string        `json:"model"`
	Prompt  string        `json:"prompt"`
	Stream  bool          `json:"stream"`
	Options ollamaOptions `json:"options"`
}

type ollamaOptions struct {
	Temperature   float64 `json:"temperature"`
	TopP          float64 `json:"top_p"`
	RepeatPenalty float64 `json:"repeat_penalty"`
}

type ollamaStreamResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

func (g *ollamaGenerator) Generate(ctx context.Context, req Request, consumer func(Unit) error) error {
	payload := ollamaRequest{
		Model:  g.model,
		Prompt: req.Prompt,
		Stream: true,
		Options: ollamaOptions{
			Temperature:   req.Params.Temperature,
			TopP:          req.Params.TopP,
			RepeatPenalty: req.Params.RepetitionPenalty,
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	reqCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(reqCtx, http.MethodPost, g.endpoint+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(httpReq)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return protocol.WrapError(protocol.KindBackendUnavailable, err, "ollama request failed")
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return protocol.Errorf(protocol.KindBackendUnavailable, "ollama returned status %s", resp.Status)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	index := 0
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var chunk ollamaStreamResponse
		if err := json.Unmarshal(line, &chunk); err != nil {
			return protocol.WrapError(protocol.KindBackendProtocolError, err, "malformed ollama stream line")
		}
		if chunk.Response == "" && !chunk.Done {
			continue
		}
		if err := consumer(Unit{Index: index, Token: chunk.Response, Final: chunk.Done}); err != nil {
			return err
		}
		index++
		if chunk.Done {
			return nil
		}
		// Runaway-generation guard: stop cleanly once the cap is reached.
		if req.MaxUnits > 0 && index >= req.MaxUnits {
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return protocol.WrapError(protocol.KindBackendUnavailable, err, "ollama stream interrupted")
	}
	return protocol.Errorf(protocol.KindBackendProtocolError, "ollama stream ended without done signal")
}

// Ping checks that the Ollama server is reachable.
func (g *ollamaGenerator) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.endpoint+"/", nil)
	if err != nil {
		return err
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return protocol.WrapError(protocol.KindBackendUnavailable, err, "ollama unreachable")
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return protocol.Errorf(protocol.KindBackendUnavailable, "ollama returned status %s", resp.Status)
	}
	return nil
}
