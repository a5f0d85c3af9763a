package backend

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os/exec"

	"github.com/mattn/go-shellwords"
	"github.com/orpheuslabs/orpheusd/internal/config"
	"github.com/orpheuslabs/orpheusd/internal/protocol"
)

type execGenerator struct {
	cmd        []string
	sampleRate int
	channels   int
}

type execPayload struct {
	Prompt            string  `json:"prompt"`
	Temperature       float64 `json:"temperature"`
	TopP              float64 `json:"top_p"`
	RepetitionPenalty float64 `json:"repetition_penalty"`
	SampleRate        int     `json:"sample_rate"`
	Channels          int     `json:"channels"`
	MaxUnits          int     `json:"max_units"`
}

type execLine struct {
	PCMBase64 string `json:"pcm_base64"`
	Final     bool   `json:"final"`
}

// NewExecGenerator runs a local model process per request. The process
// reads one JSON request on stdin and streams line-delimited JSON units
// with base64 PCM on stdout, so decoding happens out-of-process and units
// arrive here already as waveform blocks.
func NewExecGenerator(cfg config.BackendConfig, sampleRate, channels int) (Generator, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(cfg.Command)
	if err != nil {
		return nil, fmt.Errorf("parse backend command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("backend command empty")
	}
	return &execGenerator{cmd: args, sampleRate: sampleRate, channels: channels}, nil
}

func (g *execGenerator) Generate(ctx context.Context, req Request, consumer func(Unit) error) error {
	payload := execPayload{
		Prompt:            req.Prompt,
		Temperature:       req.Params.Temperature,
		TopP:              req.Params.TopP,
		RepetitionPenalty: req.Params.RepetitionPenalty,
		SampleRate:        g.sampleRate,
		Channels:          g.channels,
		MaxUnits:          req.MaxUnits,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	base := g.cmd[0]
	args := append([]string{}, g.cmd[1:]...)
	cmd := exec.CommandContext(ctx, base, args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return protocol.WrapError(protocol.KindBackendUnavailable, err, "open runner stdin")
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return protocol.WrapError(protocol.KindBackendUnavailable, err, "open runner stdout")
	}
	if err := cmd.Start(); err != nil {
		return protocol.WrapError(protocol.KindBackendUnavailable, err, "start runner")
	}

	if _, err := stdin.Write(data); err != nil {
		_ = cmd.Wait()
		return protocol.WrapError(protocol.KindBackendUnavailable, err, "write runner request")
	}
	stdin.Close()

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	index := 0
	capped := false
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var resp execLine
		if err := json.Unmarshal(line, &resp); err != nil {
			_ = cmd.Wait()
			return protocol.WrapError(protocol.KindBackendProtocolError, err, "decode runner line")
		}
		pcm, err := base64.StdEncoding.DecodeString(resp.PCMBase64)
		if err != nil {
			_ = cmd.Wait()
			return protocol.WrapError(protocol.KindBackendProtocolError, err, "decode runner pcm")
		}
		if err := consumer(Unit{Index: index, PCM: pcm, Final: resp.Final}); err != nil {
			_ = cmd.Wait()
			return err
		}
		index++
		if resp.Final {
			break
		}
		if req.MaxUnits > 0 && index >= req.MaxUnits {
			capped = true
			break
		}
	}
	if capped {
		// Unit cap reached; the runner is still generating, so stop it.
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return nil
	}
	if err := cmd.Wait(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return protocol.WrapError(protocol.KindBackendUnavailable, err, "runner exited")
	}
	if scanErr := scanner.Err(); scanErr != nil {
		return protocol.WrapError(protocol.KindBackendProtocolError, scanErr, "read runner output")
	}
	return nil
}
