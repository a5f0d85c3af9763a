package audio

import (
	"bufio"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"

	"github.com/mattn/go-shellwords"
	"github.com/orpheuslabs/orpheusd/internal/backend"
	"github.com/orpheuslabs/orpheusd/internal/protocol"
)

// execDecoder delegates code-to-waveform decoding to an external codec
// process (a SNAC runner in the reference deployment). One process per
// session: token lines go in on stdin, base64 PCM lines come back on
// stdout, so the codec's filter state is owned by the session's process.
type execDecoder struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *bufio.Reader
}

type decodeRequest struct {
	Token string `json:"token"`
}

type decodeResponse struct {
	PCMBase64 string `json:"pcm_base64"`
}

func newExecDecoderFactory(command string) (DecoderFactory, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse decoder command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("decoder command empty")
	}
	return func() (Decoder, error) {
		cmd := exec.Command(args[0], args[1:]...)
		stdin, err := cmd.StdinPipe()
		if err != nil {
			return nil, fmt.Errorf("open decoder stdin: %w", err)
		}
		stdout, err := cmd.StdoutPipe()
		if err != nil {
			return nil, fmt.Errorf("open decoder stdout: %w", err)
		}
		if err := cmd.Start(); err != nil {
			return nil, fmt.Errorf("start decoder: %w", err)
		}
		return &execDecoder{cmd: cmd, stdin: stdin, stdout: bufio.NewReader(stdout)}, nil
	}, nil
}

func (d *execDecoder) Decode(u backend.Unit) ([]byte, error) {
	if len(u.PCM) > 0 {
		return u.PCM, nil
	}
	if u.Token == "" {
		return nil, nil
	}
	line, err := json.Marshal(decodeRequest{Token: u.Token})
	if err != nil {
		return nil, err
	}
	line = append(line, '\n')
	if _, err := d.stdin.Write(line); err != nil {
		return nil, protocol.WrapError(protocol.KindBackendProtocolError, err, "write to decoder")
	}
	out, err := d.stdout.ReadBytes('\n')
	if err != nil {
		return nil, protocol.WrapError(protocol.KindBackendProtocolError, err, "read from decoder")
	}
	var resp decodeResponse
	if err := json.Unmarshal(out, &resp); err != nil {
		return nil, protocol.WrapError(protocol.KindBackendProtocolError, err, "decode decoder line")
	}
	pcm, err := base64.StdEncoding.DecodeString(resp.PCMBase64)
	if err != nil {
		return nil, protocol.WrapError(protocol.KindBackendProtocolError, err, "decode decoder pcm")
	}
	return pcm, nil
}

func (d *execDecoder) Close() error {
	_ = d.stdin.Close()
	return d.cmd.Wait()
}
