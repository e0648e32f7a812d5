package jobdef

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/caesium-cloud/batch/internal/result"
	"github.com/caesium-cloud/batch/internal/secret"
	"github.com/caesium-cloud/batch/pkg/log"
	"github.com/pkg/errors"
)

// maxOutput bounds how much of a command's output is kept for logging.
const maxOutput = 4096

// command is one argv executed as a child process of the batch.
type command struct {
	argv    []string
	workDir string
	env     map[string]string
	secrets *secret.Resolver
}

// run executes the command. A non-zero exit is a failed result; anything
// that prevents the command from completing is returned as an error.
func (c *command) run(ctx context.Context, logger log.Logger) (result.Result, error) {
	environ, err := c.secrets.Environ(ctx, c.env)
	if err != nil {
		return result.Result{}, err
	}

	cmd := exec.CommandContext(ctx, c.argv[0], c.argv[1:]...)
	cmd.Dir = c.workDir
	cmd.Env = append(os.Environ(), environ...)

	var output tailBuffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	err = cmd.Run()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return result.Result{}, errors.Wrapf(ctxErr, "command %s interrupted", c.argv[0])
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		logger.Info("command succeeded", "argv", c.argv, "output", output.String())
		return result.Success(), nil
	case errors.As(err, &exitErr):
		logger.Error("command failed", "argv", c.argv, "exit_code", exitErr.ExitCode(), "output", output.String())
		return result.Failure(exitMessage(exitErr.ExitCode(), output.String())), nil
	default:
		return result.Result{}, errors.Wrapf(err, "start command %s", c.argv[0])
	}
}

func exitMessage(code int, output string) string {
	msg := fmt.Sprintf("exit status %d", code)
	lines := strings.Split(strings.TrimSpace(output), "\n")
	if last := strings.TrimSpace(lines[len(lines)-1]); last != "" {
		msg += ": " + last
	}
	return msg
}

// tailBuffer keeps the last maxOutput bytes written to it.
type tailBuffer struct {
	buf bytes.Buffer
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	n := len(p)
	if len(p) >= maxOutput {
		t.buf.Reset()
		p = p[len(p)-maxOutput:]
	} else if over := t.buf.Len() + len(p) - maxOutput; over > 0 {
		t.buf.Next(over)
	}
	t.buf.Write(p)
	return n, nil
}

func (t *tailBuffer) String() string {
	return t.buf.String()
}
