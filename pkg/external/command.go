// Package external runs the command-line tools that sit around the converter:
// the segmentation engine that produces masks and the series-to-volume
// converter.
package external

import (
	"bytes"
	"context"
	"os/exec"
	"strings"

	"go.uber.org/zap"
)

var commandContext = exec.CommandContext

// Option configures a runner.
type Option func(*command)

// WithBinary overrides the executable.
func WithBinary(binary string) Option {
	return func(c *command) {
		if binary != "" {
			c.binary = binary
		}
	}
}

// WithArgs replaces the argument template. Arguments may contain the
// placeholders {input}, {output_dir}, {structure} and {name}.
func WithArgs(args ...string) Option {
	return func(c *command) {
		if len(args) > 0 {
			c.args = append([]string(nil), args...)
		}
	}
}

type command struct {
	binary string
	args   []string
}

func newCommand(binary string, args []string, opts []Option) command {
	c := command{binary: binary, args: args}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// expand substitutes placeholders in the argument template.
func (c command) expand(vars map[string]string) []string {
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, "{"+k+"}", v)
	}
	r := strings.NewReplacer(pairs...)
	out := make([]string, len(c.args))
	for i, a := range c.args {
		out[i] = r.Replace(a)
	}
	return out
}

type output struct {
	stdout bytes.Buffer
	stderr bytes.Buffer
}

// transcript renders both streams the way the segmentation log stores them.
func (o *output) transcript() []byte {
	var b bytes.Buffer
	b.WriteString("=== STDOUT ===\n")
	b.Write(o.stdout.Bytes())
	b.WriteString("\n\n=== STDERR ===\n")
	b.Write(o.stderr.Bytes())
	return b.Bytes()
}

func (c command) run(ctx context.Context, logger *zap.Logger, vars map[string]string) (*output, error) {
	args := c.expand(vars)
	logger.Debug("running external command", zap.String("binary", c.binary), zap.Strings("args", args))

	out := &output{}
	cmd := commandContext(ctx, c.binary, args...) //nolint:gosec
	cmd.Stdout = &out.stdout
	cmd.Stderr = &out.stderr
	err := cmd.Run()
	if err != nil {
		logger.Debug("external command failed",
			zap.String("binary", c.binary),
			zap.Error(err),
			zap.String("stderr", lastLine(out.stderr.String())))
	}
	return out, err
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
