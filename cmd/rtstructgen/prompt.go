package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// prompter asks for values missing from the command line.
type prompter struct {
	in  *bufio.Scanner
	out io.Writer
}

func newPrompter(in io.Reader, out io.Writer) *prompter {
	return &prompter{in: bufio.NewScanner(in), out: out}
}

// ask prints label and reads one line. Surrounding quotes, as left by
// drag-and-drop paths, are removed. An empty answer yields def.
func (p *prompter) ask(label, def string) (string, error) {
	if def != "" {
		fmt.Fprintf(p.out, "%s [%s]: ", label, def)
	} else {
		fmt.Fprintf(p.out, "%s: ", label)
	}
	if !p.in.Scan() {
		if err := p.in.Err(); err != nil {
			return "", err
		}
		if def != "" {
			return def, nil
		}
		return "", fmt.Errorf("%s: no input", strings.ToLower(label))
	}
	answer := strings.TrimSpace(strings.Trim(strings.TrimSpace(p.in.Text()), `"'`))
	if answer == "" {
		if def == "" {
			return "", fmt.Errorf("%s is required", strings.ToLower(label))
		}
		return def, nil
	}
	return answer, nil
}

// fill resolves each value from args by position, prompting for the rest.
func (p *prompter) fill(args []string, fields ...promptField) error {
	for i, f := range fields {
		if i < len(args) && strings.TrimSpace(args[i]) != "" {
			*f.dst = strings.TrimSpace(args[i])
			continue
		}
		if *f.dst != "" && f.keep {
			continue
		}
		v, err := p.ask(f.label, *f.dst)
		if err != nil {
			return err
		}
		*f.dst = v
	}
	return nil
}

type promptField struct {
	label string
	dst   *string

	// keep skips the prompt when dst already holds a configured value
	keep bool
}

// parsePhases expands PRE, POST or BOTH into a phase list.
func parsePhases(v string) ([]string, error) {
	switch p := strings.ToUpper(strings.TrimSpace(v)); p {
	case "BOTH":
		return []string{"PRE", "POST"}, nil
	case "":
		return nil, fmt.Errorf("phase must not be empty")
	default:
		return []string{p}, nil
	}
}
