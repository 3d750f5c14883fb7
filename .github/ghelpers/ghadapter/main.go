package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"slices"
	"strings"

	"golang.org/x/xerrors"
)

// ghadapter runs a command printing one JSON object, typically the diff
// binary, and appends its fields to $GITHUB_OUTPUT. Nested objects are
// flattened with underscores, so artifacts.delta becomes artifacts_delta.
// The exit code of the command is passed through once the outputs are
// written, which lets a workflow upload artifacts of a failed comparison.
func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: ghadapter command [args...]")
		os.Exit(2)
	}

	cmd := exec.Command(os.Args[1], os.Args[2:]...)
	cmd.Stdin = os.Stdin
	cmd.Stderr = os.Stderr

	output, err := cmd.Output()
	code := 0
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		code = exitErr.ExitCode()
	}

	if githubOutput := os.Getenv("GITHUB_OUTPUT"); githubOutput != "" && len(bytes.TrimSpace(output)) > 0 {
		if err := appendOutputs(githubOutput, output); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}

	os.Exit(code)
}

func appendOutputs(path string, output []byte) error {
	var result map[string]any
	if err := json.Unmarshal(output, &result); err != nil {
		return xerrors.Errorf("failed to parse command output: %w", err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return xerrors.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	return writeOutputs(f, result)
}

func writeOutputs(w io.Writer, result map[string]any) error {
	flat := make(map[string]string)
	flatten("", result, flat)

	keys := make([]string, 0, len(flat))
	for key := range flat {
		keys = append(keys, key)
	}
	slices.Sort(keys)

	for _, key := range keys {
		value := flat[key]
		var err error
		if strings.Contains(value, "\n") {
			// Multiline values need the heredoc form.
			_, err = fmt.Fprintf(w, "%s<<EOF\n%s\nEOF\n", key, value)
		} else {
			_, err = fmt.Fprintf(w, "%s=%s\n", key, value)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func flatten(prefix string, value any, into map[string]string) {
	switch v := value.(type) {
	case map[string]any:
		for key, child := range v {
			if prefix != "" {
				key = prefix + "_" + key
			}
			flatten(key, child, into)
		}
	case nil:
	default:
		into[prefix] = fmt.Sprint(v)
	}
}
