// Copyright 2025 The shiki authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/pirakansa/shiki/pkg/standarderrors"
)

// commandResult is the outcome of one external command.
type commandResult struct {
	Output   string
	ExitedOK bool
}

// runCommand executes a program with the given arguments. The context
// deadline bounds the run; on expiry the process is killed and a timeout
// error is returned. A non-zero exit is not an error here, callers decide
// what it means.
func runCommand(ctx context.Context, program string, args []string, dir string, env []string) (commandResult, error) {
	cmd := exec.CommandContext(ctx, program, args...)
	cmd.Stdin = nil

	if dir != "" {
		cmd.Dir = dir
	}

	if len(env) > 0 {
		cmd.Env = append(os.Environ(), env...)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()

	if ctxErr := ctx.Err(); ctxErr != nil {
		return commandResult{}, newCommandTimeout(program, args)
	}

	output := combineOutput(stdout.String(), stderr.String())

	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			return commandResult{Output: output, ExitedOK: false}, nil
		}

		return commandResult{}, newCommandStartFailure(program, runErr)
	}

	return commandResult{Output: output, ExitedOK: true}, nil
}

func combineOutput(stdout, stderr string) string {
	stdout = strings.TrimRight(stdout, "\n")
	stderr = strings.TrimRight(stderr, "\n")

	switch {
	case stderr == "":
		return stdout
	case stdout == "":
		return stderr
	default:
		return stdout + "\n" + stderr
	}
}

func newCommandTimeout(program string, args []string) error {
	return standarderrors.NewTimeoutError(fmt.Sprintf("command timed out: %s %s", program, strings.Join(args, " ")))
}

func newCommandStartFailure(program string, err error) error {
	return standarderrors.NewBackendError(fmt.Sprintf("failed to execute %s", program), err)
}
