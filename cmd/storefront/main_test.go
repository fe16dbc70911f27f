package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRun_UnknownCommand(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run([]string{"checkout"}, &stdout, &stderr)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), `unknown command "checkout"`)
}

func TestRun_LoginNeedsEmailAndPassword(t *testing.T) {
	t.Setenv(passwordEnv, "")
	var stdout, stderr bytes.Buffer
	code := run([]string{"login", "-email", "a@b.c"}, &stdout, &stderr)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), passwordEnv)
	assert.Empty(t, stdout.String())
}

func TestRun_BadFlag(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run([]string{"status", "-nope"}, &stdout, &stderr)
	assert.Equal(t, 1, code)
}
