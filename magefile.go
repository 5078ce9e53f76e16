//go:build mage
// +build mage

package main

import (
	"os"

	"github.com/princjef/mageutil/bintool"
	"github.com/princjef/mageutil/shellcmd"
)

var (
	golines = bintool.Must(bintool.NewGo(
		"github.com/segmentio/golines",
		"v0.12.2",
	))
	linter = bintool.Must(bintool.New(
		"golangci-lint{{.BinExt}}",
		"1.61.0",
		"https://github.com/golangci/golangci-lint/releases/download/v{{.Version}}/golangci-lint-{{.Version}}-{{.GOOS}}-{{.GOARCH}}{{.ArchiveExt}}",
	))
)

// Format wraps long lines and formats the code.
func Format() error {
	if err := golines.Ensure(); err != nil {
		return err
	}
	return golines.Command(`-m 80 --no-reformat-tags -w .`).Run()
}

// Lint lints the code.
func Lint() error {
	if err := linter.Ensure(); err != nil {
		return err
	}
	return linter.Command(`run`).Run()
}

// Test runs the unit tests, including the in-process broker tests.
func Test() error {
	return shellcmd.Command(`go test -race -cover -timeout 60s ./...`).Run()
}

// TestRedis runs the store tests against the Redis at GB_TEST_REDIS_URL,
// defaulting to a local instance.
func TestRedis() error {
	if os.Getenv("GB_TEST_REDIS_URL") == "" {
		if err := os.Setenv(
			"GB_TEST_REDIS_URL",
			"redis://localhost:6379/15",
		); err != nil {
			return err
		}
	}
	return shellcmd.Command(`go test -count=1 -run Redis ./store/...`).Run()
}

// Build compiles the monitor and sensor binaries into bin/.
func Build() error {
	return shellcmd.RunAll(
		`go build -o bin/ ./cmd/gbmonitor`,
		`go build -o bin/ ./cmd/gbsensor`,
	)
}

// CI runs format, lint and test.
func CI() error {
	if err := Format(); err != nil {
		return err
	}
	if err := Lint(); err != nil {
		return err
	}
	return Test()
}
