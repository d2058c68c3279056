//go:build mage

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

const binDir = "bin"

var Default = Build

// Build compiles the API server and the operator CLI into bin/.
func Build() error {
	mg.Deps(Tidy)
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		return err
	}
	for _, name := range []string{"server", "boohpayctl"} {
		out := filepath.Join(binDir, name+exeSuffix())
		fmt.Println("Building:", out)
		if err := sh.RunV("go", "build", "-trimpath", "-o", out, "./cmd/"+name); err != nil {
			return err
		}
	}
	return nil
}

func Test() error {
	fmt.Println("Testing...")
	return sh.RunV("go", "test", "./...", "-count=1")
}

func TestRace() error {
	return sh.RunV("go", "test", "./...", "-race", "-count=1")
}

func Lint() error {
	if err := sh.RunV("go", "vet", "./..."); err != nil {
		return err
	}
	return sh.RunV("gofmt", "-l", "./cmd", "./config", "./internal", "./pkg")
}

func Tidy() error {
	return sh.RunV("go", "mod", "tidy")
}

// Run starts the API server with the local configuration.
func Run() error {
	return sh.RunV("go", "run", "./cmd/server")
}

// Migrate applies the schema to the configured database.
func Migrate() error {
	return sh.RunV("go", "run", "./cmd/boohpayctl", "migrate")
}

func Clean() error {
	return os.RemoveAll(binDir)
}

func exeSuffix() string {
	if runtime.GOOS == "windows" {
		return ".exe"
	}
	return ""
}
