// Package testutil contains helpers shared by the package tests.
package testutil

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// CompareGoldenFile verifies that output matches the named golden file under
// testdata.
func CompareGoldenFile(t *testing.T, goldenFileName string, output []byte) {
	t.Helper()

	if runtime.GOOS == "windows" {
		t.Skip("skipping golden file test in Windows")
	}

	g := goldie.New(
		t,
		goldie.WithFixtureDir("testdata"),
	)

	g.Assert(t, goldenFileName, output)
}

// CopyFile places a fixture at the given destination.
func CopyFile(src, dst string) error {
	sourceFile, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening source file: %w", err)
	}
	defer sourceFile.Close()

	destFile, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("creating destination file: %w", err)
	}
	defer destFile.Close()

	_, err = io.Copy(destFile, sourceFile)
	if err != nil {
		return fmt.Errorf("copying file: %w", err)
	}

	return nil
}
