package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"time"
)

var ErrConversion = errors.New("pdf conversion failed")

var convertedPath = regexp.MustCompile(`-> (.+?) using filter`)

const (
	DefaultConverterBin     = "soffice"
	DefaultConverterTimeout = 2 * time.Minute
)

// Converter turns word documents into pdf by running an office suite in
// headless mode.
type Converter struct {
	Bin     string
	Timeout time.Duration
}

func NewConverter(bin string, timeout time.Duration) *Converter {
	if bin == "" {
		bin = DefaultConverterBin
	}
	if timeout <= 0 {
		timeout = DefaultConverterTimeout
	}
	return &Converter{Bin: bin, Timeout: timeout}
}

// Convert writes docx into a scratch directory, converts it and returns the
// pdf bytes. The directory is removed afterwards.
func (c *Converter) Convert(ctx context.Context, name string, docx []byte) ([]byte, error) {
	dir, err := os.MkdirTemp("", "export-*")
	if err != nil {
		return nil, fmt.Errorf("%w: scratch dir: %v", ErrConversion, err)
	}
	defer os.RemoveAll(dir)

	src := filepath.Join(dir, filepath.Base(name))
	if err := os.WriteFile(src, docx, 0o600); err != nil {
		return nil, fmt.Errorf("%w: write source: %v", ErrConversion, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, c.Bin, "--headless", "--convert-to", "pdf", "--outdir", dir, src)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%w: %v: %s", ErrConversion, err, bytes.TrimSpace(stderr.Bytes()))
	}

	m := convertedPath.FindSubmatch(stdout.Bytes())
	if m == nil {
		return nil, fmt.Errorf("%w: unexpected converter output %q", ErrConversion, bytes.TrimSpace(stdout.Bytes()))
	}
	out, err := os.ReadFile(string(m[1]))
	if err != nil {
		return nil, fmt.Errorf("%w: read output: %v", ErrConversion, err)
	}
	return out, nil
}
