// Copyright (c) 2025 Stefano Scafiti
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.
package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cryptfat/cryptfat/pkg/pbar"
)

// progressWriter wraps an io.Writer and renders a progress bar on stderr
// as bytes pass through it.
type progressWriter struct {
	w     io.Writer
	state *pbar.ProgressBarState
}

func (p *progressWriter) Write(b []byte) (int, error) {
	n, err := p.w.Write(b)
	p.state.ProcessedBytes += int64(n)
	p.state.Render(false)
	return n, err
}

// progressReader is progressWriter's read-side counterpart, used when
// streaming host bytes into the container.
type progressReader struct {
	r     io.Reader
	state *pbar.ProgressBarState
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	p.state.ProcessedBytes += int64(n)
	p.state.Render(false)
	return n, err
}

// DefineCpCommand copies a file across the host/container boundary in
// either direction, chosen by which side of the colon-prefixed argument
// carries the ":" container marker (e.g. "local.txt :/docs/local.txt" or
// ":/docs/report.pdf ./report.pdf").
func DefineCpCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "cp <image_path> <src> <dst>",
		Short:        "Copy a file into or out of a container (prefix the container side with ':')",
		Args:         cobra.ExactArgs(3),
		SilenceUsage: true,
		RunE:         RunCp,
	}
	addCredentialFlags(cmd)
	return cmd
}

func RunCp(cmd *cobra.Command, args []string) error {
	src, dst := args[1], args[2]
	srcIsContainer := strings.HasPrefix(src, ":")
	dstIsContainer := strings.HasPrefix(dst, ":")
	if srcIsContainer == dstIsContainer {
		return fmt.Errorf("exactly one of src or dst must be a container path prefixed with ':'")
	}

	v, err := openVolume(args[0], cmd)
	if err != nil {
		return err
	}
	defer v.Close()

	if srcIsContainer {
		containerPath := strings.TrimPrefix(src, ":")
		entry, err := v.Stat(containerPath)
		if err != nil {
			return err
		}

		f, err := os.Create(dst)
		if err != nil {
			return err
		}
		defer f.Close()

		state := pbar.NewProgressBarState(int64(entry.Size))
		defer state.Finish()
		return v.Stream(containerPath, &progressWriter{w: f, state: state})
	}

	f, err := os.Open(src)
	if err != nil {
		return err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return err
	}

	state := pbar.NewProgressBarState(info.Size())
	defer state.Finish()
	return v.WriteStreaming(strings.TrimPrefix(dst, ":"), &progressReader{r: f, state: state}, info.Size())
}
