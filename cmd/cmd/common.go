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
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/cryptfat/cryptfat/internal/logger"
	"github.com/cryptfat/cryptfat/internal/volume"
)

// cliLogger returns a stderr-backed logger when --verbose was passed,
// and nil (silent) otherwise.
func cliLogger(cmd *cobra.Command) *logger.Logger {
	verbose, _ := cmd.Flags().GetBool("verbose")
	if !verbose {
		return nil
	}
	return logger.New(os.Stderr, logger.DebugLevel)
}

// addCredentialFlags installs the flags every command touching a
// container needs to derive a header key (spec §4.6 steps 3-4).
func addCredentialFlags(cmd *cobra.Command) {
	cmd.Flags().String("password", "", "container password (prompted on stdin if omitted)")
	cmd.Flags().StringSlice("keyfile", nil, "path to a keyfile; repeatable")
	cmd.Flags().Int("pim", 0, "PIM value (0 selects the volume kind's default iteration count)")
}

func readCredentials(cmd *cobra.Command) (volume.Credentials, func(), error) {
	password, _ := cmd.Flags().GetString("password")
	if password == "" {
		var err error
		password, err = promptPassword()
		if err != nil {
			return volume.Credentials{}, nil, err
		}
	}

	keyfilePaths, _ := cmd.Flags().GetStringSlice("keyfile")
	pim, _ := cmd.Flags().GetInt("pim")

	var files []*os.File
	closeAll := func() {
		for _, f := range files {
			f.Close()
		}
	}

	creds := volume.Credentials{
		Password: []byte(password),
		PIM:      pim,
	}
	for _, p := range keyfilePaths {
		f, err := os.Open(p)
		if err != nil {
			closeAll()
			return volume.Credentials{}, nil, fmt.Errorf("opening keyfile %s: %w", p, err)
		}
		files = append(files, f)
		creds.Keyfiles = append(creds.Keyfiles, io.Reader(f))
	}
	return creds, closeAll, nil
}

// promptPassword reads a password from stdin without hiding the input.
// The pack's only terminal-echo-suppression candidates
// (golang.org/x/term, golang.org/x/crypto/ssh/terminal) appear solely as
// indirect manifest entries with no call site anywhere in the corpus, so
// this uses bufio directly rather than fabricating usage of an
// unverified API surface; see DESIGN.md.
func promptPassword() (string, error) {
	fmt.Fprint(os.Stderr, "Password: ")
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	for len(line) > 0 && (line[len(line)-1] == '\n' || line[len(line)-1] == '\r') {
		line = line[:len(line)-1]
	}
	return line, nil
}

func parseSize(s string) (int64, error) {
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return v, nil
	}
	v, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}
	return int64(v), nil
}

func openVolume(path string, cmd *cobra.Command) (*volume.MountedVolume, error) {
	creds, closeFiles, err := readCredentials(cmd)
	if err != nil {
		return nil, err
	}
	defer closeFiles()
	return volume.OpenWithLogger(path, creds, cliLogger(cmd))
}
