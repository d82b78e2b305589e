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

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func DefineLsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "ls <image_path> [container_path]",
		Short:        "List a directory inside a container",
		Args:         cobra.RangeArgs(1, 2),
		SilenceUsage: true,
		RunE:         RunLs,
	}
	addCredentialFlags(cmd)
	return cmd
}

func RunLs(cmd *cobra.Command, args []string) error {
	target := "/"
	if len(args) > 1 {
		target = args[1]
	}

	v, err := openVolume(args[0], cmd)
	if err != nil {
		return err
	}
	defer v.Close()

	entries, err := v.List(target)
	if err != nil {
		return err
	}

	for _, e := range entries {
		kind := "-"
		if e.IsDirectory {
			kind = "d"
		}
		fmt.Printf("%s %10s  %s  %s\n", kind, humanize.Bytes(uint64(e.Size)), e.LastModified.Format("2006-01-02 15:04"), e.Name)
	}
	return nil
}
