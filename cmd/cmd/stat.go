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

func DefineStatCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "stat <image_path> <container_path>",
		Short:        "Print metadata for a file or directory inside a container",
		Args:         cobra.ExactArgs(2),
		SilenceUsage: true,
		RunE:         RunStat,
	}
	addCredentialFlags(cmd)
	return cmd
}

func RunStat(cmd *cobra.Command, args []string) error {
	v, err := openVolume(args[0], cmd)
	if err != nil {
		return err
	}
	defer v.Close()

	entry, err := v.Stat(args[1])
	if err != nil {
		return err
	}

	kind := "file"
	if entry.IsDirectory {
		kind = "directory"
	}
	fmt.Printf("Name:     %s\n", entry.Name)
	fmt.Printf("Type:     %s\n", kind)
	fmt.Printf("Size:     %s (%d bytes)\n", humanize.Bytes(uint64(entry.Size)), entry.Size)
	fmt.Printf("Modified: %s\n", entry.LastModified.Format("2006-01-02 15:04:05"))
	return nil
}
