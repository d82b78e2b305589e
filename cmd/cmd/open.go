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

func DefineOpenCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "open <image_path>",
		Aliases:      []string{"info"},
		Short:        "Open a container and print header/volume info",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE:         RunOpen,
	}
	addCredentialFlags(cmd)
	return cmd
}

func RunOpen(cmd *cobra.Command, args []string) error {
	v, err := openVolume(args[0], cmd)
	if err != nil {
		return err
	}
	defer v.Close()

	total, err := v.TotalSpace()
	if err != nil {
		return err
	}
	free, err := v.FreeSpace()
	if err != nil {
		return err
	}

	fmt.Printf("%s: opened successfully\n", args[0])
	fmt.Printf("  data area: %s\n", humanize.Bytes(total))
	fmt.Printf("  free:      %s\n", humanize.Bytes(free))
	return nil
}
