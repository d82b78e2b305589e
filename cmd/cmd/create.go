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

	"github.com/cryptfat/cryptfat/internal/volume"
)

func DefineCreateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "create <image_path>",
		Short:        "Create a new encrypted FAT32 container",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE:         RunCreate,
	}
	cmd.Flags().String("size", "64MB", "total container size, e.g. 64MB, 2GB, or a raw byte count")
	cmd.Flags().String("label", "CRYPTFAT", "FAT32 volume label")
	addCredentialFlags(cmd)
	return cmd
}

func RunCreate(cmd *cobra.Command, args []string) error {
	sizeStr, _ := cmd.Flags().GetString("size")
	label, _ := cmd.Flags().GetString("label")

	size, err := parseSize(sizeStr)
	if err != nil {
		return err
	}

	creds, closeFiles, err := readCredentials(cmd)
	if err != nil {
		return err
	}
	defer closeFiles()

	v, err := volume.CreateWithLogger(args[0], size, creds, label, cliLogger(cmd))
	if err != nil {
		return err
	}
	defer v.Close()

	total, err := v.TotalSpace()
	if err != nil {
		return err
	}

	fmt.Printf("Created %s (%s data area, label %q)\n", args[0], humanize.Bytes(total), label)
	return nil
}
