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
	"os"

	"github.com/spf13/cobra"

	"github.com/cryptfat/cryptfat/internal/logger"
	"github.com/cryptfat/cryptfat/internal/rescan"
)

func DefineFsckCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "fsck <image_path>",
		Short:        "Scan a container's FAT and directory tree for leaked or cross-linked clusters",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE:         RunFsck,
	}
	addCredentialFlags(cmd)
	cmd.Flags().Bool("reclaim", false, "free leaked chains' FAT entries instead of only reporting them")
	return cmd
}

func RunFsck(cmd *cobra.Command, args []string) error {
	reclaim, _ := cmd.Flags().GetBool("reclaim")

	v, err := openVolume(args[0], cmd)
	if err != nil {
		return err
	}
	defer v.Close()

	fs, err := v.FS()
	if err != nil {
		return err
	}

	level := logger.InfoLevel
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		level = logger.DebugLevel
	}
	log := logger.New(os.Stderr, level)

	report, err := rescan.Run(fs, rescan.Options{Reclaim: reclaim, Log: log})
	if err != nil {
		return err
	}

	fmt.Printf("Leaked chains:        %d\n", len(report.LeakedChains))
	fmt.Printf("Cross-linked clusters: %d\n", len(report.CrossLinkedClusters))
	if reclaim {
		fmt.Printf("Reclaimed clusters:   %d\n", report.ReclaimedClusters)
	}
	if len(report.LeakedChains) > 0 && !reclaim {
		fmt.Println("Run with --reclaim to free leaked clusters.")
	}
	return nil
}
