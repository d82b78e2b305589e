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
	"github.com/spf13/cobra"
)

const AppName = "cryptfat"

func Execute() error {
	rootCmd := &cobra.Command{
		Use:   AppName,
		Short: AppName + " - encrypted FAT32 container engine",
	}
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "log mount lifecycle and internal diagnostics to stderr")

	rootCmd.AddCommand(DefineCreateCommand())
	rootCmd.AddCommand(DefineOpenCommand())
	rootCmd.AddCommand(DefineMountCommand())
	rootCmd.AddCommand(DefineLsCommand())
	rootCmd.AddCommand(DefineStatCommand())
	rootCmd.AddCommand(DefineCatCommand())
	rootCmd.AddCommand(DefineCpCommand())
	rootCmd.AddCommand(DefineMkdirCommand())
	rootCmd.AddCommand(DefineRmCommand())
	rootCmd.AddCommand(DefineFsckCommand())

	return rootCmd.Execute()
}
