package main

import (
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/zeebo/blake3"

	"github.com/eichs/unitypack/asset"
)

var (
	lsDigest  bool
	lsObjects bool
)

func init() {
	rootCmd.AddCommand(newLsCmd())
}

func newLsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ls <file>",
		Short: "List the containers nested in a file",
		Long: `The ls command parses a file and prints every nested container with its
kind and size. Archives also print their format details.

Example:
  unitypack ls data.unity3d
  unitypack ls data.unity3d --objects --digest`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := openFile(args[0])
			if err != nil {
				return err
			}
			return runLs(cmd.OutOrStdout(), c)
		},
	}
	cmd.Flags().BoolVar(&lsDigest, "digest", false, "Print the BLAKE3 digest of each container")
	cmd.Flags().BoolVar(&lsObjects, "objects", false, "List the objects of serialized files")
	return cmd
}

func runLs(out io.Writer, root *asset.Container) error {
	var walkErr error
	root.Walk(func(path string, c *asset.Container) {
		if walkErr != nil {
			return
		}
		b, err := c.Bytes()
		if err != nil {
			walkErr = fmt.Errorf("%s: %w", path, err)
			return
		}
		depth := strings.Count(path, "/")
		line := fmt.Sprintf("%s%-14s %10s  %s", strings.Repeat("  ", depth), c.Kind(), humanize.IBytes(uint64(len(b))), c.Name())
		if lsDigest {
			sum := blake3.Sum256(b)
			line += "  " + hex.EncodeToString(sum[:])
		}
		fmt.Fprintln(out, line)
		describe(out, depth+1, c)
	})
	return walkErr
}

func describe(out io.Writer, depth int, c *asset.Container) {
	indent := strings.Repeat("  ", depth)
	switch c.Kind() {
	case asset.KindBundle:
		b := c.Bundle()
		fmt.Fprintf(out, "%s# %s, %s, %d blocks", indent, b, b.Method(), len(b.Blocks))
		if b.Encrypted() {
			fmt.Fprint(out, ", encrypted")
		}
		fmt.Fprintln(out)
	case asset.KindWeb:
		fmt.Fprintf(out, "%s# %s\n", indent, c.Web())
	case asset.KindSerializedFile:
		f := c.SerializedFile()
		fmt.Fprintf(out, "%s# version %d, unity %s, %d objects, %d externals\n",
			indent, f.Version(), f.UnityVersion, len(f.Objects()), len(f.Externals))
		if !lsObjects {
			return
		}
		for _, o := range f.Objects() {
			name := o.Name()
			if name == "" {
				name = "-"
			}
			fmt.Fprintf(out, "%s%20d %-16s %10s  %s\n", indent, o.PathID, o.ClassID, humanize.IBytes(uint64(o.ByteSize)), name)
		}
	}
}
