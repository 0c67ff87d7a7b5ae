package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/eichs/unitypack/asset"
)

var (
	repackOutput      string
	repackCompression string
	repackStream      string
	repackBlockSize   int
	repackDecrypt     bool
)

func init() {
	rootCmd.AddCommand(newRepackCmd())
}

func newRepackCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "repack <file>",
		Short: "Rebuild an archive with new compression or without encryption",
		Long: `The repack command parses an archive and writes every bundle and web
archive in it back out. --compression and --stream override the block method
and web wrapper, --decrypt writes Unity-China bundles in plain form.

Example:
  unitypack repack data.unity3d -o plain.unity3d --key 516b... --decrypt
  unitypack repack data.unity3d -o small.unity3d --compression lzma
  unitypack repack WebGL.data -o WebGL.data.br --stream brotli`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if repackCompression != "" {
				cfg.Compression = repackCompression
			}
			if repackStream != "" {
				cfg.Stream = repackStream
			}
			if repackBlockSize > 0 {
				cfg.BlockSize = repackBlockSize
			}
			if repackDecrypt {
				cfg.Encryption = "strip"
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			out := repackOutput
			if out == "" {
				out = args[0] + ".repacked"
			}
			c, err := openFile(args[0])
			if err != nil {
				return err
			}
			b, err := repack(c)
			if err != nil {
				return err
			}
			if err := writeFile(out, b); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%s)\n", out, humanize.IBytes(uint64(len(b))))
			return nil
		},
	}
	cmd.Flags().StringVarP(&repackOutput, "output", "o", "", "Output path (default <file>.repacked)")
	cmd.Flags().StringVar(&repackCompression, "compression", "", "Block method: none, lzma, lz4 or lz4hc")
	cmd.Flags().StringVar(&repackStream, "stream", "", "Web archive wrapper: none, gzip or brotli")
	cmd.Flags().IntVar(&repackBlockSize, "block-size", 0, "Uncompressed block size of rebuilt bundles")
	cmd.Flags().BoolVar(&repackDecrypt, "decrypt", false, "Write Unity-China bundles without encryption")
	return cmd
}

// repack taints every archive below root so the write options reach nested
// bundles too, then serializes root.
func repack(root *asset.Container) ([]byte, error) {
	if root.Kind() != asset.KindBundle && root.Kind() != asset.KindWeb {
		return nil, fmt.Errorf("%s is a %s, not an archive", root.Name(), root.Kind())
	}
	root.Walk(func(_ string, c *asset.Container) {
		if c.Kind() == asset.KindBundle || c.Kind() == asset.KindWeb {
			c.MarkDirty()
		}
	})
	return root.Serialize()
}
