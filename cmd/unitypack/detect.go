package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/eichs/unitypack/asset"
)

func init() {
	rootCmd.AddCommand(newDetectCmd())
}

func newDetectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "detect <file>...",
		Short: "Report the container format of each file",
		Long: `The detect command classifies files by their leading bytes without
parsing them.

Example:
  unitypack detect data.unity3d WebGL.data.gz`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, path := range args {
				data, err := os.ReadFile(path)
				if err != nil {
					return err
				}
				d := asset.Detect(data)
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %s", path, d.Kind)
				switch d.Kind {
				case asset.KindSerializedFile:
					fmt.Fprintf(cmd.OutOrStdout(), " (%s)", d.Endian)
				case asset.KindBundle:
					fmt.Fprintf(cmd.OutOrStdout(), " (%s)", d.Signature)
				case asset.KindWeb:
					fmt.Fprintf(cmd.OutOrStdout(), " (%s)", d.Stream)
				}
				fmt.Fprintln(cmd.OutOrStdout())
			}
			return nil
		},
	}
}
