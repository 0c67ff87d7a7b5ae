package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/eichs/unitypack/asset"
	"github.com/eichs/unitypack/internal/unitycn"
)

func init() {
	rootCmd.AddCommand(newKeyCmd())
}

func newKeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "key <bundle>",
		Short: "Check a Unity-China key or print the seed vectors to recover one",
		Long: `The key command opens a bundle with the configured key. When the bundle
is encrypted and the key is missing or wrong, it prints the signature data
and signature key vectors the key can be recovered from.

Example:
  unitypack key data.unity3d
  unitypack key data.unity3d --key 516b7a029d3e44c1880f12a65be73099`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			c, err := openFile(args[0])
			var keyErr *unitycn.KeyError
			if errors.As(err, &keyErr) {
				fmt.Fprintf(out, "status:         %v\n", keyErr.Err)
				fmt.Fprintf(out, "signature data: %x\n", keyErr.SignatureData)
				fmt.Fprintf(out, "signature key:  %x\n", keyErr.SignatureKey)
				return nil
			}
			if err != nil {
				return err
			}
			encrypted := 0
			c.Walk(func(path string, n *asset.Container) {
				if b := n.Bundle(); b != nil && b.Encrypted() {
					encrypted++
					fmt.Fprintf(out, "%s: key verifies\n", path)
				}
			})
			if encrypted == 0 {
				fmt.Fprintln(out, "no encrypted bundles")
			}
			return nil
		},
	}
}
