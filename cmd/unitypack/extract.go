package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/eichs/unitypack/asset"
)

var (
	extractDir     string
	extractObjects bool
)

func init() {
	rootCmd.AddCommand(newExtractCmd())
}

func newExtractCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "extract <file>",
		Short: "Write the members of an archive to a directory",
		Long: `The extract command writes every serialized file, resource and nested
file of an archive below the output directory, mirroring the archive layout.
With --objects the raw bytes of each object are written as well.

Example:
  unitypack extract data.unity3d -o out
  unitypack extract data.unity3d -o out --objects`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := openFile(args[0])
			if err != nil {
				return err
			}
			return runExtract(cmd.OutOrStdout(), c, extractDir)
		},
	}
	cmd.Flags().StringVarP(&extractDir, "output", "o", ".", "Output directory")
	cmd.Flags().BoolVar(&extractObjects, "objects", false, "Also write each object's raw bytes")
	return cmd
}

func runExtract(out io.Writer, root *asset.Container, dir string) error {
	var files []*asset.Container
	var paths []string
	root.Walk(func(path string, c *asset.Container) {
		if c.Kind() == asset.KindBundle || c.Kind() == asset.KindWeb {
			return
		}
		files = append(files, c)
		paths = append(paths, path)
	})
	for i, c := range files {
		dst, err := outputPath(dir, paths[i])
		if err != nil {
			return err
		}
		b, err := c.Bytes()
		if err != nil {
			return fmt.Errorf("%s: %w", paths[i], err)
		}
		if err := writeFile(dst, b); err != nil {
			return err
		}
		fmt.Fprintf(out, "%s -> %s\n", paths[i], dst)
		if extractObjects && c.SerializedFile() != nil {
			if err := extractObjectBytes(dst+".objects", c.SerializedFile()); err != nil {
				return fmt.Errorf("%s: %w", paths[i], err)
			}
		}
	}
	return nil
}

func extractObjectBytes(dir string, f *asset.SerializedFile) error {
	for _, o := range f.Objects() {
		b, err := o.Bytes()
		if err != nil {
			return err
		}
		if err := writeFile(filepath.Join(dir, fmt.Sprintf("%d.%s.bin", o.PathID, o.ClassID)), b); err != nil {
			return err
		}
	}
	return nil
}

// outputPath maps a container path below dir, rejecting paths that escape it.
func outputPath(dir, path string) (string, error) {
	rel := filepath.Clean(filepath.FromSlash(path))
	if filepath.IsAbs(rel) || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("member path %q escapes the output directory", path)
	}
	return filepath.Join(dir, rel), nil
}

func writeFile(path string, b []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}
