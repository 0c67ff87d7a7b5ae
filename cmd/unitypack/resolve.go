package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/eichs/unitypack/asset"
)

var resolveDeps []string

func init() {
	rootCmd.AddCommand(newResolveCmd())
}

func newResolveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resolve <file> <serialized-file> <file-id> <path-id>",
		Short: "Follow an object pointer to its target",
		Long: `The resolve command resolves the pointer (file-id, path-id) as seen from
a serialized file inside <file>. Pointers into other bundles need those
bundles passed with --dep; their serialized files are attached beside the
source file.

Example:
  unitypack resolve data.unity3d CAB-0123 0 42
  unitypack resolve data.unity3d CAB-0123 1 -4701 --dep shared.unity3d`,
		Args: cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			fileID, err := strconv.ParseInt(args[2], 10, 32)
			if err != nil {
				return fmt.Errorf("file-id: %w", err)
			}
			pathID, err := strconv.ParseInt(args[3], 10, 64)
			if err != nil {
				return fmt.Errorf("path-id: %w", err)
			}
			root, err := openFile(args[0])
			if err != nil {
				return err
			}
			src := root.Find(args[1])
			if src == nil || src.SerializedFile() == nil {
				return fmt.Errorf("no serialized file %q in %s", args[1], args[0])
			}
			for _, dep := range resolveDeps {
				if err := attachDependency(src, dep); err != nil {
					return err
				}
			}
			o, err := asset.Pointer{FileID: int32(fileID), PathID: pathID}.Resolve(src.SerializedFile())
			if err != nil {
				return err
			}
			printObject(cmd.OutOrStdout(), o)
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&resolveDeps, "dep", nil, "Bundle or serialized file holding pointer targets")
	return cmd
}

// attachDependency attaches the serialized files of the file at path beside
// src.
func attachDependency(src *asset.Container, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if asset.Detect(data).Kind == asset.KindSerializedFile {
		return addDependency(src, filepath.Base(path), data, path)
	}
	dep, err := openFile(path)
	if err != nil {
		return err
	}
	var files []*asset.Container
	dep.Walk(func(_ string, c *asset.Container) {
		if c.SerializedFile() != nil {
			files = append(files, c)
		}
	})
	for _, f := range files {
		b, err := f.Bytes()
		if err != nil {
			return err
		}
		if err := addDependency(src, f.Name(), b, path); err != nil {
			return err
		}
	}
	return nil
}

// addDependency attaches one serialized file, skipping names the source
// archive already holds.
func addDependency(src *asset.Container, name string, data []byte, from string) error {
	_, err := src.AddDependency(name, data)
	switch {
	case errors.Is(err, asset.ErrNameTaken):
		logger.Warn("skipping dependency already in the archive", "name", name, "from", from)
		return nil
	case err != nil:
		return fmt.Errorf("dependency %s: %w", name, err)
	}
	logger.Debug("attached dependency", "name", name, "from", from)
	return nil
}

func printObject(out io.Writer, o *asset.Object) {
	fmt.Fprintf(out, "file:    %s\n", o.File().Container().Name())
	fmt.Fprintf(out, "path id: %d\n", o.PathID)
	fmt.Fprintf(out, "class:   %s\n", o.ClassID)
	fmt.Fprintf(out, "size:    %d\n", o.ByteSize)
	if name := o.Name(); name != "" {
		fmt.Fprintf(out, "name:    %s\n", name)
	}
}
