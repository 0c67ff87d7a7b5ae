package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/fxamacker/cbor/v2"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/eichs/unitypack/asset"
	"github.com/eichs/unitypack/typetree"
)

var (
	dumpFormat  string
	dumpClasses []string
	dumpPathID  int64
	dumpScript  string
)

func init() {
	rootCmd.AddCommand(newDumpCmd())
}

func newDumpCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dump <file>",
		Short: "Decode objects through their type trees",
		Long: `The dump command decodes the objects of every serialized file in a file
and prints them as JSON, YAML or CBOR. Objects whose file carries no type
tree are decoded with the layout configured for --script under type_trees,
or skipped.

Example:
  unitypack dump data.unity3d --class TextAsset
  unitypack dump data.unity3d --path-id 1 --format yaml
  unitypack dump level0 --class MonoBehaviour --script Assembly-CSharp.dll:Game.Settings`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := openFile(args[0])
			if err != nil {
				return err
			}
			return runDump(cmd, c)
		},
	}
	cmd.Flags().StringVarP(&dumpFormat, "format", "f", "json", "Output format: json, yaml or cbor")
	cmd.Flags().StringSliceVar(&dumpClasses, "class", nil, "Only dump these classes (name or id)")
	cmd.Flags().Int64Var(&dumpPathID, "path-id", 0, "Only dump the object with this path id")
	cmd.Flags().StringVar(&dumpScript, "script", "", `Script type "Assembly.dll:Type" for objects without a type tree`)
	return cmd
}

type dumpRecord struct {
	File     string             `json:"file" yaml:"file" cbor:"file"`
	PathID   int64              `json:"path_id" yaml:"path_id" cbor:"path_id"`
	Class    string             `json:"class" yaml:"class" cbor:"class"`
	Document *typetree.Document `json:"document" yaml:"document" cbor:"document"`
}

func runDump(cmd *cobra.Command, root *asset.Container) error {
	classes := make([]asset.ClassID, 0, len(dumpClasses))
	for _, s := range dumpClasses {
		id, ok := asset.ParseClassID(s)
		if !ok {
			return fmt.Errorf("unknown class %q", s)
		}
		classes = append(classes, id)
	}
	var asm, typ string
	if dumpScript != "" {
		var ok bool
		if asm, typ, ok = strings.Cut(dumpScript, ":"); !ok {
			return fmt.Errorf(`--script must look like "Assembly.dll:Type", got %q`, dumpScript)
		}
	}

	objects := root.Objects()
	if len(classes) > 0 {
		objects = root.ObjectsOf(classes...)
	}
	records := []dumpRecord{}
	for _, o := range objects {
		if dumpPathID != 0 && o.PathID != dumpPathID {
			continue
		}
		doc, err := decode(cmd, o, asm, typ)
		if errors.Is(err, asset.ErrNoTypeTree) {
			logger.Warn("skipping object without type tree", "file", o.File().Container().Name(), "object", o.String())
			continue
		}
		if err != nil {
			return err
		}
		records = append(records, dumpRecord{
			File:     o.File().Container().Name(),
			PathID:   o.PathID,
			Class:    o.ClassID.String(),
			Document: doc,
		})
	}
	return writeRecords(cmd.OutOrStdout(), dumpFormat, records)
}

func decode(cmd *cobra.Command, o *asset.Object, asm, typ string) (*typetree.Document, error) {
	doc, err := o.Document()
	if !errors.Is(err, asset.ErrNoTypeTree) || typ == "" {
		return doc, err
	}
	tree, err := o.GeneratedTree(cmd.Context(), asm, typ)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", o, err)
	}
	return o.DocumentWith(tree)
}

func writeRecords(out io.Writer, format string, records []dumpRecord) error {
	switch strings.ToLower(format) {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	case "yaml":
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(records); err != nil {
			return err
		}
		return enc.Close()
	case "cbor":
		b, err := cbor.Marshal(records)
		if err != nil {
			return err
		}
		_, err = out.Write(b)
		return err
	}
	return fmt.Errorf("unknown format %q", format)
}
