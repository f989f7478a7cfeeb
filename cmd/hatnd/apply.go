package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/evgeniums/hatn-sub006/pkg/db"
)

// ModelManifest is a YAML resource describing one db.Model registration,
// the same "apiVersion/kind/metadata/spec" envelope
// cuemby-warren/cmd/warren/apply.go decodes for its resources, narrowed
// here to the one Kind this binary understands.
type ModelManifest struct {
	APIVersion string            `yaml:"apiVersion"`
	Kind       string            `yaml:"kind"`
	Metadata   ManifestMetadata  `yaml:"metadata"`
	Spec       ModelManifestSpec `yaml:"spec"`
}

type ManifestMetadata struct {
	Name string `yaml:"name"`
}

type ModelManifestSpec struct {
	ID             uint64             `yaml:"id"`
	Partitioned    bool               `yaml:"partitioned"`
	PartitionField uint32             `yaml:"partitionField"`
	TTLField       uint32             `yaml:"ttlField"`
	TTLSeconds     uint32             `yaml:"ttlSeconds"`
	Indexes        []IndexManifestDef `yaml:"indexes"`
}

type IndexManifestDef struct {
	Name   string   `yaml:"name"`
	Fields []uint32 `yaml:"fields"`
	Unique bool     `yaml:"unique"`
}

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "register model manifests against the storage engine",
	RunE:  runApply,
}

func init() {
	applyCmd.Flags().StringP("file", "f", "", "YAML model manifest to apply (required)")
	_ = applyCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(applyCmd)
}

func runApply(cmd *cobra.Command, args []string) error {
	filename, _ := cmd.Flags().GetString("file")
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("read manifest: %w", err)
	}

	var manifest ModelManifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return fmt.Errorf("parse manifest: %w", err)
	}
	if manifest.Kind != "Model" {
		return fmt.Errorf("unsupported manifest kind %q, expected Model", manifest.Kind)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := db.Open(cfg.Storage.Path)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer store.Close()

	model := modelFromManifest(manifest)
	if err := store.RegisterModel(model); err != nil {
		return fmt.Errorf("register model: %w", err)
	}
	fmt.Printf("model %q registered with %d index(es)\n", model.Name, len(model.Indexes))
	return nil
}

func modelFromManifest(m ModelManifest) *db.Model {
	model := &db.Model{
		ID:             m.Spec.ID,
		Name:           m.Metadata.Name,
		Partitioned:    m.Spec.Partitioned,
		PartitionField: m.Spec.PartitionField,
		TTLField:       m.Spec.TTLField,
		TTLSeconds:     m.Spec.TTLSeconds,
	}
	for _, idx := range m.Spec.Indexes {
		model.Indexes = append(model.Indexes, db.IndexDef{
			Name:   idx.Name,
			Fields: idx.Fields,
			Unique: idx.Unique,
		})
	}
	return model
}
