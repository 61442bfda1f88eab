package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/govbatch/govbatch/internal/gov"
	"github.com/govbatch/govbatch/internal/output"
)

var grantsFile string

var batchGrantsCmd = &cobra.Command{
	Use:   "grants",
	Short: "Create access grants in bulk",
	Long: `Create access grants in bulk from a YAML file of the form:

  grants:
    - userId: 00u1abcd
      grantBody: {"grantType": "ENTITLEMENT_BUNDLE", "targetId": "enb1"}

A grant that comes back without an id is reported as failed even when
the remote call succeeded.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		specs, err := loadGrantSpecs(grantsFile)
		if err != nil {
			return err
		}

		tasks, err := gov.CreateGrantTasks(specs)
		if err != nil {
			return err
		}

		rt, err := newBatchRuntime()
		if err != nil {
			return err
		}

		result, err := rt.run(cmd.Context(), "grants", tasks)
		if err != nil {
			return err
		}

		report := gov.BuildGrantReport(result.Outcomes)
		format, err := output.ParseFormat(rt.cfg.Output)
		if err != nil {
			return err
		}
		if format == output.FormatJSON {
			payload, err := json.MarshalIndent(report, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(payload))
			return nil
		}

		if err := rt.render(result); err != nil {
			return err
		}
		fmt.Printf("Created %d, failed %d\n", len(report.Created), len(report.Failed))
		return nil
	},
}

// loadGrantSpecs parses the grants file. YAML is a superset of JSON, so
// both input styles work.
func loadGrantSpecs(path string) ([]gov.GrantSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read grants file: %w", err)
	}

	var doc struct {
		Grants []struct {
			UserID    string `yaml:"userId"`
			GrantBody any    `yaml:"grantBody"`
		} `yaml:"grants"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse grants file %s: %w", path, err)
	}
	if len(doc.Grants) == 0 {
		return nil, fmt.Errorf("grants file %s defines no grants", path)
	}

	specs := make([]gov.GrantSpec, 0, len(doc.Grants))
	for _, grant := range doc.Grants {
		var body []byte
		if grant.GrantBody != nil {
			body, err = json.Marshal(normalizeYAML(grant.GrantBody))
			if err != nil {
				return nil, fmt.Errorf("encode grant body for %s: %w", grant.UserID, err)
			}
		}
		specs = append(specs, gov.GrantSpec{UserID: grant.UserID, Body: body})
	}
	return specs, nil
}

// normalizeYAML converts yaml.v3's map[any]any trees into
// map[string]any so they marshal to JSON.
func normalizeYAML(value any) any {
	switch typed := value.(type) {
	case map[any]any:
		normalized := make(map[string]any, len(typed))
		for key, item := range typed {
			normalized[fmt.Sprint(key)] = normalizeYAML(item)
		}
		return normalized
	case map[string]any:
		for key, item := range typed {
			typed[key] = normalizeYAML(item)
		}
		return typed
	case []any:
		for i, item := range typed {
			typed[i] = normalizeYAML(item)
		}
		return typed
	default:
		return value
	}
}

func init() {
	batchCmd.AddCommand(batchGrantsCmd)
	batchGrantsCmd.Flags().StringVarP(&grantsFile, "file", "f", "", "grants YAML file (required)")
	_ = batchGrantsCmd.MarkFlagRequired("file")
}
