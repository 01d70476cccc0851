package commands

import (
	"os"

	"github.com/marmos91/dittoshare/internal/cli/output"
	"github.com/marmos91/dittoshare/pkg/config"
	"github.com/spf13/cobra"
)

var sharesOutput string

var sharesCmd = &cobra.Command{
	Use:   "shares",
	Short: "List configured shares",
	Long: `List the shares defined in the configuration file.

Examples:
  # List shares as a table
  dittoshare shares

  # List shares as JSON
  dittoshare shares --output json`,
	RunE: runShares,
}

func init() {
	sharesCmd.Flags().StringVarP(&sharesOutput, "output", "o", "table", "Output format (table|json|yaml)")
}

// ShareInfo is the listing entry for a configured share.
type ShareInfo struct {
	Name     string `json:"name" yaml:"name"`
	Path     string `json:"path" yaml:"path"`
	Hidden   bool   `json:"hidden" yaml:"hidden"`
	ReadOnly bool   `json:"read_only" yaml:"read_only"`
	ListDir  bool   `json:"list_dir" yaml:"list_dir"`
}

func runShares(cmd *cobra.Command, args []string) error {
	format, err := output.ParseFormat(sharesOutput)
	if err != nil {
		return err
	}

	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}

	infos := make([]ShareInfo, 0, len(cfg.Shares))
	for _, sc := range cfg.Shares {
		infos = append(infos, ShareInfo{
			Name:     sc.Name,
			Path:     sc.Path,
			Hidden:   sc.Hidden,
			ReadOnly: sc.ReadOnly,
			ListDir:  sc.ListDirEnabled(),
		})
	}

	switch format {
	case output.FormatJSON:
		return output.PrintJSON(os.Stdout, infos)
	case output.FormatYAML:
		return output.PrintYAML(os.Stdout, infos)
	default:
		table := output.NewTableData("NAME", "PATH", "ACCESS", "LISTING", "VISIBILITY")
		for _, info := range infos {
			access := "read-write"
			if info.ReadOnly {
				access = "read-only"
			}
			listing := "enabled"
			if !info.ListDir {
				listing = "disabled"
			}
			visibility := "visible"
			if info.Hidden {
				visibility = "hidden"
			}
			table.AddRow(info.Name, info.Path, access, listing, visibility)
		}
		return output.PrintTable(os.Stdout, table)
	}
}
