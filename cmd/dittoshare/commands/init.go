package commands

import (
	"fmt"
	"os"

	"github.com/marmos91/dittoshare/internal/cli/prompt"
	"github.com/marmos91/dittoshare/pkg/config"
	"github.com/spf13/cobra"
)

var (
	initForce       bool
	initInteractive bool
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a sample configuration file",
	Long: `Initialize a sample DittoShare configuration file.

By default, the configuration file is created at $XDG_CONFIG_HOME/dittoshare/config.yaml.
Use --config to specify a custom path.

Examples:
  # Initialize with default location
  dittoshare init

  # Initialize with custom path
  dittoshare init --config /etc/dittoshare/config.yaml

  # Force overwrite existing config
  dittoshare init --force

  # Interactively configure the listener and a first share
  dittoshare init --interactive`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Force overwrite existing config file")
	initCmd.Flags().BoolVarP(&initInteractive, "interactive", "i", false, "Prompt for listener and share settings")
}

func runInit(cmd *cobra.Command, args []string) error {
	configFile := GetConfigFile()

	configPath := configFile
	if configPath == "" {
		configPath = config.GetDefaultConfigPath()
	}

	force := initForce
	if _, err := os.Stat(configPath); err == nil {
		ok, err := prompt.ConfirmWithForce(fmt.Sprintf("Configuration file %s already exists. Overwrite?", configPath), force)
		if err != nil {
			if prompt.IsAborted(err) {
				return fmt.Errorf("aborted")
			}
			return err
		}
		if !ok {
			fmt.Println("Keeping existing configuration file.")
			return nil
		}
		force = true
	}

	if initInteractive {
		if err := writeInteractiveConfig(configPath); err != nil {
			if prompt.IsAborted(err) {
				return fmt.Errorf("aborted")
			}
			return err
		}
	} else if err := config.InitConfigToPath(configPath, force); err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}

	fmt.Printf("Configuration file created at: %s\n", configPath)
	fmt.Println("\nNext steps:")
	fmt.Println("  1. Edit the configuration file and add your shares")
	fmt.Println("  2. Start the server with: dittoshare start")
	fmt.Printf("  3. Or specify custom config: dittoshare start --config %s\n", configPath)

	return nil
}

// writeInteractiveConfig builds a configuration by prompting for the
// listener and an optional first share, then writes it to path.
func writeInteractiveConfig(path string) error {
	cfg := config.GetDefaultConfig()

	addr, err := prompt.Input("Listen address", "0.0.0.0")
	if err != nil {
		return err
	}

	port, err := prompt.InputPort("Listen port", 8080)
	if err != nil {
		return err
	}

	cfg.Listeners = []config.ListenerConfig{{Address: addr, Port: port}}

	addShare, err := prompt.Confirm("Add a share now?", true)
	if err != nil {
		return err
	}

	if addShare {
		name, err := prompt.InputRequired("Share name")
		if err != nil {
			return err
		}

		sharePath, err := prompt.InputRequired("Share path")
		if err != nil {
			return err
		}

		readOnly, err := prompt.Confirm("Make share read-only?", false)
		if err != nil {
			return err
		}

		cfg.Shares = append(cfg.Shares, config.ShareConfig{
			Name:     name,
			Path:     sharePath,
			ReadOnly: readOnly,
		})
	}

	if err := config.SaveConfig(cfg, path); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}
