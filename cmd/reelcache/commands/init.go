package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/reelcache/reelcache/pkg/api"
	"github.com/reelcache/reelcache/pkg/config"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a sample configuration file",
	Long: `Initialize a sample ReelCache configuration file.

By default, the configuration file is created at
$XDG_CONFIG_HOME/reelcache/config.yaml. Use --config to specify a custom path.

Examples:
  # Initialize with default location
  reelcache init

  # Initialize with custom path
  reelcache init --config /etc/reelcache/config.yaml

  # Force overwrite existing config
  reelcache init --force`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Force overwrite existing config file")
}

func runInit(cmd *cobra.Command, args []string) error {
	configFile := GetConfigFile()

	var configPath string
	var err error

	if configFile != "" {
		err = config.InitConfigToPath(configFile, initForce)
		configPath = configFile
	} else {
		configPath, err = config.InitConfig(initForce)
	}

	if err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}

	fmt.Printf("Configuration file created at: %s\n", configPath)
	fmt.Println("\nNext steps:")
	fmt.Println("  1. Edit the configuration file: set storage.s3.bucket to your media bucket")
	fmt.Println("  2. Start the server with: reelcache start")
	fmt.Printf("  3. Or specify custom config: reelcache start --config %s\n", configPath)
	fmt.Println("\nSecurity note:")
	fmt.Println("  A random JWT secret has been generated for development use.")
	fmt.Println("  For production, generate a secure secret and use an environment variable:")
	fmt.Printf("    export %s=$(openssl rand -hex 32)\n", api.EnvJWTSecret)

	return nil
}
