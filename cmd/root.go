/*
Copyright © 2021 Edmond Cotterell

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	devConfig "github.com/Daskott/tandem/dev/config"
	"github.com/Daskott/tandem/utils"
	"github.com/Daskott/tandem/version"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile  string
	isDevEnv bool

	red = color.New(color.FgRed).SprintFunc()
)

// rootCmd represents the base command when called without any subcommands
var rootCmd *cobra.Command

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	cobra.CheckErr(rootCmd.Execute())
}

func init() {
	rootCmd = createRootCmd()
	rootCmd.Version = fmt.Sprintf("v%s", version.Version)

	rootCmd.AddCommand(createServerCmd(), createElevatedCmd())
}

func createRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use: "tandem",
		Short: `tandem is a contact card & networking server.

Users publish a contact card under a short share code, and add each other
as contacts with a single scan or code.`,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "server config file (default is $HOME/tandem/server.yml)")
	cmd.PersistentFlags().BoolVarP(&isDevEnv, "dev", "", false, "run in development mode")

	return cmd
}

// serverConfig reads the server config file & env vars. Env vars use '_'
// in place of '.' e.g. TANDEM_LISTENER_PORT overrides tandem.listener.port
func serverConfig() (*viper.Viper, error) {
	config := viper.New()

	configFile, err := configFilePath()
	if err != nil {
		return nil, err
	}

	config.SetConfigFile(configFile)
	config.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	config.AutomaticEnv()

	if err := config.ReadInConfig(); err != nil {
		return nil, formattedError("error reading server config file: %v", err)
	}

	fmt.Fprintln(os.Stderr, "Using config file:", config.ConfigFileUsed())
	return config, nil
}

func configFilePath() (string, error) {
	if cfgFile != "" {
		return cfgFile, nil
	}

	if !isDevEnv {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(homeDir, "tandem", "server.yml"), nil
	}

	// In dev mode, write the embedded dev config on first run
	workingDir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	configDir := filepath.Join(workingDir, "dev", "config")
	configFile := filepath.Join(configDir, "server.yml")
	if utils.FileExist(configFile) {
		return configFile, nil
	}

	if err := utils.CreateDirIfNotExist(configDir); err != nil {
		return "", err
	}

	return configFile, os.WriteFile(configFile, []byte(devConfig.SERVER_YML), 0600)
}

func formattedError(format string, a ...interface{}) error {
	return fmt.Errorf(red(format), a...)
}
