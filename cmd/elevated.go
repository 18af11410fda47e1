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
	"github.com/Daskott/tandem/server"
	"github.com/spf13/cobra"
)

func createElevatedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "elevated",
		Short: "Start the elevated server that writes reciprocal contacts",
		Long: `The elevated server is the only process allowed to write into another
user's contact list. It accepts requests carrying a short lived link grant
& listens on elevated.listener.port.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := serverConfig()
			if err != nil {
				return err
			}

			server.StartElevated(config, isDevEnv)
			return nil
		},
	}
}
