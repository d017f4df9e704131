package edgebench

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mwiater/edgebench/internal/appconfig"
)

var showConfigVerbose bool

// showConfigCmd implements the 'show config' command, which displays the current configuration settings.
var showConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "Show config settings",
	Long:  `Show config settings ensuring that the JSON configs are loaded properly and overridden by flags and EDGEBENCH_* environment variables accordingly.`,
	Run: func(cmd *cobra.Command, args []string) {
		appconfig.ShowConfig(cmd.OutOrStdout(), viper.ConfigFileUsed(), GetConfig(), showConfigVerbose)
	},
}

func init() {
	showConfigCmd.Flags().BoolVarP(&showConfigVerbose, "verbose", "v", false, "dump the full generation policy")
	showCmd.AddCommand(showConfigCmd)
}
