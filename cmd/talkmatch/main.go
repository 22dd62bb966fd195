package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

var noColor bool

var rootCmd = &cobra.Command{
	Use:   "talkmatch",
	Short: "AI ambassadors that chat with people and match them up",
	Long: `talkmatch runs one AI ambassador per persona. Ambassadors learn about
their user, score compatibility, act as the best match and finally link two
real conversations.

Start the server with "talkmatch serve", then drive it with the client
commands below.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "talkmatch version %s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", os.Getenv("NO_COLOR") != "", "disable colored output")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(autoCmd)
	rootCmd.AddCommand(calculateCmd)
	rootCmd.AddCommand(clearCmd)
	rootCmd.AddCommand(matchCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(profileCmd)
	rootCmd.AddCommand(scriptCmd)
	rootCmd.AddCommand(transcriptCmd)
	rootCmd.AddCommand(personasCmd)
	rootCmd.AddCommand(configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		printError("%v", err)
		os.Exit(1)
	}
}
