package main

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kalambet/talkmatch/internal/api"
	"github.com/kalambet/talkmatch/internal/chat"
	"github.com/kalambet/talkmatch/internal/config"
	"github.com/kalambet/talkmatch/internal/engine"
	"github.com/kalambet/talkmatch/internal/persona"
	"github.com/kalambet/talkmatch/internal/session"
)

// --- messaging ---

var sendCmd = &cobra.Command{
	Use:   "send <persona> <message...>",
	Short: "Send a message as a persona to its ambassador",
	Long: `Send a message as a persona to its ambassador.

Examples:
  talkmatch send "Bookish Bella" "I just finished a great novel"
  talkmatch send "Nature Nadia" Anyone up for a hike this weekend?`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		name, text := args[0], strings.Join(args[1:], " ")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), sessionPath(name, "messages"), api.SendRequest{Text: text})
		if err != nil {
			return err
		}

		var reply session.Reply
		if err := decodeJSON(resp, &reply); err != nil {
			return err
		}

		printReply(cmd, reply)
		return nil
	},
}

var autoCmd = &cobra.Command{
	Use:   "auto <persona>",
	Short: "Let the AI write the persona's next message and send it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), sessionPath(args[0], "auto"), nil)
		if err != nil {
			return err
		}

		var auto session.AutoReply
		if err := decodeJSON(resp, &auto); err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", colorize(styleBold, args[0]), chat.Display(auto.Message))
		printReply(cmd, auto.Reply)
		return nil
	},
}

func printReply(cmd *cobra.Command, reply session.Reply) {
	label := colorize(styleBold, "Ambassador")
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s: %s\n", label, colorize(styleStep, "["+reply.Status+"]"), reply.Display)
}

var scriptCmd = &cobra.Command{
	Use:   "script <persona> [reply...]",
	Short: "Answer a persona's messages with scripted replies",
	Long: `Install scripted replies that answer in place of the AI, in order.
Once the script runs out every reply is "...". Without replies the script
is removed.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name, replies := args[0], args[1:]

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.put(cmd.Context(), sessionPath(name, "script"), api.ScriptRequest{Replies: replies})
		if err != nil {
			return err
		}
		if err := decodeJSON(resp, nil); err != nil {
			return err
		}

		if len(replies) == 0 {
			printSuccess("Removed script for %s", name)
			return nil
		}
		printSuccess("Scripted %d replies for %s", len(replies), name)
		return nil
	},
}

var transcriptCmd = &cobra.Command{
	Use:   "transcript <persona>",
	Short: "Show a persona's conversation with its ambassador",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), sessionPath(args[0], "messages"))
		if err != nil {
			return err
		}

		var tr api.Transcript
		if err := decodeJSON(resp, &tr); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		for _, m := range tr.Messages {
			switch m.Role {
			case engine.RoleUser:
				fmt.Fprintf(out, "%s: %s\n", colorize(styleBold, tr.Session), m.Content)
			case engine.RoleAssistant:
				fmt.Fprintf(out, "%s: %s\n", colorize(styleStep, "Ambassador"), chat.Display(m.Content))
			}
		}
		return nil
	},
}

// --- matching ---

var calculateCmd = &cobra.Command{
	Use:   "calculate",
	Short: "Score every ready pair and assign ambassadors",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		printStep("Calculating matches...")
		resp, err := client.post(cmd.Context(), "/matches/calculate", nil)
		if err != nil {
			return err
		}

		var board session.Board
		if err := decodeJSON(resp, &board); err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), renderBoard(board, newBoardStyles()))
		return nil
	},
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Reset all scores, official matches and message counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		confirm, _ := cmd.Flags().GetBool("confirm")
		if !confirm {
			printWarning("This resets every match and ambassador. Use --confirm to proceed.")
			return nil
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.delete(cmd.Context(), "/matches")
		if err != nil {
			return err
		}
		if err := decodeJSON(resp, nil); err != nil {
			return err
		}

		printSuccess("Matches cleared")
		return nil
	},
}

func init() {
	clearCmd.Flags().Bool("confirm", false, "confirm the reset")
}

var matchCmd = &cobra.Command{
	Use:   "match <persona> <persona>",
	Short: "Officially match two personas",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, b := args[0], args[1]
		if a == b {
			return fmt.Errorf("cannot match %s with itself", a)
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/matches/official", api.OfficialRequest{A: a, B: b})
		if err != nil {
			return err
		}
		if err := decodeJSON(resp, nil); err != nil {
			return err
		}

		printSuccess("%s and %s are officially matched", a, b)
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show server status and the match board",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		health, err := client.get(cmd.Context(), "/health")
		if err != nil {
			printStatus(out, "Server", "stopped")
			return nil
		}
		health.Body.Close()
		if health.StatusCode != http.StatusOK {
			printStatus(out, "Server", "error (HTTP %d)", health.StatusCode)
			return nil
		}
		printStatus(out, "Server", "running at %s", client.baseURL)

		resp, err := client.get(cmd.Context(), "/matches")
		if err != nil {
			return err
		}
		var board session.Board
		if err := decodeJSON(resp, &board); err != nil {
			return err
		}

		fmt.Fprintln(out)
		fmt.Fprintln(out, renderBoard(board, newBoardStyles()))
		return nil
	},
}

var profileCmd = &cobra.Command{
	Use:   "profile <persona>",
	Short: "Show what the ambassador has learned about a persona",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), profilePath(args[0]))
		if err != nil {
			return err
		}

		var view api.ProfileView
		if err := decodeJSON(resp, &view); err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), colorize(styleBold, view.Name))
		fmt.Fprintln(cmd.OutOrStdout(), view.Profile)
		return nil
	},
}

// --- personas ---

var personasCmd = &cobra.Command{
	Use:   "personas",
	Short: "List the configured personas",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		list, err := persona.Load(cfg.Personas.File)
		if err != nil {
			return err
		}

		for _, p := range list {
			fmt.Fprintf(cmd.OutOrStdout(), "%s  %s, looking for %s\n", colorize(styleBold, p.Name), p.Personality, p.Goal)
		}
		return nil
	},
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		printStatus(cmd.OutOrStdout(), "File", "%s", config.FilePath())
		for _, k := range config.ShowAll(cfg) {
			fmt.Fprintf(cmd.OutOrStdout(), "  %s = %s\n", colorize(styleBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: "Set a configuration value. Valid keys: " + strings.Join(config.ValidKeys(), ", ") + ".\n" +
		"API keys are read from the environment only.",
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

var configUnsetCmd = &cobra.Command{
	Use:   "unset <key>",
	Short: "Remove a configuration value so the default applies",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.UnsetKey(args[0]); err != nil {
			return err
		}

		printSuccess("Unset %s", args[0])
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configUnsetCmd)
}
