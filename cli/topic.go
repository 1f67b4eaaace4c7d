package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"biomedtube"
)

var topicCmd = &cobra.Command{
	Use:   "topic",
	Short: "Pick a concept the way a run would, without rendering",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		client := biomedtube.NewHTTPClient(cfg)
		defer client.Close()

		concept := biomedtube.NewTopicSelector(client, cfg).Select(cmd.Context())

		fmt.Fprintf(cmd.OutOrStdout(), "%s\n", concept.Name)
		if concept.PMID != "" {
			fmt.Fprintf(cmd.ErrOrStderr(), "Source: %s (PMID %s)\n", concept.Source, concept.PMID)
		} else {
			fmt.Fprintf(cmd.ErrOrStderr(), "Source: %s\n", concept.Source)
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Query:  %s\n", biomedtube.SearchQuery(concept.Name))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(topicCmd)
}
