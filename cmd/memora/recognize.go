package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ayusman/memora/internal/app"
)

var recognizeCmd = &cobra.Command{
	Use:   "recognize",
	Short: "Run one recognition session against the camera",
	RunE:  runRecognize,
}

func init() {
	rootCmd.AddCommand(recognizeCmd)

	recognizeCmd.Flags().String("snapshot", "", "Write the annotated frame of a match to this JPEG file")
	recognizeCmd.Flags().Bool("json", false, "Print the full session result as JSON")
}

func runRecognize(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	snapshotPath, _ := cmd.Flags().GetString("snapshot")
	asJSON, _ := cmd.Flags().GetBool("json")

	c, err := build(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer c.Close()

	c.loadGallery(ctx)

	result := c.app.RunSession(ctx)

	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			return err
		}
	}

	if snapshotPath != "" && len(result.Snapshot) > 0 {
		if err := os.WriteFile(snapshotPath, result.Snapshot, 0644); err != nil {
			return fmt.Errorf("failed to write snapshot: %w", err)
		}
	}

	switch {
	case result.Matched():
		if !asJSON {
			fmt.Printf("Recognized %s (distance %.3f)\n", result.MatchedIdentity, result.Distance)
			if p := result.Personalization; p != nil {
				fmt.Printf("%s, your %s\n", p.Member.Name, p.Member.Relation)
				fmt.Println(p.ConversationStarter)
			} else if result.PersonalizationError != "" {
				fmt.Printf("Personalization unavailable: %s\n", result.PersonalizationError)
			}
		}
		return nil
	case result.TimedOut:
		return errors.New(app.MsgNoFace)
	default:
		return fmt.Errorf("recognition failed: %s", result.Error)
	}
}
