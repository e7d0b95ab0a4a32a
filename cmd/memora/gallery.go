package main

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/ayusman/memora/internal/gallery"
)

var galleryCmd = &cobra.Command{
	Use:   "gallery",
	Short: "Inspect and rebuild the face gallery",
}

var galleryRebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Encode every enrollment image and publish a new gallery",
	RunE:  runGalleryRebuild,
}

var galleryListCmd = &cobra.Command{
	Use:   "list",
	Short: "List enrolled members and their image counts",
	RunE:  runGalleryList,
}

func init() {
	rootCmd.AddCommand(galleryCmd)
	galleryCmd.AddCommand(galleryRebuildCmd)
	galleryCmd.AddCommand(galleryListCmd)
}

func runGalleryRebuild(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	c, err := build(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer c.Close()

	var bar *progressbar.ProgressBar
	c.builder.OnProgress = func(done, total int) {
		if bar == nil {
			bar = progressbar.NewOptions(total,
				progressbar.OptionSetDescription("Encoding faces"),
				progressbar.OptionSetWriter(os.Stderr),
				progressbar.OptionShowCount(),
			)
		}
		bar.Set(done)
	}

	report, err := c.app.RebuildGallery(ctx)
	if bar != nil {
		bar.Finish()
		fmt.Fprintln(os.Stderr)
	}
	if errors.Is(err, gallery.ErrEmptyGallery) {
		fmt.Println("No identities enrolled.")
		return nil
	}
	if err != nil {
		return err
	}

	source := "encoded"
	if report.FromCache {
		source = "loaded from cache"
	}
	fmt.Printf("Gallery v%d: %d entries from %d images (%s, %d skipped) in %s\n",
		report.Version, report.Entries, report.Images, source, report.Skipped, report.Duration.Round(time.Millisecond))
	return nil
}

func runGalleryList(cmd *cobra.Command, args []string) error {
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	members, err := st.Members().List()
	if err != nil {
		return fmt.Errorf("failed to list members: %w", err)
	}
	if len(members) == 0 {
		fmt.Println("No members enrolled.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tRELATION\tIMAGES\tCREATED")
	fmt.Fprintln(w, "--\t----\t--------\t------\t-------")

	for _, m := range members {
		images, err := st.Enrollments().ListForMember(m.ID)
		if err != nil {
			return fmt.Errorf("failed to list images for %s: %w", m.ID, err)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", m.ID, m.Name, m.Relation, len(images), m.CreatedAt.Local().Format("2006-01-02 15:04"))
	}
	return w.Flush()
}
