package main

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ayusman/memora/internal/detector"
	"github.com/ayusman/memora/internal/store"
)

var memberCmd = &cobra.Command{
	Use:   "member",
	Short: "Manage enrolled family members",
}

var memberAddCmd = &cobra.Command{
	Use:   "add <image>...",
	Short: "Enroll a family member from one or more face photos",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runMemberAdd,
}

var memberRemoveCmd = &cobra.Command{
	Use:   "remove <id>",
	Short: "Remove a family member and their photos",
	Args:  cobra.ExactArgs(1),
	RunE:  runMemberRemove,
}

func init() {
	rootCmd.AddCommand(memberCmd)
	memberCmd.AddCommand(memberAddCmd)
	memberCmd.AddCommand(memberRemoveCmd)

	memberAddCmd.Flags().String("name", "", "Member name (required)")
	memberAddCmd.Flags().String("relation", "", "Relation to the patient, e.g. daughter")
	memberAddCmd.Flags().Int("age", 0, "Member age")
	memberAddCmd.Flags().String("interest", "", "Something the member enjoys talking about")
	memberAddCmd.MarkFlagRequired("name")
}

func runMemberAdd(cmd *cobra.Command, args []string) error {
	name, _ := cmd.Flags().GetString("name")
	relation, _ := cmd.Flags().GetString("relation")
	age, _ := cmd.Flags().GetInt("age")
	interest, _ := cmd.Flags().GetString("interest")

	det, err := openDetector(cfg)
	if err != nil {
		return fmt.Errorf("failed to load face models from %s: %w", cfg.Models.Dir, err)
	}
	defer det.Close()

	// Check every photo has a face before storing anything.
	images := make([]*store.EnrollmentImage, 0, len(args))
	for _, path := range args {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}
		if _, err := det.Encode(data); err != nil {
			if errors.Is(err, detector.ErrNoFace) {
				return fmt.Errorf("%s: no face found", path)
			}
			return fmt.Errorf("%s: %w", path, err)
		}
		contentType := http.DetectContentType(data)
		if !strings.HasPrefix(contentType, "image/") {
			return fmt.Errorf("%s is not an image", path)
		}
		images = append(images, &store.EnrollmentImage{
			ID:          uuid.New().String(),
			Filename:    filepath.Base(path),
			ContentType: contentType,
			Data:        data,
		})
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	m := &store.Member{
		ID:       uuid.New().String(),
		Name:     name,
		Relation: relation,
		Age:      age,
		Interest: interest,
	}
	if err := st.Members().Create(m); err != nil {
		return fmt.Errorf("failed to create member: %w", err)
	}
	for _, img := range images {
		img.MemberID = m.ID
		if err := st.Enrollments().Add(img); err != nil {
			st.Members().Delete(m.ID)
			return fmt.Errorf("failed to store %s: %w", img.Filename, err)
		}
	}

	fmt.Printf("Enrolled %s (%s) with %d photo(s)\n", m.Name, m.ID, len(images))
	fmt.Println("Run 'memora gallery rebuild' or restart the server to start matching.")
	return nil
}

func runMemberRemove(cmd *cobra.Command, args []string) error {
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.Members().Delete(args[0]); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("member %s not found", args[0])
		}
		return fmt.Errorf("failed to remove member: %w", err)
	}
	fmt.Printf("Removed member %s\n", args[0])
	return nil
}
