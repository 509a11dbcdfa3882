package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/facette/natsort"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/camden-git/faceattend/gallery"
	"github.com/camden-git/faceattend/media"
	"github.com/camden-git/faceattend/models"
)

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Enroll face samples for a person",
	Long: `Enroll one photo, or every image in a directory, as face samples of a person.

Each photo must contain a detectable face; the first detected face is cropped,
converted to grayscale and stored as the person's next sample.

Examples:
  faceattend train --name "Alice" --photo alice.jpg
  faceattend train --name "Alice" --dir ./captures/alice`,
	Args: cobra.NoArgs,
	RunE: runTrain,
}

func init() {
	rootCmd.AddCommand(trainCmd)

	trainCmd.Flags().String("name", "", "Person to enroll (required)")
	trainCmd.Flags().String("photo", "", "Single training photo")
	trainCmd.Flags().String("dir", "", "Directory of training photos")
	trainCmd.MarkFlagRequired("name")
	trainCmd.MarkFlagsMutuallyExclusive("photo", "dir")
	trainCmd.MarkFlagsOneRequired("photo", "dir")
}

func runTrain(cmd *cobra.Command, args []string) error {
	name := mustGetString(cmd, "name")
	photo := mustGetString(cmd, "photo")
	dir := mustGetString(cmd, "dir")

	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.close()
	g, err := a.openGallery()
	if err != nil {
		return err
	}
	ctx := context.Background()

	if photo != "" {
		info, err := enrollFile(ctx, g, name, photo)
		if err != nil {
			return err
		}
		fmt.Printf("Stored sample #%d for %s (%dx%d)\n", info.Seq, info.Person, info.Width, info.Height)
		return nil
	}

	files, err := trainingFiles(dir)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no images found in %s", dir)
	}

	bar := progressbar.NewOptions(len(files),
		progressbar.OptionSetDescription("Enrolling "+name),
		progressbar.OptionShowCount(),
		progressbar.OptionSetItsString("photos"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionFullWidth(),
	)

	var stored, noFace, failed int
	var failures []string
	for _, f := range files {
		_, err := enrollFile(ctx, g, name, f)
		switch {
		case err == nil:
			stored++
		case errors.Is(err, gallery.ErrNoFaceInSample):
			noFace++
		case errors.Is(err, gallery.ErrInvalidName):
			bar.Finish()
			return err
		default:
			failed++
			failures = append(failures, fmt.Sprintf("%s: %v", filepath.Base(f), err))
		}
		bar.Add(1)
	}
	bar.Finish()

	fmt.Printf("\nStored %d sample(s) for %s; %d photo(s) without a face, %d failed\n", stored, name, noFace, failed)
	for _, f := range failures {
		fmt.Printf("  %s\n", f)
	}
	return nil
}

func enrollFile(ctx context.Context, g *gallery.Gallery, name, path string) (models.FaceSampleInfo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return models.FaceSampleInfo{}, fmt.Errorf("failed to read %s: %w", path, err)
	}
	info, err := g.AddSampleBytes(ctx, name, data)
	if err != nil {
		return models.FaceSampleInfo{}, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return info, nil
}

// trainingFiles lists the raster images directly inside dir in natural order.
func trainingFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory %s: %w", dir, err)
	}
	var names []string
	for _, e := range entries {
		if e.Type().IsRegular() && media.IsRasterImage(e.Name()) {
			names = append(names, e.Name())
		}
	}
	natsort.Sort(names)

	files := make([]string, len(names))
	for i, n := range names {
		files[i] = filepath.Join(dir, n)
	}
	return files, nil
}
