package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/camden-git/faceattend/media"
	"github.com/camden-git/faceattend/services"
)

var recognizeCmd = &cobra.Command{
	Use:   "recognize",
	Short: "Recognize the faces in a photo",
	Long: `Run the recognition pipeline on a photo and print the verdict for every
detected face. With --record the recognized name is also checked in.

Examples:
  faceattend recognize --photo door.jpg
  faceattend recognize --photo door.jpg --record --out annotated.jpg`,
	Args: cobra.NoArgs,
	RunE: runRecognize,
}

func init() {
	rootCmd.AddCommand(recognizeCmd)

	recognizeCmd.Flags().String("photo", "", "Photo to process (required)")
	recognizeCmd.Flags().Bool("record", false, "Record attendance for the recognized name")
	recognizeCmd.Flags().String("out", "", "Write the annotated photo to this path")
	recognizeCmd.Flags().Bool("json", false, "Output as JSON")
	recognizeCmd.MarkFlagRequired("photo")
}

func runRecognize(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(mustGetString(cmd, "photo"))
	if err != nil {
		return fmt.Errorf("failed to read photo: %w", err)
	}

	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.close()
	g, err := a.openGallery()
	if err != nil {
		return err
	}

	var recorder services.Recorder
	if mustGetBool(cmd, "record") {
		repo, err := a.openEmployees()
		if err != nil {
			return err
		}
		recorder = services.NewAttendanceRecorder(repo, nil, a.cfg.StoreTimeout, a.cfg.StoreRetries)
	}

	pipeline, cleanup, err := a.pipelineFactory(g, recorder)()
	if err != nil {
		return err
	}
	defer cleanup()

	res, err := pipeline.ProcessBytes(context.Background(), data, time.Now())
	if err != nil {
		return err
	}
	defer res.Close()

	if out := mustGetString(cmd, "out"); out != "" && res.FaceCount > 0 {
		if err := writeAnnotated(out, res); err != nil {
			return err
		}
	}

	if mustGetBool(cmd, "json") {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}

	fmt.Printf("Faces detected: %d\n", res.FaceCount)
	for i, f := range res.Faces {
		fmt.Printf("  face %d at (%d,%d)-(%d,%d): %s (distance %.3f over %d sample(s))\n",
			i+1, f.X1, f.Y1, f.X2, f.Y2, f.Verdict.PersonName, f.Verdict.Distance, f.Verdict.ConsideredSamples)
	}
	fmt.Printf("Recognized: %s\n", res.RecognizedName)
	if res.Attendance != "" {
		fmt.Printf("Attendance: %s\n", res.Attendance)
	}
	if res.AttendanceErr != nil {
		fmt.Printf("Attendance failed: %v\n", res.AttendanceErr)
	}
	return nil
}

func writeAnnotated(path string, res services.Result) error {
	encoded, err := media.EncodeJPEG(res.Annotated)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, encoded, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	fmt.Printf("Annotated photo written to %s\n", path)
	return nil
}
