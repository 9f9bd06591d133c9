package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"text/tabwriter"

	"github.com/goccy/go-json"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-recognizer/internal/engine"
	"github.com/kozaktomas/face-recognizer/internal/logging"
	"github.com/kozaktomas/face-recognizer/internal/recognition"
	"github.com/kozaktomas/face-recognizer/internal/video"
)

var replayCmd = &cobra.Command{
	Use:   "replay <dir>",
	Short: "Recognize faces in a directory of frames",
	Long: `Run recognition over the image files of a directory, in file name order,
as if they were consecutive camera frames. Every frame goes through the same
detection, confidence filtering and labeling as a live session tick.

Examples:
  # Summary of who was seen
  face-recognizer replay ./frames

  # One JSON line of results per frame, with a stricter threshold
  face-recognizer replay ./frames --json --threshold 0.5

  # Use the capture profile instead of the polling one
  face-recognizer replay ./frames --profile accurate`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

func init() {
	rootCmd.AddCommand(replayCmd)

	replayCmd.Flags().Bool("json", false, "Print per-frame results as JSON lines instead of a summary")
	replayCmd.Flags().Float64("threshold", 0, "Match threshold (overrides MATCH_THRESHOLD)")
	replayCmd.Flags().String("profile", recognition.ProfileFast, "Detection profile: fast or accurate")
}

// ReplaySummary aggregates a replay run.
type ReplaySummary struct {
	Frames  int            `json:"frames"`
	Errors  int            `json:"errors"`
	Faces   int            `json:"faces"`
	Unknown int            `json:"unknown"`
	Seen    map[string]int `json:"seen"` // frames each label was recognized in
}

func (s *ReplaySummary) add(results []recognition.DetectionResult) {
	s.Faces += len(results)
	counted := make(map[string]bool)
	for _, r := range results {
		if !r.Known {
			s.Unknown++
			continue
		}
		if !counted[r.Label] {
			counted[r.Label] = true
			s.Seen[r.Label]++
		}
	}
}

func runReplay(cmd *cobra.Command, args []string) error {
	jsonOutput := mustGetBool(cmd, "json")
	threshold := mustGetFloat64(cmd, "threshold")
	profileName := mustGetString(cmd, "profile")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if threshold > 0 {
		cfg.Recognition.MatchThreshold = threshold
	}
	fast, accurate := profiles(cfg)
	var profile recognition.Profile
	switch profileName {
	case recognition.ProfileFast:
		profile = fast
	case recognition.ProfileAccurate:
		profile = accurate
	default:
		return fmt.Errorf("unknown profile %q (use fast or accurate)", profileName)
	}

	ctx := context.Background()
	g, _, kv, err := openGallery(ctx, cfg)
	if err != nil {
		return fmt.Errorf("loading gallery: %w", err)
	}
	defer kv.Close()
	if g.Len() == 0 {
		fmt.Fprintln(os.Stderr, "Warning: the gallery is empty, every face will be unknown")
	}

	source := video.NewDirSource(args[0])
	if err := source.Open(ctx); err != nil {
		return err
	}
	defer source.Close()
	if source.Len() == 0 {
		return fmt.Errorf("no image files in %s", args[0])
	}

	client := engine.NewClient(engine.Options{
		URL:             cfg.Engine.URL,
		Timeout:         cfg.Engine.Timeout,
		BreakerFailures: cfg.Engine.BreakerFailures,
		BreakerCooldown: cfg.Engine.BreakerCooldown,
		Logger:          logging.Component("engine"),
	})
	session := recognition.NewSession(source, client, g, nil, recognition.SessionOptions{
		Profile: profile,
		Logger:  logging.Component("replay"),
	})

	var bar *progressbar.ProgressBar
	if !jsonOutput {
		bar = progressbar.NewOptions(source.Len(),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionSetDescription("Recognizing frames"),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("frames"),
			progressbar.OptionShowElapsedTimeOnFinish(),
			progressbar.OptionSetPredictTime(true),
			progressbar.OptionFullWidth(),
		)
	}

	log := logging.Component("replay")
	summary := ReplaySummary{Seen: make(map[string]int)}
	encoder := json.NewEncoder(os.Stdout)
	for {
		frame, err := source.Frame(ctx)
		if errors.Is(err, video.ErrExhausted) {
			break
		}
		summary.Frames++
		if bar != nil {
			bar.Add(1)
		}
		if err != nil {
			log.Warn().Err(err).Msg("skipping unreadable frame")
			summary.Errors++
			continue
		}

		results, err := session.Recognize(ctx, frame)
		if err != nil {
			if errors.Is(err, engine.ErrUnavailable) {
				return fmt.Errorf("frame %d: %w", frame.Seq, err)
			}
			log.Warn().Err(err).Uint64("seq", frame.Seq).Msg("detection failed")
			summary.Errors++
			continue
		}
		summary.add(results)

		if jsonOutput {
			if err := encoder.Encode(recognition.FrameResults{Seq: frame.Seq, CapturedAt: frame.CapturedAt, Results: results}); err != nil {
				return fmt.Errorf("writing output: %w", err)
			}
		}
	}

	if jsonOutput {
		return nil
	}
	printReplaySummary(&summary)
	return nil
}

func printReplaySummary(s *ReplaySummary) {
	fmt.Printf("\nFrames: %d (errors: %d)\n", s.Frames, s.Errors)
	fmt.Printf("Faces:  %d (unknown: %d)\n", s.Faces, s.Unknown)
	if len(s.Seen) == 0 {
		return
	}

	labels := make([]string, 0, len(s.Seen))
	for label := range s.Seen {
		labels = append(labels, label)
	}
	slices.SortFunc(labels, func(a, b string) int {
		if d := s.Seen[b] - s.Seen[a]; d != 0 {
			return d
		}
		if a < b {
			return -1
		}
		return 1
	})

	fmt.Println()
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "LABEL\tFRAMES")
	for _, label := range labels {
		fmt.Fprintf(w, "%s\t%d\n", label, s.Seen[label])
	}
	w.Flush()
}
