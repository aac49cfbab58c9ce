package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"saliency-heatmap/internal/container"
)

var renderOutput string

var renderCmd = &cobra.Command{
	Use:   "render <image>",
	Short: "Build a heatmap for a local image file",
	Args:  cobra.ExactArgs(1),
	RunE:  runRender,
}

func init() {
	renderCmd.Flags().StringVarP(&renderOutput, "output", "o", "", "output PNG path (default <image>_heatmap.png)")
	rootCmd.AddCommand(renderCmd)
}

func runRender(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	c, err := container.New(cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	input := args[0]
	f, err := os.Open(input)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer f.Close()

	heatmap, err := c.AnalysisService.Analyze(cmd.Context(), filepath.Base(input), f)
	if err != nil {
		return err
	}

	output := renderOutput
	if output == "" {
		output = defaultOutput(input)
	}
	if err := os.WriteFile(output, heatmap, 0o644); err != nil {
		return fmt.Errorf("write output: %w", err)
	}

	log.Info().Str("input", input).Str("output", output).Int("bytes", len(heatmap)).Msg("heatmap written")
	return nil
}

// defaultOutput строит путь результата рядом с исходным файлом
func defaultOutput(input string) string {
	ext := filepath.Ext(input)
	return input[:len(input)-len(ext)] + "_heatmap.png"
}
