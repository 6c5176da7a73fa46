// llm-wars-cli sends one prompt to several models through an llm-wars
// server and renders each model's answer, latency, and usage as a card.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/gravixlayer/llm-wars/pkg/warsclient"
)

var (
	serverURL   string
	modelIDs    []string
	temperature float64
	watchdog    time.Duration
	quiet       bool
)

var (
	cardStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			Padding(0, 1).
			Width(76)
	titleStyle = lipgloss.NewStyle().Bold(true)
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

func main() {
	root := &cobra.Command{
		Use:   "llm-wars-cli <prompt>",
		Short: "Race one prompt across multiple models",
		Args:  cobra.ExactArgs(1),
		RunE:  run,
	}
	root.Flags().StringVar(&serverURL, "server", "http://localhost:8080", "llm-wars server base URL")
	root.Flags().StringSliceVarP(&modelIDs, "model", "m", nil, "model identifier (repeatable)")
	root.Flags().Float64VarP(&temperature, "temperature", "t", 0.7, "sampling temperature, clamped to [0,2]")
	root.Flags().DurationVar(&watchdog, "timeout", warsclient.DefaultWatchdog, "give up after this long")
	root.Flags().BoolVarP(&quiet, "quiet", "q", false, "suppress the live event log")
	_ = root.MarkFlagRequired("model")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	client := warsclient.New(serverURL, warsclient.WithWatchdog(watchdog))

	req := warsclient.GenerationRequest{
		Prompt: args[0],
		Models: modelIDs,
	}
	if cmd.Flags().Changed("temperature") {
		req.Temperature = warsclient.Temp(temperature)
	}

	seen := map[string]bool{}
	onUpdate := func(rec *warsclient.Reconstructor) {
		if quiet {
			return
		}
		for _, s := range rec.States() {
			if s.Terminal() && !seen[s.ModelID] {
				seen[s.ModelID] = true
				if s.Err != "" {
					fmt.Println(dimStyle.Render(fmt.Sprintf("· %s failed: %s", s.ModelID, s.Err)))
				} else {
					fmt.Println(dimStyle.Render(fmt.Sprintf("· %s done in %dms", s.ModelID, *s.LatencyMs)))
				}
			}
		}
	}

	rec, err := client.Generate(context.Background(), req, onUpdate)
	if err != nil {
		return err
	}

	for _, s := range rec.States() {
		fmt.Println(cardStyle.Render(renderCard(s)))
	}
	fmt.Println(dimStyle.Render(fmt.Sprintf("total: %dms", rec.TotalMs)))
	return nil
}

func renderCard(s *warsclient.ModelState) string {
	header := titleStyle.Render(s.ModelID)
	switch {
	case s.Err != "":
		header += "  " + errStyle.Render("✗ "+s.Err)
	case s.Done:
		header += "  " + okStyle.Render("✓")
	default:
		header += "  " + dimStyle.Render("…")
	}

	meta := ""
	if s.TTFBMs != nil {
		meta += fmt.Sprintf("ttfb %dms  ", *s.TTFBMs)
	}
	if s.LatencyMs != nil {
		meta += fmt.Sprintf("latency %dms  ", *s.LatencyMs)
	}
	if s.TotalTokens != nil {
		meta += fmt.Sprintf("tokens %d", *s.TotalTokens)
	}

	body := s.Content
	if body == "" && s.Err == "" {
		body = dimStyle.Render("(no output)")
	}

	out := header
	if meta != "" {
		out += "\n" + dimStyle.Render(meta)
	}
	if body != "" {
		out += "\n\n" + body
	}
	return out
}
