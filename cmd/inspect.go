package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/xkilldash9x/consentinel/api/schemas"
	"github.com/xkilldash9x/consentinel/internal/browser"
	"github.com/xkilldash9x/consentinel/internal/classifier"
	"github.com/xkilldash9x/consentinel/internal/complexity"
	"github.com/xkilldash9x/consentinel/internal/config"
	"github.com/xkilldash9x/consentinel/internal/lexicon"
	"github.com/xkilldash9x/consentinel/internal/observability"
)

// inspectReport is the JSON document the inspect command emits per
// candidate found in the snapshot.
type inspectReport struct {
	File       string                    `json:"file"`
	Candidates []inspectCandidate        `json:"candidates"`
	Page       schemas.PageContext       `json:"page"`
}

type inspectCandidate struct {
	ID         string                    `json:"id"`
	Verdict    schemas.BannerVerdict     `json:"verdict"`
	Language   string                    `json:"language"`
	Complexity schemas.ComplexityProfile `json:"complexity"`
	Text       string                    `json:"text"`
	Actions    []inspectAction           `json:"actions"`
}

type inspectAction struct {
	Text  string  `json:"text"`
	Score float64 `json:"score"`
	Safe  bool    `json:"safe"`
}

// newInspectCmd creates the `inspect` command: classify a saved HTML page
// offline, without launching a browser. Useful for triaging detection
// misses from saved-page reports.
func newInspectCmd() *cobra.Command {
	inspectCmd := &cobra.Command{
		Use:   "inspect [file.html]",
		Short: "Classifies consent banners in a saved HTML document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()
			cfg, err := config.NewConfigFromViper(viper.GetViper())
			if err != nil {
				return fmt.Errorf("finalizing configuration: %w", err)
			}

			raw, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("reading %s: %w", args[0], err)
			}

			domain, _ := cmd.Flags().GetString("domain")
			snap, err := browser.NewSnapshot(string(raw), schemas.PageContext{Domain: domain})
			if err != nil {
				return err
			}

			lex := lexicon.New()
			cls := classifier.New(cfg.Classifier(), lex, logger)
			estimator := complexity.New(nil, lex, logger)

			views, err := snap.Scan(ctx)
			if err != nil {
				return err
			}
			page, _ := snap.Page(ctx)

			report := inspectReport{File: args[0], Page: page}
			for _, view := range views {
				verdict := cls.ClassifyBanner(view, nil)
				if !verdict.IsBanner {
					continue
				}
				candidate := schemas.BannerCandidate{
					ID:       uuid.NewString(),
					View:     view,
					Verdict:  verdict,
					Page:     page,
					Language: lex.DetectLanguage(view.Text),
					SeenAt:   time.Now(),
				}
				entry := inspectCandidate{
					ID:         candidate.ID,
					Verdict:    verdict,
					Language:   candidate.Language,
					Complexity: estimator.Estimate(ctx, candidate),
					Text:       clip(view.Text, 240),
				}
				for _, sa := range cls.RankActions(view.Actions) {
					entry.Actions = append(entry.Actions, inspectAction{
						Text:  clip(sa.Action.Text, 80),
						Score: sa.Score,
						Safe:  sa.Score > cls.SafeThreshold(),
					})
				}
				report.Candidates = append(report.Candidates, entry)
			}

			out, err := jsoniter.ConfigCompatibleWithStandardLibrary.MarshalIndent(report, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}

	inspectCmd.Flags().String("domain", "", "domain to attribute the snapshot to")
	return inspectCmd
}

func clip(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
