package main

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"redress/internal/bank"
	"redress/internal/controller"
	"redress/internal/k8s"
	"redress/internal/llm"
	"redress/internal/oracle"
	"redress/internal/patch"
)

var (
	outDir         string
	outputFilename string
	maxCandidates  int
	maxIters       int
	timeoutFlag    time.Duration
	bankPath       string
	noBank         bool
	noLLM          bool
	modelFlag      string
)

var (
	okStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	failStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	dimStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

var repairCmd = &cobra.Command{
	Use:   "repair [manifest]",
	Short: "Repair a Kubernetes deployment manifest",
	Long: `Runs the oracles against the manifest and, if any fail, searches for a
patch that makes all of them pass. The repaired manifest is written to the
output directory.

Template sources, in priority order: the repair bank (exact signature
match), the language-model proposer (requires GEMINI_API_KEY), and the
built-in default template.`,
	Args: cobra.ExactArgs(1),
	RunE: runRepair,
}

func init() {
	repairCmd.Flags().StringVar(&outDir, "out", "", "output directory for the repaired manifest (required)")
	repairCmd.Flags().StringVar(&outputFilename, "output-filename", "", "rename the repaired manifest (default: keep input name)")
	repairCmd.Flags().IntVar(&maxCandidates, "max-candidates", 0, "max candidates to try (default: from config)")
	repairCmd.Flags().IntVar(&maxIters, "max-iters", 0, "max iterations without progress (default: from config)")
	repairCmd.Flags().DurationVar(&timeoutFlag, "timeout", 0, "synthesis deadline (default: from config)")
	repairCmd.Flags().StringVar(&bankPath, "bank", "", "path to the repair bank file (default: from config)")
	repairCmd.Flags().BoolVar(&noBank, "no-bank", false, "disable the repair bank")
	repairCmd.Flags().BoolVar(&noLLM, "no-llm", false, "disable the template proposer")
	repairCmd.Flags().StringVar(&modelFlag, "model", "", "proposer model (default: from config)")
	_ = repairCmd.MarkFlagRequired("out")
}

func runRepair(cmd *cobra.Command, args []string) error {
	artifact, err := k8s.FromFile(args[0])
	if err != nil {
		return err
	}
	result, err := repairArtifact(cmd.Context(), artifact)
	if err != nil {
		return err
	}

	printSummary(result)
	if !result.Succeeded() {
		return fmt.Errorf("repair ended with status %s", result.Status)
	}
	if result.Status == controller.StatusSuccess {
		repaired := result.Artifact.(*k8s.Artifact)
		if err := repaired.WriteDir(outDir, outputFilename); err != nil {
			return err
		}
		fmt.Println(dimStyle.Render("wrote repaired manifest to " + outDir))
	}
	return nil
}

// repairArtifact wires the controller from config and flags and runs one
// repair request.
func repairArtifact(ctx context.Context, artifact *k8s.Artifact) (*controller.Result, error) {
	budget, err := cfg.Budget()
	if err != nil {
		return nil, err
	}
	if maxCandidates > 0 {
		budget.MaxCandidates = maxCandidates
	}
	if maxIters > 0 {
		budget.MaxIters = maxIters
	}
	if timeoutFlag > 0 {
		budget.Timeout = timeoutFlag
	}

	opts := []controller.Option{controller.WithLogger(logger)}

	if !noBank && cfg.Bank.Enabled {
		path := cfg.Bank.Path
		if bankPath != "" {
			path = bankPath
		}
		b, err := bank.Open(path, logger)
		if err != nil {
			return nil, err
		}
		if b.Corrupted() {
			fmt.Println(failStyle.Render("bank file was corrupted; starting with an empty bank"))
		}
		fmt.Println(dimStyle.Render(fmt.Sprintf("bank: %s (%d entries)", path, b.Len())))
		opts = append(opts, controller.WithBank(b))
	}

	if !noLLM && cfg.LLM.Enabled && cfg.LLM.APIKey != "" {
		model := cfg.LLM.Model
		if modelFlag != "" {
			model = modelFlag
		}
		client, err := llm.NewGeminiClient(ctx, cfg.LLM.APIKey, model)
		if err != nil {
			logger.Warn("proposer unavailable", zap.Error(err))
		} else {
			llmTimeout, err := cfg.LLMTimeout()
			if err != nil {
				return nil, err
			}
			fmt.Println(dimStyle.Render("proposer: " + client.Model()))
			opts = append(opts, controller.WithProposer(llm.NewProposer(client, llmTimeout, logger)))
		}
	}

	fallback := func(a oracle.Artifact) (*patch.Template, *patch.HoleSpace, error) {
		return k8s.DefaultTemplate(a.(*k8s.Artifact))
	}
	ctrl, err := controller.New(k8s.DefaultOracles(), fallback, budget, opts...)
	if err != nil {
		return nil, err
	}

	return ctrl.Repair(ctx, artifact, k8s.SignatureContext(artifact))
}

func printSummary(result *controller.Result) {
	switch result.Status {
	case controller.StatusNoViolations:
		fmt.Println(okStyle.Render("✓ manifest already passes all oracles, no repair needed"))
		return
	case controller.StatusSuccess:
		fmt.Println(okStyle.Render("✓ repair found"))
		fmt.Println(dimStyle.Render("  assignment:      ") + result.Assignment.String())
	default:
		fmt.Println(failStyle.Render("✗ repair failed: " + string(result.Status)))
	}
	fmt.Println(dimStyle.Render("  template source: ") + string(result.TemplateSource))
	fmt.Println(dimStyle.Render("  candidates:      ") + fmt.Sprint(result.Candidates))
	fmt.Println(dimStyle.Render("  constraints:     ") + fmt.Sprint(len(result.Constraints)))
	fmt.Println(dimStyle.Render("  violations:      ") + fmt.Sprint(len(result.Violations)))
}
