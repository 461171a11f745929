package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"redress/internal/controller"
	"redress/internal/k8s"
)

// demoManifest violates the prod replica window, the resource profile
// rule, the security baseline, and the registry policy.
const demoManifest = `apiVersion: apps/v1
kind: Deployment
metadata:
  name: payments-api
  labels:
    app: payments-api
spec:
  replicas: 2
  selector:
    matchLabels:
      app: payments-api
  template:
    metadata:
      labels:
        app: payments-api
        env: prod
        team: payments
        tier: backend
    spec:
      containers:
        - name: payments-api
          image: payments-api:latest
          ports:
            - containerPort: 8080
          resources:
            requests:
              cpu: 100m
              memory: 128Mi
            limits:
              cpu: 200m
              memory: 256Mi
`

var demoOut string

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Repair a bundled example manifest",
	RunE:  runDemo,
}

func init() {
	demoCmd.Flags().StringVar(&demoOut, "out", "", "output directory (default: temp dir)")
	demoCmd.Flags().BoolVar(&noBank, "no-bank", false, "disable the repair bank")
	demoCmd.Flags().BoolVar(&noLLM, "no-llm", false, "disable the template proposer")
}

func runDemo(cmd *cobra.Command, args []string) error {
	dir := demoOut
	if dir == "" {
		var err error
		dir, err = os.MkdirTemp("", "redress-demo-*")
		if err != nil {
			return err
		}
	}
	input := filepath.Join(dir, "deployment.yaml")
	if err := os.WriteFile(input, []byte(demoManifest), 0o644); err != nil {
		return err
	}
	fmt.Println(dimStyle.Render("demo manifest: " + input))

	artifact, err := k8s.FromFile(input)
	if err != nil {
		return err
	}
	result, err := repairArtifact(cmd.Context(), artifact)
	if err != nil {
		return err
	}
	printSummary(result)
	if result.Status == controller.StatusSuccess {
		repaired := result.Artifact.(*k8s.Artifact)
		if err := repaired.WriteDir(dir, "repaired.yaml"); err != nil {
			return err
		}
		fmt.Println(dimStyle.Render("wrote " + filepath.Join(dir, "repaired.yaml")))
	}
	if !result.Succeeded() {
		return fmt.Errorf("demo repair ended with status %s", result.Status)
	}
	return nil
}
