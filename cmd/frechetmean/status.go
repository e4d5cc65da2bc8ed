package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cwbudde/frechetmean/internal/server"
	"github.com/spf13/cobra"
)

var (
	serverURL string
	cancelJob bool
)

var statusCmd = &cobra.Command{
	Use:   "status [job-id]",
	Short: "Query server status or specific job",
	Long: `Queries the server for job status information.
If no job-id is provided, lists all jobs.
If job-id is provided, shows detailed status for that job.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&serverURL, "server", "http://localhost:8080", "Server URL")
	statusCmd.Flags().BoolVar(&cancelJob, "cancel", false, "Cancel the given job instead of showing it")
	rootCmd.AddCommand(statusCmd)
}

// jobStatus mirrors the job status response of the server.
type jobStatus struct {
	ID          string           `json:"id"`
	State       server.JobState  `json:"state"`
	Config      server.JobConfig `json:"config"`
	InitialCost float64          `json:"initialCost"`
	BestCost    float64          `json:"bestCost"`
	LastCost    float64          `json:"lastCost"`
	Epochs      int              `json:"epochs"`
	Steps       int              `json:"steps"`
	Elapsed     float64          `json:"elapsed"`
	Error       string           `json:"error"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		if cancelJob {
			return fmt.Errorf("--cancel requires a job ID")
		}
		return listJobs(cmd, fmt.Sprintf("%s/api/v1/jobs", serverURL))
	}

	jobID := args[0]
	if cancelJob {
		return requestCancel(cmd, fmt.Sprintf("%s/api/v1/jobs/%s/cancel", serverURL, jobID), jobID)
	}
	return getJobStatus(cmd, fmt.Sprintf("%s/api/v1/jobs/%s/status", serverURL, jobID), jobID)
}

func listJobs(cmd *cobra.Command, url string) error {
	resp, err := http.Get(url)
	if err != nil {
		return fmt.Errorf("failed to connect to server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned error: %s", string(body))
	}

	var jobs []server.Job
	if err := json.NewDecoder(resp.Body).Decode(&jobs); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(jobs) == 0 {
		fmt.Fprintln(out, "No jobs found")
		return nil
	}

	fmt.Fprintf(out, "Found %d job(s):\n\n", len(jobs))
	for _, job := range jobs {
		fmt.Fprintf(out, "Job ID: %s\n", job.ID)
		fmt.Fprintf(out, "  State: %s\n", job.State)
		fmt.Fprintf(out, "  Dataset: %s\n", job.Config.Dataset)
		fmt.Fprintf(out, "  Method: %s\n", job.Config.Method)
		if job.Epochs > 0 {
			fmt.Fprintf(out, "  Cost: %.6g -> %.6g (epoch %d)\n", job.InitialCost, job.BestCost, job.Epochs)
		}
		fmt.Fprintln(out)
	}

	return nil
}

func getJobStatus(cmd *cobra.Command, url, jobID string) error {
	resp, err := http.Get(url)
	if err != nil {
		return fmt.Errorf("failed to connect to server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("job not found: %s", jobID)
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned error: %s", string(body))
	}

	var status jobStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Job: %s\n", status.ID)
	fmt.Fprintf(out, "State: %s\n", status.State)
	fmt.Fprintln(out)

	c := status.Config
	fmt.Fprintln(out, "Configuration:")
	fmt.Fprintf(out, "  Dataset: %s\n", c.Dataset)
	fmt.Fprintf(out, "  Method: %s\n", c.Method)
	fmt.Fprintf(out, "  Batch size: %d\n", c.BatchSize)
	fmt.Fprintf(out, "  Epochs: %d\n", c.NEpochs)
	fmt.Fprintf(out, "  Converged below: %g\n", c.DConverged)
	fmt.Fprintf(out, "  Init: %s\n", c.Init)
	fmt.Fprintln(out)

	fmt.Fprintln(out, "Progress:")
	fmt.Fprintf(out, "  Epoch: %d (%d steps)\n", status.Epochs, status.Steps)
	if status.InitialCost > 0 {
		fmt.Fprintf(out, "  Initial Cost: %.6g\n", status.InitialCost)
		fmt.Fprintf(out, "  Best Cost: %.6g\n", status.BestCost)
		improvement := status.InitialCost - status.BestCost
		fmt.Fprintf(out, "  Improvement: %.6g (%.1f%%)\n", improvement, improvement/status.InitialCost*100)
	}

	elapsed := time.Duration(status.Elapsed * float64(time.Second))
	fmt.Fprintf(out, "  Elapsed: %s\n", elapsed.Round(time.Millisecond))

	if status.Error != "" {
		fmt.Fprintf(out, "\nError: %s\n", status.Error)
	}

	return nil
}

func requestCancel(cmd *cobra.Command, url, jobID string) error {
	resp, err := http.Post(url, "application/json", nil)
	if err != nil {
		return fmt.Errorf("failed to connect to server: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusAccepted:
		fmt.Fprintf(cmd.OutOrStdout(), "Cancellation requested for %s\n", jobID)
		return nil
	case http.StatusNotFound:
		return fmt.Errorf("job not found: %s", jobID)
	default:
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned error: %s", string(body))
	}
}
