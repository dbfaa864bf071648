package main

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/JaimeStill/tally/pkg/formatting"
)

// --- ingest ---

var ingestCmd = &cobra.Command{
	Use:   "ingest <file>",
	Short: "Upload a document for processing",
	Long: `Upload a document for processing.

The Idempotency-Key defaults to the SHA-256 of the file contents, so
re-running the same command replays the original job instead of
ingesting the file twice.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		source, _ := cmd.Flags().GetString("source")
		priority, _ := cmd.Flags().GetInt("priority")
		key, _ := cmd.Flags().GetString("key")

		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("reading file: %w", err)
		}

		if key == "" {
			sum := sha256.Sum256(data)
			key = hex.EncodeToString(sum[:])
		}

		var buf bytes.Buffer
		form := multipart.NewWriter(&buf)
		part, err := form.CreateFormFile("file", filepath.Base(args[0]))
		if err != nil {
			return err
		}
		if _, err := part.Write(data); err != nil {
			return err
		}
		if source != "" {
			form.WriteField("source", source)
		}
		if priority != 0 {
			form.WriteField("priority", strconv.Itoa(priority))
		}
		if err := form.Close(); err != nil {
			return err
		}

		client := newAPIClient()
		header := http.Header{
			"Content-Type":    []string{form.FormDataContentType()},
			"Idempotency-Key": []string{key},
		}
		resp, err := client.do("POST", "/ingestion", &buf, header)
		if err != nil {
			return err
		}

		replayed := resp.Header.Get("Idempotency-Replayed") == "true"

		var job struct {
			ID          string  `json:"id"`
			Status      string  `json:"status"`
			InvoiceID   *string `json:"invoice_id"`
			DuplicateOf *string `json:"duplicate_of"`
		}
		if err := decodeJSON(resp, &job); err != nil {
			return err
		}

		if replayed {
			printWarning("Replayed earlier upload (job %s)", job.ID)
		} else {
			printSuccess("Queued job %s (%s, %s)", job.ID, job.Status,
				formatting.FormatBytes(int64(len(data)), 1))
		}
		if job.DuplicateOf != nil {
			printWarning("Duplicate of invoice %s", *job.DuplicateOf)
		}
		return nil
	},
}

func init() {
	ingestCmd.Flags().String("source", "api", "ingestion source (api|batch|email)")
	ingestCmd.Flags().Int("priority", 0, "processing priority")
	ingestCmd.Flags().String("key", "", "idempotency key (default: SHA-256 of the file)")
}

// --- invoices ---

var invoicesCmd = &cobra.Command{
	Use:   "invoices",
	Short: "Inspect invoices and their processing records",
}

var invoicesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List invoices",
	RunE: func(cmd *cobra.Command, args []string) error {
		page, _ := cmd.Flags().GetInt("page")
		size, _ := cmd.Flags().GetInt("size")
		status, _ := cmd.Flags().GetString("status")
		stage, _ := cmd.Flags().GetString("stage")
		search, _ := cmd.Flags().GetString("search")

		q := url.Values{}
		q.Set("page", strconv.Itoa(page))
		q.Set("page_size", strconv.Itoa(size))
		if status != "" {
			q.Set("status", status)
		}
		if stage != "" {
			q.Set("workflow_state", stage)
		}
		if search != "" {
			q.Set("search", search)
		}

		client := newAPIClient()
		resp, err := client.get("/invoices?" + q.Encode())
		if err != nil {
			return err
		}

		var result struct {
			Data []struct {
				ID            string `json:"id"`
				Filename      string `json:"filename"`
				Status        string `json:"status"`
				WorkflowState string `json:"workflow_state"`
				CreatedAt     string `json:"created_at"`
			} `json:"data"`
			Total int `json:"total"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		if len(result.Data) == 0 {
			fmt.Println("No invoices found.")
			return nil
		}

		for _, inv := range result.Data {
			fmt.Printf("%s  %-10s %-13s %s\n",
				colorize(colorCyan, inv.ID),
				inv.Status,
				inv.WorkflowState,
				inv.Filename,
			)
		}
		fmt.Printf("\n%d total\n", result.Total)
		return nil
	},
}

func showJSON(path string) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		client := newAPIClient()
		resp, err := client.get(fmt.Sprintf(path, args[0]))
		if err != nil {
			return err
		}

		var v any
		if err := decodeJSON(resp, &v); err != nil {
			return err
		}
		return printJSON(v)
	}
}

var invoicesShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a single invoice",
	Args:  cobra.ExactArgs(1),
	RunE:  showJSON("/invoices/%s"),
}

var invoicesExtractionCmd = &cobra.Command{
	Use:   "extraction <id>",
	Short: "Show the latest extraction result for an invoice",
	Args:  cobra.ExactArgs(1),
	RunE:  showJSON("/invoices/%s/extraction"),
}

var invoicesValidationCmd = &cobra.Command{
	Use:   "validation <id>",
	Short: "Show the latest validation result for an invoice",
	Args:  cobra.ExactArgs(1),
	RunE:  showJSON("/invoices/%s/validation"),
}

var invoicesExportsCmd = &cobra.Command{
	Use:   "exports <id>",
	Short: "Show staged exports for an invoice",
	Args:  cobra.ExactArgs(1),
	RunE:  showJSON("/invoices/%s/exports"),
}

func init() {
	invoicesListCmd.Flags().Int("page", 1, "page number")
	invoicesListCmd.Flags().Int("size", 20, "page size")
	invoicesListCmd.Flags().String("status", "", "filter by status")
	invoicesListCmd.Flags().String("stage", "", "filter by workflow stage")
	invoicesListCmd.Flags().String("search", "", "search by filename")

	invoicesCmd.AddCommand(invoicesListCmd)
	invoicesCmd.AddCommand(invoicesShowCmd)
	invoicesCmd.AddCommand(invoicesExtractionCmd)
	invoicesCmd.AddCommand(invoicesValidationCmd)
	invoicesCmd.AddCommand(invoicesExportsCmd)
}

// --- reviews ---

var reviewsCmd = &cobra.Command{
	Use:   "reviews",
	Short: "Work the human review queue",
}

var reviewsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List invoices waiting on review",
	RunE: func(cmd *cobra.Command, args []string) error {
		client := newAPIClient()
		resp, err := client.get("/reviews")
		if err != nil {
			return err
		}

		var pending []struct {
			ID          string `json:"id"`
			Filename    string `json:"filename"`
			Status      string `json:"status"`
			SuspendedAt string `json:"suspended_at"`
		}
		if err := decodeJSON(resp, &pending); err != nil {
			return err
		}

		if len(pending) == 0 {
			fmt.Println("Review queue is empty.")
			return nil
		}

		for _, p := range pending {
			fmt.Printf("%s  %-40s suspended %s\n", colorize(colorCyan, p.ID), p.Filename, p.SuspendedAt)
		}
		return nil
	},
}

var reviewsDecideCmd = &cobra.Command{
	Use:   "decide <id>",
	Short: "Decide a suspended invoice",
	Long: `Decide a suspended invoice.

Examples:
  tallyctl reviews decide <id> --decision continue --set total_amount=1842.50 --by ap-clerk
  tallyctl reviews decide <id> --decision reject --note "unreadable scan" --by ap-clerk
  tallyctl reviews decide <id> --decision request_more_info --note "need PO number" --by ap-clerk`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		decision, _ := cmd.Flags().GetString("decision")
		sets, _ := cmd.Flags().GetStringArray("set")
		note, _ := cmd.Flags().GetString("note")
		by, _ := cmd.Flags().GetString("by")

		if decision == "" {
			return fmt.Errorf("--decision is required")
		}
		if by == "" {
			return fmt.Errorf("--by is required")
		}

		corrections := map[string]map[string]any{}
		for _, s := range sets {
			key, value, ok := strings.Cut(s, "=")
			if !ok {
				return fmt.Errorf("invalid --set %q: expected key=value", s)
			}
			corrections[key] = map[string]any{"value": value}
		}

		body := map[string]any{
			"decision":   decision,
			"decided_by": by,
		}
		if len(corrections) > 0 {
			body["corrections"] = corrections
		}
		if note != "" {
			body["note"] = note
		}

		client := newAPIClient()
		resp, err := client.post("/reviews/"+args[0]+"/decide", body, "")
		if err != nil {
			return err
		}

		var inv struct {
			ID            string `json:"id"`
			Status        string `json:"status"`
			WorkflowState string `json:"workflow_state"`
		}
		if err := decodeJSON(resp, &inv); err != nil {
			return err
		}

		printSuccess("Invoice %s is now %s (%s)", inv.ID, inv.Status, inv.WorkflowState)
		return nil
	},
}

func init() {
	reviewsDecideCmd.Flags().String("decision", "", "continue, reject, or request_more_info")
	reviewsDecideCmd.Flags().StringArray("set", nil, "field correction as key=value (repeatable)")
	reviewsDecideCmd.Flags().String("note", "", "note attached to the decision")
	reviewsDecideCmd.Flags().String("by", "", "operator making the decision")

	reviewsCmd.AddCommand(reviewsListCmd)
	reviewsCmd.AddCommand(reviewsDecideCmd)
}

// --- dlq ---

var dlqCmd = &cobra.Command{
	Use:   "dlq",
	Short: "Inspect and redrive dead letters",
}

var dlqListCmd = &cobra.Command{
	Use:   "list",
	Short: "List dead letters",
	RunE: func(cmd *cobra.Command, args []string) error {
		status, _ := cmd.Flags().GetString("status")
		manual, _ := cmd.Flags().GetBool("manual")

		q := url.Values{}
		if status != "" {
			q.Set("status", status)
		}
		if manual {
			q.Set("manual", "true")
		}

		client := newAPIClient()
		resp, err := client.get("/deadletters?" + q.Encode())
		if err != nil {
			return err
		}

		var result struct {
			Data []struct {
				ID                 string `json:"id"`
				InvoiceID          string `json:"invoice_id"`
				Stage              string `json:"stage"`
				Category           string `json:"category"`
				Status             string `json:"status"`
				RedriveCount       int    `json:"redrive_count"`
				ManualIntervention bool   `json:"manual_intervention"`
				Error              string `json:"error"`
			} `json:"data"`
			Total int `json:"total"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		if len(result.Data) == 0 {
			fmt.Println("Dead letter queue is empty.")
			return nil
		}

		for _, e := range result.Data {
			flag := " "
			if e.ManualIntervention {
				flag = colorize(colorRed, "!")
			}
			msg := e.Error
			if len(msg) > 60 {
				msg = msg[:60] + "..."
			}
			fmt.Printf("%s %s  %-12s %-10s %-18s redrives=%d  %s\n",
				flag,
				colorize(colorCyan, e.ID),
				e.Stage,
				e.Category,
				e.Status,
				e.RedriveCount,
				msg,
			)
		}
		fmt.Printf("\n%d total\n", result.Total)
		return nil
	},
}

var dlqShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a single dead letter with its redrive history",
	Args:  cobra.ExactArgs(1),
	RunE:  showJSON("/deadletters/%s"),
}

func dlqAction(action string) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		by, _ := cmd.Flags().GetString("by")
		if by == "" {
			return fmt.Errorf("--by is required")
		}

		client := newAPIClient()
		resp, err := client.post("/deadletters/"+args[0]+"/"+action, map[string]string{"actor": by}, "")
		if err != nil {
			return err
		}

		var entry struct {
			ID           string `json:"id"`
			Status       string `json:"status"`
			RedriveCount int    `json:"redrive_count"`
		}
		if err := decodeJSON(resp, &entry); err != nil {
			return err
		}

		printSuccess("Dead letter %s is now %s (redrives: %d)", entry.ID, entry.Status, entry.RedriveCount)
		return nil
	}
}

var dlqRedriveCmd = &cobra.Command{
	Use:   "redrive <id>",
	Short: "Requeue a dead letter's captured work",
	Args:  cobra.ExactArgs(1),
	RunE:  dlqAction("redrive"),
}

var dlqArchiveCmd = &cobra.Command{
	Use:   "archive <id>",
	Short: "Archive a dead letter without reprocessing it",
	Args:  cobra.ExactArgs(1),
	RunE:  dlqAction("archive"),
}

func init() {
	dlqListCmd.Flags().String("status", "", "filter by status")
	dlqListCmd.Flags().Bool("manual", false, "only entries requiring manual intervention")
	dlqRedriveCmd.Flags().String("by", "", "operator requesting the redrive")
	dlqArchiveCmd.Flags().String("by", "", "operator archiving the entry")

	dlqCmd.AddCommand(dlqListCmd)
	dlqCmd.AddCommand(dlqShowCmd)
	dlqCmd.AddCommand(dlqRedriveCmd)
	dlqCmd.AddCommand(dlqArchiveCmd)
}

// --- exceptions ---

var exceptionsCmd = &cobra.Command{
	Use:   "exceptions",
	Short: "Inspect and resolve exceptions",
}

var exceptionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List exceptions",
	RunE: func(cmd *cobra.Command, args []string) error {
		status, _ := cmd.Flags().GetString("status")
		severity, _ := cmd.Flags().GetString("severity")

		q := url.Values{}
		if status != "" {
			q.Set("status", status)
		}
		if severity != "" {
			q.Set("severity", severity)
		}

		client := newAPIClient()
		resp, err := client.get("/exceptions?" + q.Encode())
		if err != nil {
			return err
		}

		var result struct {
			Data []struct {
				ID        string `json:"id"`
				InvoiceID string `json:"invoice_id"`
				Reason    string `json:"reason"`
				Severity  string `json:"severity"`
				Status    string `json:"status"`
			} `json:"data"`
			Total int `json:"total"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		if len(result.Data) == 0 {
			fmt.Println("No exceptions found.")
			return nil
		}

		for _, e := range result.Data {
			fmt.Printf("%s  %-22s %-8s %-8s invoice %s\n",
				colorize(colorCyan, e.ID),
				e.Reason,
				e.Severity,
				e.Status,
				e.InvoiceID,
			)
		}
		fmt.Printf("\n%d total\n", result.Total)
		return nil
	},
}

var exceptionsResolveCmd = &cobra.Command{
	Use:   "resolve <id>",
	Short: "Resolve an open exception",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		by, _ := cmd.Flags().GetString("by")
		notes, _ := cmd.Flags().GetString("notes")
		key, _ := cmd.Flags().GetString("key")

		if by == "" {
			return fmt.Errorf("--by is required")
		}
		if key == "" {
			key = "resolve:" + args[0]
		}

		body := map[string]string{"resolved_by": by}
		if notes != "" {
			body["notes"] = notes
		}

		client := newAPIClient()
		resp, err := client.post("/exceptions/"+args[0]+"/resolve", body, key)
		if err != nil {
			return err
		}

		var e struct {
			ID     string `json:"id"`
			Status string `json:"status"`
		}
		if err := decodeJSON(resp, &e); err != nil {
			return err
		}

		printSuccess("Exception %s is now %s", e.ID, e.Status)
		return nil
	},
}

func init() {
	exceptionsListCmd.Flags().String("status", "", "filter by status")
	exceptionsListCmd.Flags().String("severity", "", "filter by severity")
	exceptionsResolveCmd.Flags().String("by", "", "operator resolving the exception")
	exceptionsResolveCmd.Flags().String("notes", "", "resolution notes")
	exceptionsResolveCmd.Flags().String("key", "", "idempotency key (default: resolve:<id>)")

	exceptionsCmd.AddCommand(exceptionsListCmd)
	exceptionsCmd.AddCommand(exceptionsResolveCmd)
}
